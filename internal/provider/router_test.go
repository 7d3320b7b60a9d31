package provider

import (
	"context"
	"errors"
	"testing"

	"goalpilot/internal/config"
)

// scriptedAdapter replays canned responses or errors, in order.
type scriptedAdapter struct {
	responses []*Response
	errs      []error
	calls     int
}

func (a *scriptedAdapter) Name() string { return "scripted" }

func (a *scriptedAdapter) EstimateTokens(req Request) int { return EstimateTokens(req.Messages) }

func (a *scriptedAdapter) Invoke(ctx context.Context, req Request) (*Response, error) {
	i := a.calls
	a.calls++
	if i < len(a.errs) && a.errs[i] != nil {
		return nil, a.errs[i]
	}
	if i < len(a.responses) {
		return a.responses[i], nil
	}
	return &Response{Text: "out of script"}, nil
}

func testConfig(provider string) config.ProviderConfig {
	return config.ProviderConfig{
		Roles: map[string]config.RoleBinding{
			"planner": {
				Provider: provider,
				Model:    "test-model",
				Params:   config.RoleParams{Temperature: 0.1, MaxTokens: 128},
			},
		},
	}
}

func TestInvokeFallbackOnAdapterError(t *testing.T) {
	r := NewRouter(testConfig("flaky"))
	r.RegisterAdapter("flaky", &scriptedAdapter{errs: []error{errors.New("connection refused")}})

	res, err := r.Invoke(context.Background(), "planner", []Message{
		{Role: "user", Content: "Summarize homepage"},
	}, InvokeOptions{ExpectJSON: true})
	if err != nil {
		t.Fatalf("Invoke must fall back, not fail: %v", err)
	}

	if !res.Fallback {
		t.Error("expected Fallback == true")
	}
	if res.FailedProvider != "flaky" {
		t.Errorf("expected failedProvider flaky, got %q", res.FailedProvider)
	}
	if res.Provider != "mock" {
		t.Errorf("expected provider mock, got %q", res.Provider)
	}
	if res.Action == nil || res.Action.Name == "" {
		t.Fatalf("fallback must carry a valid action, got %+v", res.Action)
	}
}

func TestInvokeUnregisteredProviderFallsBack(t *testing.T) {
	r := NewRouter(testConfig("missing"))

	res, err := r.Invoke(context.Background(), "planner", []Message{
		{Role: "user", Content: "anything"},
	}, InvokeOptions{})
	if err != nil {
		t.Fatalf("Invoke must fall back for a missing adapter: %v", err)
	}
	if !res.Fallback || res.Action == nil {
		t.Errorf("expected a usable fallback result, got %+v", res)
	}
}

func TestInvokeUnknownRole(t *testing.T) {
	r := NewRouter(config.ProviderConfig{Roles: map[string]config.RoleBinding{}})

	// Built-in default roles still resolve.
	if _, err := r.Invoke(context.Background(), "planner", []Message{{Role: "user", Content: "x"}}, InvokeOptions{}); err != nil {
		t.Errorf("default-bound role must resolve: %v", err)
	}

	if _, err := r.Invoke(context.Background(), "nonexistent", nil, InvokeOptions{}); err == nil {
		t.Error("expected an error for an unknown role")
	}
}

func TestInvokeStructuredActionPreferred(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*Response{{
		Text:   `ignore this text: action: {"name": "wrong"}`,
		Action: &Action{Name: "right", Params: map[string]interface{}{"k": "v"}},
	}}}
	r := NewRouter(testConfig("scripted"))
	r.RegisterAdapter("scripted", adapter)

	res, err := r.Invoke(context.Background(), "planner", []Message{{Role: "user", Content: "x"}}, InvokeOptions{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Action == nil || res.Action.Name != "right" {
		t.Errorf("structured action must win over text extraction, got %+v", res.Action)
	}
	if res.Fallback {
		t.Error("no fallback expected for a healthy adapter")
	}
}

func TestInvokeExtractsActionFromText(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*Response{{
		Text: `I will click the button. {"action": {"name": "click", "params": {"selector": "#buy"}}}`,
	}}}
	r := NewRouter(testConfig("scripted"))
	r.RegisterAdapter("scripted", adapter)

	res, err := r.Invoke(context.Background(), "planner", []Message{{Role: "user", Content: "x"}}, InvokeOptions{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Action == nil || res.Action.Name != "click" {
		t.Fatalf("expected extracted click action, got %+v", res.Action)
	}
	if res.Action.Params["selector"] != "#buy" {
		t.Errorf("expected params preserved, got %+v", res.Action.Params)
	}
}

func TestInvokeNoActionRemainsAbsent(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*Response{{
		Text: "I am not sure what to do next.",
	}}}
	r := NewRouter(testConfig("scripted"))
	r.RegisterAdapter("scripted", adapter)

	res, err := r.Invoke(context.Background(), "planner", []Message{{Role: "user", Content: "x"}}, InvokeOptions{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Action != nil {
		t.Errorf("expected no action, got %+v", res.Action)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		messages []Message
		want     int
	}{
		{nil, 0},
		{[]Message{{Content: ""}}, 0},
		{[]Message{{Content: "abcd"}}, 1},
		{[]Message{{Content: "abcde"}}, 2},
		{[]Message{{Content: "abcd"}, {Content: "efgh"}}, 2},
	}
	for i, c := range cases {
		if got := EstimateTokens(c.messages); got != c.want {
			t.Errorf("case %d: expected %d tokens, got %d", i, c.want, got)
		}
	}
}

// countingAdapter reports a fixed token estimate so tests can tell the
// adapter's estimator apart from the shared chars/4 proxy.
type countingAdapter struct {
	scriptedAdapter
	estimate int
}

func (a *countingAdapter) EstimateTokens(req Request) int { return a.estimate }

func TestInvokeUsesAdapterTokenEstimate(t *testing.T) {
	adapter := &countingAdapter{
		scriptedAdapter: scriptedAdapter{responses: []*Response{{Text: "ok"}}},
		estimate:        1234,
	}
	r := NewRouter(testConfig("counting"))
	r.RegisterAdapter("counting", adapter)

	res, err := r.Invoke(context.Background(), "planner", []Message{{Role: "user", Content: "x"}}, InvokeOptions{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.TokenEstimate != 1234 {
		t.Errorf("expected the adapter's estimate 1234, got %d", res.TokenEstimate)
	}
}

func TestListProvidersSorted(t *testing.T) {
	r := NewRouter(testConfig("zeta"))
	r.RegisterAdapter("zeta", &scriptedAdapter{})
	r.RegisterAdapter("alpha", &scriptedAdapter{})

	names := r.ListProviders()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("expected sorted provider names, got %v", names)
	}
}

func TestSetConfigSwapsBindings(t *testing.T) {
	r := NewRouter(testConfig("scripted"))
	r.RegisterAdapter("other", &scriptedAdapter{responses: []*Response{{
		Action: &Action{Name: "noop"},
	}}})

	cfg := testConfig("other")
	r.SetConfig(cfg)

	res, err := r.Invoke(context.Background(), "planner", []Message{{Role: "user", Content: "x"}}, InvokeOptions{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Provider != "other" || res.Fallback {
		t.Errorf("expected the swapped binding to take effect, got %+v", res)
	}
}
