package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MockAdapter is the deterministic fallback backend. It never fails and
// always produces a structured action, so a role whose real provider is
// down still makes progress. With no conversation to react to it
// completes the goal outright.
type MockAdapter struct{}

// NewMockAdapter creates the fallback adapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

// Name identifies the adapter.
func (a *MockAdapter) Name() string { return "mock" }

// EstimateTokens uses the shared chars/4 proxy.
func (a *MockAdapter) EstimateTokens(req Request) int { return EstimateTokens(req.Messages) }

// Invoke synthesizes a reply from the last user message. The action is
// always "complete" with an echo of the prompt, which drives any goal to
// a terminal state in one tick.
func (a *MockAdapter) Invoke(ctx context.Context, req Request) (*Response, error) {
	prompt := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			prompt = req.Messages[i].Content
			break
		}
	}

	summary := prompt
	if len(summary) > 120 {
		summary = summary[:120] + "..."
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = "no prompt provided"
	}

	action := &Action{
		Name: "complete",
		Params: map[string]interface{}{
			"result": fmt.Sprintf("[mock:%s] %s", req.Role, summary),
		},
	}

	raw, _ := json.Marshal(map[string]interface{}{"action": action})
	return &Response{
		Text:   string(raw),
		Action: action,
		Raw:    string(raw),
	}, nil
}

var _ Adapter = (*MockAdapter)(nil)
