package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"goalpilot/internal/config"
	"goalpilot/internal/logging"
)

// InvokeOptions tunes one router invocation.
type InvokeOptions struct {
	ExpectJSON bool
}

// Router resolves roles to adapters and normalizes replies. Adapter
// registration and config swaps are safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	fallback Adapter
	cfg      config.ProviderConfig
}

// NewRouter creates a router with the built-in mock fallback and no
// concrete adapters registered.
func NewRouter(cfg config.ProviderConfig) *Router {
	return &Router{
		adapters: make(map[string]Adapter),
		fallback: NewMockAdapter(),
		cfg:      cfg,
	}
}

// NewRouterWithDefaults creates a router and registers the standard
// adapters for every provider the config supplies credentials or
// endpoints for. The mock adapter is always registered.
func NewRouterWithDefaults(cfg config.ProviderConfig) *Router {
	r := NewRouter(cfg)
	timeout := time.Duration(cfg.TimeoutSec) * time.Second

	if key := cfg.APIKeys["anthropic"]; key != "" {
		ac := DefaultAnthropicConfig(key)
		ac.Timeout = timeout
		if url := cfg.BaseURLs["anthropic"]; url != "" {
			ac.BaseURL = url
		}
		r.RegisterAdapter("anthropic", NewAnthropicAdapterWithConfig(ac))
	}
	if key := cfg.APIKeys["openai"]; key != "" {
		oc := DefaultOpenAIConfig(key)
		oc.Timeout = timeout
		if url := cfg.BaseURLs["openai"]; url != "" {
			oc.BaseURL = url
		}
		r.RegisterAdapter("openai", NewOpenAIAdapterWithConfig(oc))
	}
	// Ollama needs no key; register it whenever an endpoint is set or
	// the default local server might be there.
	r.RegisterAdapter("ollama", NewOllamaAdapter(cfg.BaseURLs["ollama"], timeout))
	r.RegisterAdapter("mock", NewMockAdapter())

	return r
}

// RegisterAdapter adds or replaces the adapter for a provider name.
func (r *Router) RegisterAdapter(name string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
	logging.ProviderDebug("registered adapter %q", name)
}

// ListProviders returns the registered provider names, sorted.
func (r *Router) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetConfig returns the current provider configuration.
func (r *Router) GetConfig() config.ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// SetConfig swaps the role bindings, typically after a config reload.
func (r *Router) SetConfig(cfg config.ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	logging.Provider("role bindings updated (%d roles)", len(cfg.Roles))
}

// Invoke resolves role to its binding, calls the bound adapter, and
// normalizes the reply. On adapter error it retries against the mock
// adapter with Fallback set, so the result always carries a valid
// action. Only an unknown role is a hard error.
func (r *Router) Invoke(ctx context.Context, role string, messages []Message, opts InvokeOptions) (*Result, error) {
	r.mu.RLock()
	binding, ok := r.cfg.Roles[role]
	if !ok {
		binding, ok = config.DefaultRoleBindings()[role]
	}
	var adapter Adapter
	if ok {
		adapter = r.adapters[binding.Provider]
	}
	fallback := r.fallback
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no binding for role %q", role)
	}

	req := Request{
		Role:        role,
		Model:       binding.Model,
		Messages:    messages,
		Temperature: binding.Params.Temperature,
		MaxTokens:   binding.Params.MaxTokens,
		ExpectJSON:  opts.ExpectJSON,
	}

	// The resolved adapter supplies the estimate so a backend with a
	// real tokenizer can improve on the shared proxy.
	estimator := adapter
	if estimator == nil {
		estimator = fallback
	}

	result := &Result{
		Role:          role,
		Provider:      binding.Provider,
		Model:         binding.Model,
		TokenEstimate: estimator.EstimateTokens(req),
	}

	var resp *Response
	var err error
	if adapter != nil {
		timer := logging.StartTimer(logging.CategoryProvider, fmt.Sprintf("invoke %s/%s", binding.Provider, binding.Model))
		resp, err = adapter.Invoke(ctx, req)
		timer.Stop()
	} else {
		err = fmt.Errorf("provider %q has no registered adapter", binding.Provider)
	}

	if err != nil {
		logging.Get(logging.CategoryProvider).Warn("role %q via %s failed, falling back to mock: %v", role, binding.Provider, err)
		result.Fallback = true
		result.FailedProvider = binding.Provider
		result.Provider = "mock"
		resp, err = fallback.Invoke(ctx, req)
		if err != nil {
			// The mock never fails; surface it if it somehow does.
			return nil, fmt.Errorf("fallback adapter failed: %w", err)
		}
	}

	result.Text = resp.Text
	result.Raw = resp.Raw
	result.Action = resp.Action
	if result.Action == nil {
		result.Action = ExtractAction(resp.Text)
	}

	logging.ProviderDebug("role %q -> %s/%s (%d est. tokens, action=%v, fallback=%v)",
		role, result.Provider, result.Model, result.TokenEstimate, result.Action != nil, result.Fallback)
	return result, nil
}
