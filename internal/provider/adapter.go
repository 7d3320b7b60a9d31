// Package provider routes abstract roles ("planner", "navigator") to
// concrete model adapters and normalizes their replies into text plus an
// optional structured action. When the bound adapter fails, the router
// retries the call against a deterministic mock adapter so the caller
// always gets a usable result.
package provider

import (
	"context"
)

// Message is one entry in an ordered conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is what the router hands to an adapter.
type Request struct {
	Role        string    // abstract role the call is made on behalf of
	Model       string    // concrete model from the role binding
	Messages    []Message // ordered conversation, system first if any
	Temperature float64
	MaxTokens   int
	ExpectJSON  bool // hint to request structured output
}

// Response is the raw adapter reply before router normalization.
type Response struct {
	Text   string  // free-text completion
	Action *Action // structured action if the adapter produced one
	Raw    string  // verbatim provider payload, for debugging
}

// Adapter is implemented by every concrete model backend.
type Adapter interface {
	// Invoke performs one completion call.
	Invoke(ctx context.Context, req Request) (*Response, error)
	// EstimateTokens approximates the token cost of a request for
	// context budgeting. Backends with a model-specific tokenizer may
	// override the shared chars/4 proxy.
	EstimateTokens(req Request) int
	// Name identifies the adapter in logs and listings.
	Name() string
}

// Result is the normalized outcome of Router.Invoke.
type Result struct {
	Role           string  `json:"role"`
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	Text           string  `json:"text"`
	Action         *Action `json:"action,omitempty"`
	Raw            string  `json:"raw,omitempty"`
	TokenEstimate  int     `json:"token_estimate"`
	Fallback       bool    `json:"fallback,omitempty"`
	FailedProvider string  `json:"failed_provider,omitempty"`
}

// EstimateTokens approximates the token count of a message set as
// ceil(totalChars / 4). This is a budgeting heuristic, not a billing
// figure; real tokenizers differ per model.
func EstimateTokens(messages []Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return (chars + 3) / 4
}
