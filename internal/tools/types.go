// Package tools provides the executor the scheduler hands actions to.
// Each tool is a named handler with an argument schema; the registry
// validates arguments, runs the handler, and times the call.
package tools

import (
	"context"
	"errors"
)

// Sentinel errors for registry operations.
var (
	ErrToolNameEmpty         = errors.New("tool name is empty")
	ErrToolExecuteNil        = errors.New("tool execute function is nil")
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrToolNotFound          = errors.New("tool not found")
	ErrMissingRequiredArg    = errors.New("missing required argument")
)

// Property describes a single parameter for the tool's schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
}

// Schema defines the expected arguments of a tool.
type Schema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named, schema-described action handler.
type Tool struct {
	Name        string
	Description string
	Execute     ExecuteFunc
	Schema      Schema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Result wraps the outcome of one tool execution with metadata.
type Result struct {
	ToolName   string `json:"tool_name"`
	Result     any    `json:"result,omitempty"`
	Error      error  `json:"-"`
	DurationMs int64  `json:"duration_ms"`
}
