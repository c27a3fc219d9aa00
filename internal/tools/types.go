// Package tools provides the external tool surface for research workers.
//
// Each tool wraps exactly one external capability (web search, page fetch,
// reflection). Workers look tools up in a Registry and invoke them one call
// at a time; every execution failure is classified onto the taxonomy in
// internal/errors before it reaches the worker loop, so a worker only ever
// sees tool_unavailable, tool_timeout, tool_rejected or malformed_response.
package tools

import (
	"context"

	rerr "prospect/internal/errors"
)

// ToolCategory classifies tools for domain-based selection.
type ToolCategory string

const (
	// CategorySearch covers web search providers.
	CategorySearch ToolCategory = "/search"

	// CategoryFetch covers page retrieval and content extraction.
	CategoryFetch ToolCategory = "/fetch"

	// CategoryReflect covers reasoning aids with no external call.
	CategoryReflect ToolCategory = "/reflect"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
}

// ToolSchema defines the expected arguments for a tool.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines one invocable capability.
type Tool struct {
	// Name is the unique identifier workers request the tool by.
	Name string

	// Description explains what the tool does.
	Description string

	// Category classifies the tool for domain filtering.
	Category ToolCategory

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// Priority is used when multiple tools match.
	// Higher priority tools are preferred (default 50).
	Priority int
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

// ToolResult wraps the result of one tool invocation with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Result is the string output from the tool.
	Result string

	// Error is set if the invocation failed.
	Error error

	// Class is the failure class when Error is set, empty on success.
	Class rerr.Class

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}
