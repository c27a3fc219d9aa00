// Package llm provides the chat completion clients behind research planning,
// worker reflection, and report synthesis. Two providers are supported:
// Gemini (REST) and OpenAI-compatible endpoints.
package llm

import (
	"context"
)

// Client is the completion interface the planner, workers, and synthesizer
// depend on. Implementations must be safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)
