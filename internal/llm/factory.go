package llm

import (
	"fmt"
	"os"

	"prospect/internal/config"
	"prospect/internal/logging"
)

// NewClient builds the completion client selected by configuration.
func NewClient(cfg *config.Config) (Client, error) {
	provider := Provider(cfg.LLM.Provider)

	switch provider {
	case ProviderGemini:
		gc := DefaultGeminiConfig(cfg.LLM.APIKey)
		if cfg.LLM.Model != "" {
			gc.Model = cfg.LLM.Model
		}
		if cfg.LLM.BaseURL != "" {
			gc.BaseURL = cfg.LLM.BaseURL
		}
		gc.Timeout = cfg.GetLLMTimeout()
		client, err := NewGeminiClient(gc)
		if err != nil {
			return nil, err
		}
		logging.LLM("Using Gemini client: model=%s", client.GetModel())
		return client, nil

	case ProviderOpenAI:
		oc := DefaultOpenAIConfig(cfg.LLM.APIKey)
		if cfg.LLM.Model != "" {
			oc.Model = cfg.LLM.Model
		}
		if cfg.LLM.BaseURL != "" {
			oc.BaseURL = cfg.LLM.BaseURL
		}
		oc.Timeout = cfg.GetLLMTimeout()
		client, err := NewOpenAIClient(oc)
		if err != nil {
			return nil, err
		}
		logging.LLM("Using OpenAI client: model=%s", client.GetModel())
		return client, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (valid: %v)",
			cfg.LLM.Provider, config.ValidProviders)
	}
}

// NewEmbedderFromConfig builds the optional embedding client. Embeddings
// require a Gemini key; when none is available the returned embedder is nil
// and callers fall back to lexical deduplication.
func NewEmbedderFromConfig(cfg *config.Config) (*Embedder, error) {
	apiKey := ""
	if Provider(cfg.LLM.Provider) == ProviderGemini {
		apiKey = cfg.LLM.APIKey
	}
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		logging.LLMDebug("No Gemini key available, embeddings disabled")
		return nil, nil
	}

	embedder, err := NewEmbedder(apiKey, "")
	if err != nil {
		return nil, err
	}
	logging.LLM("Embedder ready: %s", embedder.Name())
	return embedder, nil
}
