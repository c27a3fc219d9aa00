package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"prospect/internal/logging"
)

// OpenAIClient implements Client against OpenAI-compatible chat endpoints.
type OpenAIClient struct {
	config     OpenAIConfig
	httpClient *http.Client

	// Rate limiting
	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration

	retryBackoffBase time.Duration
}

// DefaultOpenAIConfig returns sensible defaults for the OpenAI client.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:    apiKey,
		BaseURL:   "https://api.openai.com/v1",
		Model:     "gpt-4o-mini",
		Timeout:   60 * time.Second,
		MaxTokens: 8192,
	}
}

// NewOpenAIClient creates a new OpenAI-compatible API client.
func NewOpenAIClient(config OpenAIConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 8192
	}

	return &OpenAIClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		minInterval:      100 * time.Millisecond,
		retryBackoffBase: 1 * time.Second,
	}, nil
}

// Complete sends a prompt and returns the completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	c.rateLimit()

	messages := []OpenAIMessage{}
	if systemPrompt != "" {
		messages = append(messages, OpenAIMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, OpenAIMessage{Role: "user", Content: userPrompt})

	reqBody := OpenAIRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: 0.7,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.config.BaseURL + "/chat/completions"

	logging.LLMDebug("OpenAI request: model=%s prompt_len=%d system_len=%d",
		c.config.Model, len(userPrompt), len(systemPrompt))

	start := time.Now()
	text, err := c.doRequest(ctx, url, jsonData)
	elapsed := time.Since(start)

	if err != nil {
		logging.LLMError("OpenAI request failed after %v: %v", elapsed, err)
		logging.Audit().LLMCall("openai", c.config.Model, elapsed.Milliseconds(), false, err.Error())
		return "", err
	}

	logging.LLM("OpenAI completion: model=%s elapsed=%v response_len=%d",
		c.config.Model, elapsed, len(text))
	logging.Audit().LLMCall("openai", c.config.Model, elapsed.Milliseconds(), true, "")
	return text, nil
}

// doRequest performs the HTTP request with retry on transient failures.
func (c *OpenAIClient) doRequest(ctx context.Context, url string, jsonData []byte) (string, error) {
	maxRetries := 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			backoff := c.retryBackoffBase * time.Duration(1<<uint(i-1))
			logging.LLMWarn("OpenAI retry %d/%d after %v", i, maxRetries-1, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if ctx.Err() != nil {
				return "", lastErr
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429): %s", string(body))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
		}

		var openaiResp OpenAIResponse
		if err := json.Unmarshal(body, &openaiResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}

		if openaiResp.Error != nil {
			return "", fmt.Errorf("API error: %s (type %s)", openaiResp.Error.Message, openaiResp.Error.Type)
		}

		if len(openaiResp.Choices) == 0 {
			return "", fmt.Errorf("no choices in response")
		}

		result := strings.TrimSpace(openaiResp.Choices[0].Message.Content)
		if result == "" {
			return "", fmt.Errorf("empty completion (finish reason: %s)",
				openaiResp.Choices[0].FinishReason)
		}
		return result, nil
	}

	return "", fmt.Errorf("openai request failed after %d retries: %w", maxRetries, lastErr)
}

// rateLimit enforces a minimum interval between requests.
func (c *OpenAIClient) rateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastRequest)
	if elapsed < c.minInterval {
		time.Sleep(c.minInterval - elapsed)
	}
	c.lastRequest = time.Now()
}

// SetModel overrides the model used for completions.
func (c *OpenAIClient) SetModel(model string) {
	if model != "" {
		c.config.Model = model
	}
}

// GetModel returns the configured model name.
func (c *OpenAIClient) GetModel() string {
	return c.config.Model
}
