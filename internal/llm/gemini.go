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

// GeminiClient implements Client using the Gemini REST API.
type GeminiClient struct {
	config     GeminiConfig
	httpClient *http.Client

	// Rate limiting
	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration

	retryBackoffBase time.Duration
}

// DefaultGeminiConfig returns sensible defaults for the Gemini client.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:          apiKey,
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
		Model:           "gemini-2.5-flash",
		Timeout:         60 * time.Second,
		MaxOutputTokens: 8192,
	}
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxOutputTokens == 0 {
		config.MaxOutputTokens = 8192
	}

	return &GeminiClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		minInterval:      100 * time.Millisecond,
		retryBackoffBase: 1 * time.Second,
	}, nil
}

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system instruction.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	// Apply client timeout when the caller did not set a deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	c.rateLimit()

	reqBody := GeminiRequest{
		Contents: []GeminiContent{
			{
				Role:  "user",
				Parts: []GeminiPart{{Text: userPrompt}},
			},
		},
		GenerationConfig: GeminiGenerationConfig{
			Temperature:     0.7,
			MaxOutputTokens: c.config.MaxOutputTokens,
		},
	}

	if systemPrompt != "" {
		reqBody.SystemInstruction = &GeminiContent{
			Parts: []GeminiPart{{Text: systemPrompt}},
		}
	}

	if jsonOutputRequested(systemPrompt, userPrompt) {
		reqBody.GenerationConfig.ResponseMimeType = "application/json"
		logging.LLMDebug("JSON output mode enabled for request")
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.config.BaseURL, c.config.Model, c.config.APIKey)

	logging.LLMDebug("Gemini request: model=%s prompt_len=%d system_len=%d",
		c.config.Model, len(userPrompt), len(systemPrompt))

	start := time.Now()
	text, err := c.doRequest(ctx, url, jsonData)
	elapsed := time.Since(start)

	if err != nil {
		logging.LLMError("Gemini request failed after %v: %v", elapsed, err)
		logging.Audit().LLMCall("gemini", c.config.Model, elapsed.Milliseconds(), false, err.Error())
		return "", err
	}

	logging.LLM("Gemini completion: model=%s elapsed=%v response_len=%d",
		c.config.Model, elapsed, len(text))
	logging.Audit().LLMCall("gemini", c.config.Model, elapsed.Milliseconds(), true, "")
	return text, nil
}

// doRequest performs the HTTP request with retry on transient failures.
func (c *GeminiClient) doRequest(ctx context.Context, url string, jsonData []byte) (string, error) {
	maxRetries := 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			backoff := c.retryBackoffBase * time.Duration(1<<uint(i-1))
			logging.LLMWarn("Gemini retry %d/%d after %v", i, maxRetries-1, backoff)
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

		var geminiResp GeminiResponse
		if err := json.Unmarshal(body, &geminiResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}

		if geminiResp.Error != nil {
			return "", fmt.Errorf("API error: %s (code %d)", geminiResp.Error.Message, geminiResp.Error.Code)
		}

		if len(geminiResp.Candidates) == 0 {
			return "", fmt.Errorf("no candidates in response")
		}

		var sb strings.Builder
		for _, part := range geminiResp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}

		result := strings.TrimSpace(sb.String())
		if result == "" {
			return "", fmt.Errorf("empty completion (finish reason: %s)",
				geminiResp.Candidates[0].FinishReason)
		}
		return result, nil
	}

	return "", fmt.Errorf("gemini request failed after %d retries: %w", maxRetries, lastErr)
}

// rateLimit enforces a minimum interval between requests.
func (c *GeminiClient) rateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastRequest)
	if elapsed < c.minInterval {
		time.Sleep(c.minInterval - elapsed)
	}
	c.lastRequest = time.Now()
}

// SetModel overrides the model used for completions.
func (c *GeminiClient) SetModel(model string) {
	if model != "" {
		c.config.Model = model
	}
}

// GetModel returns the configured model name.
func (c *GeminiClient) GetModel() string {
	return c.config.Model
}

// jsonOutputRequested reports whether the prompts ask for JSON-only output,
// in which case the response MIME type is pinned to application/json.
func jsonOutputRequested(systemPrompt, userPrompt string) bool {
	markers := []string{
		"JSON only",
		"valid JSON",
		"Respond with JSON",
		"respond in JSON",
		"Return a JSON",
		"Output JSON",
	}
	for _, m := range markers {
		if strings.Contains(systemPrompt, m) || strings.Contains(userPrompt, m) {
			return true
		}
	}
	return false
}
