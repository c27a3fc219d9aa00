package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAIClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("Expected test-key authorization")
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"id": "chatcmpl-123",
			"choices": [
				{
					"message": {"role": "assistant", "content": "Hello, world!"},
					"finish_reason": "stop"
				}
			]
		}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}

	resp, err := client.Complete(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp != "Hello, world!" {
		t.Errorf("Expected 'Hello, world!', got %q", resp)
	}
}

func TestOpenAIClient_SystemMessage(t *testing.T) {
	var gotReq OpenAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer server.Close()

	client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})

	_, err := client.CompleteWithSystem(context.Background(), "You are a researcher.", "Summarize.")
	if err != nil {
		t.Fatalf("CompleteWithSystem failed: %v", err)
	}

	if len(gotReq.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[0].Content != "You are a researcher." {
		t.Errorf("Unexpected system message: %+v", gotReq.Messages[0])
	}
	if gotReq.Messages[1].Role != "user" {
		t.Errorf("Expected user role, got %s", gotReq.Messages[1].Role)
	}
}

func TestOpenAIClient_RetryOn429(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices": [{"message": {"content": "recovered"}}]}`))
	}))
	defer server.Close()

	client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	client.retryBackoffBase = 1 * time.Millisecond

	resp, err := client.Complete(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts (2 retries), got %d", attempts)
	}
	if resp != "recovered" {
		t.Errorf("Unexpected response: %s", resp)
	}
}

func TestOpenAIClient_ErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"error": {"message": "model not found", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "Hello")
	if err == nil {
		t.Fatal("Expected error from error field")
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Errorf("Expected API message in error, got: %v", err)
	}
}

func TestOpenAIClient_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	if err == nil {
		t.Fatal("Expected error for missing API key")
	}
}

func TestOpenAIClient_SetModel(t *testing.T) {
	client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "test-key"})

	if client.GetModel() == "" {
		t.Error("Expected default model to be set")
	}

	client.SetModel("gpt-4o")
	if client.GetModel() != "gpt-4o" {
		t.Errorf("Expected gpt-4o, got %s", client.GetModel())
	}
}
