package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	rerr "prospect/internal/errors"
)

const ddgFixture = `<html><body>
<div class="result results_links results_links_deep web-result">
  <h2 class="result__title">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fabout&amp;rut=abc">Example Corp - About Us</a>
  </h2>
  <a class="result__snippet" href="https://example.com/about">Example Corp was founded in 1999 and builds widgets.</a>
</div>
<div class="result results_links results_links_deep web-result">
  <h2 class="result__title">
    <a class="result__a" href="https://news.example.com/funding">Example Corp raises Series C</a>
  </h2>
  <a class="result__snippet" href="https://news.example.com/funding">The company announced a $50M round.</a>
</div>
</body></html>`

func TestWebSearchTool_Tavily(t *testing.T) {
	var gotReq tavilyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"query": "Example Corp",
			"results": [
				{"title": "Example Corp - Wikipedia", "url": "https://en.wikipedia.org/wiki/Example", "content": "Example Corp is a company.", "score": 0.97},
				{"title": "Example Corp homepage", "url": "https://example.com", "content": "We build widgets.", "score": 0.91}
			]
		}`))
	}))
	defer server.Close()

	cfg := Config{SearchProvider: "tavily", TavilyAPIKey: "tvly-key", TavilyBaseURL: server.URL}
	cfg.normalize()

	tool := WebSearchTool(cfg)
	out, err := tool.Execute(context.Background(), map[string]any{"query": "Example Corp"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if gotReq.APIKey != "tvly-key" {
		t.Error("Expected API key in request body")
	}
	if gotReq.Query != "Example Corp" {
		t.Errorf("Unexpected query: %q", gotReq.Query)
	}
	if !strings.Contains(out, "Example Corp - Wikipedia") {
		t.Errorf("Expected result title in output, got:\n%s", out)
	}
	if !strings.Contains(out, "Found 2 results") {
		t.Errorf("Expected result count in output, got:\n%s", out)
	}
}

func TestWebSearchTool_TavilyRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail": "invalid api key"}`))
	}))
	defer server.Close()

	cfg := Config{SearchProvider: "tavily", TavilyAPIKey: "bad-key", TavilyBaseURL: server.URL}
	cfg.normalize()

	tool := WebSearchTool(cfg)
	_, err := tool.Execute(context.Background(), map[string]any{"query": "Example"})
	if err == nil {
		t.Fatal("Expected error for 401 response")
	}
	if rerr.Classify(err) != rerr.ClassToolRejected {
		t.Errorf("Expected tool_rejected, got %s", rerr.Classify(err))
	}
}

func TestWebSearchTool_TavilyUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := Config{SearchProvider: "tavily", TavilyAPIKey: "k", TavilyBaseURL: server.URL}
	cfg.normalize()

	tool := WebSearchTool(cfg)
	_, err := tool.Execute(context.Background(), map[string]any{"query": "Example"})
	if err == nil {
		t.Fatal("Expected error for 500 response")
	}
	if rerr.Classify(err) != rerr.ClassToolUnavailable {
		t.Errorf("Expected tool_unavailable, got %s", rerr.Classify(err))
	}
}

func TestWebSearchTool_TavilyMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	cfg := Config{SearchProvider: "tavily", TavilyAPIKey: "k", TavilyBaseURL: server.URL}
	cfg.normalize()

	tool := WebSearchTool(cfg)
	_, err := tool.Execute(context.Background(), map[string]any{"query": "Example"})
	if err == nil {
		t.Fatal("Expected error for malformed response")
	}
	if rerr.Classify(err) != rerr.ClassMalformedResponse {
		t.Errorf("Expected malformed_response, got %s", rerr.Classify(err))
	}
}

func TestWebSearchTool_TavilyNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query": "x", "results": []}`))
	}))
	defer server.Close()

	cfg := Config{SearchProvider: "tavily", TavilyAPIKey: "k", TavilyBaseURL: server.URL}
	cfg.normalize()

	tool := WebSearchTool(cfg)
	out, err := tool.Execute(context.Background(), map[string]any{"query": "Obscurium GmbH"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "No results found") {
		t.Errorf("Expected no-results message, got: %s", out)
	}
}

func TestWebSearchTool_DuckDuckGo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "" {
			t.Error("Expected q query parameter")
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(ddgFixture))
	}))
	defer server.Close()

	cfg := Config{SearchProvider: "duckduckgo", DuckDuckGoURL: server.URL + "/html/"}
	cfg.normalize()

	tool := WebSearchTool(cfg)
	out, err := tool.Execute(context.Background(), map[string]any{"query": "Example Corp"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "Example Corp - About Us") {
		t.Errorf("Expected parsed title in output, got:\n%s", out)
	}
	if !strings.Contains(out, "founded in 1999") {
		t.Errorf("Expected snippet in output, got:\n%s", out)
	}
}

func TestCompanyValuesSearch_QuerySlant(t *testing.T) {
	var gotReq tavilyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"results": [{"title": "Careers at Example", "url": "https://example.com/careers", "content": "Our values."}]}`))
	}))
	defer server.Close()

	cfg := Config{SearchProvider: "tavily", TavilyAPIKey: "k", TavilyBaseURL: server.URL}
	cfg.normalize()

	tool := CompanyValuesSearchTool(cfg)
	_, err := tool.Execute(context.Background(), map[string]any{"query": "Example Corp"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !strings.Contains(gotReq.Query, "culture") || !strings.Contains(gotReq.Query, "values") {
		t.Errorf("Expected culture-slanted query, got: %q", gotReq.Query)
	}
}

func TestParseDuckDuckGoResults(t *testing.T) {
	results, err := parseDuckDuckGoResults(ddgFixture, 10)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	// Redirect URL should be unwrapped
	if results[0].URL != "https://example.com/about" {
		t.Errorf("Expected unwrapped URL, got %q", results[0].URL)
	}
	if results[1].URL != "https://news.example.com/funding" {
		t.Errorf("Expected direct URL, got %q", results[1].URL)
	}

	// maxResults bound
	bounded, _ := parseDuckDuckGoResults(ddgFixture, 1)
	if len(bounded) != 1 {
		t.Errorf("Expected 1 bounded result, got %d", len(bounded))
	}
}

func TestSearch_MissingQuery(t *testing.T) {
	cfg := Config{}
	cfg.normalize()

	tool := WebSearchTool(cfg)
	_, err := tool.Execute(context.Background(), map[string]any{"query": ""})
	if err == nil {
		t.Fatal("Expected error for empty query")
	}
	if rerr.Classify(err) != rerr.ClassToolRejected {
		t.Errorf("Expected tool_rejected, got %s", rerr.Classify(err))
	}
}
