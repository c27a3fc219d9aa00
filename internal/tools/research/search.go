package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	rerr "prospect/internal/errors"
	"prospect/internal/logging"
	"prospect/internal/tools"

	"golang.org/x/net/html"
)

// SearchResult represents a single search result.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// tavilyRequest is the Tavily search API request body.
type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

// tavilyResponse is the Tavily search API response.
type tavilyResponse struct {
	Query   string `json:"query"`
	Answer  string `json:"answer,omitempty"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// WebSearchTool returns the general web search tool.
func WebSearchTool(cfg Config) *tools.Tool {
	return &tools.Tool{
		Name:        NameWebSearch,
		Description: "Search the web for information about a company",
		Category:    tools.CategorySearch,
		Priority:    75,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeSearch(ctx, cfg, NameWebSearch, args, "")
		},
		Schema: tools.ToolSchema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query": {
					Type:        "string",
					Description: "The search query",
				},
				"max_results": {
					Type:        "integer",
					Description: "Maximum number of results to return",
					Default:     5,
				},
			},
		},
	}
}

// CompanyValuesSearchTool returns the culture-slanted search variant.
// The query is widened toward values, reviews and work-environment pages.
func CompanyValuesSearchTool(cfg Config) *tools.Tool {
	return &tools.Tool{
		Name:        NameCompanyValuesSearch,
		Description: "Search for a company's culture, core values and employee experience",
		Category:    tools.CategorySearch,
		Priority:    70,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeSearch(ctx, cfg, NameCompanyValuesSearch, args,
				" company culture core values employee reviews work environment")
		},
		Schema: tools.ToolSchema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query": {
					Type:        "string",
					Description: "The company or topic to search values for",
				},
				"max_results": {
					Type:        "integer",
					Description: "Maximum number of results to return",
					Default:     5,
				},
			},
		},
	}
}

func executeSearch(ctx context.Context, cfg Config, toolName string, args map[string]any, querySuffix string) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "", rerr.NewToolError(toolName, rerr.ClassToolRejected, fmt.Errorf("query is required"))
	}
	if querySuffix != "" && !strings.Contains(strings.ToLower(query), "culture") {
		query += querySuffix
	}

	maxResults := intArg(args, "max_results", cfg.MaxResults)
	if maxResults > 10 {
		maxResults = 10
	}

	logging.ToolsDebug("%s: provider=%s query=%q max_results=%d", toolName, cfg.SearchProvider, query, maxResults)

	var results []SearchResult
	var err error
	switch cfg.SearchProvider {
	case "tavily":
		results, err = searchTavily(ctx, cfg, toolName, query, maxResults)
	default:
		results, err = searchDuckDuckGo(ctx, cfg, toolName, query, maxResults)
	}
	if err != nil {
		return "", err
	}

	if len(results) == 0 {
		logging.Tools("%s returned no results for: %s", toolName, query)
		return "No results found for: " + query, nil
	}

	logging.Tools("%s completed: %d results for %q", toolName, len(results), query)
	return formatResults(query, results), nil
}

// formatResults renders search results as markdown.
func formatResults(query string, results []SearchResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Search Results for: %s\n\n", query))
	sb.WriteString(fmt.Sprintf("Found %d results:\n\n", len(results)))

	for i, result := range results {
		sb.WriteString(fmt.Sprintf("## %d. %s\n", i+1, result.Title))
		sb.WriteString(fmt.Sprintf("**URL:** %s\n", result.URL))
		if result.Snippet != "" {
			sb.WriteString(fmt.Sprintf("\n%s\n", result.Snippet))
		}
		sb.WriteString("\n---\n\n")
	}

	return sb.String()
}

// searchTavily performs a search against the Tavily REST API.
func searchTavily(ctx context.Context, cfg Config, toolName, query string, maxResults int) ([]SearchResult, error) {
	if cfg.TavilyAPIKey == "" {
		return nil, rerr.NewToolError(toolName, rerr.ClassToolUnavailable,
			fmt.Errorf("tavily provider selected but no API key configured"))
	}

	reqBody := tavilyRequest{
		APIKey:      cfg.TavilyAPIKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: "basic",
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", cfg.TavilyBaseURL+"/search", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		class := rerr.ClassifyStatus(resp.StatusCode)
		return nil, rerr.NewToolError(toolName, class,
			fmt.Errorf("tavily HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var tavilyResp tavilyResponse
	if err := json.Unmarshal(body, &tavilyResp); err != nil {
		return nil, rerr.NewToolError(toolName, rerr.ClassMalformedResponse,
			fmt.Errorf("failed to parse tavily response: %w", err))
	}

	results := make([]SearchResult, 0, len(tavilyResp.Results))
	for _, r := range tavilyResp.Results {
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
		})
	}
	return results, nil
}

// searchDuckDuckGo performs a search using the DuckDuckGo HTML interface.
// No API key required.
func searchDuckDuckGo(ctx context.Context, cfg Config, toolName, query string, maxResults int) ([]SearchResult, error) {
	searchURL := fmt.Sprintf("%s?q=%s", cfg.DuckDuckGoURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Headers that pass the bot checks on the HTML endpoint
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		class := rerr.ClassifyStatus(resp.StatusCode)
		return nil, rerr.NewToolError(toolName, class,
			fmt.Errorf("duckduckgo HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	results, err := parseDuckDuckGoResults(string(body), maxResults)
	if err != nil {
		return nil, rerr.NewToolError(toolName, rerr.ClassMalformedResponse, err)
	}
	return results, nil
}

// parseDuckDuckGoResults extracts search results from DuckDuckGo HTML.
func parseDuckDuckGoResults(htmlContent string, maxResults int) ([]SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []SearchResult

	// DuckDuckGo HTML marks each hit with class="result results_links ..."
	var findResults func(*html.Node)
	findResults = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}

		if n.Type == html.ElementNode && n.Data == "div" {
			for _, attr := range n.Attr {
				if attr.Key == "class" && strings.Contains(attr.Val, "result") && strings.Contains(attr.Val, "results_links") {
					result := extractResult(n)
					if result.URL != "" && result.Title != "" {
						results = append(results, result)
					}
					return
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findResults(c)
		}
	}

	findResults(doc)
	return results, nil
}

// extractResult extracts a single search result from a result div.
func extractResult(n *html.Node) SearchResult {
	var result SearchResult

	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "class" {
					if strings.Contains(attr.Val, "result__a") {
						result.URL = getAttr(n, "href")
						result.Title = textContent(n)
					} else if strings.Contains(attr.Val, "result__snippet") {
						result.Snippet = textContent(n)
					}
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}

	extract(n)

	// Unwrap DuckDuckGo redirect URLs
	if strings.HasPrefix(result.URL, "//duckduckgo.com/l/?uddg=") {
		if decoded, err := url.QueryUnescape(strings.TrimPrefix(result.URL, "//duckduckgo.com/l/?uddg=")); err == nil {
			if idx := strings.Index(decoded, "&"); idx > 0 {
				decoded = decoded[:idx]
			}
			result.URL = decoded
		}
	}

	return result
}

// intArg reads an integer argument, accepting int and float64 forms.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return def
}
