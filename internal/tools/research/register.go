package research

import (
	"net/http"
	"time"

	"prospect/internal/tools"
)

// Registered tool names. Decision policies and worker specs refer to tools
// by these names.
const (
	NameWebSearch           = "web_search"
	NameCompanyValuesSearch = "company_values_search"
	NamePageFetch           = "page_fetch"
	NameReflect             = "reflect"
)

// Config carries provider settings shared by the research tools.
type Config struct {
	// SearchProvider selects the web search backend: "tavily" or "duckduckgo".
	SearchProvider string

	// TavilyAPIKey authorizes Tavily searches.
	TavilyAPIKey string

	// TavilyBaseURL overrides the Tavily endpoint.
	TavilyBaseURL string

	// DuckDuckGoURL overrides the DuckDuckGo HTML endpoint.
	DuckDuckGoURL string

	// MaxResults bounds results per search.
	MaxResults int

	// FetchTimeout bounds a single page fetch.
	FetchTimeout time.Duration

	// MaxFetchBytes bounds the response body read per fetch.
	MaxFetchBytes int64

	// HTTPClient is shared by all providers.
	HTTPClient *http.Client
}

// normalize fills unset fields with defaults.
func (c *Config) normalize() {
	if c.SearchProvider == "" {
		if c.TavilyAPIKey != "" {
			c.SearchProvider = "tavily"
		} else {
			c.SearchProvider = "duckduckgo"
		}
	}
	if c.TavilyBaseURL == "" {
		c.TavilyBaseURL = "https://api.tavily.com"
	}
	if c.DuckDuckGoURL == "" {
		c.DuckDuckGoURL = "https://html.duckduckgo.com/html/"
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 60 * time.Second
	}
	if c.MaxFetchBytes <= 0 {
		c.MaxFetchBytes = 2 << 20
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// RegisterAll registers all research tools with the given registry.
func RegisterAll(registry *tools.Registry, cfg Config) error {
	cfg.normalize()

	allTools := []*tools.Tool{
		WebSearchTool(cfg),
		CompanyValuesSearchTool(cfg),
		PageFetchTool(cfg),
		ReflectTool(),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	return nil
}
