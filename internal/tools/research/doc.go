// Package research provides the tool providers research workers invoke.
//
// Tools:
//   - web_search: web search via Tavily when a key is configured,
//     DuckDuckGo HTML scrape otherwise
//   - company_values_search: culture-slanted search variant
//   - page_fetch: fetch a URL and convert to markdown
//   - reflect: record a reasoning note between searches, no external call
package research
