// Package assistant – tools_search.go exposes web search to the LLM
// via the Brave Search API.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jholhewres/homeclaw/pkg/homeclaw/config"
)

const braveSearchURL = "https://api.search.brave.com/res/v1/web/search"

type braveClient struct {
	apiKey     string
	httpClient *http.Client
}

// RegisterSearchTools registers the web search tool when configured.
func RegisterSearchTools(reg *ToolRegistry, cfg config.BraveConfig) {
	if cfg.APIKey == "" {
		return
	}
	c := &braveClient{
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}

	reg.Register(ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:        "web_search",
			Description: "Search the web and return the top results with snippets.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Search query"}
				},
				"required": ["query"]
			}`),
		},
	}, c.search)
}

func (c *braveClient) search(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("search: query is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		braveSearchURL+"?count=5&q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("search: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("search: parsing results: %w", err)
	}
	if len(result.Web.Results) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	for _, r := range result.Web.Results {
		fmt.Fprintf(&b, "- %s\n  %s\n  %s\n", r.Title, r.URL, r.Description)
	}
	return b.String(), nil
}
