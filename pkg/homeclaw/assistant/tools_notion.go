// Package assistant – tools_notion.go exposes Notion notes to the LLM:
// search across the workspace and page creation in a notes database.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jholhewres/homeclaw/pkg/homeclaw/config"
)

const (
	notionBaseURL = "https://api.notion.com/v1"

	// notionVersion is the API version header required by Notion.
	notionVersion = "2022-06-28"
)

type notionClient struct {
	apiKey     string
	databaseID string
	httpClient *http.Client
}

// RegisterNotionTools registers the Notion notes tools when configured.
func RegisterNotionTools(reg *ToolRegistry, cfg config.NotionConfig) {
	if cfg.APIKey == "" {
		return
	}
	c := &notionClient{
		apiKey:     cfg.APIKey,
		databaseID: cfg.NotesDatabaseID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}

	reg.Register(ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:        "notion_search",
			Description: "Search Notion pages by title.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Search text"}
				},
				"required": ["query"]
			}`),
		},
	}, c.search)

	if c.databaseID != "" {
		reg.Register(ToolDefinition{
			Type: "function",
			Function: FunctionDef{
				Name:        "notion_create_note",
				Description: "Create a note page in the notes database.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"title": {"type": "string", "description": "Note title"},
						"content": {"type": "string", "description": "Note body text"}
					},
					"required": ["title"]
				}`),
			},
		}, c.createNote)
	}
}

func (c *notionClient) search(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("notion: query is required")
	}

	body, err := c.call(ctx, http.MethodPost, notionBaseURL+"/search", map[string]any{
		"query":     query,
		"page_size": 10,
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Results []struct {
			ID         string `json:"id"`
			URL        string `json:"url"`
			Properties map[string]struct {
				Title []struct {
					PlainText string `json:"plain_text"`
				} `json:"title"`
			} `json:"properties"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("notion: parsing search results: %w", err)
	}
	if len(result.Results) == 0 {
		return "No pages found.", nil
	}

	var b strings.Builder
	for _, page := range result.Results {
		title := ""
		for _, prop := range page.Properties {
			if len(prop.Title) > 0 {
				title = prop.Title[0].PlainText
				break
			}
		}
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "- %s — %s\n", title, page.URL)
	}
	return b.String(), nil
}

func (c *notionClient) createNote(ctx context.Context, args map[string]any) (any, error) {
	title, _ := args["title"].(string)
	if title == "" {
		return nil, fmt.Errorf("notion: title is required")
	}
	content, _ := args["content"].(string)

	payload := map[string]any{
		"parent": map[string]any{"database_id": c.databaseID},
		"properties": map[string]any{
			"Name": map[string]any{
				"title": []map[string]any{
					{"text": map[string]any{"content": title}},
				},
			},
		},
	}
	if content != "" {
		payload["children"] = []map[string]any{
			{
				"object": "block",
				"type":   "paragraph",
				"paragraph": map[string]any{
					"rich_text": []map[string]any{
						{"text": map[string]any{"content": content}},
					},
				},
			},
		}
	}

	body, err := c.call(ctx, http.MethodPost, notionBaseURL+"/pages", payload)
	if err != nil {
		return nil, err
	}

	var page struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("notion: parsing created page: %w", err)
	}
	return "Note created: " + page.URL, nil
}

func (c *notionClient) call(ctx context.Context, method, url string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("notion: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("notion: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", notionVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notion: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("notion: reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("notion: %s: status %d: %s", url, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}
