// Package assistant – tools_todoist.go exposes Todoist task management
// to the LLM via the Todoist REST v2 API.
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

const todoistBaseURL = "https://api.todoist.com/rest/v2"

type todoistClient struct {
	token      string
	httpClient *http.Client
}

type todoistTask struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Due     *struct {
		String string `json:"string"`
		Date   string `json:"date"`
	} `json:"due"`
	Priority int  `json:"priority"`
	Complete bool `json:"is_completed"`
}

// RegisterTodoistTools registers the Todoist task tools when configured.
func RegisterTodoistTools(reg *ToolRegistry, cfg config.TodoistConfig) {
	if cfg.APIToken == "" {
		return
	}
	c := &todoistClient{
		token:      cfg.APIToken,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}

	reg.Register(ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:        "todoist_list_tasks",
			Description: "List open Todoist tasks, optionally filtered (e.g. \"today\", \"overdue\").",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"filter": {"type": "string", "description": "Todoist filter query, empty for all"}
				}
			}`),
		},
	}, c.listTasks)

	reg.Register(ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:        "todoist_create_task",
			Description: "Create a Todoist task with optional natural-language due date.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"content": {"type": "string", "description": "Task text"},
					"due_string": {"type": "string", "description": "Due date like \"tomorrow 9am\""}
				},
				"required": ["content"]
			}`),
		},
	}, c.createTask)

	reg.Register(ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:        "todoist_complete_task",
			Description: "Mark a Todoist task as completed by its id.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"task_id": {"type": "string", "description": "The task id"}
				},
				"required": ["task_id"]
			}`),
		},
	}, c.completeTask)
}

func (c *todoistClient) listTasks(ctx context.Context, args map[string]any) (any, error) {
	url := todoistBaseURL + "/tasks"
	if filter, _ := args["filter"].(string); filter != "" {
		url += "?filter=" + strings.ReplaceAll(filter, " ", "%20")
	}

	body, err := c.call(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var tasks []todoistTask
	if err := json.Unmarshal(body, &tasks); err != nil {
		return nil, fmt.Errorf("todoist: parsing tasks: %w", err)
	}
	if len(tasks) == 0 {
		return "No open tasks.", nil
	}

	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "- [%s] %s", t.ID, t.Content)
		if t.Due != nil && t.Due.String != "" {
			fmt.Fprintf(&b, " (due %s)", t.Due.String)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (c *todoistClient) createTask(ctx context.Context, args map[string]any) (any, error) {
	content, _ := args["content"].(string)
	if content == "" {
		return nil, fmt.Errorf("todoist: content is required")
	}

	payload := map[string]any{"content": content}
	if due, _ := args["due_string"].(string); due != "" {
		payload["due_string"] = due
	}

	body, err := c.call(ctx, http.MethodPost, todoistBaseURL+"/tasks", payload)
	if err != nil {
		return nil, err
	}

	var task todoistTask
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("todoist: parsing created task: %w", err)
	}
	return fmt.Sprintf("Created task %s: %s", task.ID, task.Content), nil
}

func (c *todoistClient) completeTask(ctx context.Context, args map[string]any) (any, error) {
	taskID, _ := args["task_id"].(string)
	if taskID == "" {
		return nil, fmt.Errorf("todoist: task_id is required")
	}

	if _, err := c.call(ctx, http.MethodPost, todoistBaseURL+"/tasks/"+taskID+"/close", nil); err != nil {
		return nil, err
	}
	return "Task " + taskID + " completed.", nil
}

func (c *todoistClient) call(ctx context.Context, method, url string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("todoist: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("todoist: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("todoist: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("todoist: reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("todoist: %s: status %d: %s", url, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}
