// Package wayfindersdk is a minimal Go client for the Wayfinder HTTP API.
package wayfindersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Wayfinder HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Diagnostic is a single validation finding.
type Diagnostic struct {
	Level      string `json:"level"`
	Category   string `json:"category"`
	Message    string `json:"message"`
	Line       int    `json:"line,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Report is the outcome of validating a candidate source.
type Report struct {
	Valid       bool         `json:"valid"`
	Score       int          `json:"score"`
	Errors      []Diagnostic `json:"errors"`
	Warnings    []Diagnostic `json:"warnings"`
	Suggestions []Diagnostic `json:"suggestions"`
}

// Task represents a background repair or generation task.
type Task struct {
	ID                 string  `json:"id"`
	Type               string  `json:"type"`
	Description        string  `json:"description"`
	Status             string  `json:"status"`
	Progress           float64 `json:"progress"`
	CurrentStep        string  `json:"current_step"`
	StepIndex          int     `json:"step_index"`
	TotalSteps         int     `json:"total_steps"`
	Error              string  `json:"error"`
	Result             any     `json:"result"`
	CreatedAt          string  `json:"created_at"`
	StartedAt          string  `json:"started_at"`
	EndedAt            string  `json:"ended_at"`
	ElapsedSeconds     float64 `json:"elapsed_seconds"`
	EstimatedRemaining float64 `json:"estimated_remaining_seconds"`
}

// Algorithm is a registered pathfinding algorithm.
type Algorithm struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Builtin     bool   `json:"builtin"`
	CreatedAt   string `json:"created_at"`
}

// Point is a grid coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// RunResult holds the path and visit order of an algorithm run.
type RunResult struct {
	Path    []Point `json:"path"`
	Visited []Point `json:"visited"`
}

// RepairJob is a finished repair attempt.
type RepairJob struct {
	ID         string  `json:"id"`
	TaskID     string  `json:"task_id"`
	Algorithm  string  `json:"algorithm"`
	Provider   string  `json:"provider"`
	Status     string  `json:"status"`
	Iterations int     `json:"iterations"`
	FinalScore int     `json:"final_score"`
	Error      string  `json:"error"`
	Elapsed    float64 `json:"elapsed_seconds"`
	CreatedAt  string  `json:"created_at"`
}

// Provider is a configured LLM provider.
type Provider struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	Default bool   `json:"default"`
}

// Event is a journal entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Payload    string `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Validate checks a candidate source against the algorithm contract.
func (c *Client) Validate(ctx context.Context, source, typeName string) (Report, error) {
	body := map[string]any{
		"source":    source,
		"type_name": typeName,
	}
	var resp Report
	err := c.do(ctx, http.MethodPost, "v0/validate", body, &resp)
	return resp, err
}

// StartRepair submits a broken source for background repair and returns
// the task id.
func (c *Client) StartRepair(ctx context.Context, source, typeName, provider string) (string, error) {
	body := map[string]any{
		"source":    source,
		"type_name": typeName,
		"provider":  provider,
	}
	var resp struct {
		TaskID string `json:"task_id"`
	}
	err := c.do(ctx, http.MethodPost, "v0/repairs", body, &resp)
	return resp.TaskID, err
}

// StartGeneration submits a generation request and returns the task id.
func (c *Client) StartGeneration(ctx context.Context, description, typeName, provider string) (string, error) {
	body := map[string]any{
		"description": description,
		"type_name":   typeName,
		"provider":    provider,
	}
	var resp struct {
		TaskID string `json:"task_id"`
	}
	err := c.do(ctx, http.MethodPost, "v0/generations", body, &resp)
	return resp.TaskID, err
}

// Task fetches a task by id.
func (c *Client) Task(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "v0/tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Tasks lists all tasks.
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "v0/tasks", nil, &resp)
	return resp, err
}

// PauseTask pauses a running task.
func (c *Client) PauseTask(ctx context.Context, id string) (Task, error) {
	return c.taskAction(ctx, id, "pause")
}

// ResumeTask resumes a paused task.
func (c *Client) ResumeTask(ctx context.Context, id string) (Task, error) {
	return c.taskAction(ctx, id, "resume")
}

// CancelTask cancels a task that has not finished.
func (c *Client) CancelTask(ctx context.Context, id string) (Task, error) {
	return c.taskAction(ctx, id, "cancel")
}

func (c *Client) taskAction(ctx context.Context, id, action string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("v0/tasks/%s/%s", url.PathEscape(id), action)
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// WaitTask polls until the task reaches a terminal state.
func (c *Client) WaitTask(ctx context.Context, id string, interval time.Duration) (Task, error) {
	if interval <= 0 {
		interval = time.Second
	}
	for {
		task, err := c.Task(ctx, id)
		if err != nil {
			return Task{}, err
		}
		switch task.Status {
		case "completed", "failed", "cancelled":
			return task, nil
		}
		select {
		case <-ctx.Done():
			return Task{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// RemoveTask removes a finished task.
func (c *Client) RemoveTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/tasks/"+url.PathEscape(id), nil, nil)
}

// Algorithms lists registered algorithms.
func (c *Client) Algorithms(ctx context.Context) ([]Algorithm, error) {
	var resp []Algorithm
	err := c.do(ctx, http.MethodGet, "v0/algorithms", nil, &resp)
	return resp, err
}

// Algorithm fetches a single algorithm by name.
func (c *Client) Algorithm(ctx context.Context, name string) (Algorithm, error) {
	var resp Algorithm
	err := c.do(ctx, http.MethodGet, "v0/algorithms/"+url.PathEscape(name), nil, &resp)
	return resp, err
}

// LoadAlgorithm validates and registers a source under the given name.
func (c *Client) LoadAlgorithm(ctx context.Context, name, source, description string) (Report, error) {
	body := map[string]any{
		"source":      source,
		"description": description,
	}
	var resp Report
	err := c.do(ctx, http.MethodPut, "v0/algorithms/"+url.PathEscape(name), body, &resp)
	return resp, err
}

// RemoveAlgorithm removes a loaded algorithm.
func (c *Client) RemoveAlgorithm(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "v0/algorithms/"+url.PathEscape(name), nil, nil)
}

// RunAlgorithm executes an algorithm over a grid.
func (c *Client) RunAlgorithm(ctx context.Context, name string, width, height int, cells [][]int, start, end Point) (RunResult, error) {
	body := map[string]any{
		"width":  width,
		"height": height,
		"grid":   cells,
		"start":  start,
		"end":    end,
	}
	var resp RunResult
	endpoint := fmt.Sprintf("v0/algorithms/%s/run", url.PathEscape(name))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// RepairJobs lists finished repair attempts.
func (c *Client) RepairJobs(ctx context.Context, limit int) ([]RepairJob, error) {
	endpoint := "v0/repairs"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []RepairJob
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Providers lists configured LLM providers.
func (c *Client) Providers(ctx context.Context) ([]Provider, error) {
	var resp []Provider
	err := c.do(ctx, http.MethodGet, "v0/providers", nil, &resp)
	return resp, err
}

// Events returns recent journal entries.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
