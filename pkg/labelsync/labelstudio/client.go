// Package labelstudio implements labelsync.AnnotationClient against the
// Label Studio REST API.
package labelstudio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/qc-labelsync/pkg/labelsync"
	"github.com/tendant/qc-labelsync/pkg/labelsync/gateway"
	"github.com/tendant/qc-labelsync/pkg/labelsync/httpexec"
)

// Default call timeouts
const (
	DefaultTimeout       = 30 * time.Second
	DefaultImportTimeout = 60 * time.Second
)

// bodies quoted in errors are cut to this length
const maxErrorBody = 512

// Executor performs one HTTP call
type Executor interface {
	Execute(ctx context.Context, req httpexec.Request) httpexec.Result
}

// Client talks to one Label Studio instance with one API token
type Client struct {
	baseURL       func(ctx context.Context) string
	token         string
	exec          Executor
	timeout       time.Duration
	importTimeout time.Duration
	logger        *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL uses a fixed base URL such as "http://label-studio:8080"
func WithBaseURL(baseURL string) Option {
	base := strings.TrimRight(baseURL, "/")
	return func(c *Client) {
		c.baseURL = func(context.Context) string { return base }
	}
}

// WithResolver derives the base URL from the resolved gateway on every call.
// The resolver caches, so this does not re-probe per request.
func WithResolver(r *gateway.Resolver, hint gateway.ServiceHint) Option {
	return func(c *Client) {
		c.baseURL = func(ctx context.Context) string {
			return "http://" + r.Endpoint(ctx, hint)
		}
	}
}

// WithToken sets the API token sent as "Authorization: Token <token>"
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithExecutor(exec Executor) Option {
	return func(c *Client) { c.exec = exec }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithImportTimeout sets the timeout of the batch import call
func WithImportTimeout(d time.Duration) Option {
	return func(c *Client) { c.importTimeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client. Without WithBaseURL or WithResolver it discovers the
// host gateway with a default resolver.
func New(opts ...Option) *Client {
	c := &Client{
		timeout:       DefaultTimeout,
		importTimeout: DefaultImportTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		c.exec = httpexec.New(httpexec.WithLogger(c.logger))
	}
	if c.baseURL == nil {
		WithResolver(gateway.New(gateway.WithLogger(c.logger)), gateway.ServiceHint{Name: "label-studio"})(c)
	}
	return c
}

// ForToken returns a copy of the client that authenticates with token
func (c *Client) ForToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// BaseURL returns the base URL the next call would use
func (c *Client) BaseURL(ctx context.Context) string {
	return c.baseURL(ctx)
}

var _ labelsync.AnnotationClient = (*Client)(nil)

func (c *Client) ListProjects(ctx context.Context) ([]labelsync.ExternalProject, error) {
	res, err := c.call(ctx, "list projects", http.MethodGet, "/api/projects/", nil, c.timeout, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var projects []labelsync.ExternalProject
	if err := decodeList(res.Body, &projects, "results"); err != nil {
		return nil, invalidResponse("list projects", res, err)
	}
	return projects, nil
}

func (c *Client) CreateProject(ctx context.Context, spec labelsync.ProjectSpec) (labelsync.ExternalProject, error) {
	res, err := c.call(ctx, "create project", http.MethodPost, "/api/projects/", spec, c.timeout, http.StatusCreated)
	if err != nil {
		return labelsync.ExternalProject{}, err
	}
	var project labelsync.ExternalProject
	if err := res.Decode(&project); err != nil {
		return labelsync.ExternalProject{}, invalidResponse("create project", res, err)
	}
	return project, nil
}

func (c *Client) DeleteProject(ctx context.Context, projectID int64) error {
	path := fmt.Sprintf("/api/projects/%d/", projectID)
	_, err := c.call(ctx, "delete project", http.MethodDelete, path, nil, c.timeout, http.StatusOK, http.StatusNoContent)
	return err
}

func (c *Client) ListTasks(ctx context.Context, projectID int64) ([]labelsync.ExternalTask, error) {
	path := fmt.Sprintf("/api/projects/%d/tasks/", projectID)
	res, err := c.call(ctx, "list tasks", http.MethodGet, path, nil, c.timeout, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var tasks []labelsync.ExternalTask
	if err := decodeList(res.Body, &tasks, "tasks", "results"); err != nil {
		return nil, invalidResponse("list tasks", res, err)
	}
	return tasks, nil
}

// ImportTasks sends all tasks in one batch
func (c *Client) ImportTasks(ctx context.Context, projectID int64, tasks []labelsync.TaskData) error {
	path := fmt.Sprintf("/api/projects/%d/import", projectID)
	_, err := c.call(ctx, "import tasks", http.MethodPost, path, tasks, c.importTimeout, http.StatusOK, http.StatusCreated)
	return err
}

func (c *Client) DeleteTask(ctx context.Context, taskID int64) error {
	path := fmt.Sprintf("/api/tasks/%d/", taskID)
	_, err := c.call(ctx, "delete task", http.MethodDelete, path, nil, c.timeout, http.StatusOK, http.StatusNoContent)
	return err
}

// call performs one request and maps transport failures to ErrUnavailable
// and unexpected statuses to *labelsync.RejectedError.
func (c *Client) call(ctx context.Context, op, method, path string, body any, timeout time.Duration, expect ...int) (httpexec.Result, error) {
	headers := map[string]string{"Accept": "application/json"}
	if c.token != "" {
		headers["Authorization"] = "Token " + c.token
	}

	res := c.exec.Execute(ctx, httpexec.Request{
		Method:  method,
		URL:     c.baseURL(ctx) + path,
		Headers: headers,
		Body:    body,
		Timeout: timeout,
	})
	if !res.OK {
		return res, fmt.Errorf("%w: %s: %s", labelsync.ErrUnavailable, op, res.Body)
	}
	for _, status := range expect {
		if res.StatusCode == status {
			return res, nil
		}
	}

	c.logger.Warn("annotation service rejected call", "op", op, "status", res.StatusCode)
	return res, &labelsync.RejectedError{
		Op:         op,
		StatusCode: res.StatusCode,
		Body:       truncate(res.Body),
	}
}

// decodeList accepts a bare JSON array or an object carrying the array
// under one of the envelope keys.
func decodeList(body string, v any, envelopes ...string) error {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal([]byte(trimmed), v)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return err
	}
	for _, key := range envelopes {
		if raw, ok := envelope[key]; ok {
			return json.Unmarshal(raw, v)
		}
	}
	return fmt.Errorf("no list found under %v", envelopes)
}

func invalidResponse(op string, res httpexec.Result, err error) error {
	return &labelsync.RejectedError{
		Op:         op,
		StatusCode: res.StatusCode,
		Body:       "invalid response format: " + err.Error(),
	}
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "..."
}
