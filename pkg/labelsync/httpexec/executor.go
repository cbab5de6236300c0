// Package httpexec performs single HTTP calls against the annotation
// service and reports their outcome as a value instead of an error.
package httpexec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a request that does not carry its own timeout
const DefaultTimeout = 30 * time.Second

// TimeoutBody is the Result body reported when a request ran out of time
const TimeoutBody = "Request timeout"

// Request describes one call. Body may be nil, []byte, string or any value
// that encoding/json can marshal.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Timeout time.Duration
}

// Result is the outcome of a call. OK reports that the transport delivered a
// response, not that the status was 2xx.
type Result struct {
	StatusCode int
	Body       string
	JSON       any
	OK         bool
}

// Success reports a delivered response with a 2xx status
func (r Result) Success() bool {
	return r.OK && r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the response body into v
func (r Result) Decode(v any) error {
	return json.Unmarshal([]byte(r.Body), v)
}

// Transport sends a prepared call. Implementations never return errors.
type Transport interface {
	Do(ctx context.Context, method, url string, headers map[string]string, body []byte, timeout time.Duration) Result
}

// Executor executes requests over a Transport
type Executor struct {
	transport      Transport
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithTransport selects the transport (default NativeTransport)
func WithTransport(t Transport) Option {
	return func(e *Executor) {
		e.transport = t
	}
}

// WithDefaultTimeout sets the timeout used when a Request has none
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.defaultTimeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Executor
func New(opts ...Option) *Executor {
	e := &Executor{
		defaultTimeout: DefaultTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.transport == nil {
		e.transport = NewNativeTransport(nil)
	}
	return e
}

// Execute performs exactly one call and never returns an error
func (e *Executor) Execute(ctx context.Context, req Request) Result {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return failed(err)
	}
	if body != nil {
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}

	start := time.Now()
	result := e.transport.Do(ctx, method, req.URL, headers, body, timeout)
	result.JSON = parseJSON(result.Body)

	e.logger.Debug("annotation request",
		"method", method,
		"url", req.URL,
		"status", result.StatusCode,
		"ok", result.OK,
		"duration", time.Since(start))
	return result
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return data, nil
	}
}

func parseJSON(body string) any {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil
	}
	return v
}

func timedOut() Result {
	return Result{StatusCode: 0, OK: false, Body: TimeoutBody}
}

func failed(err error) Result {
	return Result{StatusCode: 0, OK: false, Body: fmt.Sprintf("Request failed: %v", err)}
}
