package httpexec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// NativeTransport sends requests with net/http
type NativeTransport struct {
	client *http.Client
}

// NewNativeTransport wraps client, or a fresh client when nil. Timeouts are
// applied per request through the context.
func NewNativeTransport(client *http.Client) *NativeTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &NativeTransport{client: client}
}

func (t *NativeTransport) Do(ctx context.Context, method, url string, headers map[string]string, body []byte, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return failed(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return timedOut()
		}
		return failed(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return timedOut()
		}
		return failed(err)
	}

	return Result{StatusCode: resp.StatusCode, Body: string(data), OK: true}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
