package httpexec

import (
	"context"
	"errors"
	"math"
	"os/exec"
	"sort"
	"strconv"
	"time"
)

// curl exit status for "operation timed out"
const curlTimeoutExit = 28

// Runner runs an external command and returns its standard output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// CommandTransport sends requests by spawning curl. The status code is
// appended to stdout with -w and split off again.
type CommandTransport struct {
	Binary string
	Runner Runner
}

// NewCommandTransport creates a curl transport using ExecRunner
func NewCommandTransport() *CommandTransport {
	return &CommandTransport{Binary: "curl", Runner: ExecRunner}
}

func (t *CommandTransport) Do(ctx context.Context, method, url string, headers map[string]string, body []byte, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runner := t.Runner
	if runner == nil {
		runner = ExecRunner
	}
	binary := t.Binary
	if binary == "" {
		binary = "curl"
	}

	out, err := runner(ctx, binary, curlArgs(method, url, headers, body, timeout)...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.Is(ctx.Err(), context.DeadlineExceeded) ||
			(errors.As(err, &exitErr) && exitErr.ExitCode() == curlTimeoutExit) {
			return timedOut()
		}
		return failed(err)
	}

	return parseCurlOutput(string(out))
}

func curlArgs(method, url string, headers map[string]string, body []byte, timeout time.Duration) []string {
	seconds := int(math.Ceil(timeout.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	args := []string{"-s", "--max-time", strconv.Itoa(seconds), "-X", method, "-w", "%{http_code}"}

	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		args = append(args, "-H", k+": "+headers[k])
	}

	if body != nil {
		switch method {
		case "POST", "PUT", "PATCH":
			args = append(args, "-d", string(body))
		}
	}
	return append(args, url)
}

// parseCurlOutput splits the trailing three-digit status from the body.
// Output without a parsable status is returned raw with OK=false.
func parseCurlOutput(out string) Result {
	if len(out) < 3 {
		return Result{Body: out}
	}
	status, err := strconv.Atoi(out[len(out)-3:])
	if err != nil || status < 100 {
		return Result{Body: out}
	}
	return Result{StatusCode: status, Body: out[:len(out)-3], OK: true}
}
