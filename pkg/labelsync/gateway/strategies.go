package gateway

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/tendant/qc-labelsync/pkg/labelsync/httpexec"
	"golang.org/x/sync/errgroup"
)

var (
	errNoGateway    = errors.New("no gateway found")
	errProbeDecided = errors.New("probe winner decided")
)

func (r *Resolver) fromIPRoute(ctx context.Context, _ ServiceHint) (string, error) {
	out, err := r.runner(ctx, "ip", "route", "show", "default")
	if err != nil {
		return "", err
	}
	return parseIPRoute(string(out))
}

// parseIPRoute returns the token after "via" on the first default route line
func parseIPRoute(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "default") {
			continue
		}
		fields := strings.Fields(line)
		for i, f := range fields {
			if f == "via" && i+1 < len(fields) {
				return fields[i+1], nil
			}
		}
	}
	return "", errNoGateway
}

func (r *Resolver) fromRouteTable(ctx context.Context, _ ServiceHint) (string, error) {
	f, err := os.Open(r.routeFile)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return parseRouteTable(f)
}

// parseRouteTable reads the kernel route table format, where the gateway
// of the default route (destination 00000000) is little-endian hex.
func parseRouteTable(rd io.Reader) (string, error) {
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[1] != "00000000" {
			continue
		}
		raw, err := hex.DecodeString(fields[2])
		if err != nil || len(raw) != 4 {
			return "", fmt.Errorf("malformed gateway field %q", fields[2])
		}
		return net.IPv4(raw[3], raw[2], raw[1], raw[0]).String(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errNoGateway
}

// fromProbe probes every candidate concurrently and prefers the earliest
// candidate that answered. Remaining probes are cancelled as soon as every
// earlier candidate has failed and one has answered.
func (r *Resolver) fromProbe(ctx context.Context, hint ServiceHint) (string, error) {
	var mu sync.Mutex
	done := make([]bool, len(r.candidates))
	answered := make([]bool, len(r.candidates))

	g, ctx := errgroup.WithContext(ctx)
	for i, candidate := range r.candidates {
		g.Go(func() error {
			url := fmt.Sprintf("http://%s%s", net.JoinHostPort(candidate, strconv.Itoa(hint.Port)), hint.HealthPath)
			res := r.executor.Execute(ctx, httpexec.Request{
				Method:  "GET",
				URL:     url,
				Timeout: r.probeTimeout,
			})

			mu.Lock()
			defer mu.Unlock()
			done[i] = true
			answered[i] = res.OK && acceptedProbeStatus[res.StatusCode]
			if _, ok := firstAnswered(done, answered); ok {
				return errProbeDecided
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, errProbeDecided) {
		return "", err
	}

	if i, ok := firstAnswered(done, answered); ok {
		return r.candidates[i], nil
	}
	return "", errNoGateway
}

// firstAnswered returns the earliest answered candidate once every
// candidate before it has finished.
func firstAnswered(done, answered []bool) (int, bool) {
	for i := range done {
		if !done[i] {
			return 0, false
		}
		if answered[i] {
			return i, true
		}
	}
	return 0, false
}

func (r *Resolver) fromHostBridge(ctx context.Context, _ ServiceHint) (string, error) {
	if r.hostBridge == "" {
		return "", errNoGateway
	}
	addrs, err := r.lookup(ctx, r.hostBridge)
	if err != nil {
		return "", err
	}
	for _, addr := range addrs {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			return addr, nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0], nil
	}
	return "", errNoGateway
}
