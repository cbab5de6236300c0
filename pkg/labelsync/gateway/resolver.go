// Package gateway discovers the IPv4 address under which services on the
// container host (the annotation service, the object store) are reachable.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tendant/qc-labelsync/pkg/labelsync/httpexec"
)

// Defaults used when a Resolver option is not given
const (
	DefaultFallback        = "172.20.0.1"
	DefaultHostBridge      = "host.docker.internal"
	DefaultRouteFile       = "/proc/net/route"
	DefaultStrategyTimeout = 3 * time.Second
	DefaultProbeTimeout    = 2 * time.Second
	DefaultCacheTTL        = 5 * time.Minute
	DefaultPort            = 8081
	DefaultHealthPath      = "/api/projects/"
)

// DefaultCandidates are the usual Docker bridge gateways, in probe order
var DefaultCandidates = []string{"172.17.0.1", "172.18.0.1", "172.19.0.1", "172.20.0.1", "172.21.0.1"}

// probe statuses meaning "something that looks like the service answered"
var acceptedProbeStatus = map[int]bool{200: true, 401: true, 403: true}

// ServiceHint names the service a gateway is resolved for. Port and
// HealthPath drive candidate probing.
type ServiceHint struct {
	Name       string
	Port       int
	HealthPath string
}

func (h ServiceHint) withDefaults() ServiceHint {
	if h.Port == 0 {
		h.Port = DefaultPort
	}
	if h.HealthPath == "" {
		h.HealthPath = DefaultHealthPath
	}
	return h
}

func (h ServiceHint) cacheKey() string {
	return fmt.Sprintf("%s|%d|%s", h.Name, h.Port, h.HealthPath)
}

// Executor performs probe requests
type Executor interface {
	Execute(ctx context.Context, req httpexec.Request) httpexec.Result
}

// LookupFunc resolves a host name to addresses
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Resolver runs the discovery strategies in order and caches the answer
type Resolver struct {
	runner          httpexec.Runner
	routeFile       string
	candidates      []string
	hostBridge      string
	fallback        string
	strategyTimeout time.Duration
	probeTimeout    time.Duration
	cacheTTL        time.Duration
	executor        Executor
	lookup          LookupFunc
	cache           *expirable.LRU[string, string]
	logger          *slog.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithRunner sets the command runner used for "ip route"
func WithRunner(runner httpexec.Runner) Option {
	return func(r *Resolver) { r.runner = runner }
}

func WithRouteFile(path string) Option {
	return func(r *Resolver) { r.routeFile = path }
}

func WithCandidates(candidates []string) Option {
	return func(r *Resolver) { r.candidates = candidates }
}

// WithHostBridge sets the host name tried through DNS
func WithHostBridge(host string) Option {
	return func(r *Resolver) { r.hostBridge = host }
}

func WithFallback(ip string) Option {
	return func(r *Resolver) {
		if ip = strings.TrimSpace(ip); ip != "" {
			r.fallback = ip
		}
	}
}

// WithStrategyTimeout bounds each strategy
func WithStrategyTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.strategyTimeout = d }
}

func WithProbeTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.probeTimeout = d }
}

// WithCacheTTL sets how long a resolution is reused. Zero or negative
// disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(r *Resolver) { r.cacheTTL = d }
}

func WithExecutor(e Executor) Option {
	return func(r *Resolver) { r.executor = e }
}

func WithLookup(lookup LookupFunc) Option {
	return func(r *Resolver) { r.lookup = lookup }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Resolver
func New(opts ...Option) *Resolver {
	r := &Resolver{
		runner:          httpexec.ExecRunner,
		routeFile:       DefaultRouteFile,
		candidates:      DefaultCandidates,
		hostBridge:      DefaultHostBridge,
		fallback:        DefaultFallback,
		strategyTimeout: DefaultStrategyTimeout,
		probeTimeout:    DefaultProbeTimeout,
		cacheTTL:        DefaultCacheTTL,
		lookup:          net.DefaultResolver.LookupHost,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.executor == nil {
		r.executor = httpexec.New(httpexec.WithLogger(r.logger))
	}
	if r.cacheTTL > 0 {
		r.cache = expirable.NewLRU[string, string](64, nil, r.cacheTTL)
	}
	return r
}

type strategy struct {
	name string
	run  func(ctx context.Context, hint ServiceHint) (string, error)
}

// ResolveGateway returns the first address produced by, in order: the
// default route reported by "ip route", the kernel route table, probing the
// candidate bridge gateways, DNS for the host bridge name, and finally the
// fallback address. It always returns a non-empty address.
func (r *Resolver) ResolveGateway(ctx context.Context, hint ServiceHint) string {
	hint = hint.withDefaults()
	return r.resolve(ctx, "gateway|"+hint.cacheKey(), hint, r.fallback, []strategy{
		{"ip-route", r.fromIPRoute},
		{"route-table", r.fromRouteTable},
		{"probe", r.fromProbe},
		{"host-bridge", r.fromHostBridge},
	})
}

// ResolveRouteGateway uses only the route based strategies and returns
// fallback when both fail.
func (r *Resolver) ResolveRouteGateway(ctx context.Context, fallback string) string {
	return r.resolve(ctx, "route|"+fallback, ServiceHint{}, fallback, []strategy{
		{"ip-route", r.fromIPRoute},
		{"route-table", r.fromRouteTable},
	})
}

// Endpoint returns "ip:port" for hint
func (r *Resolver) Endpoint(ctx context.Context, hint ServiceHint) string {
	hint = hint.withDefaults()
	return net.JoinHostPort(r.ResolveGateway(ctx, hint), strconv.Itoa(hint.Port))
}

// Invalidate drops every cached resolution
func (r *Resolver) Invalidate() {
	if r.cache != nil {
		r.cache.Purge()
	}
}

func (r *Resolver) resolve(ctx context.Context, key string, hint ServiceHint, fallback string, strategies []strategy) string {
	if r.cache != nil {
		if ip, ok := r.cache.Get(key); ok {
			return ip
		}
	}

	ip := ""
	for _, s := range strategies {
		if ip = r.attempt(ctx, s, hint); ip != "" {
			r.logger.Info("resolved gateway", "service", hint.Name, "strategy", s.name, "ip", ip)
			break
		}
	}
	if ip == "" {
		if fallback == "" {
			fallback = r.fallback
		}
		if fallback == "" {
			fallback = DefaultFallback
		}
		r.logger.Warn("could not determine gateway, using fallback", "service", hint.Name, "ip", fallback)
		ip = fallback
	}

	if r.cache != nil {
		r.cache.Add(key, ip)
	}
	return ip
}

// attempt runs one strategy under the strategy timeout. Errors and panics
// count as "no answer".
func (r *Resolver) attempt(ctx context.Context, s strategy, hint ServiceHint) (ip string) {
	ctx, cancel := context.WithTimeout(ctx, r.strategyTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("gateway strategy panicked", "strategy", s.name, "panic", p)
			ip = ""
		}
	}()

	ip, err := s.run(ctx, hint)
	if err != nil {
		r.logger.Debug("gateway strategy failed", "strategy", s.name, "err", err)
		return ""
	}
	if net.ParseIP(ip) == nil {
		r.logger.Debug("gateway strategy returned no address", "strategy", s.name, "value", ip)
		return ""
	}
	return ip
}
