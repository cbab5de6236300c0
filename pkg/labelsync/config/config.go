// Package config reads labelsync settings from the environment and builds
// the components they describe.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
	"github.com/tendant/qc-labelsync/pkg/labelsync/gateway"
	"github.com/tendant/qc-labelsync/pkg/labelsync/httpexec"
	"github.com/tendant/qc-labelsync/pkg/labelsync/labelstudio"
	repomemory "github.com/tendant/qc-labelsync/pkg/labelsync/repo/memory"
	repopg "github.com/tendant/qc-labelsync/pkg/labelsync/repo/postgres"
	memorystorage "github.com/tendant/qc-labelsync/pkg/labelsync/storage/memory"
	s3storage "github.com/tendant/qc-labelsync/pkg/labelsync/storage/s3"
)

// Transports accepted by LABEL_STUDIO_TRANSPORT
const (
	TransportNative = "native"
	TransportCurl   = "curl"
)

// Config represents the labelsync service configuration
type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"` // development, production, testing

	// Database configuration. Empty or "memory" selects the in-memory catalog.
	DatabaseURL string `env:"DATABASE_URL"`
	DBSchema    string `env:"DB_SCHEMA"`

	Storage StorageConfig
	Studio  StudioConfig
	Gateway GatewayConfig

	PresignTTL        time.Duration `env:"PRESIGN_TTL" env-default:"24h"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" env-default:"0s"` // 0 disables periodic repair
}

// StorageConfig describes the object store
type StorageConfig struct {
	Type            string `env:"STORAGE_TYPE" env-default:"memory"` // memory, s3
	Endpoint        string `env:"S3_ENDPOINT" env-default:"localhost:9000"`
	PresignEndpoint string `env:"S3_PRESIGN_ENDPOINT"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID" env-default:"minioadmin"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY" env-default:"minioadmin"`
	Bucket          string `env:"S3_BUCKET" env-default:"qc-images"`
	Region          string `env:"S3_REGION" env-default:"us-east-1"`
	UseSSL          bool   `env:"S3_USE_SSL" env-default:"false"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"true"`
	CreateBucket    bool   `env:"S3_CREATE_BUCKET" env-default:"true"`
	MinioPort       int    `env:"MINIO_PORT" env-default:"9000"`
	SSEAlgorithm    string `env:"S3_SSE_ALGORITHM"` // AES256, aws:kms; empty disables
	SSEKMSKeyID     string `env:"S3_SSE_KMS_KEY_ID"`
}

// StudioConfig describes how the annotation service is reached
type StudioConfig struct {
	URL           string        `env:"LABEL_STUDIO_URL"` // skips gateway discovery when set
	PublicURL     string        `env:"LABEL_STUDIO_PUBLIC_URL" env-default:"http://localhost:8081"`
	Port          int           `env:"LABEL_STUDIO_PORT" env-default:"8081"`
	HealthPath    string        `env:"LABEL_STUDIO_HEALTH_PATH" env-default:"/api/projects/"`
	Token         string        `env:"LABEL_STUDIO_TOKEN"`
	Transport     string        `env:"LABEL_STUDIO_TRANSPORT" env-default:"native"` // native, curl
	Timeout       time.Duration `env:"LABEL_STUDIO_TIMEOUT" env-default:"30s"`
	ImportTimeout time.Duration `env:"LABEL_STUDIO_IMPORT_TIMEOUT" env-default:"60s"`
}

// GatewayConfig tunes gateway discovery
type GatewayConfig struct {
	Candidates      []string      `env:"GATEWAY_CANDIDATES" env-separator:","`
	HostBridge      string        `env:"GATEWAY_HOST_BRIDGE" env-default:"host.docker.internal"`
	Fallback        string        `env:"GATEWAY_FALLBACK" env-default:"172.20.0.1"`
	StrategyTimeout time.Duration `env:"GATEWAY_STRATEGY_TIMEOUT" env-default:"3s"`
	CacheTTL        time.Duration `env:"GATEWAY_CACHE_TTL" env-default:"5m"`
}

// Load reads the given .env files (missing ones are skipped), then the
// environment, and validates the result. Variables already set in the
// environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Usage describes every supported environment variable
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}

// DatabaseType returns "memory" or "postgres" depending on DatabaseURL
func (c *Config) DatabaseType() string {
	switch {
	case c.DatabaseURL == "" || c.DatabaseURL == "memory":
		return "memory"
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return "postgres"
	}
	return ""
}

// IsProduction reports whether Environment is "production"
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseType() == "" {
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", c.DatabaseURL)
	}

	switch c.Storage.Type {
	case "memory":
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("S3_BUCKET is required when STORAGE_TYPE is s3")
		}
		switch c.Storage.SSEAlgorithm {
		case "", s3storage.SSEAlgorithmAES256, s3storage.SSEAlgorithmKMS:
		default:
			return fmt.Errorf("S3_SSE_ALGORITHM must be %q or %q, got %q", s3storage.SSEAlgorithmAES256, s3storage.SSEAlgorithmKMS, c.Storage.SSEAlgorithm)
		}
	default:
		return fmt.Errorf("storage type must be 'memory' or 's3', got %q", c.Storage.Type)
	}

	if c.Studio.Transport != TransportNative && c.Studio.Transport != TransportCurl {
		return fmt.Errorf("annotation transport must be %q or %q, got %q", TransportNative, TransportCurl, c.Studio.Transport)
	}
	if c.Studio.Timeout <= 0 || c.Studio.ImportTimeout <= 0 {
		return errors.New("annotation timeouts must be positive")
	}
	if c.PresignTTL <= 0 {
		return errors.New("PRESIGN_TTL must be positive")
	}
	if c.ReconcileInterval < 0 {
		return errors.New("RECONCILE_INTERVAL must not be negative")
	}
	if net.ParseIP(strings.TrimSpace(c.Gateway.Fallback)) == nil {
		return fmt.Errorf("GATEWAY_FALLBACK must be an IP address, got %q", c.Gateway.Fallback)
	}
	for _, ip := range c.Gateway.Candidates {
		if net.ParseIP(strings.TrimSpace(ip)) == nil {
			return fmt.Errorf("invalid gateway candidate %q", ip)
		}
	}
	return nil
}

// BuildExecutor creates the HTTP executor used for annotation calls and probes
func (c *Config) BuildExecutor(logger *slog.Logger) *httpexec.Executor {
	opts := []httpexec.Option{
		httpexec.WithDefaultTimeout(c.Studio.Timeout),
		httpexec.WithLogger(logger),
	}
	if c.Studio.Transport == TransportCurl {
		opts = append(opts, httpexec.WithTransport(httpexec.NewCommandTransport()))
	}
	return httpexec.New(opts...)
}

// BuildResolver creates the gateway resolver
func (c *Config) BuildResolver(exec gateway.Executor, logger *slog.Logger) *gateway.Resolver {
	opts := []gateway.Option{
		gateway.WithExecutor(exec),
		gateway.WithHostBridge(c.Gateway.HostBridge),
		gateway.WithFallback(c.Gateway.Fallback),
		gateway.WithStrategyTimeout(c.Gateway.StrategyTimeout),
		gateway.WithCacheTTL(c.Gateway.CacheTTL),
		gateway.WithLogger(logger),
	}
	if len(c.Gateway.Candidates) > 0 {
		candidates := make([]string, 0, len(c.Gateway.Candidates))
		for _, ip := range c.Gateway.Candidates {
			candidates = append(candidates, strings.TrimSpace(ip))
		}
		opts = append(opts, gateway.WithCandidates(candidates))
	}
	return gateway.New(opts...)
}

// StudioHint is the service hint used to discover the annotation service
func (c *Config) StudioHint() gateway.ServiceHint {
	return gateway.ServiceHint{Name: "label-studio", Port: c.Studio.Port, HealthPath: c.Studio.HealthPath}
}

// BuildAnnotationClient creates the annotation client acting with the
// service token. LABEL_STUDIO_URL bypasses discovery.
func (c *Config) BuildAnnotationClient(resolver *gateway.Resolver, exec labelstudio.Executor, logger *slog.Logger) *labelstudio.Client {
	opts := []labelstudio.Option{
		labelstudio.WithToken(c.Studio.Token),
		labelstudio.WithExecutor(exec),
		labelstudio.WithTimeout(c.Studio.Timeout),
		labelstudio.WithImportTimeout(c.Studio.ImportTimeout),
		labelstudio.WithLogger(logger),
	}
	if c.Studio.URL != "" {
		opts = append(opts, labelstudio.WithBaseURL(c.Studio.URL))
	} else {
		opts = append(opts, labelstudio.WithResolver(resolver, c.StudioHint()))
	}
	return labelstudio.New(opts...)
}

// PresignEndpoint returns the host:port embedded in presigned URLs.
// S3_PRESIGN_ENDPOINT wins; otherwise the route gateway is used with
// localhost as the fallback.
func (c *Config) PresignEndpoint(ctx context.Context, resolver *gateway.Resolver) string {
	if c.Storage.PresignEndpoint != "" {
		return c.Storage.PresignEndpoint
	}
	host := resolver.ResolveRouteGateway(ctx, "localhost")
	return net.JoinHostPort(host, strconv.Itoa(c.Storage.MinioPort))
}

// BuildBlobStore creates the object storage backend
func (c *Config) BuildBlobStore(ctx context.Context, resolver *gateway.Resolver) (labelsync.BlobStore, error) {
	switch c.Storage.Type {
	case "memory":
		return memorystorage.New(memorystorage.WithBucket(c.Storage.Bucket)), nil
	case "s3":
		backend, err := s3storage.New(s3storage.Config{
			Region:                 c.Storage.Region,
			Bucket:                 c.Storage.Bucket,
			AccessKeyID:            c.Storage.AccessKeyID,
			SecretAccessKey:        c.Storage.SecretAccessKey,
			Endpoint:               c.Storage.Endpoint,
			UseSSL:                 c.Storage.UseSSL,
			UsePathStyle:           c.Storage.UsePathStyle,
			PresignEndpoint:        c.PresignEndpoint(ctx, resolver),
			CreateBucketIfNotExist: c.Storage.CreateBucket,
			EnableSSE:              c.Storage.SSEAlgorithm != "",
			SSEAlgorithm:           c.Storage.SSEAlgorithm,
			SSEKMSKeyID:            c.Storage.SSEKMSKeyID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 backend: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
}

// Catalog is a CatalogStore that may hold resources to release
type Catalog interface {
	labelsync.CatalogStore
	CreateCompany(ctx context.Context, company *labelsync.Company) error
	CreateProduct(ctx context.Context, product *labelsync.Product) error
	DeleteProduct(ctx context.Context, productID int64) error
}

// BuildCatalogStore creates the catalog. The returned func releases the
// connection pool, if any.
func (c *Config) BuildCatalogStore(ctx context.Context) (Catalog, func(), error) {
	switch c.DatabaseType() {
	case "memory":
		return repomemory.New(), func() {}, nil
	case "postgres":
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		if schema := c.DBSchema; schema != "" {
			cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
				_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
				return err
			}
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		repo := repopg.NewWithPool(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type for %q", c.DatabaseURL)
	}
}
