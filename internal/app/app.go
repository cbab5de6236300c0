// Package app assembles the labelsync components described by a Config.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
	"github.com/tendant/qc-labelsync/pkg/labelsync/api"
	"github.com/tendant/qc-labelsync/pkg/labelsync/config"
	"github.com/tendant/qc-labelsync/pkg/labelsync/gateway"
	"github.com/tendant/qc-labelsync/pkg/labelsync/labelstudio"
	"github.com/tendant/qc-labelsync/pkg/labelsync/metrics"
)

// NewLogger returns a colored text logger in development and a JSON
// logger otherwise.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if cfg.Environment == "development" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// App holds the wired components
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Resolver *gateway.Resolver
	Client   *labelstudio.Client
	Catalog  config.Catalog
	Store    *labelsync.ObjectStore
	Syncer   *labelsync.Syncer
	Images   *labelsync.ImageService

	closeCatalog func()
}

// New builds every component from cfg
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observer, err := metrics.NewPrometheusObserver("labelsync", registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	exec := cfg.BuildExecutor(logger)
	resolver := cfg.BuildResolver(exec, logger)
	client := cfg.BuildAnnotationClient(resolver, exec, logger)

	blob, err := cfg.BuildBlobStore(ctx, resolver)
	if err != nil {
		return nil, err
	}
	store := labelsync.NewObjectStore(blob)

	catalog, closeCatalog, err := cfg.BuildCatalogStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}

	syncer, err := labelsync.NewSyncer(client,
		labelsync.WithObjectStore(store),
		labelsync.WithCatalog(catalog),
		labelsync.WithObserver(observer),
		labelsync.WithLogger(logger),
		labelsync.WithPresignTTL(cfg.PresignTTL),
		labelsync.WithProjectURL(cfg.Studio.PublicURL),
	)
	if err != nil {
		closeCatalog()
		return nil, err
	}

	images, err := labelsync.NewImageService(store, catalog, observer, logger)
	if err != nil {
		closeCatalog()
		return nil, err
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		Registry:     registry,
		Resolver:     resolver,
		Client:       client,
		Catalog:      catalog,
		Store:        store,
		Syncer:       syncer,
		Images:       images,
		closeCatalog: closeCatalog,
	}, nil
}

// Close releases the catalog connection pool
func (a *App) Close() {
	if a.closeCatalog != nil {
		a.closeCatalog()
	}
}

// Handler returns the HTTP routes: /healthz, /metrics and the API under /api
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))

	handler := api.NewHandler(a.Syncer, a.Images,
		api.WithClientFactory(func(token string) labelsync.AnnotationClient {
			return a.Client.ForToken(token)
		}),
		api.WithLogger(a.Logger),
	)
	r.Mount("/api", handler.Routes())

	return r
}

// HealthResponse is the body of /healthz
type HealthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Storage     string `json:"storage"`
	Bucket      string `json:"bucket"`
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:      "healthy",
		Environment: a.Config.Environment,
		Storage:     a.Config.Storage.Type,
		Bucket:      a.Store.Bucket(),
	})
}

// StartReconciler runs periodic duplicate repair in the background when
// RECONCILE_INTERVAL is set. It stops with ctx.
func (a *App) StartReconciler(ctx context.Context) bool {
	interval := a.Config.ReconcileInterval
	if interval <= 0 {
		return false
	}
	if a.Config.Studio.Token == "" {
		a.Logger.Warn("periodic reconciliation disabled: LABEL_STUDIO_TOKEN is not set")
		return false
	}
	a.Logger.Info("starting periodic reconciliation", "interval", interval)
	go a.Syncer.RunPeriodic(ctx, interval)
	return true
}
