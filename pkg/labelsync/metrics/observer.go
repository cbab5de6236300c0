// Package metrics exports labelsync activity to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
)

// PrometheusObserver implements labelsync.Observer with Prometheus collectors
type PrometheusObserver struct {
	projectsCreated   prometheus.Counter
	tasksImported     prometheus.Counter
	duplicatesDeleted *prometheus.CounterVec
	deleteFailures    *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	uploadedBytes     prometheus.Counter
}

var _ labelsync.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers the collectors under namespace (default
// "labelsync"). Collectors already registered by an earlier observer are
// reused.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "labelsync"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{}
	var err error
	if o.projectsCreated, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "projects_created_total",
		Help:      "Annotation projects created.",
	})); err != nil {
		return nil, err
	}
	if o.tasksImported, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_imported_total",
		Help:      "Annotation tasks submitted by batch import.",
	})); err != nil {
		return nil, err
	}
	if o.duplicatesDeleted, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "duplicates_deleted_total",
		Help:      "Duplicate projects and tasks removed by reconciliation.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if o.deleteFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delete_failures_total",
		Help:      "Duplicate deletions that failed and were skipped.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if o.reconcileDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of reconciliation passes.",
		Buckets:   prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if o.uploadedBytes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploaded_bytes_total",
		Help:      "Cumulative payload size uploaded to object storage.",
	})); err != nil {
		return nil, err
	}
	return o, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

func (o *PrometheusObserver) ProjectCreated(string) {
	o.projectsCreated.Inc()
}

func (o *PrometheusObserver) TasksImported(_ int64, count int) {
	o.tasksImported.Add(float64(count))
}

func (o *PrometheusObserver) DuplicateDeleted(kind string) {
	o.duplicatesDeleted.WithLabelValues(kind).Inc()
}

func (o *PrometheusObserver) DeleteFailed(kind string) {
	o.deleteFailures.WithLabelValues(kind).Inc()
}

func (o *PrometheusObserver) ReconcileFinished(duration time.Duration, _ labelsync.ReconcileResult) {
	o.reconcileDuration.Observe(duration.Seconds())
}

func (o *PrometheusObserver) ImageUploaded(meta labelsync.ImageMetadata) {
	o.uploadedBytes.Add(float64(meta.SizeBytes))
}
