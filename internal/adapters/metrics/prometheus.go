// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/jobrunner/blobloader/internal/ports/output"
)

// Collector implements the MetricsCollector port using a private Prometheus
// registry that is pushed to a Pushgateway on Flush.
type Collector struct {
	registry          *prometheus.Registry
	gatewayURL        string
	job               string
	storageOperations *prometheus.CounterVec
	storageDuration   *prometheus.HistogramVec
	fetches           *prometheus.CounterVec
	documentsInserted *prometheus.CounterVec
	filesResolved     prometheus.Gauge
	runs              *prometheus.CounterVec
	runDuration       prometheus.Gauge
	lastRun           prometheus.Gauge
}

var _ output.MetricsCollector = (*Collector)(nil)

// NewCollector creates a new Prometheus metrics collector. An empty
// gatewayURL keeps metrics in the registry only.
func NewCollector(namespace, gatewayURL, job string) *Collector {
	if namespace == "" {
		namespace = "blobloader"
	}
	if job == "" {
		job = "blobloader"
	}

	c := &Collector{
		registry:   prometheus.NewRegistry(),
		gatewayURL: gatewayURL,
		job:        job,

		storageOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total number of storage operations",
			},
			[]string{"operation", "status"},
		),

		storageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_duration_seconds",
				Help:      "Storage operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Files handled by the fetcher, by outcome",
			},
			[]string{"outcome"},
		),

		documentsInserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_inserted_total",
				Help:      "Total number of document inserts",
			},
			[]string{"status"},
		),

		filesResolved: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "files_resolved",
				Help:      "Number of files the last resolution produced",
			},
		),

		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs",
			},
			[]string{"status"},
		),

		runDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of the last pipeline run in seconds",
			},
		),

		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_flush_timestamp_seconds",
				Help:      "Unix time of the last metrics push",
			},
		),
	}

	c.registry.MustRegister(
		c.storageOperations,
		c.storageDuration,
		c.fetches,
		c.documentsInserted,
		c.filesResolved,
		c.runs,
		c.runDuration,
		c.lastRun,
	)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// IncStorageOperations increments storage operation counter.
func (c *Collector) IncStorageOperations(operation string, success bool) {
	c.storageOperations.WithLabelValues(operation, status(success)).Inc()
}

// ObserveStorageDuration records storage operation duration.
func (c *Collector) ObserveStorageDuration(operation string, duration time.Duration) {
	c.storageDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncFetch counts one fetched reference.
func (c *Collector) IncFetch(outcome string) {
	c.fetches.WithLabelValues(outcome).Inc()
}

// IncDocumentsInserted counts one insert.
func (c *Collector) IncDocumentsInserted(success bool) {
	c.documentsInserted.WithLabelValues(status(success)).Inc()
}

// SetFilesResolved sets the resolved file count.
func (c *Collector) SetFilesResolved(count int) {
	c.filesResolved.Set(float64(count))
}

// ObserveRun records one pipeline run.
func (c *Collector) ObserveRun(duration time.Duration, success bool) {
	c.runs.WithLabelValues(status(success)).Inc()
	c.runDuration.Set(duration.Seconds())
}

// Flush pushes the registry to the Pushgateway, replacing the job's group.
func (c *Collector) Flush(ctx context.Context) error {
	if c.gatewayURL == "" {
		return nil
	}
	c.lastRun.SetToCurrentTime()

	if err := push.New(c.gatewayURL, c.job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", c.gatewayURL, err)
	}
	return nil
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
