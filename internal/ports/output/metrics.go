package output

import (
	"context"
	"time"
)

// Fetch outcomes reported to IncFetch.
const (
	FetchDownloaded = "downloaded"
	FetchSkipped    = "skipped"
	FetchFailed     = "failed"
)

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)

	// IncFetch counts one reference handled by the fetcher.
	IncFetch(outcome string)

	// IncDocumentsInserted counts inserted documents.
	IncDocumentsInserted(success bool)

	// SetFilesResolved sets the number of references the last resolution produced.
	SetFilesResolved(count int)

	// ObserveRun records the outcome and duration of one pipeline run.
	ObserveRun(duration time.Duration, success bool)

	// Flush delivers collected metrics, if the backend needs it.
	Flush(ctx context.Context) error
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}

// IncFetch implements MetricsCollector.
func (n *NoOpMetrics) IncFetch(_ string) {}

// IncDocumentsInserted implements MetricsCollector.
func (n *NoOpMetrics) IncDocumentsInserted(_ bool) {}

// SetFilesResolved implements MetricsCollector.
func (n *NoOpMetrics) SetFilesResolved(_ int) {}

// ObserveRun implements MetricsCollector.
func (n *NoOpMetrics) ObserveRun(_ time.Duration, _ bool) {}

// Flush implements MetricsCollector.
func (n *NoOpMetrics) Flush(_ context.Context) error { return nil }
