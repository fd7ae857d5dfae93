// Package input defines the primary/driving ports of the application.
package input

import (
	"context"
	"time"

	"github.com/jobrunner/blobloader/internal/domain"
)

// Pipeline defines the primary port for moving blob files into the database.
type Pipeline interface {
	// Run resolves, fetches and loads every file matching the logical path.
	Run(ctx context.Context, logicalPath string) (RunResult, error)

	// Resolve returns the references the logical path expands to.
	Resolve(ctx context.Context, logicalPath string) ([]domain.FileRef, error)
}

// QueryService defines the primary port for reading loaded documents.
type QueryService interface {
	// Count returns the number of documents matching an Extended JSON filter.
	Count(ctx context.Context, filterJSON string) (int64, error)

	// Find returns up to limit documents matching an Extended JSON filter.
	Find(ctx context.Context, filterJSON string, limit int64) ([]domain.Document, error)
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	Resolved   int           `json:"resolved"`   // References produced by the resolver
	Downloaded int           `json:"downloaded"` // Objects fetched over the network
	Skipped    int           `json:"skipped"`    // Objects already present with the right size
	Files      int           `json:"files"`      // Files loaded
	Documents  int           `json:"documents"`  // Documents inserted
	DryRun     bool          `json:"dry_run"`
	Duration   time.Duration `json:"duration"`
}
