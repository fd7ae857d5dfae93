package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/input"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

// Pipeline runs resolve, fetch and load strictly in sequence.
type Pipeline struct {
	resolver *Resolver
	fetcher  *Fetcher
	loader   *Loader
	metrics  output.MetricsCollector
	logger   *slog.Logger
	dryRun   bool
}

// NewPipeline creates a new pipeline. In dry-run mode fetcher and loader may
// be nil; the run stops after resolution.
func NewPipeline(
	resolver *Resolver,
	fetcher *Fetcher,
	loader *Loader,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	dryRun bool,
) *Pipeline {
	return &Pipeline{
		resolver: resolver,
		fetcher:  fetcher,
		loader:   loader,
		metrics:  metrics,
		logger:   logger,
		dryRun:   dryRun,
	}
}

var _ input.Pipeline = (*Pipeline)(nil)

// Resolve implements input.Pipeline.
func (p *Pipeline) Resolve(ctx context.Context, logicalPath string) ([]domain.FileRef, error) {
	return p.resolver.Resolve(ctx, logicalPath)
}

// Run implements input.Pipeline.
func (p *Pipeline) Run(ctx context.Context, logicalPath string) (input.RunResult, error) {
	start := time.Now()
	result, err := p.run(ctx, logicalPath)
	result.Duration = time.Since(start)
	p.metrics.ObserveRun(result.Duration, err == nil)
	if err != nil {
		return result, err
	}

	p.logger.Info("run completed",
		"resolved", result.Resolved,
		"downloaded", result.Downloaded,
		"skipped", result.Skipped,
		"files", result.Files,
		"documents", result.Documents,
		"dry_run", result.DryRun,
		"duration", result.Duration,
	)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, logicalPath string) (input.RunResult, error) {
	result := input.RunResult{DryRun: p.dryRun}

	refs, err := p.resolver.Resolve(ctx, logicalPath)
	if err != nil {
		return result, fmt.Errorf("resolving files: %w", err)
	}
	result.Resolved = len(refs)

	if p.dryRun {
		for _, ref := range refs {
			p.logger.Info("would load", "key", ref.String())
		}
		return result, nil
	}

	fetched, err := p.fetcher.Fetch(ctx, refs)
	result.Downloaded = fetched.Downloaded
	result.Skipped = fetched.Skipped
	if err != nil {
		return result, fmt.Errorf("downloading files: %w", err)
	}
	p.logger.Info("files downloaded", "downloaded", fetched.Downloaded, "skipped", fetched.Skipped)

	loaded, err := p.loader.Load(ctx, refs)
	result.Files = loaded.Files
	result.Documents = loaded.Documents
	if err != nil {
		return result, fmt.Errorf("loading files: %w", err)
	}
	return result, nil
}
