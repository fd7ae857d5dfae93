package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

// MismatchPolicy decides what happens when a cached download has the wrong size.
type MismatchPolicy string

const (
	// MismatchFail aborts the run with a SizeMismatchError.
	MismatchFail MismatchPolicy = "fail"
	// MismatchRedownload replaces the local copy.
	MismatchRedownload MismatchPolicy = "redownload"
)

// partSuffix marks in-flight downloads next to their target.
const partSuffix = ".part"

// FetcherConfig holds fetcher settings.
type FetcherConfig struct {
	Root           string         // Local download root
	Workers        int            // Concurrent downloads; <= 1 is sequential
	OnSizeMismatch MismatchPolicy // Defaults to MismatchFail
}

// FetchStats counts fetch outcomes.
type FetchStats struct {
	Downloaded int
	Skipped    int
}

func (s *FetchStats) add(outcome string) {
	switch outcome {
	case output.FetchDownloaded:
		s.Downloaded++
	case output.FetchSkipped:
		s.Skipped++
	}
}

// Fetcher downloads resolved references to a deterministic local path,
// skipping objects that are already present with the remote size.
type Fetcher struct {
	storage output.BlobFetcher
	metrics output.MetricsCollector
	logger  *slog.Logger
	cfg     FetcherConfig
}

// NewFetcher creates a new idempotent fetcher.
func NewFetcher(storage output.BlobFetcher, metrics output.MetricsCollector, logger *slog.Logger, cfg FetcherConfig) *Fetcher {
	if cfg.OnSizeMismatch == "" {
		cfg.OnSizeMismatch = MismatchFail
	}
	return &Fetcher{
		storage: storage,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// Fetch makes every reference available locally. The first error aborts.
func (f *Fetcher) Fetch(ctx context.Context, refs []domain.FileRef) (FetchStats, error) {
	if f.cfg.Workers > 1 {
		return f.fetchParallel(ctx, refs)
	}

	var stats FetchStats
	for _, ref := range refs {
		outcome, err := f.FetchOne(ctx, ref)
		f.metrics.IncFetch(outcome)
		if err != nil {
			return stats, err
		}
		stats.add(outcome)
	}
	return stats, nil
}

// fetchParallel fans references out to a bounded pool. Each local target is
// owned by one worker so the size check never races a download.
func (f *Fetcher) fetchParallel(ctx context.Context, refs []domain.FileRef) (FetchStats, error) {
	var (
		stats FetchStats
		mu    sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)

	for _, ref := range uniqueTargets(refs, f.cfg.Root) {
		g.Go(func() error {
			outcome, err := f.FetchOne(gctx, ref)
			f.metrics.IncFetch(outcome)

			mu.Lock()
			stats.add(outcome)
			mu.Unlock()
			return err
		})
	}

	err := g.Wait()
	return stats, err
}

// FetchOne makes a single reference available locally and reports the outcome.
func (f *Fetcher) FetchOne(ctx context.Context, ref domain.FileRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return output.FetchFailed, err
	}
	dest := ref.LocalPath(f.cfg.Root)

	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return output.FetchFailed, fmt.Errorf("creating directory for %s: %w", ref, err)
	}

	info, err := os.Stat(dest)
	switch {
	case err == nil:
		if info.IsDir() {
			return output.FetchFailed, fmt.Errorf("download target %s is a directory", dest)
		}

		remote, err := f.properties(ctx, ref)
		if err != nil {
			return output.FetchFailed, err
		}
		if remote.Size == info.Size() {
			f.logger.Debug("already downloaded, skipping", "key", ref.String(), "path", dest, "size", info.Size())
			return output.FetchSkipped, nil
		}

		mismatch := &domain.SizeMismatchError{
			Ref:        ref,
			LocalPath:  dest,
			LocalSize:  info.Size(),
			RemoteSize: remote.Size,
		}
		if f.cfg.OnSizeMismatch != MismatchRedownload {
			return output.FetchFailed, mismatch
		}
		f.logger.Warn("local copy has wrong size, downloading again", "key", ref.String(), "error", mismatch)

	case !errors.Is(err, fs.ErrNotExist):
		return output.FetchFailed, fmt.Errorf("checking %s: %w", dest, err)
	}

	if err := f.download(ctx, ref, dest); err != nil {
		return output.FetchFailed, err
	}
	return output.FetchDownloaded, nil
}

// download writes the object next to dest and renames it into place.
func (f *Fetcher) download(ctx context.Context, ref domain.FileRef, dest string) error {
	f.logger.Info("downloading", "key", ref.String(), "path", dest)

	part := dest + partSuffix
	start := time.Now()
	err := f.storage.Download(ctx, ref.Container, ref.Name, part)
	f.metrics.ObserveStorageDuration("download", time.Since(start))
	f.metrics.IncStorageOperations("download", err == nil)
	if err != nil {
		_ = os.Remove(part)
		return &domain.StorageError{Operation: "download", Key: ref.String(), Err: err}
	}

	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("moving download into place: %w", err)
	}
	return nil
}

func (f *Fetcher) properties(ctx context.Context, ref domain.FileRef) (output.StorageObject, error) {
	start := time.Now()
	obj, err := f.storage.Properties(ctx, ref.Container, ref.Name)
	f.metrics.ObserveStorageDuration("properties", time.Since(start))
	f.metrics.IncStorageOperations("properties", err == nil)
	if err != nil {
		return output.StorageObject{}, &domain.StorageError{Operation: "properties", Key: ref.String(), Err: err}
	}
	return obj, nil
}

// uniqueTargets drops references that map to an already seen local path.
func uniqueTargets(refs []domain.FileRef, root string) []domain.FileRef {
	seen := make(map[string]struct{}, len(refs))
	unique := make([]domain.FileRef, 0, len(refs))
	for _, ref := range refs {
		p := ref.LocalPath(root)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, ref)
	}
	return unique
}
