package application

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

// LoadStats counts what a load inserted.
type LoadStats struct {
	Files     int
	Documents int
}

// Loader parses downloaded files and inserts one document per row.
type Loader struct {
	source  output.RecordSource
	sink    output.DocumentSink
	metrics output.MetricsCollector
	logger  *slog.Logger
	root    string
}

// NewLoader creates a new record loader reading downloads below root.
func NewLoader(
	source output.RecordSource,
	sink output.DocumentSink,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	root string,
) *Loader {
	return &Loader{
		source:  source,
		sink:    sink,
		metrics: metrics,
		logger:  logger,
		root:    root,
	}
}

// Load inserts the rows of every referenced file, in order. The first
// parse or insert failure aborts the whole load.
func (l *Loader) Load(ctx context.Context, refs []domain.FileRef) (LoadStats, error) {
	var stats LoadStats
	for _, ref := range refs {
		n, err := l.LoadFile(ctx, ref.LocalPath(l.root))
		stats.Documents += n
		if err != nil {
			return stats, err
		}
		stats.Files++
	}
	return stats, nil
}

// LoadFile inserts every row of one local file and returns the number of
// documents inserted.
func (l *Loader) LoadFile(ctx context.Context, path string) (int, error) {
	l.logger.Info("loading file", "path", path)

	reader, err := l.source.Open(path)
	if err != nil {
		return 0, &domain.LoadError{Path: path, Err: err}
	}
	defer func() { _ = reader.Close() }()

	inserted := 0
	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}

		doc, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return inserted, &domain.LoadError{Path: path, Row: row, Err: err}
		}

		err = l.sink.InsertOne(ctx, doc)
		l.metrics.IncDocumentsInserted(err == nil)
		if err != nil {
			return inserted, &domain.LoadError{Path: path, Row: row, Err: err}
		}
		inserted++
	}

	l.logger.Info("file loaded", "path", path, "documents", inserted)
	return inserted, nil
}
