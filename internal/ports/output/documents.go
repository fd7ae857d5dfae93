package output

import (
	"context"

	"github.com/jobrunner/blobloader/internal/domain"
)

// DocumentSink inserts documents into the target collection.
type DocumentSink interface {
	// InsertOne stores a single document.
	InsertOne(ctx context.Context, doc domain.Document) error
}

// DocumentQuerier runs read queries against the target collection.
type DocumentQuerier interface {
	// Count returns the number of documents matching filter.
	Count(ctx context.Context, filter any) (int64, error)

	// Find returns up to limit documents matching filter; limit <= 0 means all.
	Find(ctx context.Context, filter any, limit int64) ([]domain.Document, error)
}

// RecordSource opens local tabular files as record streams.
type RecordSource interface {
	// Open returns a reader over the rows of the file at path.
	Open(path string) (RecordReader, error)
}

// RecordReader yields one document per tabular row.
type RecordReader interface {
	// Next returns the next row; io.EOF after the last one.
	Next() (domain.Document, error)

	// Close releases the underlying file.
	Close() error
}
