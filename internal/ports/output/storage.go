// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
)

// BlobLister lists objects in a container of the remote store.
type BlobLister interface {
	// List returns the objects of a container in listing order. With a
	// delimiter, objects below the first delimiter after the prefix are
	// collapsed into one prefix entry per "directory".
	List(ctx context.Context, container string, opts ListOptions) ([]StorageObject, error)
}

// BlobFetcher retrieves objects from the remote store.
type BlobFetcher interface {
	// Properties returns the metadata of a single object.
	Properties(ctx context.Context, container, key string) (StorageObject, error)

	// Download writes the full object content to dest, creating or
	// truncating it. The parent directory must exist.
	Download(ctx context.Context, container, key, dest string) error
}

// ObjectStorage is a remote store that can both list and fetch.
type ObjectStorage interface {
	BlobLister
	BlobFetcher
}

// ListOptions filters a listing.
type ListOptions struct {
	Prefix    string // Exact name prefix, empty for the whole container
	Delimiter string // Single-level delimiter, empty for a flat listing
}

// StorageObject represents a file (or a virtual directory) in object storage.
type StorageObject struct {
	Key          string // Full object name within the container
	Size         int64  // Size in bytes
	LastModified int64  // Unix timestamp
	ETag         string // Content hash
	IsPrefix     bool   // Delimiter-bounded directory entry; Key ends with the delimiter
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeAzure StorageType = "azure"
	StorageTypeS3    StorageType = "s3"
	StorageTypeLocal StorageType = "local"
)
