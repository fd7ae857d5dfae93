// Package storage provides object storage adapters.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

// LocalStorage implements ObjectStorage over a directory tree where each
// subdirectory of basePath is a container and files below it are blobs.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage adapter.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

var _ output.ObjectStorage = (*LocalStorage)(nil)

// List implements output.BlobLister. Keys are returned in byte order, as a
// blob service would return them.
func (s *LocalStorage) List(ctx context.Context, container string, opts output.ListOptions) ([]output.StorageObject, error) {
	root, err := s.containerPath(container)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: container %s", domain.ErrNotFound, container)
		}
		return nil, err
	}

	// Only the deepest directory named by the prefix needs walking.
	start := root
	if slices.Contains(strings.Split(opts.Prefix, "/"), "..") {
		return nil, &domain.PathError{Path: opts.Prefix, Reason: "prefix escapes the container"}
	}
	if i := strings.LastIndex(opts.Prefix, "/"); i >= 0 {
		start = filepath.Join(root, filepath.FromSlash(opts.Prefix[:i]))
	}

	var files []output.StorageObject
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == start && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, opts.Prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, output.StorageObject{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortByKey(files)
	if opts.Delimiter == "" {
		return files, nil
	}
	return collapse(files, opts.Prefix, opts.Delimiter), nil
}

// collapse folds keys containing the delimiter after the prefix into one
// prefix entry each, keeping the input order.
func collapse(objects []output.StorageObject, prefix, delimiter string) []output.StorageObject {
	var out []output.StorageObject
	seen := make(map[string]bool)
	for _, obj := range objects {
		rest := obj.Key[len(prefix):]
		i := strings.Index(rest, delimiter)
		if i < 0 {
			out = append(out, obj)
			continue
		}
		dir := prefix + rest[:i+len(delimiter)]
		if !seen[dir] {
			seen[dir] = true
			out = append(out, output.StorageObject{Key: dir, IsPrefix: true})
		}
	}
	return out
}

// Properties implements output.BlobFetcher.
func (s *LocalStorage) Properties(_ context.Context, container, key string) (output.StorageObject, error) {
	p, err := s.blobPath(container, key)
	if err != nil {
		return output.StorageObject{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return output.StorageObject{}, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, container, key)
		}
		return output.StorageObject{}, err
	}
	if info.IsDir() {
		return output.StorageObject{}, fmt.Errorf("%w: %s/%s is a directory", domain.ErrNotFound, container, key)
	}
	return output.StorageObject{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime().Unix(),
	}, nil
}

// Download implements output.BlobFetcher by copying the file.
func (s *LocalStorage) Download(_ context.Context, container, key, dest string) error {
	srcPath, err := s.blobPath(container, key)
	if err != nil {
		return err
	}

	src, err := os.Open(srcPath) //#nosec G304 -- key is validated against the container root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, container, key)
		}
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(dest) //#nosec G304 -- dest is a controlled local path
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func (s *LocalStorage) containerPath(container string) (string, error) {
	if container == "" || strings.ContainsAny(container, `/\`) || container == "." || container == ".." {
		return "", &domain.PathError{Path: container, Reason: "invalid container name"}
	}
	return filepath.Join(s.basePath, container), nil
}

func (s *LocalStorage) blobPath(container, key string) (string, error) {
	root, err := s.containerPath(container)
	if err != nil {
		return "", err
	}
	clean := path.Clean("/" + key)
	if clean == "/" || slices.Contains(strings.Split(key, "/"), "..") {
		return "", &domain.PathError{Path: key, Reason: "key escapes the container"}
	}
	return filepath.Join(root, filepath.FromSlash(clean[1:])), nil
}
