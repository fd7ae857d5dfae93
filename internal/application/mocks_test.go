package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

var errContainerNotFound = errors.New("ContainerNotFound")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type mockBlob struct {
	name    string
	content []byte
}

// mockStorage implements output.ObjectStorage over in-memory containers.
type mockStorage struct {
	mu            sync.Mutex
	containers    map[string][]mockBlob
	listCalls     []output.ListOptions
	downloads     int
	properties    int
	listErr       error
	downloadErr   error
	propertiesErr error
}

func newMockStorage() *mockStorage {
	return &mockStorage{containers: make(map[string][]mockBlob)}
}

func (m *mockStorage) put(container, name, content string) {
	m.containers[container] = append(m.containers[container], mockBlob{name: name, content: []byte(content)})
}

func (m *mockStorage) List(_ context.Context, container string, opts output.ListOptions) ([]output.StorageObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls = append(m.listCalls, opts)
	if m.listErr != nil {
		return nil, m.listErr
	}
	blobs, ok := m.containers[container]
	if !ok {
		return nil, errContainerNotFound
	}

	var objects []output.StorageObject
	seen := make(map[string]bool)
	for _, b := range blobs {
		if !strings.HasPrefix(b.name, opts.Prefix) {
			continue
		}
		if opts.Delimiter != "" {
			rest := b.name[len(opts.Prefix):]
			if i := strings.Index(rest, opts.Delimiter); i >= 0 {
				dir := opts.Prefix + rest[:i+len(opts.Delimiter)]
				if !seen[dir] {
					seen[dir] = true
					objects = append(objects, output.StorageObject{Key: dir, IsPrefix: true})
				}
				continue
			}
		}
		objects = append(objects, output.StorageObject{Key: b.name, Size: int64(len(b.content))})
	}
	return objects, nil
}

func (m *mockStorage) find(container, key string) (mockBlob, error) {
	for _, b := range m.containers[container] {
		if b.name == key {
			return b, nil
		}
	}
	return mockBlob{}, fmt.Errorf("BlobNotFound: %s/%s", container, key)
}

func (m *mockStorage) Properties(_ context.Context, container, key string) (output.StorageObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.properties++
	if m.propertiesErr != nil {
		return output.StorageObject{}, m.propertiesErr
	}
	b, err := m.find(container, key)
	if err != nil {
		return output.StorageObject{}, err
	}
	return output.StorageObject{Key: b.name, Size: int64(len(b.content))}, nil
}

func (m *mockStorage) Download(_ context.Context, container, key, dest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.downloadErr != nil {
		return m.downloadErr
	}
	b, err := m.find(container, key)
	if err != nil {
		return err
	}
	m.downloads++
	return os.WriteFile(dest, b.content, 0600)
}

func (m *mockStorage) downloadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloads
}

// mockSink implements output.DocumentSink and records inserted documents.
type mockSink struct {
	docs   []domain.Document
	failAt int // 1-based insert that fails; 0 never fails
	err    error
}

func (m *mockSink) InsertOne(_ context.Context, doc domain.Document) error {
	if m.failAt > 0 && len(m.docs)+1 == m.failAt {
		return m.err
	}
	m.docs = append(m.docs, doc)
	return nil
}

// mockSource implements output.RecordSource with canned rows per path.
type mockSource struct {
	rows    map[string][]domain.Document
	opened  []string
	openErr error
	rowErr  error
}

func (m *mockSource) Open(path string) (output.RecordReader, error) {
	m.opened = append(m.opened, path)
	if m.openErr != nil {
		return nil, m.openErr
	}
	rows, ok := m.rows[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &mockReader{rows: rows, err: m.rowErr}, nil
}

type mockReader struct {
	rows []domain.Document
	pos  int
	err  error
}

func (r *mockReader) Next() (domain.Document, error) {
	if r.pos >= len(r.rows) {
		if r.err != nil {
			return nil, r.err
		}
		return nil, io.EOF
	}
	doc := r.rows[r.pos]
	r.pos++
	return doc, nil
}

func (r *mockReader) Close() error { return nil }

// mockQuerier implements output.DocumentQuerier.
type mockQuerier struct {
	lastFilter any
	lastLimit  int64
	count      int64
	docs       []domain.Document
	err        error
}

func (m *mockQuerier) Count(_ context.Context, filter any) (int64, error) {
	m.lastFilter = filter
	return m.count, m.err
}

func (m *mockQuerier) Find(_ context.Context, filter any, limit int64) ([]domain.Document, error) {
	m.lastFilter = filter
	m.lastLimit = limit
	return m.docs, m.err
}

// countingMetrics records fetch outcomes.
type countingMetrics struct {
	output.NoOpMetrics
	mu       sync.Mutex
	fetches  map[string]int
	inserted int
	resolved int
	runs     []bool
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{fetches: make(map[string]int)}
}

func (c *countingMetrics) IncFetch(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches[outcome]++
}

func (c *countingMetrics) IncDocumentsInserted(success bool) {
	if success {
		c.inserted++
	}
}

func (c *countingMetrics) SetFilesResolved(count int) {
	c.resolved = count
}

func (c *countingMetrics) ObserveRun(_ time.Duration, success bool) {
	c.runs = append(c.runs, success)
}
