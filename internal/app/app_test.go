package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobrunner/blobloader/internal/adapters/storage"
	"github.com/jobrunner/blobloader/internal/config"
	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

type recordingSink struct {
	docs []domain.Document
}

func (s *recordingSink) InsertOne(_ context.Context, doc domain.Document) error {
	s.docs = append(s.docs, doc)
	return nil
}

type staticSecrets map[string]string

func (s staticSecrets) GetSecret(_ context.Context, name string) (string, error) {
	v, ok := s[name]
	if !ok {
		return "", domain.UnconfiguredAccountError(name, "testvault")
	}
	return v, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "acct", "c", "2021", "run1")
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metrics.csv"), []byte("x,cell_call\n1,C1\n2,C2\n"), 0600); err != nil {
		t.Fatal(err)
	}

	return &config.Config{
		Files:       "acct/c/2021/*/metrics.csv",
		DownloadDir: t.TempDir(),
		Storage:     config.StorageConfig{Type: "local", LocalPath: base},
		Fetch:       config.FetchConfig{Workers: 1, OnSizeMismatch: "fail"},
		CSV:         config.CSVConfig{Delimiter: ","},
	}
}

func TestNewLoadWithLocalStorage(t *testing.T) {
	cfg := localConfig(t)
	sink := &recordingSink{}

	a, err := NewWithDependencies(context.Background(), cfg, discardLogger(), ModeLoad, Dependencies{Sink: sink})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = a.Close(context.Background()) }()

	result, err := a.Pipeline.Run(context.Background(), cfg.Files)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Downloaded != 1 || result.Documents != 2 {
		t.Errorf("result = %+v", result)
	}
	if len(sink.docs) != 2 {
		t.Fatalf("inserted = %d, want 2", len(sink.docs))
	}
	if v, _ := sink.docs[1].Get("cell_call"); v != "C2" {
		t.Errorf("second document cell_call = %v, want C2", v)
	}

	mirrored := filepath.Join(cfg.DownloadDir, "c", "2021", "run1", "metrics.csv")
	if _, err := os.Stat(mirrored); err != nil {
		t.Errorf("download should be mirrored at %s: %v", mirrored, err)
	}
}

func TestNewResolveNeedsNoDatabase(t *testing.T) {
	cfg := localConfig(t)

	a, err := New(context.Background(), cfg, discardLogger(), ModeResolve)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	refs, err := a.Pipeline.Resolve(context.Background(), cfg.Files)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(refs) != 1 || refs[0] != (domain.FileRef{Container: "c", Name: "2021/run1/metrics.csv"}) {
		t.Errorf("Resolve() = %v", refs)
	}
	if err := a.Close(context.Background()); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewMalformedPath(t *testing.T) {
	cfg := localConfig(t)
	cfg.Files = "acct"

	_, err := New(context.Background(), cfg, discardLogger(), ModeResolve)
	if !errors.Is(err, domain.ErrMalformedPath) {
		t.Errorf("New() error = %v, want ErrMalformedPath", err)
	}
}

func TestInitStorageAzureFromVault(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Type: "azure"}}
	secrets := staticSecrets{"singlecelldata": "a2V5"}

	s, err := initStorage(context.Background(), cfg, "singlecelldata", secrets)
	if err != nil {
		t.Fatalf("initStorage() error = %v", err)
	}
	if _, ok := s.(*storage.AzureStorage); !ok {
		t.Errorf("initStorage() = %T, want *storage.AzureStorage", s)
	}

	_, err = initStorage(context.Background(), cfg, "otheraccount", secrets)
	if !errors.Is(err, domain.ErrUnconfiguredAccount) {
		t.Errorf("initStorage() error = %v, want ErrUnconfiguredAccount", err)
	}
}

func TestInitStorageTypes(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Type: "local", LocalPath: "/srv/blobs"}}
	s, err := initStorage(context.Background(), cfg, "acct", nil)
	if err != nil {
		t.Fatalf("initStorage() error = %v", err)
	}
	if _, ok := s.(*storage.LocalStorage); !ok {
		t.Errorf("initStorage() = %T, want *storage.LocalStorage", s)
	}

	cfg.Storage.Type = "ftp"
	if _, err := initStorage(context.Background(), cfg, "acct", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("initStorage() error = %v, want ErrInvalidInput", err)
	}
}

func TestMetricsDefaultToNoOp(t *testing.T) {
	a, err := New(context.Background(), localConfig(t), discardLogger(), ModeResolve)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := a.Metrics.(*output.NoOpMetrics); !ok {
		t.Errorf("Metrics = %T, want *output.NoOpMetrics", a.Metrics)
	}
}
