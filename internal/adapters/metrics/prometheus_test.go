package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jobrunner/blobloader/internal/ports/output"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("", "", "")

	c.IncStorageOperations("list", true)
	c.IncStorageOperations("list", true)
	c.IncStorageOperations("download", false)
	c.ObserveStorageDuration("list", 20*time.Millisecond)
	c.IncFetch(output.FetchDownloaded)
	c.IncFetch(output.FetchSkipped)
	c.IncFetch(output.FetchSkipped)
	c.IncDocumentsInserted(true)
	c.SetFilesResolved(3)
	c.ObserveRun(2*time.Second, true)
	c.ObserveRun(time.Second, false)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"list success", testutil.ToFloat64(c.storageOperations.WithLabelValues("list", "success")), 2},
		{"download error", testutil.ToFloat64(c.storageOperations.WithLabelValues("download", "error")), 1},
		{"downloaded", testutil.ToFloat64(c.fetches.WithLabelValues(output.FetchDownloaded)), 1},
		{"skipped", testutil.ToFloat64(c.fetches.WithLabelValues(output.FetchSkipped)), 2},
		{"inserted", testutil.ToFloat64(c.documentsInserted.WithLabelValues("success")), 1},
		{"resolved", testutil.ToFloat64(c.filesResolved), 3},
		{"successful runs", testutil.ToFloat64(c.runs.WithLabelValues("success")), 1},
		{"failed runs", testutil.ToFloat64(c.runs.WithLabelValues("error")), 1},
		{"last run duration", testutil.ToFloat64(c.runDuration), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(c.storageDuration); n != 1 {
		t.Errorf("storage duration series = %d, want 1", n)
	}
}

func TestCollectorRegistryNames(t *testing.T) {
	c := NewCollector("qc", "", "")
	c.SetFilesResolved(1)

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "qc_files_resolved" {
			found = true
		}
	}
	if !found {
		t.Error("qc_files_resolved should be registered under the namespace")
	}
}

func TestFlushWithoutGateway(t *testing.T) {
	c := NewCollector("", "", "")
	if err := c.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error = %v, want nil without a gateway", err)
	}
}

func TestFlushPushesToGateway(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewCollector("", server.URL, "qc-load")
	c.IncFetch(output.FetchDownloaded)

	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/metrics/job/qc-load" {
		t.Errorf("path = %s, want /metrics/job/qc-load", path)
	}
	if !strings.Contains(body, "blobloader_fetches_total") {
		t.Error("pushed body should contain the fetch counter")
	}
}

func TestFlushGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewCollector("", server.URL, "")
	if err := c.Flush(context.Background()); err == nil {
		t.Error("Flush() should fail when the gateway rejects the push")
	}
}
