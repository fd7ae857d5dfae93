package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

func TestServiceURL(t *testing.T) {
	if got := ServiceURL("singlecelldata"); got != "https://singlecelldata.blob.core.windows.net/" {
		t.Errorf("ServiceURL() = %q", got)
	}
}

func TestNewAzureStorage(t *testing.T) {
	// Shared key credentials require a base64 key.
	if _, err := NewAzureStorage(AzureConfig{AccountName: "acct", AccountKey: "not base64!"}); err == nil {
		t.Error("NewAzureStorage() should reject an invalid account key")
	}

	s, err := NewAzureStorage(AzureConfig{AccountName: "acct", AccountKey: "a2V5"})
	if err != nil {
		t.Fatalf("NewAzureStorage() error = %v", err)
	}
	if s.client == nil {
		t.Error("client should be initialized")
	}
}

func TestBlobToStorageObject(t *testing.T) {
	modified := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	length := int64(1024)
	etag := azcore.ETag("0x8D9")
	item := &container.BlobItem{
		Name: to.Ptr("2021/run1/metrics.csv"),
		Properties: &container.BlobProperties{
			ContentLength: &length,
			LastModified:  &modified,
			ETag:          &etag,
		},
	}

	got := blobToStorageObject(item)
	want := output.StorageObject{Key: "2021/run1/metrics.csv", Size: 1024, LastModified: modified.Unix(), ETag: "0x8D9"}
	if got != want {
		t.Errorf("blobToStorageObject() = %+v, want %+v", got, want)
	}

	if got := blobToStorageObject(&container.BlobItem{Name: to.Ptr("x")}); got.Key != "x" || got.Size != 0 {
		t.Errorf("blobToStorageObject() without properties = %+v", got)
	}
}

func TestTranslateAzureError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"container not found", &azcore.ResponseError{StatusCode: 404, ErrorCode: "ContainerNotFound"}, domain.ErrNotFound},
		{"blob not found", &azcore.ResponseError{StatusCode: 404, ErrorCode: "BlobNotFound"}, domain.ErrNotFound},
		{"plain 404", &azcore.ResponseError{StatusCode: 404}, domain.ErrNotFound},
		{"forbidden", &azcore.ResponseError{StatusCode: 403, ErrorCode: "AuthenticationFailed"}, domain.ErrStorageUnavailable},
		{"server busy", &azcore.ResponseError{StatusCode: 503, ErrorCode: "ServerBusy"}, domain.ErrStorageUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateAzureError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("translateAzureError() = %v, want %v", got, tt.want)
			}
			var respErr *azcore.ResponseError
			if !errors.As(got, &respErr) {
				t.Error("original response error should stay reachable")
			}
		})
	}

	plain := errors.New("connection reset")
	if got := translateAzureError(plain); got != plain {
		t.Errorf("translateAzureError() = %v, want unchanged error", got)
	}
}

func TestTranslateS3Error(t *testing.T) {
	for _, err := range []error{&types.NoSuchBucket{}, &types.NoSuchKey{}, &types.NotFound{}} {
		if got := translateS3Error(err); !errors.Is(got, domain.ErrNotFound) {
			t.Errorf("translateS3Error(%T) = %v, want ErrNotFound", err, got)
		}
	}

	plain := errors.New("connection reset")
	if got := translateS3Error(plain); got != plain {
		t.Errorf("translateS3Error() = %v, want unchanged error", got)
	}
}

func TestSortByKey(t *testing.T) {
	objects := []output.StorageObject{{Key: "a/b"}, {Key: "a.csv"}, {Key: "a/", IsPrefix: true}}
	sortByKey(objects)

	want := []string{"a.csv", "a/", "a/b"}
	for i, k := range want {
		if objects[i].Key != k {
			t.Errorf("objects[%d] = %q, want %q", i, objects[i].Key, k)
		}
	}
}
