package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

// AzureStorage implements ObjectStorage for one Azure Blob Storage account.
type AzureStorage struct {
	client *azblob.Client
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName      string
	AccountKey       string
	ConnectionString string
	ServiceURL       string // Overrides https://<account>.blob.core.windows.net/
}

// ServiceURL returns the blob endpoint of a storage account.
func ServiceURL(account string) string {
	return "https://" + account + ".blob.core.windows.net/"
}

// NewAzureStorage creates a new Azure Blob Storage adapter.
func NewAzureStorage(cfg AzureConfig) (*AzureStorage, error) {
	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, err
		}
		return &AzureStorage{client: client}, nil
	}

	url := cfg.ServiceURL
	if url == "" {
		url = ServiceURL(cfg.AccountName)
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, err
	}
	client, err := azblob.NewClientWithSharedKeyCredential(url, cred, nil)
	if err != nil {
		return nil, err
	}
	return &AzureStorage{client: client}, nil
}

var _ output.ObjectStorage = (*AzureStorage)(nil)

// List implements output.BlobLister.
func (s *AzureStorage) List(ctx context.Context, containerName string, opts output.ListOptions) ([]output.StorageObject, error) {
	if opts.Delimiter != "" {
		return s.listHierarchy(ctx, containerName, opts)
	}

	var objects []output.StorageObject
	pager := s.client.NewListBlobsFlatPager(containerName, &azblob.ListBlobsFlatOptions{
		Prefix: &opts.Prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, translateAzureError(err)
		}
		for _, item := range page.Segment.BlobItems {
			objects = append(objects, blobToStorageObject(item))
		}
	}
	return objects, nil
}

func (s *AzureStorage) listHierarchy(ctx context.Context, containerName string, opts output.ListOptions) ([]output.StorageObject, error) {
	var objects []output.StorageObject
	pager := s.client.ServiceClient().NewContainerClient(containerName).
		NewListBlobsHierarchyPager(opts.Delimiter, &container.ListBlobsHierarchyOptions{
			Prefix: &opts.Prefix,
		})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, translateAzureError(err)
		}
		if page.Segment == nil {
			continue
		}

		// The service returns prefixes and blobs separately; merge them
		// back into name order within the page.
		entries := make([]output.StorageObject, 0, len(page.Segment.BlobPrefixes)+len(page.Segment.BlobItems))
		for _, p := range page.Segment.BlobPrefixes {
			if p.Name != nil {
				entries = append(entries, output.StorageObject{Key: *p.Name, IsPrefix: true})
			}
		}
		for _, item := range page.Segment.BlobItems {
			entries = append(entries, blobToStorageObject(item))
		}
		sortByKey(entries)
		objects = append(objects, entries...)
	}
	return objects, nil
}

// Properties implements output.BlobFetcher.
func (s *AzureStorage) Properties(ctx context.Context, containerName, key string) (output.StorageObject, error) {
	props, err := s.client.ServiceClient().NewContainerClient(containerName).NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		return output.StorageObject{}, translateAzureError(err)
	}

	obj := output.StorageObject{Key: key}
	if props.ContentLength != nil {
		obj.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		obj.LastModified = props.LastModified.Unix()
	}
	if props.ETag != nil {
		obj.ETag = string(*props.ETag)
	}
	return obj, nil
}

// Download implements output.BlobFetcher.
func (s *AzureStorage) Download(ctx context.Context, containerName, key, dest string) error {
	f, err := os.Create(dest) //#nosec G304 -- dest is a controlled local path
	if err != nil {
		return err
	}

	if _, err := s.client.DownloadFile(ctx, containerName, key, f, nil); err != nil {
		_ = f.Close()
		return translateAzureError(err)
	}
	return f.Close()
}

// blobToStorageObject converts an Azure blob item to a StorageObject.
func blobToStorageObject(item *container.BlobItem) output.StorageObject {
	var obj output.StorageObject
	if item.Name != nil {
		obj.Key = *item.Name
	}
	if item.Properties == nil {
		return obj
	}
	if item.Properties.ContentLength != nil {
		obj.Size = *item.Properties.ContentLength
	}
	if item.Properties.LastModified != nil {
		obj.LastModified = item.Properties.LastModified.Unix()
	}
	if item.Properties.ETag != nil {
		obj.ETag = string(*item.Properties.ETag)
	}
	return obj
}

// translateAzureError marks missing containers and blobs as domain.ErrNotFound
// and auth or throttling failures as domain.ErrStorageUnavailable.
func translateAzureError(err error) error {
	if bloberror.HasCode(err, bloberror.ContainerNotFound, bloberror.BlobNotFound, bloberror.ResourceNotFound) {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == 404:
			return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
		case respErr.StatusCode == 403 || respErr.StatusCode >= 500:
			return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
		}
	}
	return err
}

func sortByKey(objects []output.StorageObject) {
	slices.SortStableFunc(objects, func(a, b output.StorageObject) int {
		return strings.Compare(a.Key, b.Key)
	})
}
