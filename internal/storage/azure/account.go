// Package azure implements storage.Account over Azure Blob Storage with shared key credentials.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"

	"github.com/asad/blobmirror/internal/storage"
)

// Config holds what is needed to reach one storage account.
type Config struct {
	AccountName string
	AccountKey  string

	// Endpoint overrides the service URL, e.g. http://127.0.0.1:10000/devstoreaccount1 for Azurite.
	Endpoint string

	// PageSize is the default listing page size. Zero lets the service decide.
	PageSize int32
}

// Account lists and downloads through a single service client created at startup.
type Account struct {
	client   *service.Client
	pageSize int32
}

// ServiceURL returns the blob service URL for an account, honoring an endpoint override.
func ServiceURL(accountName, endpoint string) string {
	if endpoint != "" {
		return strings.TrimRight(endpoint, "/") + "/"
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
}

// NewAccount creates the service client. The SDK retry policy is disabled: a failed call fails the run.
func NewAccount(cfg Config) (*Account, error) {
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, storage.NewError(storage.KindAuthentication, "create shared key credential", err)
	}

	opts := &service.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	client, err := service.NewClientWithSharedKeyCredential(ServiceURL(cfg.AccountName, cfg.Endpoint), cred, opts)
	if err != nil {
		return nil, storage.NewError(storage.KindInvalidConfig, "create service client", err)
	}

	return &Account{client: client, pageSize: cfg.PageSize}, nil
}

// URL returns the service URL the account talks to.
func (a *Account) URL() string {
	return a.client.URL()
}

func (a *Account) ListContainers(ctx context.Context, marker string) (storage.Page[storage.Container], error) {
	opts := &service.ListContainersOptions{}
	if marker != "" {
		opts.Marker = &marker
	}
	if a.pageSize > 0 {
		opts.MaxResults = &a.pageSize
	}

	// A fresh pager seeded with the marker fetches exactly the requested segment.
	pager := a.client.NewListContainersPager(opts)
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return storage.Page[storage.Container]{}, classify("list containers", err)
	}

	page := storage.Page[storage.Container]{NextMarker: deref(resp.NextMarker)}
	for _, item := range resp.ContainerItems {
		if c, ok := containerFromItem(item); ok {
			page.Items = append(page.Items, c)
		}
	}
	return page, nil
}

func (a *Account) ListBlobs(ctx context.Context, containerName, marker string, lo storage.ListOptions) (storage.Page[storage.Blob], error) {
	opts := &container.ListBlobsFlatOptions{
		Include: container.ListBlobsInclude{Snapshots: lo.IncludeSnapshots},
	}
	if marker != "" {
		opts.Marker = &marker
	}
	size := lo.PageSize
	if size <= 0 {
		size = a.pageSize
	}
	if size > 0 {
		opts.MaxResults = &size
	}

	pager := a.client.NewContainerClient(containerName).NewListBlobsFlatPager(opts)
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return storage.Page[storage.Blob]{}, classify("list blobs in "+containerName, err)
	}

	page := storage.Page[storage.Blob]{NextMarker: deref(resp.NextMarker)}
	if resp.Segment == nil {
		return page, nil
	}
	for _, item := range resp.Segment.BlobItems {
		if b, ok := blobFromItem(containerName, item); ok {
			page.Items = append(page.Items, b)
		}
	}
	return page, nil
}

func (a *Account) OpenBlob(ctx context.Context, b storage.Blob) (io.ReadCloser, error) {
	op := "download " + b.Container + "/" + b.Name
	client := a.client.NewContainerClient(b.Container).NewBlobClient(b.Name)
	if b.IsSnapshot() {
		var err error
		client, err = client.WithSnapshot(b.Snapshot)
		if err != nil {
			return nil, storage.NewError(storage.KindInvalidConfig, op, err)
		}
	}

	resp, err := client.DownloadStream(ctx, nil)
	if err != nil {
		return nil, classify(op, err)
	}
	return resp.Body, nil
}

func containerFromItem(item *service.ContainerItem) (storage.Container, bool) {
	if item == nil || item.Name == nil {
		return storage.Container{}, false
	}
	c := storage.Container{Name: *item.Name}
	if item.Properties != nil && item.Properties.LastModified != nil {
		c.LastModified = item.Properties.LastModified.UTC()
	}
	return c, true
}

func blobFromItem(containerName string, item *container.BlobItem) (storage.Blob, bool) {
	if item == nil || item.Name == nil {
		return storage.Blob{}, false
	}
	b := storage.Blob{
		Container: containerName,
		Name:      *item.Name,
		Snapshot:  deref(item.Snapshot),
		Size:      -1,
	}
	if p := item.Properties; p != nil {
		if p.LastModified != nil {
			b.LastModified = p.LastModified.UTC()
		}
		if p.ContentLength != nil {
			b.Size = *p.ContentLength
		}
	}
	return b, true
}

// classify maps SDK errors onto storage error kinds.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if bloberror.HasCode(err,
		bloberror.AuthenticationFailed,
		bloberror.AuthorizationFailure,
		bloberror.AuthorizationPermissionMismatch,
		bloberror.InsufficientAccountPermissions,
	) {
		return storage.NewError(storage.KindAuthentication, op, err)
	}
	if bloberror.HasCode(err, bloberror.ContainerNotFound, bloberror.BlobNotFound) {
		return storage.NewError(storage.KindNotFound, op, err)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return storage.NewError(storage.KindAuthentication, op, err)
		case http.StatusNotFound:
			return storage.NewError(storage.KindNotFound, op, err)
		}
	}
	return storage.NewError(storage.KindTransport, op, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ storage.Account = (*Account)(nil)
