package storage

import (
	"context"
	"io"
)

// Account is the read side of a storage account as seen by the mirror.
// Implementations exist for Azure Blob Storage and for a local directory tree.
type Account interface {
	// ListContainers returns one page of containers starting at marker.
	// An empty marker starts from the beginning.
	ListContainers(ctx context.Context, marker string) (Page[Container], error)

	// ListBlobs returns one page of blobs in the named container starting at marker.
	ListBlobs(ctx context.Context, container, marker string, opts ListOptions) (Page[Blob], error)

	// OpenBlob opens the content of the blob, or of its snapshot when b.Snapshot is set.
	// The caller must close the returned reader.
	OpenBlob(ctx context.Context, b Blob) (io.ReadCloser, error)
}
