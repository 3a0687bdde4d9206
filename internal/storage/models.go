package storage

import "time"

// Container represents a top-level container in a storage account.
type Container struct {
	// Name is the unique name of the container within the account.
	Name string

	// LastModified is when the container properties last changed, if the backend reports it.
	LastModified time.Time
}

// Blob describes a single blob, or a single snapshot of a blob, as returned by a listing.
// (Container, Name, Snapshot) uniquely identifies it.
type Blob struct {
	// Container is the name of the container the blob belongs to.
	Container string

	// Name is the blob name within its container. It may contain '/'.
	Name string

	// Snapshot is the snapshot identifier. Empty means the current version.
	Snapshot string

	// LastModified is the remote last-modified time, restored on the mirrored file.
	LastModified time.Time

	// Size is the content length in bytes, or -1 when the listing did not report it.
	Size int64
}

// IsSnapshot reports whether the descriptor addresses a point-in-time snapshot.
func (b Blob) IsSnapshot() bool {
	return b.Snapshot != ""
}

// Key returns a string that is unique per (container, name, snapshot).
func (b Blob) Key() string {
	return b.Container + "\x00" + b.Name + "\x00" + b.Snapshot
}

// Page is one segment of a listing. An empty NextMarker means the listing is complete.
type Page[T any] struct {
	Items      []T
	NextMarker string
}

// ListOptions controls a blob listing call.
type ListOptions struct {
	// IncludeSnapshots asks the backend to return snapshots alongside current versions.
	IncludeSnapshots bool

	// PageSize caps the number of entries per page. Zero lets the backend decide.
	PageSize int32
}
