package blob

import "time"

// ContainerInfo is a container entry in a listing response.
type ContainerInfo struct {
	Name         string    `json:"Name"`
	LastModified time.Time `json:"LastModified"`
}

// ContainerListResult is the response of GET /mirror/.
type ContainerListResult struct {
	Containers []ContainerInfo `json:"Containers"`

	// Marker echoes the continuation token of the request.
	Marker string `json:"Marker,omitempty"`

	// NextMarker is the token for the next page. Empty on the last page.
	NextMarker string `json:"NextMarker,omitempty"`
}

// BlobListResult represents the result of listing blobs in a container.
// It follows the shape of Azure's ListBlobs response.
type BlobListResult struct {
	Container string     `json:"Container"`
	Blobs     []BlobInfo `json:"Blobs"`

	// Marker is the continuation token the page was requested with.
	Marker string `json:"Marker,omitempty"`

	// NextMarker is the token for the next page. Empty on the last page.
	NextMarker string `json:"NextMarker,omitempty"`

	// MaxResults is the page size requested, if any.
	MaxResults int `json:"MaxResults,omitempty"`
}

// BlobInfo is the metadata of one blob in a listing.
type BlobInfo struct {
	Name         string    `json:"Name"`
	Size         int64     `json:"ContentLength"`
	LastModified time.Time `json:"LastModified"`
}
