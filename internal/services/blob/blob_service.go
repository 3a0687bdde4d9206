package blob

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/asad/blobmirror/internal/core"
	"github.com/asad/blobmirror/internal/logging"
	"github.com/asad/blobmirror/internal/storage"
)

// Store is what the browse service reads from. local.Store satisfies it.
type Store interface {
	storage.Account

	// Blob returns the descriptor of a single blob.
	Blob(ctx context.Context, container, name string) (storage.Blob, error)
}

// BlobService serves a read-only view of a mirror tree over HTTP.
type BlobService struct {
	store  Store
	logger logging.Logger
}

// NewBlobService creates a new blob service instance.
func NewBlobService(store Store, logger logging.Logger) *BlobService {
	return &BlobService{
		store:  store,
		logger: logger,
	}
}

// Name returns the service identifier.
func (s *BlobService) Name() string {
	return "mirror"
}

// RegisterRoutes sets up HTTP routes for browsing:
//   - GET / - List containers
//   - GET /{container}?marker=&maxresults= - List blobs
//   - GET /{container}/{blobName...} - Download blob
func (s *BlobService) RegisterRoutes(router chi.Router) {
	router.Get("/", s.handleListContainers)
	router.Get("/{container}", s.handleListBlobs)
	router.Get("/{container}/*", s.handleGetBlob)
}

// handleListContainers handles GET / to list containers.
func (s *BlobService) handleListContainers(w http.ResponseWriter, r *http.Request) {
	marker := r.URL.Query().Get("marker")

	page, err := s.store.ListContainers(r.Context(), marker)
	if err != nil {
		s.fail(w, err, "failed to list containers", "Failed to list containers")
		return
	}

	result := ContainerListResult{
		Containers: make([]ContainerInfo, 0, len(page.Items)),
		Marker:     marker,
		NextMarker: page.NextMarker,
	}
	for _, c := range page.Items {
		result.Containers = append(result.Containers, ContainerInfo{Name: c.Name, LastModified: c.LastModified})
	}
	s.writeJSON(w, result)
}

// handleListBlobs handles GET /{container} to list one page of blobs in a container.
func (s *BlobService) handleListBlobs(w http.ResponseWriter, r *http.Request) {
	containerName := chi.URLParam(r, "container")
	marker := r.URL.Query().Get("marker")

	maxResults := 0
	if v := r.URL.Query().Get("maxresults"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 5000 {
			s.writeError(w, http.StatusBadRequest, "InvalidQueryParameterValue", "maxresults must be between 1 and 5000")
			return
		}
		maxResults = n
	}

	page, err := s.store.ListBlobs(r.Context(), containerName, marker, storage.ListOptions{PageSize: int32(maxResults)})
	if err != nil {
		s.fail(w, err, "failed to list blobs", "Failed to list blobs", logging.String("container", containerName))
		return
	}

	result := BlobListResult{
		Container:  containerName,
		Blobs:      make([]BlobInfo, 0, len(page.Items)),
		Marker:     marker,
		NextMarker: page.NextMarker,
		MaxResults: maxResults,
	}
	for _, b := range page.Items {
		result.Blobs = append(result.Blobs, BlobInfo{Name: b.Name, Size: b.Size, LastModified: b.LastModified})
	}
	s.writeJSON(w, result)
}

// handleGetBlob handles GET /{container}/{blobName} to download a blob.
func (s *BlobService) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	containerName := chi.URLParam(r, "container")
	blobName := chi.URLParam(r, "*")

	if blobName == "" {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "Blob name is required")
		return
	}

	desc, err := s.store.Blob(r.Context(), containerName, blobName)
	if err != nil {
		s.fail(w, err, "failed to stat blob", "Failed to retrieve blob",
			logging.String("container", containerName), logging.String("blob", blobName))
		return
	}
	rc, err := s.store.OpenBlob(r.Context(), desc)
	if err != nil {
		s.fail(w, err, "failed to open blob", "Failed to retrieve blob",
			logging.String("container", containerName), logging.String("blob", blobName))
		return
	}
	defer rc.Close()

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path.Base(blobName), desc.LastModified, rs)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Last-Modified", desc.LastModified.UTC().Format(http.TimeFormat))
	if desc.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(desc.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("blob stream interrupted",
			logging.String("container", containerName),
			logging.String("blob", blobName),
			logging.ErrorField(err),
		)
	}
}

// fail maps a storage error to a response. Not-found kinds become 404, everything else 500.
func (s *BlobService) fail(w http.ResponseWriter, err error, logMsg, message string, fields ...logging.Field) {
	if storage.IsKind(err, storage.KindNotFound) {
		s.writeError(w, http.StatusNotFound, "NotFound", err.Error())
		return
	}
	s.logger.Error(logMsg, append(fields, logging.ErrorField(err))...)
	s.writeError(w, http.StatusInternalServerError, "InternalError", message)
}

func (s *BlobService) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response",
			logging.ErrorField(err),
		)
	}
}

// writeError writes an error response in a consistent format.
func (s *BlobService) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// Ensure BlobService implements the Service interface.
var _ core.Service = (*BlobService)(nil)
