// Package local implements storage.Account over a directory tree.
//
// The root holds one directory per container; every regular file below a container directory is
// a blob whose name is its slash-separated path relative to the container. This reads both a
// blobmirror output tree and the data directory of a file-backed blob emulator.
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/asad/blobmirror/internal/storage"
)

// DefaultPageSize matches the Azure listing default.
const DefaultPageSize = 5000

// Store is a read-only directory-backed account. It has no snapshots.
type Store struct {
	fs      afero.Fs
	baseDir string
}

// NewStore opens the account rooted at baseDir. baseDir must be an existing directory.
func NewStore(fs afero.Fs, baseDir string) (*Store, error) {
	info, err := fs.Stat(baseDir)
	if err != nil {
		return nil, storage.NewError(storage.KindFilesystem, "open store "+baseDir, err)
	}
	if !info.IsDir() {
		return nil, storage.Errorf(storage.KindFilesystem, "open store "+baseDir, "not a directory")
	}
	return &Store{fs: fs, baseDir: baseDir}, nil
}

// containerPath returns the filesystem path for a container.
func (s *Store) containerPath(containerName string) (string, error) {
	if containerName == "" || containerName == "." || containerName == ".." || strings.ContainsAny(containerName, `/\`) {
		return "", storage.Errorf(storage.KindNotFound, "resolve container", "invalid container name %q", containerName)
	}
	return filepath.Join(s.baseDir, containerName), nil
}

// blobPath returns the filesystem path for a blob, refusing names that leave the container.
func (s *Store) blobPath(containerName, blobName string) (string, error) {
	dir, err := s.containerPath(containerName)
	if err != nil {
		return "", err
	}
	if blobName == "" {
		return "", storage.Errorf(storage.KindNotFound, "resolve blob", "empty blob name")
	}
	for _, seg := range strings.Split(blobName, "/") {
		if seg == ".." {
			return "", storage.Errorf(storage.KindNotFound, "resolve blob", "invalid blob name %q", blobName)
		}
	}
	return filepath.Join(dir, filepath.FromSlash(blobName)), nil
}

func (s *Store) ListContainers(ctx context.Context, marker string) (storage.Page[storage.Container], error) {
	entries, err := afero.ReadDir(s.fs, s.baseDir)
	if err != nil {
		return storage.Page[storage.Container]{}, storage.NewError(storage.KindFilesystem, "list containers", err)
	}

	var containers []storage.Container
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		containers = append(containers, storage.Container{Name: e.Name(), LastModified: e.ModTime().UTC()})
	}
	sort.Slice(containers, func(i, j int) bool { return containers[i].Name < containers[j].Name })

	return paginate(containers, marker, DefaultPageSize, func(c storage.Container) string { return c.Name }), nil
}

func (s *Store) ListBlobs(ctx context.Context, containerName, marker string, opts storage.ListOptions) (storage.Page[storage.Blob], error) {
	op := "list blobs in " + containerName
	dir, err := s.containerPath(containerName)
	if err != nil {
		return storage.Page[storage.Blob]{}, err
	}
	if _, err := s.fs.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return storage.Page[storage.Blob]{}, storage.Errorf(storage.KindNotFound, op, "container %s does not exist", containerName)
		}
		return storage.Page[storage.Blob]{}, storage.NewError(storage.KindFilesystem, op, err)
	}

	var blobs []storage.Blob
	err = afero.Walk(s.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || !info.Mode().IsRegular() || strings.HasPrefix(info.Name(), ".blobmirror-") {
			return nil
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		blobs = append(blobs, storage.Blob{
			Container:    containerName,
			Name:         filepath.ToSlash(relPath),
			LastModified: info.ModTime().UTC(),
			Size:         info.Size(),
		})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return storage.Page[storage.Blob]{}, ctx.Err()
		}
		return storage.Page[storage.Blob]{}, storage.NewError(storage.KindFilesystem, op, err)
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Name < blobs[j].Name })

	size := DefaultPageSize
	if opts.PageSize > 0 {
		size = int(opts.PageSize)
	}
	return paginate(blobs, marker, size, func(b storage.Blob) string { return b.Name }), nil
}

// Blob returns the descriptor of a single blob.
func (s *Store) Blob(ctx context.Context, containerName, blobName string) (storage.Blob, error) {
	path, err := s.blobPath(containerName, blobName)
	if err != nil {
		return storage.Blob{}, err
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return storage.Blob{}, storage.Errorf(storage.KindNotFound, "stat blob", "blob %s does not exist", blobName)
		}
		return storage.Blob{}, storage.NewError(storage.KindFilesystem, "stat blob "+blobName, err)
	}
	if info.IsDir() {
		return storage.Blob{}, storage.Errorf(storage.KindNotFound, "stat blob", "blob %s does not exist", blobName)
	}
	return storage.Blob{
		Container:    containerName,
		Name:         blobName,
		LastModified: info.ModTime().UTC(),
		Size:         info.Size(),
	}, nil
}

func (s *Store) OpenBlob(ctx context.Context, b storage.Blob) (io.ReadCloser, error) {
	if b.IsSnapshot() {
		return nil, storage.Errorf(storage.KindNotFound, "open blob", "local store has no snapshot %s of %s", b.Snapshot, b.Name)
	}
	path, err := s.blobPath(b.Container, b.Name)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.Errorf(storage.KindNotFound, "open blob", "blob %s does not exist", b.Name)
		}
		return nil, storage.NewError(storage.KindFilesystem, "open blob "+b.Name, err)
	}
	return f, nil
}

// paginate returns the page of sorted items that starts at the first item whose key is >= marker.
// The next marker is the key of the first item after the page.
func paginate[T any](items []T, marker string, size int, key func(T) string) storage.Page[T] {
	start := sort.Search(len(items), func(i int) bool { return key(items[i]) >= marker })
	end := start + size
	if end >= len(items) {
		return storage.Page[T]{Items: items[start:]}
	}
	return storage.Page[T]{Items: items[start:end], NextMarker: key(items[end])}
}

var _ storage.Account = (*Store)(nil)
