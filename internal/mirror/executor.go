package mirror

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/asad/blobmirror/internal/storage"
)

// tempPattern names in-flight downloads. Files matching it are partial and safe to delete.
const tempPattern = reservedPrefix + "*.part"

// Executor downloads planned items one at a time and restores their timestamps.
type Executor struct {
	account  storage.Account
	fs       afero.Fs
	root     string
	observer Observer
}

// NewExecutor creates an executor writing below root on fs.
func NewExecutor(account storage.Account, fs afero.Fs, root string, observer Observer) *Executor {
	if observer == nil {
		observer = Observers(nil)
	}
	return &Executor{account: account, fs: fs, root: root, observer: observer}
}

// Mirror downloads items in order. It stops at the first failure; the returned summary counts
// only the items that were fully written before it.
func (e *Executor) Mirror(ctx context.Context, items []Item) (Summary, error) {
	var sum Summary
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		e.observer.Observe(Event{
			Kind:      EventDownloading,
			Container: item.Blob.Container,
			Blob:      item.Blob.Name,
			Snapshot:  item.Blob.Snapshot,
			Path:      item.Path,
		})

		start := time.Now()
		n, err := e.mirrorOne(ctx, item)
		if err != nil {
			return sum, err
		}
		sum.Blobs++
		sum.Bytes += n

		e.observer.Observe(Event{
			Kind:      EventDownloaded,
			Container: item.Blob.Container,
			Blob:      item.Blob.Name,
			Snapshot:  item.Blob.Snapshot,
			Path:      item.Path,
			Bytes:     n,
			Duration:  time.Since(start),
		})
	}
	return sum, nil
}

// mirrorOne streams the blob into a temporary file next to the target, renames it over the
// target, checks the result and sets its access and modification times.
func (e *Executor) mirrorOne(ctx context.Context, item Item) (int64, error) {
	target := filepath.Join(e.root, item.Path)
	op := "mirror " + item.Path

	body, err := e.account.OpenBlob(ctx, item.Blob)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	tmp, err := afero.TempFile(e.fs, filepath.Dir(target), tempPattern)
	if err != nil {
		return 0, storage.NewError(storage.KindFilesystem, op, err)
	}
	tmpName := tmp.Name()

	_, copyErr := io.Copy(tmp, &contextReader{ctx: ctx, r: body})
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = e.fs.Remove(tmpName)
		if copyErr != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, storage.NewError(storage.KindTransport, op, copyErr)
		}
		return 0, storage.NewError(storage.KindFilesystem, op, closeErr)
	}

	if err := e.fs.Rename(tmpName, target); err != nil {
		_ = e.fs.Remove(tmpName)
		return 0, storage.NewError(storage.KindFilesystem, op, err)
	}

	// Confirm the write landed before touching metadata.
	info, err := e.fs.Stat(target)
	if err != nil {
		return 0, storage.NewError(storage.KindFilesystem, op, err)
	}
	if !info.Mode().IsRegular() {
		return 0, storage.Errorf(storage.KindFilesystem, op, "%s is not a regular file", target)
	}
	if item.Blob.Size >= 0 && info.Size() != item.Blob.Size {
		return 0, storage.Errorf(storage.KindTransport, op,
			"wrote %d bytes, listing reported %d", info.Size(), item.Blob.Size)
	}

	mtime := item.Blob.LastModified
	if err := e.fs.Chtimes(target, mtime, mtime); err != nil {
		return 0, storage.NewError(storage.KindFilesystem, op, err)
	}
	return info.Size(), nil
}

// isTempFile reports whether name looks like an in-flight download left by the executor.
func isTempFile(name string) bool {
	ok, _ := filepath.Match(tempPattern, filepath.Base(name))
	return ok
}

// RemoveStaleTempFiles deletes partial downloads left in dir by an interrupted run.
func RemoveStaleTempFiles(fs afero.Fs, dir string) (int, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, storage.NewError(storage.KindFilesystem, "scan "+dir, err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !isTempFile(entry.Name()) {
			continue
		}
		if err := fs.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, storage.NewError(storage.KindFilesystem, "remove "+entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
