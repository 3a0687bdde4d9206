// Package mirror lists the containers and blobs of a storage account and copies the selected
// blobs into a local directory tree, one at a time, restoring their last-modified times.
package mirror

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/asad/blobmirror/internal/filter"
	"github.com/asad/blobmirror/internal/storage"
)

// Options selects what a run mirrors.
type Options struct {
	// Containers filters container names. The zero pattern keeps all containers.
	Containers filter.Pattern

	// Blobs filters blob names. The zero pattern keeps all blobs.
	Blobs filter.Pattern

	// Dates keeps blobs whose last-modified time lies in the inclusive range.
	Dates filter.DateRange

	// IncludeSnapshots also mirrors blob snapshots, each to its own file.
	IncludeSnapshots bool

	// PageSize is passed to the backend as the listing page size. Zero uses the backend default.
	PageSize int32
}

// Summary reports what a run did.
type Summary struct {
	Containers int
	Blobs      int
	Bytes      int64
	Duration   time.Duration
}

// Mirror runs the listing and download pipeline against one account.
type Mirror struct {
	account  storage.Account
	fs       afero.Fs
	root     string
	opts     Options
	observer Observer
	executor *Executor
}

// New creates a Mirror that writes below root on fs.
func New(account storage.Account, fs afero.Fs, root string, opts Options, observer Observer) *Mirror {
	if observer == nil {
		observer = Observers(nil)
	}
	return &Mirror{
		account:  account,
		fs:       fs,
		root:     root,
		opts:     opts,
		observer: observer,
		executor: NewExecutor(account, fs, root, observer),
	}
}

// ListContainers returns every container whose name matches the container pattern.
func (m *Mirror) ListContainers(ctx context.Context) ([]storage.Container, error) {
	return Paginate(ctx, m.account.ListContainers, func(c storage.Container) bool {
		return m.opts.Containers.Match(c.Name)
	})
}

// ListBlobs returns every blob in container that matches the blob pattern and the date range.
func (m *Mirror) ListBlobs(ctx context.Context, container string) ([]storage.Blob, error) {
	listOpts := storage.ListOptions{
		IncludeSnapshots: m.opts.IncludeSnapshots,
		PageSize:         m.opts.PageSize,
	}
	list := func(ctx context.Context, marker string) (storage.Page[storage.Blob], error) {
		return m.account.ListBlobs(ctx, container, marker, listOpts)
	}
	return Paginate(ctx, list, m.keepBlob)
}

func (m *Mirror) keepBlob(b storage.Blob) bool {
	if b.IsSnapshot() && !m.opts.IncludeSnapshots {
		return false
	}
	return m.opts.Blobs.Match(b.Name) && m.opts.Dates.Contains(b.LastModified)
}

// EnsureDirectory makes sure the local directory for container exists and returns its path.
// Stat errors other than not-exist are returned instead of being treated as absence.
func (m *Mirror) EnsureDirectory(container string) (string, error) {
	dir := filepath.Join(m.root, Sanitize(container))
	op := "ensure directory " + dir

	info, err := m.fs.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return "", storage.Errorf(storage.KindFilesystem, op, "%s exists and is not a directory", dir)
		}
	case os.IsNotExist(err):
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			return "", storage.NewError(storage.KindFilesystem, op, err)
		}
	default:
		return "", storage.NewError(storage.KindFilesystem, op, err)
	}

	if _, err := RemoveStaleTempFiles(m.fs, dir); err != nil {
		return "", err
	}
	return dir, nil
}

// Run mirrors the account. Containers are listed first; then each container in order gets its
// directory, its complete filtered blob list, and its downloads before the next one starts.
// The first error stops the run.
func (m *Mirror) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum, err := m.run(ctx)
	sum.Duration = time.Since(start)

	if err != nil {
		m.observer.Observe(Event{Kind: EventFailed, Count: sum.Blobs, Bytes: sum.Bytes, Duration: sum.Duration, Err: err})
		return sum, err
	}
	m.observer.Observe(Event{Kind: EventCompleted, Count: sum.Blobs, Bytes: sum.Bytes, Duration: sum.Duration})
	return sum, nil
}

func (m *Mirror) run(ctx context.Context) (Summary, error) {
	var sum Summary

	m.observer.Observe(Event{Kind: EventListingContainers})
	containers, err := m.ListContainers(ctx)
	if err != nil {
		return sum, err
	}
	m.observer.Observe(Event{Kind: EventContainersListed, Count: len(containers)})

	for _, c := range containers {
		if _, err := m.EnsureDirectory(c.Name); err != nil {
			return sum, err
		}

		m.observer.Observe(Event{Kind: EventListingBlobs, Container: c.Name})
		blobs, err := m.ListBlobs(ctx, c.Name)
		if err != nil {
			return sum, err
		}
		m.observer.Observe(Event{Kind: EventBlobsListed, Container: c.Name, Count: len(blobs)})

		done, err := m.executor.Mirror(ctx, AssignPaths(blobs))
		sum.Blobs += done.Blobs
		sum.Bytes += done.Bytes
		if err != nil {
			return sum, err
		}
		sum.Containers++
	}
	return sum, nil
}

// Plan lists everything a run would mirror without touching the filesystem.
func (m *Mirror) Plan(ctx context.Context) ([]Item, error) {
	m.observer.Observe(Event{Kind: EventListingContainers})
	containers, err := m.ListContainers(ctx)
	if err != nil {
		return nil, err
	}
	m.observer.Observe(Event{Kind: EventContainersListed, Count: len(containers)})

	var items []Item
	for _, c := range containers {
		m.observer.Observe(Event{Kind: EventListingBlobs, Container: c.Name})
		blobs, err := m.ListBlobs(ctx, c.Name)
		if err != nil {
			return nil, err
		}
		m.observer.Observe(Event{Kind: EventBlobsListed, Container: c.Name, Count: len(blobs)})
		items = append(items, AssignPaths(blobs)...)
	}
	return items, nil
}
