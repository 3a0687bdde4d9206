package mirror

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/asad/blobmirror/internal/storage"
)

// fakeAccount is an in-memory storage.Account that pages its listings and can inject failures.
type fakeAccount struct {
	pageSize   int
	containers []string
	blobs      map[string][]fakeBlob

	failListBlobs map[string]error
	failOpen      map[string]error

	containerCalls []string
	blobCalls      []string
	opened         []string
}

type fakeBlob struct {
	storage.Blob
	content []byte
}

func newFakeAccount(pageSize int) *fakeAccount {
	return &fakeAccount{
		pageSize:      pageSize,
		blobs:         make(map[string][]fakeBlob),
		failListBlobs: make(map[string]error),
		failOpen:      make(map[string]error),
	}
}

func (f *fakeAccount) addBlob(container, name, snapshot, content string, modified time.Time) {
	if _, ok := f.blobs[container]; !ok {
		f.containers = append(f.containers, container)
		sort.Strings(f.containers)
	}
	f.blobs[container] = append(f.blobs[container], fakeBlob{
		Blob: storage.Blob{
			Container:    container,
			Name:         name,
			Snapshot:     snapshot,
			LastModified: modified,
			Size:         int64(len(content)),
		},
		content: []byte(content),
	})
}

func (f *fakeAccount) addContainer(name string) {
	if _, ok := f.blobs[name]; ok {
		return
	}
	f.blobs[name] = nil
	f.containers = append(f.containers, name)
	sort.Strings(f.containers)
}

// page slices items using the marker as a decimal offset.
func page[T any](items []T, marker string, size int) (storage.Page[T], error) {
	start := 0
	if marker != "" {
		n, err := strconv.Atoi(marker)
		if err != nil {
			return storage.Page[T]{}, errors.New("bad marker")
		}
		start = n
	}
	end := start + size
	if size <= 0 || end > len(items) {
		end = len(items)
	}
	p := storage.Page[T]{Items: append([]T(nil), items[start:end]...)}
	if end < len(items) {
		p.NextMarker = strconv.Itoa(end)
	}
	return p, nil
}

func (f *fakeAccount) ListContainers(_ context.Context, marker string) (storage.Page[storage.Container], error) {
	f.containerCalls = append(f.containerCalls, marker)
	cs := make([]storage.Container, len(f.containers))
	for i, name := range f.containers {
		cs[i] = storage.Container{Name: name}
	}
	return page(cs, marker, f.pageSize)
}

func (f *fakeAccount) ListBlobs(_ context.Context, container, marker string, opts storage.ListOptions) (storage.Page[storage.Blob], error) {
	f.blobCalls = append(f.blobCalls, container+"@"+marker)
	if err := f.failListBlobs[container]; err != nil {
		return storage.Page[storage.Blob]{}, err
	}
	var bs []storage.Blob
	for _, b := range f.blobs[container] {
		if b.IsSnapshot() && !opts.IncludeSnapshots {
			continue
		}
		bs = append(bs, b.Blob)
	}
	return page(bs, marker, f.pageSize)
}

func (f *fakeAccount) OpenBlob(_ context.Context, b storage.Blob) (io.ReadCloser, error) {
	f.opened = append(f.opened, b.Container+"/"+b.Name)
	if err := f.failOpen[b.Name]; err != nil {
		return nil, err
	}
	for _, fb := range f.blobs[b.Container] {
		if fb.Name == b.Name && fb.Snapshot == b.Snapshot {
			return io.NopCloser(bytes.NewReader(fb.content)), nil
		}
	}
	return nil, storage.Errorf(storage.KindNotFound, "open blob", "blob %s does not exist", b.Name)
}

// recorder collects events for assertions.
type recorder struct {
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}
