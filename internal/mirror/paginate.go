package mirror

import (
	"context"

	"github.com/asad/blobmirror/internal/storage"
)

// Paginate calls list with an empty marker and then with each returned continuation marker
// until a page comes back without one. It returns the entries for which keep returns true, in
// page order. A nil keep keeps everything.
//
// The first failing call aborts the enumeration and nothing is returned.
func Paginate[T any](ctx context.Context, list func(ctx context.Context, marker string) (storage.Page[T], error), keep func(T) bool) ([]T, error) {
	var (
		out    []T
		marker string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := list(ctx, marker)
		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if keep == nil || keep(item) {
				out = append(out, item)
			}
		}

		if page.NextMarker == "" {
			return out, nil
		}
		if page.NextMarker == marker {
			return nil, storage.Errorf(storage.KindTransport, "paginate",
				"listing returned the continuation marker %q it was called with", marker)
		}
		marker = page.NextMarker
	}
}
