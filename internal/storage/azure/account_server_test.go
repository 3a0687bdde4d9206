package azure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asad/blobmirror/internal/storage"
)

const (
	testAccount  = "devstoreaccount1"
	testSnapshot = "2024-01-01T00:00:00.0000000Z"
	lastModified = "Tue, 02 Jan 2024 03:04:05 GMT"
)

// blobServer is a minimal blob endpoint that records every request it receives.
type blobServer struct {
	mu       sync.Mutex
	requests []*url.URL

	handler http.HandlerFunc
}

func (s *blobServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u := *r.URL
	s.requests = append(s.requests, &u)
	s.mu.Unlock()
	s.handler(w, r)
}

func (s *blobServer) calls() []*url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*url.URL(nil), s.requests...)
}

// setupTestAccount starts a server running handler and an Account pointed at it.
func setupTestAccount(t *testing.T, pageSize int32, handler http.HandlerFunc) (*Account, *blobServer) {
	t.Helper()
	srv := &blobServer{handler: handler}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	acc, err := NewAccount(Config{
		AccountName: testAccount,
		AccountKey:  azuriteKey,
		Endpoint:    ts.URL + "/" + testAccount,
		PageSize:    pageSize,
	})
	require.NoError(t, err)
	return acc, srv
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?>`+body)
}

func writeServiceError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("x-ms-error-code", code)
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><Error><Code>%s</Code><Message>test</Message></Error>`, code)
}

func TestAccount_ListContainersSeedsMarker(t *testing.T) {
	acc, srv := setupTestAccount(t, 2, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("marker") {
		case "":
			writeXML(w, `<EnumerationResults><Containers>`+
				`<Container><Name>images</Name><Properties><Last-Modified>`+lastModified+`</Last-Modified></Properties></Container>`+
				`<Container><Name>logs</Name><Properties><Last-Modified>`+lastModified+`</Last-Modified></Properties></Container>`+
				`</Containers><NextMarker>M2</NextMarker></EnumerationResults>`)
		case "M2":
			writeXML(w, `<EnumerationResults><Containers>`+
				`<Container><Name>zeta</Name><Properties><Last-Modified>`+lastModified+`</Last-Modified></Properties></Container>`+
				`</Containers><NextMarker/></EnumerationResults>`)
		default:
			writeServiceError(w, http.StatusBadRequest, "InvalidQueryParameterValue")
		}
	})
	ctx := context.Background()

	first, err := acc.ListContainers(ctx, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, "images", first.Items[0].Name)
	assert.True(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Equal(first.Items[0].LastModified))
	assert.Equal(t, "M2", first.NextMarker)

	second, err := acc.ListContainers(ctx, first.NextMarker)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "zeta", second.Items[0].Name)
	assert.Empty(t, second.NextMarker)

	calls := srv.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/"+testAccount+"/", calls[0].Path)
	assert.Equal(t, "list", calls[0].Query().Get("comp"))
	assert.Equal(t, "2", calls[0].Query().Get("maxresults"))
	assert.False(t, calls[0].Query().Has("marker"))
	assert.Equal(t, "M2", calls[1].Query().Get("marker"))
}

func TestAccount_ListBlobsPagingAndSnapshots(t *testing.T) {
	acc, srv := setupTestAccount(t, 0, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("marker") {
		case "":
			writeXML(w, `<EnumerationResults ContainerName="c"><Blobs>`+
				`<Blob><Name>a/b</Name><Snapshot>`+testSnapshot+`</Snapshot><Properties>`+
				`<Last-Modified>`+lastModified+`</Last-Modified><Content-Length>3</Content-Length></Properties></Blob>`+
				`<Blob><Name>a/b</Name><Properties>`+
				`<Last-Modified>`+lastModified+`</Last-Modified><Content-Length>4</Content-Length></Properties></Blob>`+
				`</Blobs><NextMarker>M2</NextMarker></EnumerationResults>`)
		default:
			writeXML(w, `<EnumerationResults ContainerName="c"><Blobs>`+
				`<Blob><Name>z</Name><Properties><Last-Modified>`+lastModified+`</Last-Modified></Properties></Blob>`+
				`</Blobs><NextMarker/></EnumerationResults>`)
		}
	})
	ctx := context.Background()

	first, err := acc.ListBlobs(ctx, "c", "", storage.ListOptions{IncludeSnapshots: true, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, storage.Blob{
		Container:    "c",
		Name:         "a/b",
		Snapshot:     testSnapshot,
		LastModified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Size:         3,
	}, first.Items[0])
	assert.False(t, first.Items[1].IsSnapshot())
	assert.Equal(t, "M2", first.NextMarker)

	second, err := acc.ListBlobs(ctx, "c", "M2", storage.ListOptions{})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, int64(-1), second.Items[0].Size)
	assert.Empty(t, second.NextMarker)

	calls := srv.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/"+testAccount+"/c", calls[0].Path)
	assert.Equal(t, "container", calls[0].Query().Get("restype"))
	assert.Equal(t, "list", calls[0].Query().Get("comp"))
	assert.Contains(t, calls[0].Query().Get("include"), "snapshots")
	assert.Equal(t, "2", calls[0].Query().Get("maxresults"))
	assert.False(t, calls[0].Query().Has("marker"))

	assert.Equal(t, "M2", calls[1].Query().Get("marker"))
	assert.NotContains(t, calls[1].Query().Get("include"), "snapshots")
	assert.False(t, calls[1].Query().Has("maxresults"))
}

func TestAccount_OpenBlob(t *testing.T) {
	acc, srv := setupTestAccount(t, 0, func(w http.ResponseWriter, r *http.Request) {
		body := "current"
		if r.URL.Query().Get("snapshot") != "" {
			body = "abc"
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		w.Header().Set("Last-Modified", lastModified)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, body)
	})
	ctx := context.Background()

	read := func(b storage.Blob) string {
		rc, err := acc.OpenBlob(ctx, b)
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(data)
	}

	assert.Equal(t, "abc", read(storage.Blob{Container: "c", Name: "a/b", Snapshot: testSnapshot}))
	assert.Equal(t, "current", read(storage.Blob{Container: "c", Name: "a/b"}))

	calls := srv.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/"+testAccount+"/c/a/b", calls[0].Path)
	assert.Equal(t, testSnapshot, calls[0].Query().Get("snapshot"))
	assert.False(t, calls[1].Query().Has("snapshot"))
}

func TestAccount_ErrorsAreClassifiedWithoutRetry(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   storage.Kind
	}{
		{"server error", http.StatusInternalServerError, "InternalError", storage.KindTransport},
		{"forbidden", http.StatusForbidden, "AuthorizationFailure", storage.KindAuthentication},
		{"missing container", http.StatusNotFound, "ContainerNotFound", storage.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, srv := setupTestAccount(t, 0, func(w http.ResponseWriter, r *http.Request) {
				writeServiceError(w, tt.status, tt.code)
			})

			_, err := acc.ListBlobs(context.Background(), "c", "", storage.ListOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.want, storage.KindOf(err))
			assert.Len(t, srv.calls(), 1)
		})
	}
}
