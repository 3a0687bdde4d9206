package mirror

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/asad/blobmirror/internal/storage"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain.txt", "plain.txt"},
		{"a/b\\c", "a-b-c"},
		{"2024/01/02/log.json", "2024-01-02-log.json"},
		{"c:\\temp", "c--temp"},
		{"", "-"},
		{".", "-"},
		{"..", "--"},
		{"../escape", "..-escape"},
		{".blobmirror-2023.part", "-.blobmirror-2023.part"},
		{".blobmirror-x", "-.blobmirror-x"},
		{"dir/.blobmirror-x", "dir-.blobmirror-x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Sanitize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "/")
			assert.NotContains(t, got, "\\")
		})
	}
}

func TestFileName_Snapshot(t *testing.T) {
	b := storage.Blob{Container: "logs", Name: "dir/app.log", Snapshot: "2024-01-02T03:04:05.0000000Z"}
	assert.Equal(t, "dir-app.log (2024-01-02T03-04-05.0000000Z)", FileName(b))
	assert.Equal(t, filepath.Join("logs", "dir-app.log (2024-01-02T03-04-05.0000000Z)"), LocalPath(b))

	b.Snapshot = ""
	assert.Equal(t, filepath.Join("logs", "dir-app.log"), LocalPath(b))
}

func TestLocalPath_StaysInsideContainer(t *testing.T) {
	for _, name := range []string{"../../etc/passwd", "..", "/abs/path", "..\\..\\x"} {
		p := LocalPath(storage.Blob{Container: "c", Name: name})
		assert.Equal(t, "c", filepath.Dir(p), name)
	}
}

func TestAssignPaths_UniquePerKey(t *testing.T) {
	blobs := []storage.Blob{
		{Container: "c", Name: "a/b"},
		{Container: "c", Name: "a\\b"},
		{Container: "c", Name: "a-b"},
		{Container: "c", Name: "A-B"},
		{Container: "c", Name: "other"},
		{Container: "c", Name: "other", Snapshot: "s1"},
	}

	items := AssignPaths(blobs)
	seen := make(map[string]string)
	for i, it := range items {
		assert.Equal(t, blobs[i], it.Blob, "order must be preserved")
		fold := strings.ToLower(it.Path)
		if prev, ok := seen[fold]; ok {
			t.Fatalf("%q and %q both map to %q", prev, it.Blob.Key(), it.Path)
		}
		seen[fold] = it.Blob.Key()
	}

	// Names without a collision keep their plain sanitized path.
	assert.Equal(t, filepath.Join("c", "other"), items[4].Path)
	assert.Equal(t, filepath.Join("c", "other (s1)"), items[5].Path)
	assert.True(t, strings.HasPrefix(items[0].Path, filepath.Join("c", "a-b")+"~"))
}

func TestAssignPaths_Deterministic(t *testing.T) {
	blobs := []storage.Blob{{Container: "c", Name: "x/y"}, {Container: "c", Name: "x-y"}}
	first := AssignPaths(blobs)
	second := AssignPaths([]storage.Blob{blobs[1], blobs[0]})

	assert.Equal(t, first[0].Path, second[1].Path)
	assert.Equal(t, first[1].Path, second[0].Path)
}
