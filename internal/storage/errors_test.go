package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_KindSurvivesWrapping(t *testing.T) {
	base := NewError(KindTransport, "list containers", errors.New("connection reset"))
	wrapped := fmt.Errorf("mirror run: %w", base)

	assert.Equal(t, KindTransport, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindTransport))
	assert.False(t, IsKind(wrapped, KindFilesystem))
	assert.Equal(t, "list containers: connection reset", base.Error())
}

func TestError_UnclassifiedIsUnknown(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, KindUnknown))
}

func TestErrorf(t *testing.T) {
	err := Errorf(KindNotFound, "open blob", "blob %s does not exist", "a.txt")
	require.Error(t, err)
	assert.Equal(t, "open blob: blob a.txt does not exist", err.Error())
	assert.Equal(t, "not found", err.Kind.String())
}

func TestBlob_Key(t *testing.T) {
	a := Blob{Container: "c", Name: "a", Snapshot: ""}
	b := Blob{Container: "c", Name: "a", Snapshot: "2024-01-01T00:00:00Z"}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.False(t, a.IsSnapshot())
	assert.True(t, b.IsSnapshot())
}
