package mirror

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/asad/blobmirror/internal/storage"
)

// reservedPrefix starts the names of in-flight downloads. No mirrored file name starts with it.
const reservedPrefix = ".blobmirror-"

var separatorReplacer = strings.NewReplacer("/", "-", "\\", "-", ":", "-")

// Sanitize maps a remote name to a single file name segment.
// Path separators and colons become '-', and the result is never "", "." or "..".
// Names that would start with the temp-file prefix get a leading '-'.
func Sanitize(name string) string {
	switch name {
	case "", ".":
		return "-"
	case "..":
		return "--"
	}
	s := separatorReplacer.Replace(name)
	if strings.HasPrefix(s, reservedPrefix) {
		s = "-" + s
	}
	return s
}

// FileName returns the sanitized file name for a blob within its container directory.
// Snapshots get a " (<snapshot>)" suffix before sanitizing.
func FileName(b storage.Blob) string {
	name := b.Name
	if b.IsSnapshot() {
		name += " (" + b.Snapshot + ")"
	}
	return Sanitize(name)
}

// LocalPath returns the path of b relative to the mirror root.
func LocalPath(b storage.Blob) string {
	return filepath.Join(Sanitize(b.Container), FileName(b))
}

// Item is a blob paired with the relative path it is mirrored to.
type Item struct {
	Blob storage.Blob
	Path string
}

// AssignPaths maps blobs to relative paths, preserving order.
//
// Distinct blobs whose sanitized paths coincide, compared case-insensitively, all get a
// "~<hash of key>" suffix so every key ends up with its own file. Case folding applies on
// case-sensitive filesystems too: "README" and "readme" in one container both leave the plain
// container/name path, so the tree is identical wherever it is written.
func AssignPaths(blobs []storage.Blob) []Item {
	items := make([]Item, len(blobs))
	claims := make(map[string]map[string]struct{}, len(blobs))
	for i, b := range blobs {
		p := LocalPath(b)
		items[i] = Item{Blob: b, Path: p}

		fold := strings.ToLower(p)
		if claims[fold] == nil {
			claims[fold] = make(map[string]struct{}, 1)
		}
		claims[fold][b.Key()] = struct{}{}
	}

	for i := range items {
		if len(claims[strings.ToLower(items[i].Path)]) > 1 {
			items[i].Path = fmt.Sprintf("%s~%016x", items[i].Path, xxhash.Sum64String(items[i].Blob.Key()))
		}
	}
	return items
}
