// Package remote defines the capability interface for remote folder/file
// stores that hold rasterized pages and uploaded media.
//
// Logical paths are slash-delimited and resolved lazily by each backend.
// Existence and kind are always queried, never assumed. Every provider
// failure is reported as fault.ErrRemoteStore; no operation retries.
package remote

import (
	"context"
	"strings"
)

// Kind is the type of entry a logical path resolves to.
type Kind int

const (
	KindNone Kind = iota
	KindFile
	KindFolder
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	default:
		return "none"
	}
}

// PathInfo describes what a logical path resolved to.
type PathInfo struct {
	Exists bool
	Kind   Kind
}

// NotFound is the PathInfo for a path with a missing segment.
var NotFound = PathInfo{Exists: false, Kind: KindNone}

// Folder is a resolved remote folder.
type Folder struct {
	// ID is the backend identifier (Drive file id, or a relative path).
	ID string
	// Path is the logical path the folder was resolved from.
	Path string
}

// Store is implemented by every remote backend.
type Store interface {
	// PathInfo resolves path one segment at a time. A missing segment yields
	// NotFound with a nil error.
	PathInfo(ctx context.Context, path string) (PathInfo, error)

	// ListFolder returns public URLs of the non-folder children of path in
	// natural name order. A missing folder yields an empty slice.
	ListFolder(ctx context.Context, path string) ([]string, error)

	// CreateFolder resolves path, creating missing segments in order.
	CreateFolder(ctx context.Context, path string) (Folder, error)

	// Upload stores localFile as name inside folder and returns its public
	// URL. If name already exists in folder its URL is returned and nothing
	// is uploaded.
	Upload(ctx context.Context, localFile, name string, folder Folder) (string, error)
}

// Segments splits a logical path into its non-empty segments.
func Segments(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || p == "." {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Join builds a logical path from segments.
func Join(segments ...string) string {
	return strings.Join(Segments(strings.Join(segments, "/")), "/")
}
