package ingest

import (
	"context"
	"errors"

	"github.com/ccpd/signboard/internal/fault"
	"github.com/ccpd/signboard/internal/remote"
)

// DefaultFolderPrefix is the remote folder digests are grouped under.
const DefaultFolderPrefix = "slides"

// ErrDigestCollision reports a digest path that is occupied by a plain file.
var ErrDigestCollision = errors.New("digest folder path is occupied by a file")

// Resolution is the outcome of a dedup lookup.
type Resolution struct {
	// Hit is true when Reuse holds a previous upload of the same content.
	Hit   bool
	Reuse []string
}

// DedupResolver looks up previously processed documents by content digest.
type DedupResolver struct {
	store  remote.Store
	prefix string
}

// NewDedupResolver returns a resolver using folders under prefix. An empty
// prefix selects DefaultFolderPrefix.
func NewDedupResolver(store remote.Store, prefix string) *DedupResolver {
	if prefix == "" {
		prefix = DefaultFolderPrefix
	}
	return &DedupResolver{store: store, prefix: prefix}
}

// FolderFor returns the logical remote folder for digest. It depends on the
// content digest only.
func (d *DedupResolver) FolderFor(digest string) string {
	return remote.Join(d.prefix, digest)
}

// Resolve reports whether digest was already rasterized and uploaded.
//
// A folder with at least one file is a hit. A missing or empty folder is a
// miss; an empty folder is what an interrupted earlier run leaves behind and
// the upload step fills it in place. A plain file at the folder path is an
// error.
func (d *DedupResolver) Resolve(ctx context.Context, digest string) (Resolution, error) {
	folder := d.FolderFor(digest)

	info, err := d.store.PathInfo(ctx, folder)
	if err != nil {
		return Resolution{}, err
	}
	if !info.Exists {
		return Resolution{}, nil
	}
	if info.Kind != remote.KindFolder {
		return Resolution{}, fault.Wrap(fault.ErrRemoteStore, "resolve "+folder, ErrDigestCollision)
	}

	urls, err := d.store.ListFolder(ctx, folder)
	if err != nil {
		return Resolution{}, err
	}
	if len(urls) == 0 {
		return Resolution{}, nil
	}
	return Resolution{Hit: true, Reuse: urls}, nil
}
