package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ccpd/signboard/internal/fault"
	"github.com/ccpd/signboard/internal/raster"
	"github.com/ccpd/signboard/internal/remote"
	"github.com/ccpd/signboard/internal/workspace"
)

// DefaultUploadsFolder holds uploaded images, named by digest.
const DefaultUploadsFolder = "uploads"

// Hasher computes content digests of local files.
type Hasher interface {
	Digest(path string) (string, error)
}

// Uploader uploads a batch of files into one remote folder, returning URLs
// in input order.
type Uploader interface {
	UploadAll(ctx context.Context, files []string, folder remote.Folder) ([]string, error)
}

// Observer receives pipeline measurements. Implementations must not block.
type Observer interface {
	DedupHit()
	DedupMiss()
	PagesRasterized(n int)
	AssembleFinished(d time.Duration, err error)
}

// Record describes one processed source document or image.
type Record struct {
	Digest   string
	Source   string
	Type     string
	Pages    int
	Reused   bool
	Duration time.Duration
	At       time.Time
}

// Recorder keeps a log of processed sources.
type Recorder interface {
	RecordIngest(ctx context.Context, rec Record) error
}

// Deps are the collaborators an Assembler needs. Fetcher, Inbox, Observer,
// Recorder and Logger are optional.
type Deps struct {
	Workspaces    *workspace.Manager
	Hasher        Hasher
	Rasterizer    raster.Rasterizer
	Store         remote.Store
	Dedup         *DedupResolver
	Uploader      Uploader
	Fetcher       Fetcher
	Inbox         *Inbox
	UploadsFolder string
	Observer      Observer
	Recorder      Recorder
	Logger        *slog.Logger
}

// Assembler builds playlists from raw items.
type Assembler struct {
	deps Deps
	now  func() time.Time

	// digests serializes resolve through upload per digest folder, so a
	// concurrent request never reads a folder another one is still filling.
	digests remote.KeyedMutex
}

// NewAssembler validates deps and returns an Assembler.
func NewAssembler(deps Deps) (*Assembler, error) {
	var missing []string
	if deps.Workspaces == nil {
		missing = append(missing, "workspaces")
	}
	if deps.Hasher == nil {
		missing = append(missing, "hasher")
	}
	if deps.Rasterizer == nil {
		missing = append(missing, "rasterizer")
	}
	if deps.Store == nil {
		missing = append(missing, "store")
	}
	if deps.Uploader == nil {
		missing = append(missing, "uploader")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("assembler: missing %s", strings.Join(missing, ", "))
	}
	if deps.Dedup == nil {
		deps.Dedup = NewDedupResolver(deps.Store, "")
	}
	if deps.UploadsFolder == "" {
		deps.UploadsFolder = DefaultUploadsFolder
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Assembler{deps: deps, now: time.Now}, nil
}

// Assemble validates raw, then processes its items in order. Images with a
// URL pass through unchanged; every PDF expands into one image item per
// page, each inheriting the PDF's duration. Any failure aborts the whole
// call and no playlist is returned. Inbox files referenced by raw are
// removed only once the playlist is complete, so a failed call can be
// retried with the same references.
func (a *Assembler) Assemble(ctx context.Context, raw []RawItem) (pl Playlist, err error) {
	start := a.now()
	if a.deps.Observer != nil {
		defer func() { a.deps.Observer.AssembleFinished(a.now().Sub(start), err) }()
	}

	items := make([]RawItem, len(raw))
	for i, item := range raw {
		items[i] = item.trimmed()
	}
	if err := Validate(items); err != nil {
		return nil, err
	}

	out := make(Playlist, 0, len(items))
	var refs []string
	for i, item := range items {
		media, err := a.process(ctx, item)
		if err != nil {
			a.deps.Logger.Warn("playlist assembly aborted", "item", i, "type", item.Type, "error", err)
			return nil, err
		}
		out = append(out, media...)
		if item.FileRef != "" {
			refs = append(refs, item.FileRef)
		}
	}
	if len(refs) > 0 && a.deps.Inbox != nil {
		if err := a.deps.Inbox.Discard(refs...); err != nil {
			a.deps.Logger.Warn("failed to clear inbox", "refs", len(refs), "error", err)
		}
	}

	a.deps.Logger.Info("playlist assembled", "items", len(raw), "media", len(out), "duration_ms", a.now().Sub(start).Milliseconds())
	return out, nil
}

func (a *Assembler) process(ctx context.Context, item RawItem) ([]MediaItem, error) {
	switch {
	case item.Type == TypeImage && item.FileRef == "":
		return []MediaItem{{Type: TypeImage, URL: item.URL, Duration: item.Duration}}, nil
	case item.Type == TypeImage:
		var url string
		err := a.deps.Workspaces.Scope(func(ws *workspace.Workspace) error {
			var err error
			url, err = a.storeImage(ctx, ws, item)
			return err
		})
		if err != nil {
			return nil, err
		}
		return []MediaItem{{Type: TypeImage, URL: url, Duration: item.Duration}}, nil
	default:
		var urls []string
		err := a.deps.Workspaces.Scope(func(ws *workspace.Workspace) error {
			var err error
			urls, err = a.expandPDF(ctx, ws, item)
			return err
		})
		if err != nil {
			return nil, err
		}
		pages := make([]MediaItem, len(urls))
		for i, u := range urls {
			pages[i] = MediaItem{Type: TypeImage, URL: u, Duration: item.Duration}
		}
		return pages, nil
	}
}

func (a *Assembler) expandPDF(ctx context.Context, ws *workspace.Workspace, item RawItem) ([]string, error) {
	started := a.now()
	src := ws.Path("source.pdf")
	if err := a.obtain(ctx, item, src); err != nil {
		return nil, err
	}

	digest, err := a.deps.Hasher.Digest(src)
	if err != nil {
		return nil, err
	}
	logger := a.deps.Logger.With("digest", digest)

	unlock := a.digests.Lock(a.deps.Dedup.FolderFor(digest))
	defer unlock()

	res, err := a.deps.Dedup.Resolve(ctx, digest)
	if err != nil {
		return nil, err
	}
	if res.Hit {
		a.observe(func(o Observer) { o.DedupHit() })
		logger.Info("reusing rasterized document", "pages", len(res.Reuse))
		a.record(ctx, Record{Digest: digest, Source: sourceOf(item), Type: TypePDF, Pages: len(res.Reuse), Reused: true, Duration: a.now().Sub(started)})
		return res.Reuse, nil
	}
	a.observe(func(o Observer) { o.DedupMiss() })

	pageDir := ws.Path("pages")
	if err := mkdir(pageDir); err != nil {
		return nil, err
	}
	pages, err := a.deps.Rasterizer.Rasterize(ctx, src, pageDir)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fault.New(fault.ErrConversion, "rasterize", "document produced no pages")
	}
	a.observe(func(o Observer) { o.PagesRasterized(len(pages)) })

	folder, err := a.deps.Store.CreateFolder(ctx, a.deps.Dedup.FolderFor(digest))
	if err != nil {
		return nil, err
	}
	urls, err := a.deps.Uploader.UploadAll(ctx, pages, folder)
	if err != nil {
		return nil, err
	}

	logger.Info("rasterized and uploaded document", "pages", len(urls), "folder", folder.Path)
	a.record(ctx, Record{Digest: digest, Source: sourceOf(item), Type: TypePDF, Pages: len(urls), Duration: a.now().Sub(started)})
	return urls, nil
}

func (a *Assembler) storeImage(ctx context.Context, ws *workspace.Workspace, item RawItem) (string, error) {
	started := a.now()
	ext := strings.ToLower(filepath.Ext(item.FileRef))
	src := ws.Path("source" + ext)
	if err := a.obtain(ctx, item, src); err != nil {
		return "", err
	}

	digest, err := a.deps.Hasher.Digest(src)
	if err != nil {
		return "", err
	}

	folder, err := a.deps.Store.CreateFolder(ctx, a.deps.UploadsFolder)
	if err != nil {
		return "", err
	}
	url, err := a.deps.Store.Upload(ctx, src, digest+ext, folder)
	if err != nil {
		return "", fault.Wrap(fault.ErrUpload, "upload image", err)
	}

	a.deps.Logger.Info("stored uploaded image", "digest", digest, "folder", folder.Path)
	a.record(ctx, Record{Digest: digest, Source: sourceOf(item), Type: TypeImage, Pages: 1, Duration: a.now().Sub(started)})
	return url, nil
}

// obtain places the item's source at dst, downloading a URL or copying a
// received upload out of the inbox.
func (a *Assembler) obtain(ctx context.Context, item RawItem, dst string) error {
	if item.FileRef != "" {
		if a.deps.Inbox == nil {
			return fault.New(fault.ErrInvalidInput, "obtain source", "file_ref given but no upload inbox is configured")
		}
		return a.deps.Inbox.CopyTo(item.FileRef, dst)
	}
	if a.deps.Fetcher == nil {
		return fault.New(fault.ErrInvalidInput, "obtain source", "url given but no fetcher is configured")
	}
	return a.deps.Fetcher.Fetch(ctx, item.URL, dst)
}

func (a *Assembler) observe(fn func(Observer)) {
	if a.deps.Observer != nil {
		fn(a.deps.Observer)
	}
}

// record appends to the ingest log. Failures are logged only.
func (a *Assembler) record(ctx context.Context, rec Record) {
	if a.deps.Recorder == nil {
		return
	}
	rec.At = a.now().UTC()
	if err := a.deps.Recorder.RecordIngest(ctx, rec); err != nil {
		a.deps.Logger.Warn("failed to record ingest", "digest", rec.Digest, "error", err)
	}
}

func sourceOf(item RawItem) string {
	if item.FileRef != "" {
		return "file_ref:" + item.FileRef
	}
	return item.URL
}

func mkdir(dir string) error {
	if err := os.Mkdir(dir, 0o700); err != nil && !errors.Is(err, fs.ErrExist) {
		return fault.Wrap(fault.ErrIO, "create page directory", err)
	}
	return nil
}
