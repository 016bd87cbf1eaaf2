package upload

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/ccpd/signboard/internal/fault"
	"github.com/ccpd/signboard/internal/remote"
)

// Observer is notified as uploads start and finish. It may be nil.
type Observer interface {
	UploadStarted()
	UploadFinished(err error)
}

// BoundedUploader uploads a batch of local files into one remote folder.
type BoundedUploader struct {
	store    remote.Store
	limit    int
	observer Observer
	logger   *slog.Logger
}

// Option configures a BoundedUploader.
type Option func(*BoundedUploader)

// WithObserver reports every upload to o.
func WithObserver(o Observer) Option {
	return func(u *BoundedUploader) { u.observer = o }
}

// WithLogger sets the logger used for per-file debug output.
func WithLogger(l *slog.Logger) Option {
	return func(u *BoundedUploader) { u.logger = l }
}

// New returns an uploader running at most limit uploads at once. A limit of
// zero or less selects DefaultLimit.
func New(store remote.Store, limit int, opts ...Option) *BoundedUploader {
	if limit <= 0 {
		limit = DefaultLimit
	}
	u := &BoundedUploader{store: store, limit: limit, logger: slog.Default()}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Limit returns the concurrency bound.
func (u *BoundedUploader) Limit() int {
	return u.limit
}

// UploadAll uploads each file under its base name into folder and returns
// the public URLs in the order of files.
func (u *BoundedUploader) UploadAll(ctx context.Context, files []string, folder remote.Folder) ([]string, error) {
	urls, err := Map(ctx, u.limit, files, func(ctx context.Context, path string) (string, error) {
		name := filepath.Base(path)
		if u.observer != nil {
			u.observer.UploadStarted()
		}
		url, err := u.store.Upload(ctx, path, name, folder)
		if u.observer != nil {
			u.observer.UploadFinished(err)
		}
		if err != nil {
			return "", err
		}
		u.logger.Debug("uploaded file", "name", name, "folder", folder.Path)
		return url, nil
	})
	if err != nil {
		return nil, fault.Wrap(fault.ErrUpload, "upload "+folder.Path, err)
	}
	return urls, nil
}
