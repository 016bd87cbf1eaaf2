package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ccpd/signboard/internal/fault"
)

// Fetcher downloads a source document to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, url, dst string) error
}

// DefaultMaxFetchBytes caps downloaded documents.
const DefaultMaxFetchBytes int64 = 200 << 20

// HTTPFetcher downloads over HTTP with a size cap.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

// NewHTTPFetcher returns a fetcher with the given timeout and size cap.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFetchBytes
	}
	return &HTTPFetcher{
		Client:   &http.Client{Timeout: timeout},
		MaxBytes: maxBytes,
	}
}

// Fetch writes the body of url to dst.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fault.Wrap(fault.ErrInvalidInput, "fetch", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fault.Wrap(fault.ErrIO, "fetch "+url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fault.New(fault.ErrIO, "fetch "+url, "unexpected status %d", resp.StatusCode)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fault.Wrap(fault.ErrIO, "fetch create", err)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxFetchBytes
	}
	n, err := io.Copy(out, io.LimitReader(resp.Body, limit+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fault.Wrap(fault.ErrIO, "fetch write", err)
	}
	if n > limit {
		return fault.Wrap(fault.ErrInvalidInput, "fetch "+url, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit))
	}
	return nil
}
