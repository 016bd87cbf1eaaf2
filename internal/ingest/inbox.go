package ingest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ccpd/signboard/internal/fault"
)

// allowedExt lists the extensions the inbox accepts.
var allowedExt = map[string]string{
	".pdf":  TypePDF,
	".png":  TypeImage,
	".jpg":  TypeImage,
	".jpeg": TypeImage,
	".gif":  TypeImage,
	".webp": TypeImage,
}

// ErrTooLarge is returned when an upload exceeds the inbox size cap.
var ErrTooLarge = errors.New("file exceeds size limit")

// Inbox holds files received through the upload route until a playlist
// references them. A reference is "<uuid><ext>".
type Inbox struct {
	dir      string
	maxBytes int64
}

// NewInbox returns an inbox in dir accepting files up to maxBytes. A
// maxBytes of zero disables the cap.
func NewInbox(dir string, maxBytes int64) (*Inbox, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("inbox directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox directory: %w", err)
	}
	return &Inbox{dir: filepath.Clean(dir), maxBytes: maxBytes}, nil
}

// Dir returns the inbox directory.
func (in *Inbox) Dir() string {
	return in.dir
}

// Save stores r under a new reference keeping the extension of name. It
// returns the reference and the item type implied by the extension.
func (in *Inbox) Save(r io.Reader, name string) (ref, kind string, err error) {
	ext := strings.ToLower(filepath.Ext(name))
	kind, ok := allowedExt[ext]
	if !ok {
		return "", "", fault.New(fault.ErrInvalidInput, "inbox save", "unsupported file extension %q", ext)
	}

	ref = uuid.NewString() + ext
	target := filepath.Join(in.dir, ref)

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", "", fault.Wrap(fault.ErrIO, "inbox create", err)
	}

	src := r
	if in.maxBytes > 0 {
		src = io.LimitReader(r, in.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && in.maxBytes > 0 && n > in.maxBytes {
		err = fault.Wrap(fault.ErrInvalidInput, "inbox save", ErrTooLarge)
	} else if err != nil {
		err = fault.Wrap(fault.ErrIO, "inbox write", err)
	}
	if err != nil {
		_ = os.Remove(target)
		return "", "", err
	}
	return ref, kind, nil
}

// CopyTo places the file behind ref at dst and leaves the inbox entry in
// place, so a failed assembly can be retried with the same reference. It
// hard-links when dst is on the same filesystem.
func (in *Inbox) CopyTo(ref, dst string) error {
	if err := checkRef(ref); err != nil {
		return fault.Wrap(fault.ErrInvalidInput, "inbox copy", err)
	}
	src := filepath.Join(in.dir, ref)
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return fault.New(fault.ErrInvalidInput, "inbox copy", "unknown file_ref %q", ref)
	} else if err != nil {
		return fault.Wrap(fault.ErrIO, "inbox stat", err)
	}

	if err := os.Link(src, dst); err == nil {
		return nil
	}
	return copyFile(src, dst)
}

// Discard removes the entries behind refs. Unknown references are ignored.
func (in *Inbox) Discard(refs ...string) error {
	var errs []error
	for _, ref := range refs {
		if err := checkRef(ref); err != nil {
			continue
		}
		err := os.Remove(filepath.Join(in.dir, ref))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fault.Wrap(fault.ErrIO, "inbox discard", err)
	}
	return nil
}

func checkRef(ref string) error {
	ext := strings.ToLower(filepath.Ext(ref))
	if _, ok := allowedExt[ext]; !ok {
		return fmt.Errorf("file_ref %q has unsupported extension", ref)
	}
	if _, err := uuid.Parse(strings.TrimSuffix(ref, filepath.Ext(ref))); err != nil {
		return fmt.Errorf("file_ref %q is not a valid reference", ref)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fault.Wrap(fault.ErrIO, "open", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fault.Wrap(fault.ErrIO, "create", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fault.Wrap(fault.ErrIO, "copy", err)
	}
	return fault.Wrap(fault.ErrIO, "close", out.Close())
}
