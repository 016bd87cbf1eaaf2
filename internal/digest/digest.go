// Package digest computes content digests used as deduplication keys.
package digest

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/ccpd/signboard/internal/fault"
)

const copyBufferSize = 256 * 1024

// File returns the hex-encoded BLAKE3-256 digest of the file at path.
// The file is streamed through the hasher in fixed-size chunks.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fault.Wrap(fault.ErrIO, "digest open", err)
	}
	defer f.Close()

	return Reader(f)
}

// Reader returns the hex-encoded BLAKE3-256 digest of everything read from r.
func Reader(r io.Reader) (string, error) {
	h := blake3.New()
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fault.Wrap(fault.ErrIO, "digest read", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Hasher adapts File to an injectable value.
type Hasher struct{}

// Digest implements the pipeline's content hasher.
func (Hasher) Digest(path string) (string, error) {
	return File(path)
}
