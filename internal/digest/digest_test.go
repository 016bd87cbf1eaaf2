package digest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccpd/signboard/internal/fault"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestFileIdenticalBytesSameDigest(t *testing.T) {
	a := writeFile(t, "a.pdf", []byte("%PDF-1.4 same bytes"))
	b := writeFile(t, "renamed.bin", []byte("%PDF-1.4 same bytes"))

	da, err := File(a)
	require.NoError(t, err)
	db, err := File(b)
	require.NoError(t, err)

	assert.Equal(t, da, db)
	assert.Len(t, da, 64)
}

func TestFileDifferentBytesDifferentDigest(t *testing.T) {
	a := writeFile(t, "a", []byte("one"))
	b := writeFile(t, "b", []byte("two"))

	da, err := File(a)
	require.NoError(t, err)
	db, err := File(b)
	require.NoError(t, err)

	assert.NotEqual(t, da, db)
}

func TestFileLargerThanBuffer(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), copyBufferSize/8)
	path := writeFile(t, "big", data)

	fromFile, err := File(path)
	require.NoError(t, err)
	fromReader, err := Reader(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, fromReader, fromFile)
}

func TestFileMissingIsIOError(t *testing.T) {
	_, err := Hasher{}.Digest(filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
