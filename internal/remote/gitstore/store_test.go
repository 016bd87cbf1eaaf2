package gitstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccpd/signboard/internal/fault"
	"github.com/ccpd/signboard/internal/remote"
)

const publicURL = "http://signage.local"

func newStore(t *testing.T, commit bool) *Store {
	t.Helper()
	s, err := New(Config{Root: filepath.Join(t.TempDir(), "media"), PublicURL: publicURL + "/", Commit: commit})
	require.NoError(t, err)
	return s
}

func localFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestNewRejectsEmptyRoot(t *testing.T) {
	_, err := New(Config{Root: " "})
	assert.Error(t, err)
}

func TestPathInfo(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, false)

	folder, err := s.CreateFolder(ctx, "slides/abc")
	require.NoError(t, err)
	_, err = s.Upload(ctx, localFile(t, "p.png", "png"), "page_1.png", folder)
	require.NoError(t, err)

	tests := []struct {
		path string
		want remote.PathInfo
	}{
		{"slides", remote.PathInfo{Exists: true, Kind: remote.KindFolder}},
		{"slides/abc", remote.PathInfo{Exists: true, Kind: remote.KindFolder}},
		{"slides/abc/page_1.png", remote.PathInfo{Exists: true, Kind: remote.KindFile}},
		{"slides/missing", remote.NotFound},
		{"missing/abc", remote.NotFound},
		{"slides/abc/page_1.png/child", remote.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := s.PathInfo(ctx, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathInfoRejectsTraversal(t *testing.T) {
	s := newStore(t, false)
	_, err := s.PathInfo(context.Background(), "slides/../../etc")
	assert.ErrorIs(t, err, fault.ErrRemoteStore)

	_, err = s.PathInfo(context.Background(), ".git/config")
	assert.ErrorIs(t, err, fault.ErrRemoteStore)
}

func TestListFolderNaturalOrderFilesOnly(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, false)

	folder, err := s.CreateFolder(ctx, "slides/deck")
	require.NoError(t, err)
	for _, n := range []string{"page_10.png", "page_2.png", "page_1.png"} {
		_, err := s.Upload(ctx, localFile(t, n, n), n, folder)
		require.NoError(t, err)
	}
	_, err = s.CreateFolder(ctx, "slides/deck/nested")
	require.NoError(t, err)

	urls, err := s.ListFolder(ctx, "slides/deck")
	require.NoError(t, err)
	assert.Equal(t, []string{
		publicURL + "/media/slides/deck/page_1.png",
		publicURL + "/media/slides/deck/page_2.png",
		publicURL + "/media/slides/deck/page_10.png",
	}, urls)
}

func TestListFolderMissingIsEmpty(t *testing.T) {
	s := newStore(t, false)
	urls, err := s.ListFolder(context.Background(), "slides/nothing")
	require.NoError(t, err)
	assert.NotNil(t, urls)
	assert.Empty(t, urls)
}

func TestCreateFolderIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, false)

	first, err := s.CreateFolder(ctx, "/slides//abc/")
	require.NoError(t, err)
	second, err := s.CreateFolder(ctx, "slides/abc")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "slides/abc", first.Path)
	assert.DirExists(t, filepath.Join(s.Root(), "slides", "abc"))
}

func TestCreateFolderOverFileFails(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, false)
	root, err := s.CreateFolder(ctx, "slides")
	require.NoError(t, err)
	_, err = s.Upload(ctx, localFile(t, "x", "x"), "abc", root)
	require.NoError(t, err)

	_, err = s.CreateFolder(ctx, "slides/abc")
	assert.ErrorIs(t, err, fault.ErrRemoteStore)
}

func TestUploadIdempotentByName(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, false)
	folder, err := s.CreateFolder(ctx, "slides/abc")
	require.NoError(t, err)

	u1, err := s.Upload(ctx, localFile(t, "a.png", "first"), "page_1.png", folder)
	require.NoError(t, err)
	u2, err := s.Upload(ctx, localFile(t, "b.png", "second"), "page_1.png", folder)
	require.NoError(t, err)

	assert.Equal(t, u1, u2)
	got, err := os.ReadFile(filepath.Join(s.Root(), "slides", "abc", "page_1.png"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	entries, err := os.ReadDir(filepath.Join(s.Root(), "slides", "abc"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUploadConcurrentSameNameSingleObject(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, false)
	folder, err := s.CreateFolder(ctx, "slides/race")
	require.NoError(t, err)
	src := localFile(t, "p.png", "page")

	var wg sync.WaitGroup
	urls := make([]string, 10)
	for i := range urls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := s.Upload(ctx, src, "page_1.png", folder)
			assert.NoError(t, err)
			urls[i] = u
		}(i)
	}
	wg.Wait()

	for _, u := range urls {
		assert.Equal(t, urls[0], u)
	}
	entries, err := os.ReadDir(filepath.Join(s.Root(), "slides", "race"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUploadMissingSourceIsIOError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, false)
	folder, err := s.CreateFolder(ctx, "slides")
	require.NoError(t, err)

	_, err = s.Upload(ctx, filepath.Join(t.TempDir(), "gone.png"), "page_1.png", folder)
	assert.ErrorIs(t, err, fault.ErrIO)
}

func TestUploadCommitsOncePerNewFile(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, true)
	folder, err := s.CreateFolder(ctx, "slides/abc")
	require.NoError(t, err)

	src := localFile(t, "p.png", "png")
	_, err = s.Upload(ctx, src, "page_1.png", folder)
	require.NoError(t, err)
	_, err = s.Upload(ctx, src, "page_1.png", folder)
	require.NoError(t, err)
	_, err = s.Upload(ctx, src, "page_2.png", folder)
	require.NoError(t, err)

	repo, err := git.PlainOpen(s.Root())
	require.NoError(t, err)
	iter, err := repo.Log(&git.LogOptions{})
	require.NoError(t, err)

	var messages []string
	require.NoError(t, iter.ForEach(func(c *object.Commit) error {
		messages = append(messages, c.Message)
		return nil
	}))
	assert.Equal(t, []string{"add slides/abc/page_2.png", "add slides/abc/page_1.png"}, messages)
}

func TestHandlerServesFilesAndHidesDotEntries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, true)
	folder, err := s.CreateFolder(ctx, "slides")
	require.NoError(t, err)
	_, err = s.Upload(ctx, localFile(t, "p.png", "png-bytes"), "page_1.png", folder)
	require.NoError(t, err)

	srv := httptest.NewServer(http.StripPrefix("/media", s.Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/media/slides/page_1.png")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "png-bytes", string(body))

	resp, err = http.Get(srv.URL + "/media/.git/HEAD")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
