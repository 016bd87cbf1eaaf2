package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccpd/signboard/internal/fault"
	"github.com/ccpd/signboard/internal/remote"
)

type stubStore struct {
	info    remote.PathInfo
	infoErr error
	urls    []string
	listErr error
	asked   []string
	listed  int
}

func (s *stubStore) PathInfo(_ context.Context, path string) (remote.PathInfo, error) {
	s.asked = append(s.asked, path)
	return s.info, s.infoErr
}

func (s *stubStore) ListFolder(context.Context, string) ([]string, error) {
	s.listed++
	return s.urls, s.listErr
}

func (s *stubStore) CreateFolder(_ context.Context, path string) (remote.Folder, error) {
	return remote.Folder{ID: path, Path: path}, nil
}

func (s *stubStore) Upload(context.Context, string, string, remote.Folder) (string, error) {
	return "", errors.New("not used")
}

func TestResolveFolderIsDerivedFromDigestOnly(t *testing.T) {
	s := &stubStore{info: remote.NotFound}
	d := NewDedupResolver(s, "")

	_, err := d.Resolve(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, []string{"slides/deadbeef"}, s.asked)
	assert.Equal(t, "decks/abc", NewDedupResolver(s, "decks/").FolderFor("abc"))
}

func TestResolveOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("missing is a miss", func(t *testing.T) {
		s := &stubStore{info: remote.NotFound}
		res, err := NewDedupResolver(s, "").Resolve(ctx, "d")
		require.NoError(t, err)
		assert.False(t, res.Hit)
		assert.Zero(t, s.listed)
	})

	t.Run("populated folder is a hit", func(t *testing.T) {
		s := &stubStore{info: remote.PathInfo{Exists: true, Kind: remote.KindFolder}, urls: []string{"u1", "u2"}}
		res, err := NewDedupResolver(s, "").Resolve(ctx, "d")
		require.NoError(t, err)
		assert.True(t, res.Hit)
		assert.Equal(t, []string{"u1", "u2"}, res.Reuse)
	})

	t.Run("empty folder is a miss", func(t *testing.T) {
		s := &stubStore{info: remote.PathInfo{Exists: true, Kind: remote.KindFolder}, urls: []string{}}
		res, err := NewDedupResolver(s, "").Resolve(ctx, "d")
		require.NoError(t, err)
		assert.False(t, res.Hit)
	})

	t.Run("plain file is a collision", func(t *testing.T) {
		s := &stubStore{info: remote.PathInfo{Exists: true, Kind: remote.KindFile}}
		_, err := NewDedupResolver(s, "").Resolve(ctx, "d")
		assert.ErrorIs(t, err, ErrDigestCollision)
		assert.ErrorIs(t, err, fault.ErrRemoteStore)
		assert.Zero(t, s.listed)
	})

	t.Run("lookup failure propagates", func(t *testing.T) {
		cause := fault.New(fault.ErrRemoteStore, "lookup", "401")
		s := &stubStore{infoErr: cause}
		_, err := NewDedupResolver(s, "").Resolve(ctx, "d")
		assert.ErrorIs(t, err, cause)
	})

	t.Run("list failure propagates", func(t *testing.T) {
		cause := fault.New(fault.ErrRemoteStore, "list", "timeout")
		s := &stubStore{info: remote.PathInfo{Exists: true, Kind: remote.KindFolder}, listErr: cause}
		_, err := NewDedupResolver(s, "").Resolve(ctx, "d")
		assert.ErrorIs(t, err, cause)
	})
}
