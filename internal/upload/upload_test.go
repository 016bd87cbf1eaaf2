package upload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccpd/signboard/internal/fault"
	"github.com/ccpd/signboard/internal/remote"
)

func TestMapPreservesOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	got, err := Map(context.Background(), 3, items, func(_ context.Context, n int) (string, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return fmt.Sprintf("v%d", n), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"v5", "v1", "v4", "v2", "v3"}, got)
}

func TestMapBoundsConcurrency(t *testing.T) {
	const limit = 3
	var inFlight, peak atomic.Int32

	items := make([]int, 20)
	_, err := Map(context.Background(), limit, items, func(_ context.Context, _ int) (int, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return 0, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Equal(t, int32(limit), peak.Load())
}

func TestMapStopsLaunchingAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	var started atomic.Int32

	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}
	_, err := Map(context.Background(), 1, items, func(_ context.Context, n int) (int, error) {
		started.Add(1)
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})
	require.ErrorIs(t, err, boom)
	// With a single slot the failing call releases before the next acquire,
	// so at most one more call can have been launched.
	assert.LessOrEqual(t, started.Load(), int32(4))
}

func TestMapEmpty(t *testing.T) {
	got, err := Map(context.Background(), 2, []string(nil), func(context.Context, string) (int, error) {
		t.Fatal("fn must not be called")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMapCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Map(ctx, 1, []int{1, 2}, func(ctx context.Context, n int) (int, error) {
		return n, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeStore struct {
	mu      sync.Mutex
	names   []string
	failOn  string
	failErr error
}

func (f *fakeStore) PathInfo(context.Context, string) (remote.PathInfo, error) {
	return remote.NotFound, nil
}
func (f *fakeStore) ListFolder(context.Context, string) ([]string, error) { return nil, nil }
func (f *fakeStore) CreateFolder(_ context.Context, p string) (remote.Folder, error) {
	return remote.Folder{ID: p, Path: p}, nil
}
func (f *fakeStore) Upload(_ context.Context, _ string, name string, folder remote.Folder) (string, error) {
	f.mu.Lock()
	f.names = append(f.names, name)
	f.mu.Unlock()
	if name == f.failOn {
		return "", f.failErr
	}
	return "https://cdn.test/" + folder.Path + "/" + name, nil
}

type countingObserver struct {
	started, finished, failed atomic.Int32
}

func (o *countingObserver) UploadStarted() { o.started.Add(1) }
func (o *countingObserver) UploadFinished(err error) {
	o.finished.Add(1)
	if err != nil {
		o.failed.Add(1)
	}
}

func TestUploadAllUsesBaseNames(t *testing.T) {
	store := &fakeStore{}
	obs := &countingObserver{}
	u := New(store, 2, WithObserver(obs))

	dir := t.TempDir()
	files := []string{filepath.Join(dir, "page_1.png"), filepath.Join(dir, "page_2.png")}
	urls, err := u.UploadAll(context.Background(), files, remote.Folder{ID: "x", Path: "slides/abc"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://cdn.test/slides/abc/page_1.png",
		"https://cdn.test/slides/abc/page_2.png",
	}, urls)
	assert.ElementsMatch(t, []string{"page_1.png", "page_2.png"}, store.names)
	assert.Equal(t, int32(2), obs.started.Load())
	assert.Equal(t, int32(2), obs.finished.Load())
}

func TestUploadAllWrapsFailure(t *testing.T) {
	cause := fault.New(fault.ErrRemoteStore, "upload", "quota exceeded")
	store := &fakeStore{failOn: "page_1.png", failErr: cause}
	u := New(store, 1)

	_, err := u.UploadAll(context.Background(), []string{"/w/page_1.png", "/w/page_2.png"}, remote.Folder{Path: "slides/abc"})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrUpload)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, fault.ErrUpload, fault.KindOf(err))
}

func TestNewDefaultsLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, New(&fakeStore{}, 0).Limit())
}
