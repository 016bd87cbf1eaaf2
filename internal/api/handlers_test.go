package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccpd/signboard/internal/auth"
	"github.com/ccpd/signboard/internal/dashboard"
	"github.com/ccpd/signboard/internal/events"
	"github.com/ccpd/signboard/internal/fault"
	"github.com/ccpd/signboard/internal/ingest"
)

type fakeAssembler struct {
	mu       sync.Mutex
	playlist ingest.Playlist
	err      error
	ctxErr   error
	got      []ingest.RawItem
}

func (f *fakeAssembler) Assemble(ctx context.Context, raw []ingest.RawItem) (ingest.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	f.got = raw
	return f.playlist, f.err
}

type fakeScheduler struct {
	mu    sync.Mutex
	snaps []dashboard.Snapshot
}

func (f *fakeScheduler) Schedule(snap dashboard.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, snap)
}

type fakeOpener struct {
	body        string
	contentType string
	err         error
}

func (f fakeOpener) Open(_ context.Context, id string) (io.ReadCloser, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return io.NopCloser(strings.NewReader(f.body + ":" + id)), f.contentType, nil
}

type fakeHistory struct{ recs []ingest.Record }

func (f fakeHistory) Recent(_ context.Context, limit int) ([]ingest.Record, error) {
	if limit < len(f.recs) {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

type testEnv struct {
	server    *Server
	handler   http.Handler
	dash      *dashboard.Store
	hub       *events.Hub
	assembler *fakeAssembler
	snapshots *fakeScheduler
}

func newTestEnv(t *testing.T, cfg Config, mutate func(*Deps)) *testEnv {
	t.Helper()
	env := &testEnv{
		dash:      dashboard.NewStore(),
		hub:       events.NewHub(32),
		assembler: &fakeAssembler{},
		snapshots: &fakeScheduler{},
	}
	deps := Deps{
		Dashboard: env.dash,
		Events:    env.hub,
		Assembler: env.assembler,
		Snapshots: env.snapshots,
	}
	if mutate != nil {
		mutate(&deps)
	}
	env.server = New(cfg, deps, slog.New(slog.NewTextHandler(io.Discard, nil)))
	env.handler = env.server.Handler()
	return env
}

func (e *testEnv) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, Config{APIKey: "k"}, nil)
	rec := env.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(0), resp.Events.Published)
}

func TestDashboardStateIsPublic(t *testing.T) {
	env := newTestEnv(t, Config{APIKey: "k"}, nil)
	rec := env.do(http.MethodGet, "/dashboard-state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st dashboard.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Contains(t, st.Widgets, dashboard.WidgetMediaSlideshow)
}

func TestUpdateWidgetBroadcastsAndPersists(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	ch, cancel := env.hub.Subscribe()
	defer cancel()

	rec := env.do(http.MethodPost, "/update-widget", `{"widget":"announcements","data":["Lunch at noon"]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	select {
	case ev := <-ch:
		assert.Equal(t, events.TypeDashboardUpdate, ev.Type)
		assert.Contains(t, string(ev.Data), "Lunch at noon")
	case <-time.After(time.Second):
		t.Fatal("no broadcast")
	}
	require.Len(t, env.snapshots.snaps, 1)
	assert.Equal(t, uint64(1), env.snapshots.snaps[0].Version)
}

func TestUpdateWidgetRejectsUnknownWidget(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	rec := env.do(http.MethodPost, "/update-widget", `{"widget":"weather","data":{}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid widget")
	assert.Empty(t, env.snapshots.snaps)
}

func TestUpdateLayoutAndAlert(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	rec := env.do(http.MethodPost, "/update-layout", `{"layout":[{"i":"stats"}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodPost, "/urgent-alert", `{"alert":{"message":"Storm warning"}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	st := env.dash.Snapshot().State
	assert.JSONEq(t, `[{"i":"stats"}]`, string(st.Layout))
	assert.JSONEq(t, `{"message":"Storm warning"}`, string(st.UrgentAlert))

	rec = env.do(http.MethodPost, "/urgent-alert", `{}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `null`, string(env.dash.Snapshot().State.UrgentAlert))

	rec = env.do(http.MethodPost, "/update-layout", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthAndScopes(t *testing.T) {
	env := newTestEnv(t, Config{
		APIKey: "admin",
		Tokens: []auth.TokenConfig{{Token: "editor", Scopes: []string{auth.ScopeDashboardRW}}},
	}, nil)
	body := `{"widget":"stats","data":{"n":1}}`

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/update-widget", body, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/update-widget", body, bearer("wrong")).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/update-widget", body, bearer("editor")).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/update-playlist", `{"items":[]}`, bearer("editor")).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/update-playlist", `{"items":[]}`, bearer("admin")).Code)
}

func TestUpdatePlaylistSuccess(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	env.assembler.playlist = ingest.Playlist{
		{Type: "image", URL: "http://x/a.png", Duration: 5},
		{Type: "image", URL: "http://store/slides/deadbeef/page_1.png", Duration: 4},
	}

	rec := env.do(http.MethodPost, "/update-playlist",
		`{"items":[{"type":"image","url":"http://x/a.png","duration":5},{"type":"pdf","url":"http://x/b.pdf","duration":4}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PlaylistResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, env.assembler.playlist, resp.Playlist)
	assert.Equal(t, ingest.RawItem{Type: "pdf", URL: "http://x/b.pdf", Duration: 4}, env.assembler.got[1])

	raw := env.dash.Snapshot().State.Widgets[dashboard.WidgetMediaSlideshow]
	var stored ingest.Playlist
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, env.assembler.playlist, stored)
	require.Len(t, env.snapshots.snaps, 1)

	types := map[string]bool{}
	for _, ev := range env.hub.Since(0) {
		types[ev.Type] = true
	}
	assert.True(t, types[events.TypePlaylistAssembled])
	assert.True(t, types[events.TypeDashboardUpdate])
}

func TestUpdatePlaylistErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", fault.New(fault.ErrInvalidInput, "item 0", "unsupported type"), http.StatusBadRequest},
		{"conversion", fault.New(fault.ErrConversion, "rasterize", "no pages"), http.StatusUnprocessableEntity},
		{"upload", fault.Wrap(fault.ErrUpload, "upload", fault.New(fault.ErrRemoteStore, "create", "quota")), http.StatusBadGateway},
		{"remote store", fault.New(fault.ErrRemoteStore, "lookup", "401"), http.StatusBadGateway},
		{"io", fault.New(fault.ErrIO, "fetch", "connection refused"), http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Config{}, nil)
			env.assembler.err = tc.err
			before := env.dash.Snapshot()

			rec := env.do(http.MethodPost, "/update-playlist", `{"items":[{"type":"pdf","url":"http://x/b.pdf","duration":4}]}`, nil)
			assert.Equal(t, tc.want, rec.Code)
			assert.Empty(t, env.snapshots.snaps, "failed assembly must not persist")
			assert.Equal(t, before, env.dash.Snapshot(), "failed assembly must not change state")

			evs := env.hub.Since(0)
			require.Len(t, evs, 1)
			assert.Equal(t, events.TypeIngestFailed, evs[0].Type)
		})
	}
}

func TestUpdatePlaylistSurvivesClientDisconnect(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	env.assembler.playlist = ingest.Playlist{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/update-playlist", strings.NewReader(`{"items":[]}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	env.server.handleUpdatePlaylist(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, env.assembler.ctxErr)
}

func TestUploadFile(t *testing.T) {
	inbox, err := ingest.NewInbox(filepath.Join(t.TempDir(), "inbox"), 1024)
	require.NoError(t, err)
	env := newTestEnv(t, Config{MaxUploadBytes: 1024}, func(d *Deps) { d.Inbox = inbox })

	post := func(name string, content []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("note", "ignored"))
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, _ = fw.Write(content)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/upload-file", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := post("deck.pdf", []byte("%PDF-1.7"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ingest.TypePDF, resp.Type)
	data, err := os.ReadFile(filepath.Join(inbox.Dir(), resp.FileRef))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	assert.Equal(t, http.StatusBadRequest, post("virus.exe", []byte("MZ")).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, post("big.png", bytes.Repeat([]byte("x"), 2048)).Code)

	rec = env.do(http.MethodPost, "/upload-file", "plain", http.Header{"Content-Type": []string{"text/plain"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRouteAbsentWithoutInbox(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/upload-file", "", nil).Code)
}

func TestDriveProxy(t *testing.T) {
	env := newTestEnv(t, Config{APIKey: "k"}, func(d *Deps) {
		d.Drive = fakeOpener{body: "png", contentType: "image/png"}
	})
	rec := env.do(http.MethodGet, "/proxy/drive/abc123", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "png:abc123", rec.Body.String())

	failing := newTestEnv(t, Config{}, func(d *Deps) {
		d.Drive = fakeOpener{err: fault.New(fault.ErrRemoteStore, "download", "404")}
	})
	assert.Equal(t, http.StatusBadGateway, failing.do(http.MethodGet, "/proxy/drive/gone", "", nil).Code)
}

func TestMediaRoute(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "slides", "abc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "slides", "abc", "page_1.png"), []byte("img"), 0o644))

	env := newTestEnv(t, Config{}, func(d *Deps) { d.Media = http.FileServer(http.Dir(root)) })
	rec := env.do(http.MethodGet, "/media/slides/abc/page_1.png", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "img", rec.Body.String())
}

func TestIngestLogRoute(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(t, Config{}, func(d *Deps) {
		d.History = fakeHistory{recs: []ingest.Record{{Digest: "d1", Source: "http://x/b.pdf", Type: "pdf", Pages: 2, Reused: true, Duration: 250 * time.Millisecond, At: at}}}
	})

	rec := env.do(http.MethodGet, "/ingest-log?limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []IngestLogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, IngestLogEntry{Digest: "d1", Source: "http://x/b.pdf", Type: "pdf", Pages: 2, Reused: true, DurationMs: 250, At: "2026-05-04T10:00:00Z"}, entries[0])

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/ingest-log?limit=0", "", nil).Code)
}

func TestEventsStreamReplaysBufferedEvents(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	env.hub.Publish(events.TypeFileReceived, map[string]string{"file_ref": "a.pdf"})
	env.hub.Publish(events.TypeDashboardUpdate, map[string]int{"v": 1})

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	assert.Equal(t, []string{"id: 2", "event: dashboard.update", `data: {"v":1}`}, lines)
}

func TestEventsStreamFiltersByType(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	env.hub.Publish(events.TypeFileReceived, map[string]string{"file_ref": "a.pdf"})
	env.hub.Publish(events.TypeIngestFailed, map[string]string{"error": "boom"})
	env.hub.Publish(events.TypeFileReceived, map[string]string{"file_ref": "b.pdf"})

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?types=ingest.failed", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	require.True(t, sc.Scan())
	assert.Equal(t, "id: 2", sc.Text())
}

func TestSplitTypesAndLastEventID(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitTypes(" a, ,b "))
	assert.Nil(t, splitTypes(""))

	r := httptest.NewRequest(http.MethodGet, "/events?last_event_id=7", nil)
	assert.Equal(t, int64(7), lastEventID(r))
	r.Header.Set("Last-Event-ID", "-3")
	assert.Equal(t, int64(0), lastEventID(r))
}

func TestOpenAPIDocListsMountedRoutes(t *testing.T) {
	env := newTestEnv(t, Config{}, func(d *Deps) { d.Drive = fakeOpener{} })
	rec := env.do(http.MethodGet, "/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	paths := doc["paths"].(map[string]any)

	post := paths["/update-playlist"].(map[string]any)["post"].(map[string]any)
	assert.Equal(t, "post_update_playlist", post["operationId"])
	assert.NotNil(t, post["security"])
	assert.Contains(t, paths, "/proxy/drive/{fileID}")
	assert.NotContains(t, paths, "/upload-file")
	assert.NotContains(t, paths, "/ws")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusFor(fault.Wrap(fault.ErrUpload, "u", errors.New("x"))))
	assert.Equal(t, "upload error", kindName(fault.Wrap(fault.ErrUpload, "u", errors.New("x"))))
	assert.Equal(t, "internal", kindName(errors.New("x")))
}
