package display

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccpd/signboard/internal/dashboard"
	"github.com/ccpd/signboard/internal/events"
)

func dial(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestDisplayReceivesInitThenUpdates(t *testing.T) {
	hub := events.NewHub(10)
	store := dashboard.NewStore()
	_, err := store.SetWidget(dashboard.WidgetAnnouncements, json.RawMessage(`["before connect"]`))
	require.NoError(t, err)

	h := NewHandler(hub, store, nil, nil, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := dial(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readMessage(t, conn)
	assert.Equal(t, MsgInitState, first.Type)
	var st dashboard.State
	require.NoError(t, json.Unmarshal(first.Data, &st))
	assert.JSONEq(t, `["before connect"]`, string(st.Widgets[dashboard.WidgetAnnouncements]))

	require.Eventually(t, func() bool { return h.Connected() == 1 }, time.Second, 10*time.Millisecond)

	// Non-dashboard events are not forwarded.
	hub.Publish(events.TypeIngestFailed, map[string]string{"error": "x"})
	snap, err := store.SetWidget(dashboard.WidgetStats, json.RawMessage(`{"visitors":42}`))
	require.NoError(t, err)
	hub.Publish(events.TypeDashboardUpdate, snap.State)

	update := readMessage(t, conn)
	assert.Equal(t, MsgDashboardUpdate, update.Type)
	require.NoError(t, json.Unmarshal(update.Data, &st))
	assert.JSONEq(t, `{"visitors":42}`, string(st.Widgets[dashboard.WidgetStats]))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.Connected() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDisplayRejectsForeignOrigin(t *testing.T) {
	h := NewHandler(events.NewHub(1), dashboard.NewStore(), nil, nil, []string{"http://signage.local"})
	srv := httptest.NewServer(h)
	defer srv.Close()

	_, resp, err := dial(t, srv, http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, srv, http.Header{"Origin": []string{"http://signage.local"}})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, MsgInitState, readMessage(t, conn).Type)
}
