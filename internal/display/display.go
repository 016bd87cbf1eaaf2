// Package display pushes dashboard state to connected screens over
// websockets. A screen receives INIT_STATE on connect and DASHBOARD_UPDATE
// after every change.
package display

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ccpd/signboard/internal/dashboard"
	"github.com/ccpd/signboard/internal/events"
)

// Message types sent to displays.
const (
	MsgInitState       = "INIT_STATE"
	MsgDashboardUpdate = "DASHBOARD_UPDATE"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Message is the frame written to a display.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Observer is told about connects and disconnects. It may be nil.
type Observer interface {
	DisplayConnected()
	DisplayDisconnected()
}

// Handler upgrades display connections and streams state to them.
type Handler struct {
	hub      *events.Hub
	store    *dashboard.Store
	logger   *slog.Logger
	observer Observer
	upgrader websocket.Upgrader

	connected atomic.Int64
}

// NewHandler returns a display handler. allowedOrigins empty accepts any
// origin; screens are usually kiosks on the same LAN.
func NewHandler(hub *events.Hub, store *dashboard.Store, logger *slog.Logger, observer Observer, allowedOrigins []string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{hub: hub, store: store, logger: logger, observer: observer}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// Connected returns the number of open display connections.
func (h *Handler) Connected() int {
	return int(h.connected.Load())
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.Warn("display upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	h.connected.Add(1)
	if h.observer != nil {
		h.observer.DisplayConnected()
	}
	defer func() {
		h.connected.Add(-1)
		if h.observer != nil {
			h.observer.DisplayDisconnected()
		}
	}()

	logger := h.logger.With("remote", r.RemoteAddr)
	logger.Info("display connected")
	defer logger.Info("display disconnected")

	// Subscribe before reading state so no update between the two is lost.
	ch, cancel := h.hub.Subscribe(events.TypeDashboardUpdate)
	defer cancel()

	state, err := json.Marshal(h.store.Snapshot().State)
	if err != nil {
		logger.Error("encode initial state", "error", err)
		return
	}
	if err := write(conn, Message{Type: MsgInitState, Data: state}); err != nil {
		return
	}

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := write(conn, Message{Type: MsgDashboardUpdate, Data: ev.Data}); err != nil {
				logger.Debug("display write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func write(conn *websocket.Conn, msg Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// readUntilClosed drains client frames so control frames are processed, and
// closes done when the connection ends.
func readUntilClosed(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
