// Package events fans dashboard and ingest notifications out to in-process
// listeners: display sockets, SSE clients and the terminal monitor.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types published by the service.
const (
	TypeDashboardUpdate   = "dashboard.update"
	TypePlaylistAssembled = "playlist.assembled"
	TypeIngestFailed      = "ingest.failed"
	TypeFileReceived      = "ingest.file_received"
	TypeSnapshotFailed    = "snapshot.failed"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Stats is a point-in-time view of hub activity.
type Stats struct {
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
	Subscribers int   `json:"subscribers"`
}

type subscription struct {
	ch    chan Event
	types map[string]struct{}
}

func (s *subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Hub is an in-memory pub/sub. The most recent events are retained in a
// ring so reconnecting clients can resume by id.
type Hub struct {
	now     func() time.Time
	bufSize int

	mu      sync.Mutex
	lastID  int64
	dropped int64
	history []Event
	head    int
	subs    map[*subscription]struct{}
}

// NewHub returns a hub retaining the last capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		now:     time.Now,
		bufSize: 64,
		history: make([]Event, 0, capacity),
		subs:    make(map[*subscription]struct{}),
	}
}

// Publish assigns the next id and delivers the event to every interested
// subscriber without blocking. data that cannot be marshalled becomes {}.
func (h *Hub) Publish(eventType string, data any) Event {
	payload := json.RawMessage(`{}`)
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{ID: h.lastID, Type: eventType, At: h.now().UTC(), Data: payload}
	h.remember(ev)

	for sub := range h.subs {
		if !sub.wants(eventType) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped++
		}
	}
	return ev
}

// Subscribe registers a listener for the given event types, or for every
// type when none are named. cancel closes the channel; calling it again is a
// no-op.
func (h *Hub) Subscribe(types ...string) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, h.bufSize)}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			close(sub.ch)
			h.mu.Unlock()
		})
	}
}

// Since returns retained events newer than lastID, oldest first, limited to
// types when any are given.
func (h *Hub) Since(lastID int64, types ...string) []Event {
	filter := subscription{}
	if len(types) > 0 {
		filter.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			filter.types[t] = struct{}{}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, len(h.history))
	n := len(h.history)
	for i := 0; i < n; i++ {
		ev := h.history[(h.head+i)%n]
		if ev.ID > lastID && filter.wants(ev.Type) {
			out = append(out, ev)
		}
	}
	return out
}

// Stats reports counters since the hub was created.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Published: h.lastID, Dropped: h.dropped, Subscribers: len(h.subs)}
}

func (h *Hub) remember(ev Event) {
	if len(h.history) < cap(h.history) {
		h.history = append(h.history, ev)
		return
	}
	h.history[h.head] = ev
	h.head = (h.head + 1) % len(h.history)
}
