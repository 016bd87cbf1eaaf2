package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ccpd/signboard/internal/events"
)

const sseKeepAlive = 15 * time.Second

// handleEvents streams hub events as server-sent events. Clients resume with
// Last-Event-ID and may narrow the stream with ?types=a,b.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	types := splitTypes(r.URL.Query().Get("types"))

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ch, cancel := s.deps.Events.Subscribe(types...)
	defer cancel()

	cursor := lastEventID(r)
	for _, ev := range s.deps.Events.Since(cursor, types...) {
		if writeSSE(w, ev) != nil {
			return
		}
		cursor = ev.ID
	}
	flusher.Flush()

	tick := time.NewTicker(sseKeepAlive)
	defer tick.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case ev, open := <-ch:
			if !open {
				return
			}
			// Already sent during replay.
			if ev.ID <= cursor {
				continue
			}
			if writeSSE(w, ev) != nil {
				return
			}
			cursor = ev.ID
		}
		flusher.Flush()
	}
}

func lastEventID(r *http.Request) int64 {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("last_event_id")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func splitTypes(v string) []string {
	var out []string
	for _, t := range strings.Split(v, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// writeSSE frames one event. Data is compact JSON so it fits on one line.
func writeSSE(w io.Writer, ev events.Event) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data)
	return err
}
