package tui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ccpd/signboard/internal/events"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg struct {
	Status            string `json:"status"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	DashboardVersion  uint64 `json:"dashboard_version"`
	DisplaysConnected int    `json:"displays_connected"`
}

type errMsg struct{ err error }

type sseDisconnectedMsg struct{ lastID int64 }
type reconnectMsg struct{}

// ReadSSE parses a server-sent event stream, calling fn for every complete
// event. It returns the ID of the last event seen.
func ReadSSE(r io.Reader, fn func(events.Event)) (int64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)

	var (
		lastID int64
		cur    events.Event
		data   []string
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				cur.Data = json.RawMessage(strings.Join(data, "\n"))
				if cur.At.IsZero() {
					cur.At = time.Now()
				}
				fn(cur)
				lastID = cur.ID
			}
			cur, data = events.Event{}, nil
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			data = append(data, line[6:])
		}
	}
	return lastID, scanner.Err()
}

// subscribeToEvents connects to /events and feeds events into ch, resuming
// after lastID. Returns sseDisconnectedMsg when the stream ends.
func subscribeToEvents(ctx context.Context, apiURL, token string, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/events", nil)
		if err != nil {
			return errMsg{err}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{lastID: lastID}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg{fmt.Errorf("events: %s", resp.Status)}
		}

		seen, _ := ReadSSE(resp.Body, func(ev events.Event) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
		if seen > lastID {
			lastID = seen
		}
		return sseDisconnectedMsg{lastID: lastID}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchHealth queries the /healthz endpoint.
func fetchHealth(apiURL string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(apiURL + "/healthz")
	if err != nil {
		return errMsg{err}
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg{err}
	}
	return h
}
