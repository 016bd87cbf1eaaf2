// Package dashboard holds the single dashboard state shown on every display.
//
// The Store is passed explicitly to whatever reads or changes the state.
// Every mutation bumps a version and returns the resulting Snapshot so the
// caller can broadcast and persist exactly what it wrote.
package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/ccpd/signboard/internal/ingest"
)

// Widget names known to display clients.
const (
	WidgetAnnouncements    = "announcements"
	WidgetDrives           = "drives"
	WidgetCompanySpotlight = "company_spotlight"
	WidgetStats            = "stats"
	WidgetPDFSlideshow     = "pdfslideshow"
	WidgetYouTube          = "youtube"
	WidgetMediaSlideshow   = "mediaSlideshow"
)

// ErrUnknownWidget is returned when updating a widget that does not exist.
var ErrUnknownWidget = errors.New("unknown widget")

// ErrInvalidJSON is returned for payloads that are not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON payload")

// State is the dashboard document sent to displays.
type State struct {
	Layout      json.RawMessage            `json:"layout"`
	Widgets     map[string]json.RawMessage `json:"widgets"`
	UrgentAlert json.RawMessage            `json:"urgent_alert"`
}

// Snapshot is a consistent copy of the state at one version.
type Snapshot struct {
	Version uint64 `json:"version"`
	State   State  `json:"state"`
}

// Default returns the state of a fresh installation.
func Default() State {
	return State{
		Layout: json.RawMessage(`[]`),
		Widgets: map[string]json.RawMessage{
			WidgetAnnouncements:    json.RawMessage(`[]`),
			WidgetDrives:           json.RawMessage(`[]`),
			WidgetCompanySpotlight: json.RawMessage(`null`),
			WidgetStats:            json.RawMessage(`{}`),
			WidgetPDFSlideshow:     json.RawMessage(`{"url":"","interval":5}`),
			WidgetYouTube:          json.RawMessage(`{}`),
			WidgetMediaSlideshow:   json.RawMessage(`[]`),
		},
		UrgentAlert: json.RawMessage(`null`),
	}
}

// WidgetNames returns the known widget names, sorted.
func WidgetNames() []string {
	names := make([]string, 0, len(Default().Widgets))
	for name := range Default().Widgets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store guards the dashboard state.
type Store struct {
	mu      sync.RWMutex
	state   State
	version uint64
}

// NewStore returns a store holding Default().
func NewStore() *Store {
	return &Store{state: Default()}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// SetLayout replaces the layout.
func (s *Store) SetLayout(layout json.RawMessage) (Snapshot, error) {
	if err := checkJSON(layout); err != nil {
		return Snapshot{}, fmt.Errorf("layout: %w", err)
	}
	return s.mutate(func(st *State) error {
		st.Layout = clone(layout)
		return nil
	})
}

// SetWidget replaces the data of a known widget.
func (s *Store) SetWidget(name string, data json.RawMessage) (Snapshot, error) {
	if err := checkJSON(data); err != nil {
		return Snapshot{}, fmt.Errorf("widget %s: %w", name, err)
	}
	return s.mutate(func(st *State) error {
		if _, ok := st.Widgets[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownWidget, name)
		}
		st.Widgets[name] = clone(data)
		return nil
	})
}

// SetPlaylist stores an assembled playlist as the media slideshow.
func (s *Store) SetPlaylist(pl ingest.Playlist) (Snapshot, error) {
	if pl == nil {
		pl = ingest.Playlist{}
	}
	raw, err := json.Marshal(pl)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode playlist: %w", err)
	}
	return s.mutate(func(st *State) error {
		st.Widgets[WidgetMediaSlideshow] = raw
		return nil
	})
}

// SetUrgentAlert replaces the urgent alert. A JSON null clears it.
func (s *Store) SetUrgentAlert(alert json.RawMessage) (Snapshot, error) {
	if err := checkJSON(alert); err != nil {
		return Snapshot{}, fmt.Errorf("urgent alert: %w", err)
	}
	return s.mutate(func(st *State) error {
		st.UrgentAlert = clone(alert)
		return nil
	})
}

// Replace swaps in a loaded state. Widgets missing from st keep their
// defaults and unknown widgets are dropped.
func (s *Store) Replace(st State) Snapshot {
	next := Default()
	if len(st.Layout) > 0 && json.Valid(st.Layout) {
		next.Layout = clone(st.Layout)
	}
	for name, raw := range st.Widgets {
		if _, ok := next.Widgets[name]; ok && len(raw) > 0 && json.Valid(raw) {
			next.Widgets[name] = clone(raw)
		}
	}
	if len(st.UrgentAlert) > 0 && json.Valid(st.UrgentAlert) {
		next.UrgentAlert = clone(st.UrgentAlert)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = next
	s.version++
	return s.snapshotLocked()
}

func (s *Store) mutate(fn func(*State) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyState(s.state)
	if err := fn(&next); err != nil {
		return Snapshot{}, err
	}
	s.state = next
	s.version++
	return s.snapshotLocked(), nil
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{Version: s.version, State: copyState(s.state)}
}

// copyState copies the widget map. Raw values are never modified in place,
// so they can be shared.
func copyState(st State) State {
	out := st
	out.Widgets = maps.Clone(st.Widgets)
	return out
}

func checkJSON(raw json.RawMessage) error {
	if len(raw) == 0 || !json.Valid(raw) {
		return ErrInvalidJSON
	}
	return nil
}

func clone(raw json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), raw...)
}
