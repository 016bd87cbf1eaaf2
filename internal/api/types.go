package api

import (
	"encoding/json"

	"github.com/ccpd/signboard/internal/events"
	"github.com/ccpd/signboard/internal/ingest"
)

// UpdateLayoutRequest is the JSON body for POST /update-layout.
type UpdateLayoutRequest struct {
	Layout json.RawMessage `json:"layout"`
}

// UpdateWidgetRequest is the JSON body for POST /update-widget.
type UpdateWidgetRequest struct {
	Widget string          `json:"widget"`
	Data   json.RawMessage `json:"data"`
}

// UrgentAlertRequest is the JSON body for POST /urgent-alert. A null or
// missing alert clears it.
type UrgentAlertRequest struct {
	Alert json.RawMessage `json:"alert"`
}

// UpdatePlaylistRequest is the JSON body for POST /update-playlist.
type UpdatePlaylistRequest struct {
	Items []ingest.RawItem `json:"items"`
}

// SuccessResponse acknowledges a state change.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Version uint64 `json:"version"`
}

// PlaylistResponse is returned by POST /update-playlist.
type PlaylistResponse struct {
	Success  bool            `json:"success"`
	Version  uint64          `json:"version"`
	Playlist ingest.Playlist `json:"playlist"`
}

// UploadResponse is returned by POST /upload-file.
type UploadResponse struct {
	FileRef string `json:"file_ref"`
	Type    string `json:"type"`
}

// IngestLogEntry is one row of GET /ingest-log.
type IngestLogEntry struct {
	Digest     string `json:"digest"`
	Source     string `json:"source"`
	Type       string `json:"type"`
	Pages      int    `json:"pages"`
	Reused     bool   `json:"reused"`
	DurationMs int64  `json:"duration_ms"`
	At         string `json:"at"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status            string `json:"status"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	DashboardVersion  uint64 `json:"dashboard_version"`
	DisplaysConnected int    `json:"displays_connected"`

	Events events.Stats `json:"events"`
}
