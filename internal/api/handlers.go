package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ccpd/signboard/internal/dashboard"
	"github.com/ccpd/signboard/internal/events"
	"github.com/ccpd/signboard/internal/fault"
	"github.com/ccpd/signboard/internal/ingest"
)

const maxJSONBody = 4 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:           "ok",
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		DashboardVersion: s.deps.Dashboard.Snapshot().Version,
		Events:           s.deps.Events.Stats(),
	}
	if s.deps.Displays != nil {
		resp.DisplaysConnected = s.deps.Displays.Connected()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleDashboardState handles GET /dashboard-state.
func (s *Server) handleDashboardState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Dashboard.Snapshot().State)
}

// handleUpdateLayout handles POST /update-layout.
func (s *Server) handleUpdateLayout(w http.ResponseWriter, r *http.Request) {
	var req UpdateLayoutRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	snap, err := s.deps.Dashboard.SetLayout(req.Layout)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.broadcast(snap)
	respondJSON(w, http.StatusOK, SuccessResponse{Success: true, Version: snap.Version})
}

// handleUpdateWidget handles POST /update-widget.
func (s *Server) handleUpdateWidget(w http.ResponseWriter, r *http.Request) {
	var req UpdateWidgetRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.logger.Info("update widget", "widget", req.Widget, "request_id", middleware.GetReqID(r.Context()))

	snap, err := s.deps.Dashboard.SetWidget(req.Widget, req.Data)
	switch {
	case errors.Is(err, dashboard.ErrUnknownWidget):
		s.writeError(w, http.StatusBadRequest, "Invalid widget")
		return
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.broadcast(snap)
	respondJSON(w, http.StatusOK, SuccessResponse{Success: true, Version: snap.Version})
}

// handleUrgentAlert handles POST /urgent-alert.
func (s *Server) handleUrgentAlert(w http.ResponseWriter, r *http.Request) {
	var req UrgentAlertRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	alert := req.Alert
	if len(alert) == 0 {
		alert = json.RawMessage(`null`)
	}
	snap, err := s.deps.Dashboard.SetUrgentAlert(alert)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.broadcast(snap)
	respondJSON(w, http.StatusOK, SuccessResponse{Success: true, Version: snap.Version})
}

// handleUpdatePlaylist handles POST /update-playlist. Assembly is detached
// from the request context so a client disconnect does not abort uploads
// already under way.
func (s *Server) handleUpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req UpdatePlaylistRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	ctx := context.WithoutCancel(r.Context())
	if s.config.AssembleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.AssembleTimeout)
		defer cancel()
	}

	pl, err := s.deps.Assembler.Assemble(ctx, req.Items)
	if err != nil {
		s.deps.Events.Publish(events.TypeIngestFailed, map[string]any{
			"items": len(req.Items),
			"kind":  kindName(err),
			"error": err.Error(),
		})
		s.writeFault(w, err)
		return
	}

	snap, err := s.deps.Dashboard.SetPlaylist(pl)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.deps.Events.Publish(events.TypePlaylistAssembled, map[string]any{
		"items": len(req.Items),
		"media": len(pl),
	})
	s.broadcast(snap)
	respondJSON(w, http.StatusOK, PlaylistResponse{Success: true, Version: snap.Version, Playlist: pl})
}

// handleIngestLog handles GET /ingest-log?limit=N.
func (s *Server) handleIngestLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	recs, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read ingest log", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read ingest log")
		return
	}

	out := make([]IngestLogEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, IngestLogEntry{
			Digest:     rec.Digest,
			Source:     rec.Source,
			Type:       rec.Type,
			Pages:      rec.Pages,
			Reused:     rec.Reused,
			DurationMs: rec.Duration.Milliseconds(),
			At:         rec.At.UTC().Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleUploadFile handles POST /upload-file (multipart field "file").
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes+1<<20)

	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "expected multipart/form-data body")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, `missing "file" field`)
			return
		}
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "read multipart body: "+err.Error())
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		ref, kind, err := s.deps.Inbox.Save(part, part.FileName())
		_ = part.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) || errors.Is(err, ingest.ErrTooLarge) {
				s.writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
				return
			}
			s.writeFault(w, err)
			return
		}

		s.logger.Info("file received", "file_ref", ref, "type", kind, "name", part.FileName())
		s.deps.Events.Publish(events.TypeFileReceived, UploadResponse{FileRef: ref, Type: kind})
		respondJSON(w, http.StatusOK, UploadResponse{FileRef: ref, Type: kind})
		return
	}
}

// handleDriveProxy handles GET /proxy/drive/{fileID}.
func (s *Server) handleDriveProxy(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if fileID == "" || strings.ContainsAny(fileID, "/\\") {
		s.writeError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	rc, contentType, err := s.deps.Drive.Open(r.Context(), fileID)
	if err != nil {
		s.logger.Warn("drive proxy failed", "file_id", fileID, "error", err)
		s.writeFault(w, err)
		return
	}
	defer rc.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	// Stored pages live under content digests and never change.
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Debug("drive proxy copy interrupted", "file_id", fileID, "error", err)
	}
}

// broadcast pushes snap to listeners and schedules it for persistence.
func (s *Server) broadcast(snap dashboard.Snapshot) {
	s.deps.Events.Publish(events.TypeDashboardUpdate, snap.State)
	if s.deps.Snapshots != nil {
		s.deps.Snapshots.Schedule(snap)
	}
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// statusFor maps pipeline error kinds to HTTP statuses.
func statusFor(err error) int {
	switch fault.KindOf(err) {
	case fault.ErrInvalidInput:
		return http.StatusBadRequest
	case fault.ErrConversion:
		return http.StatusUnprocessableEntity
	case fault.ErrUpload, fault.ErrRemoteStore:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindName(err error) string {
	if k := fault.KindOf(err); k != nil {
		return k.Error()
	}
	return "internal"
}

// writeFault writes a pipeline error with its mapped status.
func (s *Server) writeFault(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), ErrorResponse{Error: err.Error(), Kind: kindName(err)})
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
