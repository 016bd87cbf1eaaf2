package api

import (
	"net/http"

	"github.com/ccpd/signboard/internal/auth"
	"github.com/ccpd/signboard/internal/remote/drive"
	"github.com/ccpd/signboard/internal/remote/gitstore"
)

// route describes one endpoint. A nil scopes slice means public. The same
// table drives the router and the OpenAPI document.
type route struct {
	method  string
	path    string
	prefix  bool
	summary string
	scopes  []string
	body    string
	handler http.Handler
}

func (s *Server) routes() []route {
	var (
		dashboardRW = []string{auth.ScopeDashboardRW}
		dashboardRO = []string{auth.ScopeDashboardRO}
		mediaRW     = []string{auth.ScopeMediaRW}
		eventsRO    = []string{auth.ScopeEventsRO}
	)

	rts := []route{
		{method: http.MethodGet, path: "/healthz", summary: "Service health", handler: http.HandlerFunc(s.handleHealthz)},
		{method: http.MethodGet, path: "/openapi.json", summary: "This document", handler: http.HandlerFunc(s.handleOpenAPI)},
		{method: http.MethodGet, path: "/dashboard-state", summary: "Current dashboard state", handler: http.HandlerFunc(s.handleDashboardState)},
		{method: http.MethodPost, path: "/update-layout", summary: "Replace the layout", scopes: dashboardRW, body: "application/json", handler: http.HandlerFunc(s.handleUpdateLayout)},
		{method: http.MethodPost, path: "/update-widget", summary: "Replace one widget's data", scopes: dashboardRW, body: "application/json", handler: http.HandlerFunc(s.handleUpdateWidget)},
		{method: http.MethodPost, path: "/urgent-alert", summary: "Set or clear the urgent alert", scopes: dashboardRW, body: "application/json", handler: http.HandlerFunc(s.handleUrgentAlert)},
		{method: http.MethodPost, path: "/update-playlist", summary: "Assemble and publish a media playlist", scopes: mediaRW, body: "application/json", handler: http.HandlerFunc(s.handleUpdatePlaylist)},
		{method: http.MethodGet, path: "/events", summary: "Server-sent event stream", scopes: eventsRO, handler: http.HandlerFunc(s.handleEvents)},
	}

	if s.deps.Inbox != nil {
		rts = append(rts, route{method: http.MethodPost, path: "/upload-file", summary: "Receive a file for a later playlist", scopes: mediaRW, body: "multipart/form-data", handler: http.HandlerFunc(s.handleUploadFile)})
	}
	if s.deps.History != nil {
		rts = append(rts, route{method: http.MethodGet, path: "/ingest-log", summary: "Recently processed sources", scopes: dashboardRO, handler: http.HandlerFunc(s.handleIngestLog)})
	}
	if s.deps.Drive != nil {
		rts = append(rts, route{method: http.MethodGet, path: drive.ProxyPrefix + "{fileID}", summary: "Stream a stored Drive file", handler: http.HandlerFunc(s.handleDriveProxy)})
	}
	if s.deps.Media != nil {
		rts = append(rts, route{method: http.MethodGet, path: gitstore.MediaPrefix, prefix: true, summary: "Stored media files", handler: http.StripPrefix(gitstore.MediaPrefix[:len(gitstore.MediaPrefix)-1], s.deps.Media)})
	}
	if s.deps.Displays != nil {
		rts = append(rts, route{method: http.MethodGet, path: "/ws", summary: "Display websocket", handler: s.deps.Displays})
	}
	if s.deps.Metrics != nil {
		rts = append(rts, route{method: http.MethodGet, path: "/metrics", summary: "Prometheus metrics", handler: s.deps.Metrics})
	}
	return rts
}
