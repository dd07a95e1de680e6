// Package api exposes the gateway's HTTP control surface: viewer session
// start, stop and heartbeat, snapshots, and camera management lookups.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"ipcam-hls/internal/camera"
	"ipcam-hls/internal/platform/logger"
	"ipcam-hls/internal/platform/metrics"
	"ipcam-hls/internal/stream"
)

// Sessions is the part of stream.Supervisor the handlers drive.
type Sessions interface {
	Acquire(key stream.Key, sourceURL string) error
	Release(key stream.Key)
	Heartbeat(key stream.Key)
	Sessions() []stream.SessionInfo
	ActiveCount() int
}

// Snapshotter grabs a still frame from a source URL.
type Snapshotter interface {
	Capture(ctx context.Context, sourceURL string) ([]byte, error)
}

// Camera is the ISAPI client used by the device endpoints.
type Camera interface {
	DeviceInfo(ctx context.Context, cred camera.Credentials) (*camera.DeviceInfo, error)
	StreamingChannels(ctx context.Context, cred camera.Credentials) ([]camera.StreamingChannel, error)
	InputProxyChannels(ctx context.Context, cred camera.Credentials) ([]camera.InputProxyChannel, error)
	Ports(ctx context.Context, cred camera.Credentials) (*camera.Ports, error)
	Snapshot(ctx context.Context, cred camera.Credentials, channel int, stream string) ([]byte, error)
}

// Handler exposes gateway HTTP endpoints using go-chi.
type Handler struct {
	sessions Sessions
	snaps    Snapshotter
	cam      Camera
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewHandler returns a Handler. Metrics may be nil to disable metric
// recording (e.g. in tests).
func NewHandler(sessions Sessions, snaps Snapshotter, cam Camera, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{sessions: sessions, snaps: snaps, cam: cam, log: log, metrics: m}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": h.sessions.ActiveCount()})
}

// requestLog returns the handler logger tagged with the request ID.
func (h *Handler) requestLog(r *http.Request) *slog.Logger {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(slog.String("request_id", id))
	}
	return h.log
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeImage(w http.ResponseWriter, img []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// errorBody is the JSON shape of every non-media error response.
type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{OK: false, Error: msg})
}
