package api

import (
	"errors"
	"log/slog"
	"net/http"

	"ipcam-hls/internal/stream"
)

type startResponse struct {
	OK   bool   `json:"ok"`
	M3U8 string `json:"m3u8"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// StreamStart handles GET /streamStart?deviceId=&channel=&rtsp=.
// It attaches a viewer to the device channel, launching the engine if no
// session exists yet, and returns the manifest path to play.
func (h *Handler) StreamStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src := q.Get("rtsp")
	key, ok := h.streamKey(w, r)
	if !ok {
		return
	}
	if src == "" {
		writeError(w, http.StatusBadRequest, "rtsp is required")
		return
	}

	log := h.requestLog(r).With(slog.String("stream_key", string(key)))
	if err := h.sessions.Acquire(key, src); err != nil {
		switch {
		case errors.Is(err, stream.ErrInvalidSource):
			log.Debug("stream start rejected", slog.String("error", err.Error()))
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, stream.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			log.Error("stream start failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "stream start failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, startResponse{OK: true, M3U8: stream.ManifestPath(key)})
}

// StreamStop handles GET /streamStop?deviceId=&channel=. The session is
// left for the reaper to tear down once it has no viewers.
func (h *Handler) StreamStop(w http.ResponseWriter, r *http.Request) {
	key, ok := h.streamKey(w, r)
	if !ok {
		return
	}
	h.sessions.Release(key)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// StreamHeartbeat handles GET /streamHeartbeat?deviceId=&channel=.
func (h *Handler) StreamHeartbeat(w http.ResponseWriter, r *http.Request) {
	key, ok := h.streamKey(w, r)
	if !ok {
		return
	}
	h.sessions.Heartbeat(key)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// ListStreams handles GET /streams and reports every live session.
func (h *Handler) ListStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Sessions())
}

// streamKey reads deviceId and channel and writes a 400 when they do not
// form a valid key.
func (h *Handler) streamKey(w http.ResponseWriter, r *http.Request) (stream.Key, bool) {
	q := r.URL.Query()
	deviceID, channel := q.Get("deviceId"), q.Get("channel")
	if deviceID == "" || channel == "" {
		writeError(w, http.StatusBadRequest, "deviceId and channel are required")
		return "", false
	}
	key, err := stream.NewKey(deviceID, channel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return key, true
}
