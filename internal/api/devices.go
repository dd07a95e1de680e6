package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"ipcam-hls/internal/camera"
	"ipcam-hls/internal/snapshot"
)

// Snapshot sources reported to metrics.
const (
	sourceEngine = "engine"
	sourceCamera = "camera"
)

// CaptureSnapshot handles GET /captureSnapshot. With ?rtspUrl= the frame is
// grabbed by the engine; otherwise ?ip=&admin=&password=[&channelId=&stream=]
// asks the camera for its own still.
func (h *Handler) CaptureSnapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	log := h.requestLog(r)

	if src := q.Get("rtspUrl"); src != "" {
		img, err := h.snaps.Capture(r.Context(), src)
		if err != nil {
			h.snapshotError(w, r, log, err)
			return
		}
		if h.metrics != nil {
			h.metrics.IncSnapshots(sourceEngine)
		}
		writeImage(w, img)
		return
	}

	cred, ok := credentials(w, r)
	if !ok {
		return
	}
	channel := 0
	if s := q.Get("channelId"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "channelId must be a positive integer")
			return
		}
		channel = n
	}
	streamID := q.Get("stream")
	if streamID != "" && streamID != "01" && streamID != "02" {
		writeError(w, http.StatusBadRequest, `stream must be "01" or "02"`)
		return
	}

	img, err := h.cam.Snapshot(r.Context(), cred, channel, streamID)
	if err != nil {
		h.cameraError(w, r, log, "camera snapshot failed", err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncSnapshots(sourceCamera)
	}
	writeImage(w, img)
}

// GetDeviceInfo handles GET /getDeviceInfo?ip=&admin=&password=.
func (h *Handler) GetDeviceInfo(w http.ResponseWriter, r *http.Request) {
	cred, ok := credentials(w, r)
	if !ok {
		return
	}
	info, err := h.cam.DeviceInfo(r.Context(), cred)
	if err != nil {
		h.cameraError(w, r, h.requestLog(r), "device info failed", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetIpcChannels handles GET /getIpcChannels?ip=&admin=&password=.
func (h *Handler) GetIpcChannels(w http.ResponseWriter, r *http.Request) {
	cred, ok := credentials(w, r)
	if !ok {
		return
	}
	chans, err := h.cam.StreamingChannels(r.Context(), cred)
	if err != nil {
		h.cameraError(w, r, h.requestLog(r), "streaming channels failed", err)
		return
	}
	writeJSON(w, http.StatusOK, chans)
}

// GetIpcChannelsName handles GET /getIpcChannelsName?ip=&admin=&password=.
func (h *Handler) GetIpcChannelsName(w http.ResponseWriter, r *http.Request) {
	cred, ok := credentials(w, r)
	if !ok {
		return
	}
	chans, err := h.cam.InputProxyChannels(r.Context(), cred)
	if err != nil {
		h.cameraError(w, r, h.requestLog(r), "input proxy channels failed", err)
		return
	}
	writeJSON(w, http.StatusOK, chans)
}

// GetDevicePorts handles GET /getDevicePorts?ip=&admin=&password=.
func (h *Handler) GetDevicePorts(w http.ResponseWriter, r *http.Request) {
	cred, ok := credentials(w, r)
	if !ok {
		return
	}
	ports, err := h.cam.Ports(r.Context(), cred)
	if err != nil {
		h.cameraError(w, r, h.requestLog(r), "device ports failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ports)
}

func credentials(w http.ResponseWriter, r *http.Request) (camera.Credentials, bool) {
	q := r.URL.Query()
	cred := camera.Credentials{
		Host:     q.Get("ip"),
		Username: q.Get("admin"),
		Password: q.Get("password"),
	}
	if cred.Host == "" || cred.Username == "" {
		writeError(w, http.StatusBadRequest, "ip and admin are required")
		return camera.Credentials{}, false
	}
	return cred, true
}

func (h *Handler) snapshotError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, snapshot.ErrInvalidSource):
		writeError(w, http.StatusBadRequest, err.Error())
	case r.Context().Err() != nil:
		// Client went away.
	default:
		log.Error("snapshot failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "snapshot failed")
	}
}

func (h *Handler) cameraError(w http.ResponseWriter, r *http.Request, log *slog.Logger, msg string, err error) {
	if r.Context().Err() != nil {
		return
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, camera.ErrMissingHost):
		status = http.StatusBadRequest
	case errors.Is(err, camera.ErrUnauthorized),
		errors.Is(err, camera.ErrStatus),
		errors.Is(err, camera.ErrMalformedResponse):
		status = http.StatusBadGateway
	}
	log.Error(msg,
		slog.String("host", r.URL.Query().Get("ip")),
		slog.Int("status", status),
		slog.String("error", err.Error()))
	writeError(w, status, msg)
}
