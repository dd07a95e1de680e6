package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	manifestContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"
	defaultContentType  = "application/octet-stream"
)

// Wait outcomes reported to the Observer.
const (
	WaitReady   = "ready"
	WaitTimeout = "timeout"
)

// Observer records how waits for not-yet-written files ended.
type Observer interface {
	FileWait(outcome string)
}

// ContentType maps a manifest or segment file name to its media type.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		return manifestContentType
	case ".ts":
		return segmentContentType
	default:
		return defaultContentType
	}
}

// Config configures the media Handler.
type Config struct {
	Root         string
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// Handler serves engine output below a fixed root. It only ever reads; the
// session that owns a directory is the only one that writes or deletes it.
type Handler struct {
	root         string
	waitTimeout  time.Duration
	pollInterval time.Duration
	log          *slog.Logger
	obs          Observer
}

// NewHandler returns a Handler for cfg. obs may be nil.
func NewHandler(cfg Config, log *slog.Logger, obs Observer) *Handler {
	root := cfg.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	wait := cfg.WaitTimeout
	if wait <= 0 {
		wait = DefaultWaitTimeout
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{root: root, waitTimeout: wait, pollInterval: poll, log: log, obs: obs}
}

// ServeHTTP handles GET and HEAD /hls/*. The wildcard is resolved under the
// root; files the engine has not produced yet are waited for.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	reqPath, err := wildcardPath(r)
	if err != nil {
		h.log.Warn("media path rejected", slog.String("path", chi.URLParam(r, "*")))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	path, err := Resolve(h.root, reqPath)
	if err != nil {
		h.log.Warn("media path rejected", slog.String("path", reqPath))
		w.WriteHeader(http.StatusForbidden)
		return
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		info, err = WaitForFile(r.Context(), h.root, path, h.waitTimeout, h.pollInterval)
		h.recordWait(err)
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrNotReady):
			h.log.Debug("media file not ready", slog.String("path", reqPath))
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, context.Canceled):
			h.log.Debug("media request abandoned while waiting", slog.String("path", reqPath))
		case errors.Is(err, context.DeadlineExceeded):
			h.log.Debug("media request deadline hit while waiting", slog.String("path", reqPath))
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			h.log.Error("stat media file failed", slog.String("path", reqPath), slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	if info.IsDir() {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	h.serveFile(w, r, path)
}

// wildcardPath returns the decoded "/hls/*" remainder. chi matches on
// URL.RawPath when the request carries non-canonical escapes, so "%2e%2e"
// must be decoded here before Resolve can see it as a dot segment.
func wildcardPath(r *http.Request) (string, error) {
	p := chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return p, nil
	}
	return url.PathUnescape(p)
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		// Segments are pruned by the engine; a stale playlist entry is a 404.
		if errors.Is(err, fs.ErrNotExist) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("open media file failed", slog.String("path", path), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer f.Close()

	// The engine may still be appending; the size is fixed here so the
	// declared length and the body always agree.
	info, err := f.Stat()
	if err != nil {
		h.log.Error("stat open media file failed", slog.String("path", path), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	size := info.Size()

	contentType := ContentType(path)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	if contentType == manifestContentType {
		w.Header().Set("Cache-Control", "no-cache")
	}

	start, length := int64(0), size
	status := http.StatusOK
	if header := r.Header.Get("Range"); header != "" {
		br, err := parseRange(header, size)
		if err != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		start, length = br.start, br.length()
		w.Header().Set("Content-Range", br.contentRange(size))
		status = http.StatusPartialContent
	}

	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, io.NewSectionReader(f, start, length)); err != nil {
		h.log.Debug("media copy interrupted", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func (h *Handler) recordWait(err error) {
	if h.obs == nil {
		return
	}
	switch {
	case err == nil:
		h.obs.FileWait(WaitReady)
	case errors.Is(err, ErrNotReady):
		h.obs.FileWait(WaitTimeout)
	}
}
