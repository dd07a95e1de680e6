package hls

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) FileWait(outcome string) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func (o *recordingObserver) all() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.outcomes...)
}

func newTestHandler(t *testing.T, wait time.Duration) (*Handler, string, *recordingObserver) {
	t.Helper()
	root := t.TempDir()
	obs := &recordingObserver{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(Config{Root: root, WaitTimeout: wait, PollInterval: 10 * time.Millisecond}, log, obs)
	return h, root, obs
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/hls/*", h.ServeHTTP)
	r.Head("/hls/*", h.ServeHTTP)
	return r
}

// segmentBytes returns n bytes where byte i has value i%256.
func segmentBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 256)
	}
	return b
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHandler_full_segment(t *testing.T) {
	h, root, obs := newTestHandler(t, time.Second)
	data := segmentBytes(1000)
	writeFile(t, filepath.Join(root, "cam1_1", "index0.ts"), data)

	req := httptest.NewRequest(http.MethodGet, "/hls/cam1_1/index0.ts", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp2t" {
		t.Errorf("content type: got %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "1000" {
		t.Errorf("content length: got %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("body does not match file content")
	}
	if len(obs.all()) != 0 {
		t.Errorf("existing file must not wait, got %v", obs.all())
	}
}

func TestHandler_manifest_headers(t *testing.T) {
	h, root, _ := newTestHandler(t, time.Second)
	writeFile(t, filepath.Join(root, "cam1_1", "index.m3u8"), []byte("#EXTM3U\n#EXT-X-VERSION:3\n"))

	req := httptest.NewRequest(http.MethodGet, "/hls/cam1_1/index.m3u8", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/vnd.apple.mpegurl" {
		t.Errorf("content type: got %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("cache control: got %q", got)
	}
}

func TestHandler_range(t *testing.T) {
	h, root, _ := newTestHandler(t, time.Second)
	data := segmentBytes(100)
	writeFile(t, filepath.Join(root, "cam1_1", "index1.ts"), data)
	r := newTestRouter(h)

	cases := []struct {
		header       string
		wantRange    string
		start, end   int
		wantBodySize int
	}{
		{"bytes=10-19", "bytes 10-19/100", 10, 19, 10},
		{"bytes=10-", "bytes 10-99/100", 10, 99, 90},
		{"bytes=90-500", "bytes 90-99/100", 90, 99, 10},
		{"bytes=-5", "bytes 95-99/100", 95, 99, 5},
		{"bytes=0-0", "bytes 0-0/100", 0, 0, 1},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/hls/cam1_1/index1.ts", nil)
		req.Header.Set("Range", c.header)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusPartialContent {
			t.Errorf("%s: expected 206, got %d", c.header, rec.Code)
			continue
		}
		if got := rec.Header().Get("Content-Range"); got != c.wantRange {
			t.Errorf("%s: content range got %q want %q", c.header, got, c.wantRange)
		}
		if got := rec.Header().Get("Content-Length"); got != strconv.Itoa(c.wantBodySize) {
			t.Errorf("%s: content length got %q want %d", c.header, got, c.wantBodySize)
		}
		if !bytes.Equal(rec.Body.Bytes(), data[c.start:c.end+1]) {
			t.Errorf("%s: body mismatch, got %d bytes", c.header, rec.Body.Len())
		}
	}
}

func TestHandler_range_unsatisfiable(t *testing.T) {
	h, root, _ := newTestHandler(t, time.Second)
	writeFile(t, filepath.Join(root, "cam1_1", "index1.ts"), segmentBytes(100))
	r := newTestRouter(h)

	for _, header := range []string{"bytes=100-", "bytes=20-10", "bytes=0-1,5-6", "items=0-1", "bytes=x-"} {
		req := httptest.NewRequest(http.MethodGet, "/hls/cam1_1/index1.ts", nil)
		req.Header.Set("Range", header)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusRequestedRangeNotSatisfiable {
			t.Errorf("%s: expected 416, got %d", header, rec.Code)
		}
		if got := rec.Header().Get("Content-Range"); got != "bytes */100" {
			t.Errorf("%s: content range got %q", header, got)
		}
	}
}

func TestHandler_traversal_rejected(t *testing.T) {
	h, _, obs := newTestHandler(t, time.Second)

	start := time.Now()
	req := httptest.NewRequest(http.MethodGet, "/hls/../../etc/passwd", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Error("forbidden response must not carry file content")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("traversal must be rejected without waiting, took %v", elapsed)
	}
	if len(obs.all()) != 0 {
		t.Errorf("no wait expected, got %v", obs.all())
	}
}

func TestHandler_encoded_traversal_rejected(t *testing.T) {
	h, _, obs := newTestHandler(t, time.Second)
	r := newTestRouter(h)

	for _, target := range []string{
		"/hls/%2e%2e/%2e%2e/etc/passwd",
		"/hls/cam1_1/%2E%2E/%2e%2e/etc/passwd",
		"/hls/..%2f..%2fetc/passwd",
	} {
		start := time.Now()
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", target, rec.Code)
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("%s: rejected only after %v", target, elapsed)
		}
	}
	if len(obs.all()) != 0 {
		t.Errorf("no wait expected, got %v", obs.all())
	}
}

func TestHandler_escaped_name_served(t *testing.T) {
	h, root, _ := newTestHandler(t, time.Second)
	data := segmentBytes(16)
	writeFile(t, filepath.Join(root, "cam 1_1", "index0.ts"), data)

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hls/cam%201_1/index0.ts", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("body mismatch")
	}
}

func TestHandler_request_deadline_during_wait(t *testing.T) {
	h, _, _ := newTestHandler(t, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/hls/cam1_1/index.m3u8", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}

func TestHandler_waits_for_late_file(t *testing.T) {
	h, root, obs := newTestHandler(t, 3*time.Second)
	target := filepath.Join(root, "cam1_1", "index2.ts")
	data := segmentBytes(64)

	go func() {
		time.Sleep(100 * time.Millisecond)
		writeFileNoT(target, data)
	}()

	req := httptest.NewRequest(http.MethodGet, "/hls/cam1_1/index2.ts", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Errorf("body mismatch: got %d bytes", rec.Body.Len())
	}
	if got := obs.all(); len(got) != 1 || got[0] != WaitReady {
		t.Errorf("observer: got %v", got)
	}
}

func TestHandler_wait_timeout(t *testing.T) {
	const bound = 200 * time.Millisecond
	h, _, obs := newTestHandler(t, bound)

	start := time.Now()
	req := httptest.NewRequest(http.MethodGet, "/hls/cam1_1/index.m3u8", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)
	elapsed := time.Since(start)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After on a not-ready file")
	}
	if elapsed < bound {
		t.Errorf("request failed after %v, before the %v bound", elapsed, bound)
	}
	if got := obs.all(); len(got) != 1 || got[0] != WaitTimeout {
		t.Errorf("observer: got %v", got)
	}
}

func TestHandler_head(t *testing.T) {
	h, root, _ := newTestHandler(t, time.Second)
	writeFile(t, filepath.Join(root, "cam1_1", "index0.ts"), segmentBytes(42))

	req := httptest.NewRequest(http.MethodHead, "/hls/cam1_1/index0.ts", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Length"); got != "42" {
		t.Errorf("content length: got %q", got)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD must not return a body, got %d bytes", rec.Body.Len())
	}
}

func TestHandler_directory_not_served(t *testing.T) {
	h, root, _ := newTestHandler(t, time.Second)
	if err := os.MkdirAll(filepath.Join(root, "cam1_1"), 0o755); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/hls/cam1_1", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_does_not_modify_tree(t *testing.T) {
	h, root, _ := newTestHandler(t, 50*time.Millisecond)
	req := httptest.NewRequest(http.MethodGet, "/hls/cam9_1/index.m3u8", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if _, err := os.Stat(filepath.Join(root, "cam9_1")); !os.IsNotExist(err) {
		t.Errorf("delivery must not create session directories, stat err=%v", err)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"index.m3u8":  "application/vnd.apple.mpegurl",
		"INDEX.M3U8":  "application/vnd.apple.mpegurl",
		"index12.ts":  "video/mp2t",
		"init.mp4":    "application/octet-stream",
		"no-ext-file": "application/octet-stream",
	}
	for name, want := range cases {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q): got %q want %q", name, got, want)
		}
	}
}

func writeFileNoT(path string, data []byte) {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	tmp := path + ".tmp"
	_ = os.WriteFile(tmp, data, 0o644)
	_ = os.Rename(tmp, path)
}
