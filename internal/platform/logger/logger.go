package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName is attached to every record as the "service" attribute.
const ServiceName = "ipcam-hls"

// ParseLevel maps LOG_LEVEL to a slog level. It accepts the slog names in
// any case, "warning" as an alias for warn, and offsets such as "info+2".
// An empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return slog.LevelInfo, nil
	}
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", s)
	}
	return lvl, nil
}

// ParseFormat accepts "json" or "text" in any case. An empty string is json.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", "json":
		return "json", nil
	case "text":
		return f, nil
	default:
		return "", fmt.Errorf("logger: unknown format %q", s)
	}
}

// New returns a structured logger writing to stdout. Unknown levels fall back
// to info and unknown formats to json; config validation rejects both earlier.
func New(level, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	f, err := ParseFormat(format)
	if err != nil {
		f = "json"
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if f == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h).With(slog.String("service", ServiceName))
}
