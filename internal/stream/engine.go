package stream

import (
	"errors"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrInvalidSource is returned when the source URL cannot be handed to the engine.
var ErrInvalidSource = errors.New("invalid source url")

// BuildEngineArgs returns the engine arguments that pull sourceURL, drop
// audio and write a short rolling low-latency HLS window into outputDir.
func BuildEngineArgs(sourceURL, outputDir string) ([]string, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, ErrInvalidSource
	}
	u, err := url.Parse(sourceURL)
	if err != nil || u.Scheme == "" {
		return nil, ErrInvalidSource
	}

	args := make([]string, 0, 40)
	switch strings.ToLower(u.Scheme) {
	case "rtsp", "rtsps":
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args,
		"-i", sourceURL,
		"-an",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-profile:v", "baseline",
		"-level", "3.1",
		"-x264opts", "keyint=5:min-keyint=5:no-scenecut",
		"-flags", "low_delay",
		"-fflags", "nobuffer",
		"-flags", "+global_header",
		"-f", "hls",
		"-hls_time", "0.2",
		"-hls_list_size", "3",
		"-hls_flags", "delete_segments+append_list+omit_endlist",
		filepath.Join(outputDir, manifestName),
	)
	return args, nil
}
