// Package snapshot grabs a single JPEG frame from a network video source by
// running the transcoding engine once.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds one engine run.
const DefaultTimeout = 15 * time.Second

var (
	// ErrInvalidSource is returned for an empty or unparsable source URL.
	ErrInvalidSource = errors.New("invalid snapshot source")

	// ErrCapture wraps engine failures and empty output.
	ErrCapture = errors.New("snapshot capture failed")
)

// Runner executes the engine and returns its stdout.
type Runner func(ctx context.Context, bin string, args []string) ([]byte, error)

// Grabber captures stills. Concurrent requests for the same source share a
// single engine run.
type Grabber struct {
	enginePath string
	timeout    time.Duration
	run        Runner
	log        *slog.Logger
	group      singleflight.Group
}

// New returns a Grabber that runs enginePath with the given per-run timeout.
func New(enginePath string, timeout time.Duration, log *slog.Logger) *Grabber {
	return NewWithRunner(enginePath, timeout, log, execRunner)
}

// NewWithRunner is New with a custom Runner.
func NewWithRunner(enginePath string, timeout time.Duration, log *slog.Logger, run Runner) *Grabber {
	if enginePath == "" {
		enginePath = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Grabber{enginePath: enginePath, timeout: timeout, run: run, log: log}
}

// Args returns the engine arguments that write one high quality JPEG frame
// of sourceURL to stdout.
func Args(sourceURL string) ([]string, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	u, err := url.Parse(sourceURL)
	if sourceURL == "" || err != nil || u.Scheme == "" {
		return nil, ErrInvalidSource
	}
	args := make([]string, 0, 12)
	switch strings.ToLower(u.Scheme) {
	case "rtsp", "rtsps":
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args,
		"-i", sourceURL,
		"-vframes", "1",
		"-f", "image2",
		"-q:v", "2",
		"pipe:1",
	)
	return args, nil
}

// Capture returns a JPEG frame from sourceURL. The engine run is detached
// from ctx so that one impatient caller does not fail the others sharing it;
// ctx only bounds how long this caller waits.
func (g *Grabber) Capture(ctx context.Context, sourceURL string) ([]byte, error) {
	args, err := Args(sourceURL)
	if err != nil {
		return nil, err
	}

	ch := g.group.DoChan(sourceURL, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()
		start := time.Now()
		img, err := g.run(runCtx, g.enginePath, args)
		if err != nil {
			return nil, err
		}
		g.log.Debug("snapshot captured",
			slog.Int("bytes", len(img)),
			slog.Int("duration_ms", int(time.Since(start).Milliseconds())))
		return img, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCapture, res.Err)
		}
		img, _ := res.Val.([]byte)
		if len(img) == 0 {
			return nil, fmt.Errorf("%w: engine produced no image", ErrCapture)
		}
		return img, nil
	}
}

func execRunner(ctx context.Context, bin string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w - %s", err, lastLine(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

func lastLine(b []byte) string {
	b = bytes.TrimSpace(b)
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}
