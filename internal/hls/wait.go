package hls

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrNotReady is returned when a file did not appear within the wait bound.
// Clients should retry.
var ErrNotReady = errors.New("file not available yet")

const (
	// DefaultWaitTimeout bounds how long a request waits for a file the
	// engine has not written yet.
	DefaultWaitTimeout = 10 * time.Second

	// DefaultPollInterval is the first polling step; it doubles up to maxPollInterval.
	DefaultPollInterval = 100 * time.Millisecond

	maxPollInterval = time.Second
)

// WaitForFile returns the FileInfo for path as soon as it exists. It reacts
// to filesystem notifications on the nearest existing ancestor below root
// and polls with backoff as a fallback. ErrNotReady is returned once timeout
// has elapsed, never earlier; if ctx ends first its error is returned.
func WaitForFile(ctx context.Context, root, path string, timeout, poll time.Duration) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if timeout <= 0 {
		return nil, ErrNotReady
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	watcher := newDirWatcher(root, path)
	defer func() { watcher.close() }()

	timer := time.NewTimer(poll)
	defer timer.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if info, err := os.Stat(path); err == nil {
				return info, nil
			}
			return nil, ErrNotReady
		case _, ok := <-watcher.events():
			if !ok {
				watcher.close()
				watcher = nil
				continue
			}
			watcher.rewatch()
		case _, ok := <-watcher.errors():
			if !ok {
				watcher.close()
				watcher = nil
			}
		case <-timer.C:
			poll *= 2
			if poll > maxPollInterval {
				poll = maxPollInterval
			}
			timer.Reset(poll)
		}

		info, err := os.Stat(path)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
}

// dirWatcher keeps a single fsnotify watch on the deepest existing directory
// between root and the target's parent, moving it down as directories appear.
// A nil *dirWatcher is valid and never delivers events.
type dirWatcher struct {
	w       *fsnotify.Watcher
	root    string
	target  string
	watched string
}

func newDirWatcher(root, target string) *dirWatcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	d := &dirWatcher{w: w, root: filepath.Clean(root), target: target}
	if !d.rewatch() {
		_ = w.Close()
		return nil
	}
	return d
}

func (d *dirWatcher) rewatch() bool {
	if d == nil {
		return false
	}
	dir := nearestExistingDir(filepath.Dir(d.target), d.root)
	if dir == "" {
		return false
	}
	if dir == d.watched {
		return true
	}
	if err := d.w.Add(dir); err != nil {
		return false
	}
	if d.watched != "" {
		_ = d.w.Remove(d.watched)
	}
	d.watched = dir
	return true
}

func (d *dirWatcher) events() <-chan fsnotify.Event {
	if d == nil {
		return nil
	}
	return d.w.Events
}

func (d *dirWatcher) errors() <-chan error {
	if d == nil {
		return nil
	}
	return d.w.Errors
}

func (d *dirWatcher) close() {
	if d == nil {
		return
	}
	_ = d.w.Close()
}

func nearestExistingDir(dir, root string) string {
	for within(dir, root) {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return dir
		}
		if dir == root {
			break
		}
		dir = filepath.Dir(dir)
	}
	return ""
}
