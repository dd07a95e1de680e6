package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultIdleTimeout is how long a session may go without acquire or
	// heartbeat before the reaper evicts it.
	DefaultIdleTimeout = 15 * time.Second

	// DefaultReapInterval is the period of the background reaper.
	DefaultReapInterval = 5 * time.Second

	// DefaultEnginePath is used when Config.EnginePath is empty.
	DefaultEnginePath = "ffmpeg"
)

// Reap reasons, also used as metric label values.
const (
	ReasonUnwatched = "unwatched"
	ReasonIdle      = "idle"
	ReasonShutdown  = "shutdown"
)

var (
	// ErrEngineStart is returned by Acquire when the engine process could not
	// be launched. No session is registered in that case.
	ErrEngineStart = errors.New("engine failed to start")

	// ErrClosed is returned by Acquire after Close.
	ErrClosed = errors.New("supervisor closed")
)

// Observer receives lifecycle events. The metrics package implements it.
type Observer interface {
	SessionStarted()
	SessionReaped(reason string)
	EngineExited()
	EngineStartFailed()
}

type nopObserver struct{}

func (nopObserver) SessionStarted()      {}
func (nopObserver) SessionReaped(string) {}
func (nopObserver) EngineExited()        {}
func (nopObserver) EngineStartFailed()   {}

// Config holds the Supervisor settings.
type Config struct {
	// Root is the directory under which every session gets <Root>/<key>.
	Root        string
	EnginePath  string
	IdleTimeout time.Duration
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithLauncher replaces the process launcher (tests use fakes).
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) { s.launch = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// WithObserver installs a lifecycle observer. A nil observer is ignored.
func WithObserver(o Observer) Option {
	return func(s *Supervisor) {
		if o != nil {
			s.obs = o
		}
	}
}

// Supervisor starts, reference-counts and reaps one engine process per Key.
// Request handlers, the reaper and process exit observers all mutate the
// session table through s.mu.
type Supervisor struct {
	mu      sync.Mutex
	table   *Table
	nextGen uint64
	closed  bool

	root        string
	enginePath  string
	idleTimeout time.Duration

	launch Launcher
	log    *slog.Logger
	obs    Observer
	now    func() time.Time
}

// NewSupervisor returns a Supervisor writing session output under cfg.Root.
// Zero values in cfg fall back to the package defaults.
func NewSupervisor(cfg Config, log *slog.Logger, opts ...Option) *Supervisor {
	root := cfg.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	enginePath := cfg.EnginePath
	if enginePath == "" {
		enginePath = DefaultEnginePath
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Supervisor{
		table:       NewTable(),
		root:        root,
		enginePath:  enginePath,
		idleTimeout: idle,
		log:         log,
		obs:         nopObserver{},
		now:         time.Now,
	}
	s.launch = ExecLauncher(log)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the absolute output root.
func (s *Supervisor) Root() string {
	return s.root
}

// OutputDir returns the directory owned by the session for key.
func (s *Supervisor) OutputDir(key Key) string {
	return filepath.Join(s.root, string(key))
}

// Acquire attaches one viewer to key. If no session exists one is started
// against sourceURL; otherwise the existing session's watch count goes up
// and no new process is launched.
func (s *Supervisor) Acquire(key Key, sourceURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	now := s.now()
	if sess, ok := s.table.Get(key); ok {
		sess.watchCount++
		sess.lastActive = now
		s.log.Debug("session acquired",
			slog.String("stream_key", string(key)),
			slog.Int("watch_count", sess.watchCount))
		return nil
	}

	dir := s.OutputDir(key)
	args, err := BuildEngineArgs(sourceURL, dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	s.nextGen++
	gen := s.nextGen
	proc, err := s.launch(LaunchSpec{
		Key:    key,
		Binary: s.enginePath,
		Args:   args,
		Dir:    dir,
	}, func(exitErr error) {
		s.handleExit(key, gen, exitErr)
	})
	if err != nil {
		s.removeDir(key, dir)
		s.obs.EngineStartFailed()
		s.log.Error("engine start failed",
			slog.String("stream_key", string(key)),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrEngineStart, err)
	}

	s.table.Set(&Session{
		Key:        key,
		handle:     proc,
		generation: gen,
		outputDir:  dir,
		watchCount: 1,
		lastActive: now,
		startedAt:  now,
	})
	s.obs.SessionStarted()
	s.log.Info("session started",
		slog.String("stream_key", string(key)),
		slog.Int("pid", proc.Pid()))
	return nil
}

// Release detaches one viewer from key. The watch count never drops below
// zero. Teardown is left to the reaper; an unknown key is a no-op.
func (s *Supervisor) Release(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.table.Get(key)
	if !ok {
		return
	}
	if sess.watchCount > 0 {
		sess.watchCount--
	}
	s.log.Debug("session released",
		slog.String("stream_key", string(key)),
		slog.Int("watch_count", sess.watchCount))
}

// Heartbeat marks key as still in use. An unknown key is a no-op.
func (s *Supervisor) Heartbeat(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.table.Get(key); ok {
		sess.lastActive = s.now()
	}
}

// Reap evicts every session that has no viewers or has been idle longer
// than the idle timeout. It returns the number of sessions removed.
func (s *Supervisor) Reap() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, key := range s.table.Keys() {
		sess, _ := s.table.Get(key)
		reason, ok := s.reapReason(sess, now)
		if !ok {
			continue
		}
		s.teardownLocked(sess, reason)
		n++
	}
	return n
}

func (s *Supervisor) reapReason(sess *Session, now time.Time) (string, bool) {
	if sess.watchCount <= 0 {
		return ReasonUnwatched, true
	}
	if now.Sub(sess.lastActive) > s.idleTimeout {
		return ReasonIdle, true
	}
	return "", false
}

// Close tears down every session and refuses further acquires.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, key := range s.table.Keys() {
		sess, _ := s.table.Get(key)
		s.teardownLocked(sess, ReasonShutdown)
	}
}

// Session returns a copy of the session state for key.
func (s *Supervisor) Session(key Key) (SessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.table.Get(key)
	if !ok {
		return SessionInfo{}, false
	}
	return sess.info(), true
}

// Sessions returns copies of all sessions sorted by key.
func (s *Supervisor) Sessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SessionInfo, 0, s.table.Len())
	for _, key := range s.table.Keys() {
		sess, _ := s.table.Get(key)
		out = append(out, sess.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ActiveCount returns the number of live sessions.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Len()
}

// handleExit runs when an engine process terminates. Only the session that
// launched this process is removed, so the late exit of a reaped process
// cannot evict a newer session for the same key.
func (s *Supervisor) handleExit(key Key, gen uint64, exitErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.table.Get(key)
	if !ok || sess.generation != gen {
		return
	}
	s.table.Delete(key)
	s.removeDir(key, sess.outputDir)
	s.obs.EngineExited()

	attrs := []any{slog.String("stream_key", string(key))}
	if exitErr != nil {
		attrs = append(attrs, slog.String("error", exitErr.Error()))
	}
	s.log.Warn("engine exited, session removed", attrs...)
}

// teardownLocked kills the process, deletes the output directory and drops
// the table entry. Caller must hold s.mu.
func (s *Supervisor) teardownLocked(sess *Session, reason string) {
	s.table.Delete(sess.Key)
	if err := sess.handle.Kill(); err != nil {
		s.log.Warn("engine kill failed",
			slog.String("stream_key", string(sess.Key)),
			slog.String("error", err.Error()))
	}
	s.removeDir(sess.Key, sess.outputDir)
	s.obs.SessionReaped(reason)
	s.log.Info("session stopped",
		slog.String("stream_key", string(sess.Key)),
		slog.String("reason", reason))
}

func (s *Supervisor) removeDir(key Key, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.log.Warn("remove output dir failed",
			slog.String("stream_key", string(key)),
			slog.String("dir", dir),
			slog.String("error", err.Error()))
	}
}

// ResetOutputRoot empties root, creating it if needed. Directories left by a
// previous run are scratch space and are discarded at startup.
func ResetOutputRoot(root string) error {
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("clear output root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}
	return nil
}
