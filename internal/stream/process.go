package stream

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Process is a running engine invocation owned by exactly one Session.
type Process interface {
	// Kill terminates the process with SIGKILL. Killing an exited process is a no-op.
	Kill() error
	// Done is closed after the process has exited and its exit observer has returned.
	Done() <-chan struct{}
	// Err reports the wait error once Done is closed.
	Err() error
	Pid() int
}

// LaunchSpec describes one engine invocation.
type LaunchSpec struct {
	Key    Key
	Binary string
	Args   []string
	Dir    string
}

// Launcher starts an engine invocation. onExit must be called exactly once,
// from any goroutine, after the process terminates for any reason.
type Launcher func(spec LaunchSpec, onExit func(error)) (Process, error)

// ExecLauncher returns a Launcher that runs spec.Binary as a child process.
// Its stdout and stderr are forwarded line by line to log at debug level.
func ExecLauncher(log *slog.Logger) Launcher {
	return func(spec LaunchSpec, onExit func(error)) (Process, error) {
		p, err := startProcess(log, spec, onExit)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

type processHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu  sync.Mutex
	err error
}

// startProcess deliberately avoids exec.CommandContext: the engine outlives
// the request that started it and is only ended by Kill.
func startProcess(log *slog.Logger, spec LaunchSpec, onExit func(error)) (*processHandle, error) {
	if spec.Binary == "" {
		return nil, errors.New("engine binary is required")
	}
	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdin = nil
	cmd.Stdout = newLogWriter(log, spec.Key, "stdout")
	cmd.Stderr = newLogWriter(log, spec.Key, "stderr")
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &processHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		if onExit != nil {
			onExit(err)
		}
		close(p.done)
	}()
	return p, nil
}

func (p *processHandle) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", p.cmd.Process.Pid, err)
	}
	return nil
}

func (p *processHandle) Done() <-chan struct{} {
	return p.done
}

func (p *processHandle) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *processHandle) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// logWriter turns engine output into log records, one per non-empty line.
type logWriter struct {
	log    *slog.Logger
	key    Key
	stream string
}

func newLogWriter(log *slog.Logger, key Key, stream string) *logWriter {
	return &logWriter{log: log, key: key, stream: stream}
}

func (w *logWriter) Write(p []byte) (int, error) {
	total := len(p)
	if w.log == nil {
		return total, nil
	}
	for len(p) > 0 {
		idx := bytes.IndexByte(p, '\n')
		var line []byte
		if idx == -1 {
			line = p
			p = nil
		} else {
			line = p[:idx]
			p = p[idx+1:]
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		w.log.Debug("engine output",
			slog.String("stream_key", string(w.key)),
			slog.String("stream", w.stream),
			slog.String("line", string(line)))
	}
	return total, nil
}
