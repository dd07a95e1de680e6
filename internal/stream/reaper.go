package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type reaper interface {
	Reap() int
}

type reapTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) reapTicker

// StartReaper runs s.Reap every interval until ctx is done or the returned
// stop function is called. stop blocks until the worker has exited and is
// safe to call more than once.
func StartReaper(ctx context.Context, log *slog.Logger, s *Supervisor, interval time.Duration) func() {
	return startReaperWithTicker(ctx, log, s, interval, func(d time.Duration) reapTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startReaperWithTicker(ctx context.Context, log *slog.Logger, r reaper, interval time.Duration, newTicker tickerFactory) func() {
	if r == nil || interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				if n := r.Reap(); n > 0 && log != nil {
					log.Info("reaper evicted sessions", slog.Int("count", n))
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
