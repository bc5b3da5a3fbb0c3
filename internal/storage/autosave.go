package storage

import (
	"log/slog"
	"time"
)

// Autosaver flushes dirty sessions to the repository on a fixed interval.
// Flush errors are logged and retried on the next tick; autosave never
// surfaces failures to interactive operations.
type Autosaver struct {
	store    *Store
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewAutosaver(store *Store, interval time.Duration) *Autosaver {
	return &Autosaver{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background flush loop.
func (a *Autosaver) Start() {
	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := a.store.Flush(); err != nil {
					slog.Warn("Autosave flush failed, will retry", "err", err)
				}
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and performs a final flush. The final flush ignores
// per-session autosave flags: a session that opted out of periodic saves must
// still survive shutdown.
func (a *Autosaver) Stop() {
	close(a.stop)
	<-a.done
	if err := a.store.FlushAll(); err != nil {
		slog.Error("Final autosave flush failed", "err", err)
	}
}
