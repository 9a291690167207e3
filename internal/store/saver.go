package store

import (
	"context"
	"sync"
	"time"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
	"github.com/albacostas/planificadorFecha/internal/persist"
)

// saver persists snapshots on a single goroutine. Only the newest pending
// snapshot is kept; a failed save stays pending until a newer one replaces
// it or a later drain succeeds.
type saver struct {
	gw      persist.Gateway
	timeout time.Duration

	mu      sync.Mutex
	next    *persist.Snapshot
	lastErr error

	// saveMu serializes calls into the gateway.
	saveMu sync.Mutex

	kick      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSaver(gw persist.Gateway, timeout time.Duration) *saver {
	return &saver{
		gw:      gw,
		timeout: timeout,
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// schedule never blocks.
func (sv *saver) schedule(snap persist.Snapshot) {
	sv.mu.Lock()
	sv.next = &snap
	sv.mu.Unlock()

	select {
	case sv.kick <- struct{}{}:
	default:
	}
}

func (sv *saver) run() {
	defer close(sv.done)
	for {
		select {
		case <-sv.kick:
			ctx, cancel := context.WithTimeout(context.Background(), sv.timeout)
			_ = sv.drain(ctx)
			cancel()
		case <-sv.stop:
			return
		}
	}
}

func (sv *saver) drain(ctx context.Context) error {
	sv.saveMu.Lock()
	defer sv.saveMu.Unlock()

	sv.mu.Lock()
	snap := sv.next
	sv.next = nil
	sv.mu.Unlock()
	if snap == nil {
		return nil
	}

	err := sv.gw.Save(ctx, *snap)

	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.lastErr = err
	if err != nil {
		if sv.next == nil {
			sv.next = snap
		}
		appLog.Error("store: save failed, keeping snapshot pending", err,
			"events", len(snap.Events),
			"calendars", len(snap.Calendars),
		)
		return err
	}
	appLog.Debug("store: snapshot saved", "events", len(snap.Events), "calendars", len(snap.Calendars))
	return nil
}

func (sv *saver) pending() bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.next != nil
}

// LastSaveError returns the outcome of the most recent save attempt.
func (s *Store) LastSaveError() error {
	s.saver.mu.Lock()
	defer s.saver.mu.Unlock()
	return s.saver.lastErr
}

func (sv *saver) close(ctx context.Context) error {
	sv.closeOnce.Do(func() {
		close(sv.stop)
	})
	select {
	case <-sv.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return sv.drain(ctx)
}
