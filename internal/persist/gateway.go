// Package persist implements the load/save contract behind the event store.
// Backends exchange whole snapshots; the store never sees rows or files.
package persist

import (
	"context"
	"errors"

	"github.com/albacostas/planificadorFecha/internal/model"
)

var (
	// ErrUnavailable wraps every backend failure, including "nothing saved yet".
	ErrUnavailable = errors.New("persistence unavailable")
	// ErrNoData marks a backend that was reachable but has never been saved to.
	ErrNoData = errors.New("no saved data")
)

// Snapshot is the full persisted state.
type Snapshot struct {
	Events    []model.Event    `json:"events"`
	Calendars []model.Calendar `json:"calendars"`
}

// Clone deep-copies the snapshot so a saver can hold it while the store
// keeps mutating.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Events:    make([]model.Event, len(s.Events)),
		Calendars: make([]model.Calendar, len(s.Calendars)),
	}
	for i, e := range s.Events {
		out.Events[i] = e.Clone()
	}
	copy(out.Calendars, s.Calendars)
	return out
}

// Gateway is implemented by each storage backend.
type Gateway interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}
