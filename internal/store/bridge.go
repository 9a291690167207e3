package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
	"github.com/albacostas/planificadorFecha/internal/model"
)

// EventFor returns a copy of the canonical event. Unknown IDs return
// ErrNotFound.
func (s *Store) EventFor(id uuid.UUID) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return model.Event{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return e.Clone(), nil
}

// EventForOccurrence resolves a displayed occurrence to its source event.
func (s *Store) EventForOccurrence(key model.OccurrenceKey) (model.Event, error) {
	return s.EventFor(key.SourceID)
}

// WriteBack replaces the canonical event with newValue. The ID of the
// stored record is always id.
func (s *Store) WriteBack(ctx context.Context, id uuid.UUID, newValue model.Event) (model.Event, error) {
	return s.Update(ctx, id, newValue)
}

// Edit applies fn to a copy of the canonical event and stores the result if
// it validates. Editing through an occurrence edits the whole series, and
// the anchor date only changes if fn changes it.
func (s *Store) Edit(ctx context.Context, id uuid.UUID, fn func(e *model.Event) error) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.events[id]
	if !ok {
		return model.Event{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return model.Event{}, err
	}
	next.ID = id
	if next.Tasks == nil {
		next.Tasks = []model.Task{}
	}
	if err := s.prepareLocked(&next); err != nil {
		return model.Event{}, err
	}
	s.events[id] = next
	s.commitLocked()

	appLog.Debug("store: event updated", "event_id", id, "title", next.Title)
	return next.Clone(), nil
}

// ToggleTask flips the completion flag of one task.
func (s *Store) ToggleTask(ctx context.Context, eventID, taskID uuid.UUID) (model.Event, error) {
	return s.Edit(ctx, eventID, func(e *model.Event) error {
		for i := range e.Tasks {
			if e.Tasks[i].ID == taskID {
				e.Tasks[i].IsCompleted = !e.Tasks[i].IsCompleted
				return nil
			}
		}
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	})
}
