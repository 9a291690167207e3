package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
	"github.com/albacostas/planificadorFecha/internal/model"
)

// SetCalendarColor sets the calendar's color and overwrites the color of
// every event that references it. Other events are untouched.
func (s *Store) SetCalendarColor(ctx context.Context, calendarID uuid.UUID, color model.Color) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := color.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calendarIndexLocked(calendarID)
	if i < 0 {
		return fmt.Errorf("calendar %s: %w", calendarID, ErrNotFound)
	}
	s.calendars[i].Color = color
	n := s.cascadeLocked(calendarID, color)
	s.commitLocked()

	appLog.Info("store: calendar color cascaded", "calendar_id", calendarID, "color", color.Hex(), "events", n)
	return nil
}

func (s *Store) cascadeLocked(calendarID uuid.UUID, color model.Color) int {
	n := 0
	for id, e := range s.events {
		if !e.BelongsTo(calendarID) {
			continue
		}
		e.Color = color
		s.events[id] = e
		n++
	}
	return n
}
