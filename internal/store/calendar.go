package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
	"github.com/albacostas/planificadorFecha/internal/model"
)

// Calendars returns a copy of the calendars in insertion order.
func (s *Store) Calendars() []model.Calendar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Calendar, len(s.calendars))
	copy(out, s.calendars)
	return out
}

func (s *Store) Calendar(id uuid.UUID) (model.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.calendarIndexLocked(id)
	if i < 0 {
		return model.Calendar{}, fmt.Errorf("calendar %s: %w", id, ErrNotFound)
	}
	return s.calendars[i], nil
}

func (s *Store) calendarIndexLocked(id uuid.UUID) int {
	for i, c := range s.calendars {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// AddCalendar validates and appends a calendar. A nil ID is replaced with a
// fresh one.
func (s *Store) AddCalendar(ctx context.Context, c model.Calendar) (model.Calendar, error) {
	if err := ctx.Err(); err != nil {
		return model.Calendar{}, err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if err := c.Validate(); err != nil {
		return model.Calendar{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calendarIndexLocked(c.ID) >= 0 {
		return model.Calendar{}, fmt.Errorf("%w: calendar %s already exists", model.ErrInvalidCalendar, c.ID)
	}
	s.calendars = append(s.calendars, c)
	s.commitLocked()

	appLog.Debug("store: calendar added", "calendar_id", c.ID, "title", c.Title)
	return c, nil
}

// RemoveCalendar deletes a calendar and detaches the events that referenced
// it. The events themselves are kept.
func (s *Store) RemoveCalendar(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calendarIndexLocked(id)
	if i < 0 {
		return fmt.Errorf("calendar %s: %w", id, ErrNotFound)
	}
	s.calendars = append(s.calendars[:i:i], s.calendars[i+1:]...)

	detached := 0
	for eid, e := range s.events {
		if e.BelongsTo(id) {
			e.CalendarID = nil
			s.events[eid] = e
			detached++
		}
	}
	s.commitLocked()

	appLog.Debug("store: calendar removed", "calendar_id", id, "detached_events", detached)
	return nil
}

// UpdateCalendar replaces the calendar's title, color and visibility. A
// changed color is cascaded to every event of the calendar.
func (s *Store) UpdateCalendar(ctx context.Context, id uuid.UUID, c model.Calendar) (model.Calendar, error) {
	if err := ctx.Err(); err != nil {
		return model.Calendar{}, err
	}
	c.ID = id
	if err := c.Validate(); err != nil {
		return model.Calendar{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calendarIndexLocked(id)
	if i < 0 {
		return model.Calendar{}, fmt.Errorf("calendar %s: %w", id, ErrNotFound)
	}
	recolor := !s.calendars[i].Color.Equal(c.Color)
	s.calendars[i] = c
	if recolor {
		s.cascadeLocked(id, c.Color)
	}
	s.commitLocked()

	return c, nil
}
