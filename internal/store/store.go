// Package store owns the canonical collection of events and calendars. All
// writes go through it: each one validates, applies, invalidates the cached
// expansion and hands a snapshot to the background saver.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
	"github.com/albacostas/planificadorFecha/internal/model"
	"github.com/albacostas/planificadorFecha/internal/persist"
	"github.com/albacostas/planificadorFecha/internal/query"
	"github.com/albacostas/planificadorFecha/internal/recurrence"
)

// ErrNotFound is returned when an event, calendar or task ID is unknown.
var ErrNotFound = errors.New("not found")

const (
	defaultStaleAfter  = time.Hour
	defaultSaveTimeout = 30 * time.Second
)

// Options configures a Store.
type Options struct {
	Gateway persist.Gateway

	// SeedDefaults loads persist.Defaults when the gateway has nothing.
	SeedDefaults bool

	// Location is the display zone for expansion and "today". Nil keeps
	// each event's own location and uses time.Local for today.
	Location *time.Location

	HorizonDays            int
	MaxOccurrencesPerEvent int

	// StaleAfter forces re-expansion of an otherwise valid cache.
	StaleAfter time.Duration

	// SaveTimeout bounds each background save.
	SaveTimeout time.Duration

	// Now is overridable for tests.
	Now func() time.Time
}

// Store is safe for concurrent use.
type Store struct {
	opts Options

	mu        sync.RWMutex
	events    map[uuid.UUID]model.Event
	calendars []model.Calendar
	gen       uint64

	cacheMu sync.Mutex
	cache   *expansion

	saver *saver
}

type expansion struct {
	gen       uint64
	day       time.Time
	builtAt   time.Time
	occs      []model.Occurrence
	truncated []uuid.UUID
}

// New loads the persisted state and starts the background saver. A load
// failure is logged and replaced by the bundled defaults (or an empty set);
// it is never returned.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Gateway == nil {
		return nil, errors.New("store: gateway is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = defaultSaveTimeout
	}

	s := &Store{
		opts:   opts,
		events: make(map[uuid.UUID]model.Event),
	}

	snap, err := opts.Gateway.Load(ctx)
	switch {
	case err == nil:
		appLog.Info("store: loaded", "events", len(snap.Events), "calendars", len(snap.Calendars))
	case errors.Is(err, persist.ErrNoData):
		appLog.Info("store: no saved data yet", "seed_defaults", opts.SeedDefaults)
		snap = s.fallback()
	default:
		appLog.Error("store: load failed, starting from fallback data", err, "seed_defaults", opts.SeedDefaults)
		snap = s.fallback()
	}

	s.calendars = append(s.calendars, snap.Calendars...)
	for _, e := range snap.Events {
		s.events[e.ID] = e.Clone()
	}

	s.saver = newSaver(opts.Gateway, opts.SaveTimeout)
	go s.saver.run()
	return s, nil
}

func (s *Store) fallback() persist.Snapshot {
	if !s.opts.SeedDefaults {
		return persist.Snapshot{}
	}
	return persist.Defaults(s.now())
}

func (s *Store) now() time.Time {
	t := s.opts.Now()
	if s.opts.Location != nil {
		t = t.In(s.opts.Location)
	}
	return t
}

// Add validates and inserts a new event. A nil ID is replaced with a fresh
// one. An event referencing a calendar takes that calendar's color.
func (s *Store) Add(ctx context.Context, e model.Event) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e = e.Clone()
	if e.Tasks == nil {
		e.Tasks = []model.Task{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[e.ID]; exists {
		return model.Event{}, fmt.Errorf("%w: event %s already exists", model.ErrInvalidEvent, e.ID)
	}
	if err := s.prepareLocked(&e); err != nil {
		return model.Event{}, err
	}
	s.events[e.ID] = e
	s.commitLocked()

	appLog.Debug("store: event added", "event_id", e.ID, "title", e.Title)
	return e.Clone(), nil
}

// Remove deletes an event. Unknown IDs return ErrNotFound and change nothing.
func (s *Store) Remove(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	delete(s.events, id)
	s.commitLocked()

	appLog.Debug("store: event removed", "event_id", id)
	return nil
}

// Update replaces the event with the given ID by newValue.
func (s *Store) Update(ctx context.Context, id uuid.UUID, newValue model.Event) (model.Event, error) {
	return s.Edit(ctx, id, func(e *model.Event) error {
		*e = newValue.Clone()
		return nil
	})
}

// Upsert adds e or replaces the event with the same ID. Used by imports,
// whose IDs are stable across runs.
func (s *Store) Upsert(ctx context.Context, e model.Event) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e = e.Clone()
	if e.Tasks == nil {
		e.Tasks = []model.Task{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepareLocked(&e); err != nil {
		return model.Event{}, err
	}
	s.events[e.ID] = e
	s.commitLocked()

	appLog.Debug("store: event upserted", "event_id", e.ID, "title", e.Title)
	return e.Clone(), nil
}

// prepareLocked validates e and resolves its calendar reference.
func (s *Store) prepareLocked(e *model.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	for i := range e.Tasks {
		if e.Tasks[i].ID == uuid.Nil {
			e.Tasks[i].ID = uuid.New()
		}
	}
	if e.CalendarID == nil {
		return nil
	}
	i := s.calendarIndexLocked(*e.CalendarID)
	if i < 0 {
		return fmt.Errorf("calendar %s: %w", *e.CalendarID, ErrNotFound)
	}
	e.Color = s.calendars[i].Color
	return nil
}

// commitLocked invalidates the expansion and schedules a save. Callers hold
// the write lock.
func (s *Store) commitLocked() {
	s.gen++
	s.saver.schedule(s.snapshotLocked())
}

// Events returns a copy of every event sorted by anchor date.
func (s *Store) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eventsLocked()
}

func (s *Store) eventsLocked() []model.Event {
	out := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// EventsByPeriod buckets events by the period of their anchor relative to
// now.
func (s *Store) EventsByPeriod() map[model.Period][]model.Event {
	return query.GroupByPeriod(s.Events(), s.now())
}

// Snapshot returns a deep copy of the canonical state.
func (s *Store) Snapshot() persist.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() persist.Snapshot {
	snap := persist.Snapshot{
		Events:    s.eventsLocked(),
		Calendars: make([]model.Calendar, len(s.calendars)),
	}
	copy(snap.Calendars, s.calendars)
	return snap
}

// Occurrences returns the full cached expansion. The slice is shared and
// must not be modified.
func (s *Store) Occurrences() []model.Occurrence {
	return s.expansion().occs
}

// OccurrencesOn returns the occurrences on date's calendar day, evaluated
// in date's location.
func (s *Store) OccurrencesOn(date time.Time) []model.Occurrence {
	return query.On(s.Occurrences(), date)
}

// OccurrencesInWeek returns the occurrences in [start, start+7d).
func (s *Store) OccurrencesInWeek(start time.Time) []model.Occurrence {
	return query.InWeek(s.Occurrences(), start)
}

// Truncated lists events whose expansion hit the per-event cap.
func (s *Store) Truncated() []uuid.UUID {
	return append([]uuid.UUID(nil), s.expansion().truncated...)
}

// Refresh drops the cached expansion and rebuilds it.
func (s *Store) Refresh() int {
	s.cacheMu.Lock()
	s.cache = nil
	s.cacheMu.Unlock()
	return len(s.expansion().occs)
}

func (s *Store) expansion() *expansion {
	now := s.now()

	s.mu.RLock()
	gen := s.gen
	s.cacheMu.Lock()
	c := s.cache
	s.cacheMu.Unlock()
	if c != nil && c.gen == gen && model.SameDay(c.day, now) && now.Sub(c.builtAt) < s.opts.StaleAfter {
		s.mu.RUnlock()
		return c
	}
	events := s.eventsLocked()
	s.mu.RUnlock()

	res, err := recurrence.Expand(events, recurrence.Config{
		Today:                  now,
		HorizonDays:            s.opts.HorizonDays,
		Location:               s.opts.Location,
		MaxOccurrencesPerEvent: s.opts.MaxOccurrencesPerEvent,
	})
	if err != nil {
		appLog.Error("store: expansion failed", err)
	}

	c = &expansion{
		gen:       gen,
		day:       now,
		builtAt:   now,
		occs:      res.Occurrences,
		truncated: res.Truncated,
	}
	s.cacheMu.Lock()
	if s.cache == nil || s.cache.gen <= gen {
		s.cache = c
	}
	s.cacheMu.Unlock()

	appLog.Debug("store: expansion rebuilt", "events", len(events), "occurrences", len(c.occs))
	return c
}

// Flush saves the pending snapshot, if any, synchronously.
func (s *Store) Flush(ctx context.Context) error {
	return s.saver.drain(ctx)
}

// Pending reports whether a snapshot is waiting to be saved.
func (s *Store) Pending() bool {
	return s.saver.pending()
}

// Close stops the background saver after a final flush.
func (s *Store) Close(ctx context.Context) error {
	return s.saver.close(ctx)
}
