package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRecurrence is returned for a recurrence end before the anchor
	// day or a weekly rule without usable weekdays.
	ErrInvalidRecurrence = errors.New("invalid recurrence")
	// ErrInvalidEvent covers the remaining field validation failures.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrInvalidCalendar is returned for a calendar without title or with a bad color.
	ErrInvalidCalendar = errors.New("invalid calendar")
)

// DefaultDurationMinutes is applied to events created without a duration.
const DefaultDurationMinutes = 60

// Subtype classifies an event inside a calendar. The core never interprets it.
type Subtype string

const (
	SubtypeTask  Subtype = "task"
	SubtypeExam  Subtype = "exam"
	SubtypeClass Subtype = "class"
	SubtypeOther Subtype = "other"
)

// Task is a checklist item attached to an event.
type Task struct {
	ID          uuid.UUID `json:"id"`
	Text        string    `json:"text"`
	IsCompleted bool      `json:"isCompleted"`
}

// NewTask returns an incomplete task with a fresh ID.
func NewTask(text string) Task {
	return Task{ID: uuid.New(), Text: text}
}

// Calendar is a label that groups events and provides their display color.
type Calendar struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Color     Color     `json:"color"`
	IsVisible bool      `json:"isVisible"`
}

// NewCalendar returns a visible calendar with a fresh ID.
func NewCalendar(title string, c Color) Calendar {
	return Calendar{ID: uuid.New(), Title: title, Color: c, IsVisible: true}
}

func (c Calendar) Validate() error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("%w: calendar id is empty", ErrInvalidCalendar)
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: calendar title cannot be empty", ErrInvalidCalendar)
	}
	if err := c.Color.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCalendar, err)
	}
	return nil
}

// Event is the canonical, persisted record. Occurrences are derived from it
// and never stored.
type Event struct {
	ID     uuid.UUID `json:"id"`
	Symbol string    `json:"symbol"`
	Color  Color     `json:"color"`
	Title  string    `json:"title"`
	Tasks  []Task    `json:"tasks"`

	// Date is the anchor: the first/nominal occurrence.
	Date            time.Time  `json:"date"`
	DurationMinutes int        `json:"durationMinutes"`
	EndOverride     *time.Time `json:"endDateOverride,omitempty"`
	AllDay          bool       `json:"isAllDay"`

	CalendarID *uuid.UUID `json:"calendarId,omitempty"`
	Subtype    Subtype    `json:"subtype"`

	Recurrence    RecurrenceRule `json:"recurrenceRule"`
	RecurrenceEnd *time.Time     `json:"recurrenceEndDate,omitempty"`
}

// NewEvent returns an event with a fresh ID, the default duration and
// subtype, and no recurrence.
func NewEvent(title string, at time.Time) Event {
	return Event{
		ID:              uuid.New(),
		Title:           title,
		Date:            at,
		DurationMinutes: DefaultDurationMinutes,
		Subtype:         SubtypeTask,
		Tasks:           []Task{},
		Recurrence:      NoRepeat(),
	}
}

// Duration is the length of every occurrence of the event.
func (e Event) Duration() time.Duration {
	if e.EndOverride != nil {
		return e.EndOverride.Sub(e.Date)
	}
	return time.Duration(e.DurationMinutes) * time.Minute
}

// End is the end of the anchor occurrence.
func (e Event) End() time.Time {
	return e.Date.Add(e.Duration())
}

// RemainingTaskCount counts incomplete tasks that have text.
func (e Event) RemainingTaskCount() int {
	n := 0
	for _, t := range e.Tasks {
		if !t.IsCompleted && t.Text != "" {
			n++
		}
	}
	return n
}

// IsComplete reports whether every non-blank task is done.
func (e Event) IsComplete() bool {
	return e.RemainingTaskCount() == 0
}

// BelongsTo reports whether the event references the given calendar.
func (e Event) BelongsTo(calendarID uuid.UUID) bool {
	return e.CalendarID != nil && *e.CalendarID == calendarID
}

// Clone returns a deep copy so callers never alias store-owned slices or
// pointers.
func (e Event) Clone() Event {
	out := e
	if e.Tasks != nil {
		out.Tasks = make([]Task, len(e.Tasks))
		copy(out.Tasks, e.Tasks)
	}
	if e.EndOverride != nil {
		t := *e.EndOverride
		out.EndOverride = &t
	}
	if e.RecurrenceEnd != nil {
		t := *e.RecurrenceEnd
		out.RecurrenceEnd = &t
	}
	if e.CalendarID != nil {
		id := *e.CalendarID
		out.CalendarID = &id
	}
	out.Recurrence = e.Recurrence.Clone()
	return out
}

// Validate checks the event before it is allowed into the store.
func (e Event) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("%w: event id is empty", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: event title cannot be empty", ErrInvalidEvent)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: event date cannot be zero", ErrInvalidEvent)
	}
	if err := e.Color.Validate(); err != nil {
		return err
	}
	if e.DurationMinutes < 0 {
		return fmt.Errorf("%w: event duration cannot be negative", ErrInvalidEvent)
	}
	if e.EndOverride != nil && !e.EndOverride.After(e.Date) {
		return fmt.Errorf("%w: event cannot end before it starts", ErrInvalidEvent)
	}
	if err := e.Recurrence.Validate(); err != nil {
		return err
	}
	if e.RecurrenceEnd != nil && e.Recurrence.Kind != None {
		if StartOfDay(e.RecurrenceEnd.In(e.Date.Location())).Before(StartOfDay(e.Date)) {
			return fmt.Errorf("%w: recurrence ends before the anchor date", ErrInvalidRecurrence)
		}
	}
	return nil
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
