package model

import (
	"time"

	"github.com/google/uuid"
)

// OccurrenceKey distinguishes occurrences of one event for selection and
// display. It carries no persisted identity.
type OccurrenceKey struct {
	SourceID uuid.UUID
	Date     time.Time
}

// String is stable for a given key: "<uuid>@<RFC3339 start>".
func (k OccurrenceKey) String() string {
	return k.SourceID.String() + "@" + k.Date.Format(time.RFC3339)
}

// Occurrence is a read-only projection of an Event onto one date. Edits go
// through SourceID to the canonical event and therefore apply to the whole
// series.
type Occurrence struct {
	SourceID uuid.UUID
	Key      OccurrenceKey

	Start time.Time
	End   time.Time

	Title          string
	Symbol         string
	Color          Color
	CalendarID     *uuid.UUID
	Subtype        Subtype
	AllDay         bool
	RemainingTasks int
	IsAnchor       bool
}

// NewOccurrence projects e onto start, keeping the event's duration.
func NewOccurrence(e Event, start time.Time) Occurrence {
	occ := Occurrence{
		SourceID:       e.ID,
		Key:            OccurrenceKey{SourceID: e.ID, Date: start},
		Start:          start,
		End:            start.Add(e.Duration()),
		Title:          e.Title,
		Symbol:         e.Symbol,
		Color:          e.Color,
		Subtype:        e.Subtype,
		AllDay:         e.AllDay,
		RemainingTasks: e.RemainingTaskCount(),
		IsAnchor:       start.Equal(e.Date),
	}
	if e.CalendarID != nil {
		id := *e.CalendarID
		occ.CalendarID = &id
	}
	return occ
}
