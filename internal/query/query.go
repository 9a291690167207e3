// Package query answers "what happens on day X / during week W" over
// already-expanded occurrences. Every function returns a new slice in
// ascending start order and never modifies its input.
package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/albacostas/planificadorFecha/internal/model"
)

// On returns the occurrences whose start falls on date's calendar day,
// evaluated in date's location.
func On(occs []model.Occurrence, date time.Time) []model.Occurrence {
	from := model.StartOfDay(date)
	return InRange(occs, from, from.AddDate(0, 0, 1))
}

// InWeek returns the occurrences in the half-open interval
// [start, start+7 days).
func InWeek(occs []model.Occurrence, start time.Time) []model.Occurrence {
	return InRange(occs, start, start.AddDate(0, 0, 7))
}

// InRange returns the occurrences with from <= Start < to.
func InRange(occs []model.Occurrence, from, to time.Time) []model.Occurrence {
	out := make([]model.Occurrence, 0)
	for _, o := range occs {
		if !o.Start.Before(from) && o.Start.Before(to) {
			out = append(out, o)
		}
	}
	sortByStart(out)
	return out
}

// WeekStart is the first day of a displayed week.
type WeekStart string

const (
	Monday WeekStart = "monday"
	Sunday WeekStart = "sunday"
)

func ParseWeekStart(s string) (WeekStart, error) {
	switch WeekStart(strings.ToLower(strings.TrimSpace(s))) {
	case Monday, "":
		return Monday, nil
	case Sunday:
		return Sunday, nil
	default:
		return "", fmt.Errorf("unknown week start %q", s)
	}
}

// StartOfWeek returns midnight of the first day of t's week.
func StartOfWeek(t time.Time, ws WeekStart) time.Time {
	first := time.Monday
	if ws == Sunday {
		first = time.Sunday
	}
	offset := (int(t.Weekday()) - int(first) + 7) % 7
	return model.StartOfDay(t).AddDate(0, 0, -offset)
}

// VisibleOnly drops occurrences that belong to a hidden calendar.
// Occurrences without a calendar, or referencing an unknown one, stay.
func VisibleOnly(occs []model.Occurrence, calendars []model.Calendar) []model.Occurrence {
	hidden := make(map[uuid.UUID]bool, len(calendars))
	for _, c := range calendars {
		if !c.IsVisible {
			hidden[c.ID] = true
		}
	}
	out := make([]model.Occurrence, 0, len(occs))
	for _, o := range occs {
		if o.CalendarID != nil && hidden[*o.CalendarID] {
			continue
		}
		out = append(out, o)
	}
	return out
}

// GroupByPeriod buckets canonical events by the period of their anchor.
// Each bucket is sorted by anchor; empty periods are omitted.
func GroupByPeriod(events []model.Event, now time.Time) map[model.Period][]model.Event {
	out := make(map[model.Period][]model.Event)
	for _, e := range events {
		p := e.PeriodAt(now)
		out[p] = append(out[p], e)
	}
	for _, bucket := range out {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].Date.Before(bucket[j].Date)
		})
	}
	return out
}

func sortByStart(occs []model.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].Start.Equal(occs[j].Start) {
			return occs[i].Start.Before(occs[j].Start)
		}
		return occs[i].Key.String() < occs[j].Key.String()
	})
}
