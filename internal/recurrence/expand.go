package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
	"github.com/albacostas/planificadorFecha/internal/model"
)

const (
	// DefaultHorizonDays bounds open-ended rules to roughly two years.
	DefaultHorizonDays            = 730
	defaultMaxOccurrencesPerEvent = 5000
)

// Config controls how recurrence expansion is performed.
type Config struct {
	// Today anchors the horizon. Recurring events are expanded up to the end
	// of the day Today+HorizonDays.
	Today time.Time

	// HorizonDays is the forward window for rules without an end date, and
	// the lookback window before Today. If zero, DefaultHorizonDays is used.
	HorizonDays int

	// Location, if set, is the timezone occurrences are reported in. Rules
	// are always evaluated in each event's own anchor location.
	Location *time.Location

	// MaxOccurrencesPerEvent is a safety cap. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// Result wraps the list of expanded occurrences and the events that hit
// the per-event cap.
type Result struct {
	Occurrences []model.Occurrence
	Truncated   []uuid.UUID
}

// HorizonEnd is the last instant covered by the horizon.
func (c Config) HorizonEnd() time.Time {
	return endOfDay(c.today().AddDate(0, 0, c.horizonDays()))
}

// WindowStart is the first instant of the lookback window: HorizonDays
// before Today. Repeats older than that are not materialized and do not
// count toward the per-event cap. The anchor occurrence is always kept.
func (c Config) WindowStart() time.Time {
	return model.StartOfDay(c.today().AddDate(0, 0, -c.horizonDays()))
}

func (c Config) today() time.Time {
	if c.Location != nil {
		return c.Today.In(c.Location)
	}
	return c.Today
}

func (c Config) horizonDays() int {
	if c.HorizonDays <= 0 {
		return DefaultHorizonDays
	}
	return c.HorizonDays
}

// Expand maps canonical events onto concrete occurrences. It is a pure
// function of its inputs: it never mutates events and is safe to call
// concurrently. Every event contributes its anchor occurrence. Daily,
// Weekly and Monthly rules add one occurrence per matching day between
// max(anchor, WindowStart) and min(end of RecurrenceEnd's day, HorizonEnd),
// always at the anchor's time of day.
//
// Output is sorted by start, then by occurrence key.
func Expand(events []model.Event, cfg Config) (Result, error) {
	var result Result

	if cfg.Today.IsZero() {
		return result, errors.New("expand: Today is required")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
	horizonEnd := cfg.HorizonEnd()
	windowStart := cfg.WindowStart()

	out := make([]model.Occurrence, 0, len(events))
	for _, ev := range events {
		occ, hitCap, err := expandEvent(ev, windowStart, horizonEnd, cfg)
		if err != nil {
			// Validation happens at the write boundary; a bad record that
			// slipped through (e.g. hand-edited file) still shows its anchor.
			appLog.Error("expand: skipping recurrence", err, "event_id", ev.ID)
		}
		if hitCap {
			result.Truncated = append(result.Truncated, ev.ID)
			appLog.Error("expand: truncated occurrences for event due to cap",
				errors.New("max occurrences reached"),
				"event_id", ev.ID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		out = append(out, occ...)
	}

	SortOccurrences(out)
	result.Occurrences = out
	return result, nil
}

// SortOccurrences orders by start time, breaking ties by key so output is
// deterministic.
func SortOccurrences(occs []model.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].Start.Equal(occs[j].Start) {
			return occs[i].Start.Before(occs[j].Start)
		}
		return occs[i].Key.String() < occs[j].Key.String()
	})
}

func expandEvent(ev model.Event, windowStart, horizonEnd time.Time, cfg Config) ([]model.Occurrence, bool, error) {
	display := func(t time.Time) time.Time {
		if cfg.Location != nil {
			return t.In(cfg.Location)
		}
		return t
	}

	// Rules run in the event's own zone; only the reported start moves.
	anchor := ev.Date
	loc := anchor.Location()

	out := []model.Occurrence{model.NewOccurrence(ev, display(anchor))}
	if !ev.Recurrence.IsRecurring() {
		return out, false, nil
	}

	limit := horizonEnd.In(loc)
	if ev.RecurrenceEnd != nil {
		if end := endOfDay(ev.RecurrenceEnd.In(loc)); end.Before(limit) {
			limit = end
		}
	}
	if !limit.After(anchor) || limit.Before(windowStart) {
		return out, false, nil
	}

	r, err := buildRule(ev.Recurrence, anchor, limit)
	if err != nil {
		return out, false, err
	}

	// rrule-go works at second precision; restore the anchor's sub-second
	// part so every occurrence shares its exact time of day.
	nanos := time.Duration(anchor.Nanosecond())
	next := r.Iterator()
	for {
		t, ok := next()
		if !ok {
			break
		}
		if model.SameDay(anchor, t) {
			continue
		}
		t = t.Add(nanos)
		if t.Before(windowStart) {
			continue
		}
		if len(out) >= cfg.MaxOccurrencesPerEvent {
			return out, true, nil
		}
		out = append(out, model.NewOccurrence(ev, display(t)))
	}
	return out, false, nil
}

// buildRule translates the rule variant into an RFC 5545 rule bounded by
// until.
func buildRule(rule model.RecurrenceRule, anchor, until time.Time) (*rrule.RRule, error) {
	opt, err := Options(rule, anchor)
	if err != nil {
		return nil, err
	}
	opt.Until = until
	return rrule.NewRRule(opt)
}

// Options returns the rrule options equivalent to rule, starting at anchor.
// Monthly pins BYMONTHDAY to the anchor's day, so months without that day
// are skipped.
func Options(rule model.RecurrenceRule, anchor time.Time) (rrule.ROption, error) {
	opt := rrule.ROption{Dtstart: anchor, Interval: 1}
	switch rule.Kind {
	case model.Daily:
		opt.Freq = rrule.DAILY
	case model.Weekly:
		opt.Freq = rrule.WEEKLY
		for _, d := range rule.Weekdays {
			wd, err := toRRuleWeekday(d)
			if err != nil {
				return opt, err
			}
			opt.Byweekday = append(opt.Byweekday, wd)
		}
	case model.Monthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{anchor.Day()}
	default:
		return opt, fmt.Errorf("%w: no rrule for %q", model.ErrInvalidRecurrence, rule.Kind)
	}
	return opt, nil
}

var weekdayTable = []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func toRRuleWeekday(n int) (rrule.Weekday, error) {
	if n < 1 || n > 7 {
		return rrule.Weekday{}, fmt.Errorf("%w: weekday %d out of range 1..7", model.ErrInvalidRecurrence, n)
	}
	return weekdayTable[n-1], nil
}

// FromRRuleWeekday maps an rrule weekday back to 1=Sunday … 7=Saturday.
func FromRRuleWeekday(w rrule.Weekday) int {
	// rrule-go numbers Monday=0 … Sunday=6.
	return (w.Day()+1)%7 + 1
}

func endOfDay(t time.Time) time.Time {
	return model.StartOfDay(t).AddDate(0, 0, 1).Add(-time.Second)
}
