package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// RuleKind tags the RecurrenceRule variant.
type RuleKind string

const (
	None    RuleKind = "none"
	Daily   RuleKind = "daily"
	Weekly  RuleKind = "weekly"
	Monthly RuleKind = "monthly"
)

// RecurrenceRule is the single recurrence representation. Weekdays is only
// meaningful for Weekly and uses 1=Sunday … 7=Saturday. Monthly repeats on
// the anchor's day of month.
type RecurrenceRule struct {
	Kind     RuleKind
	Weekdays []int
}

func NoRepeat() RecurrenceRule { return RecurrenceRule{Kind: None} }

func EveryDay() RecurrenceRule { return RecurrenceRule{Kind: Daily} }

func EveryMonth() RecurrenceRule { return RecurrenceRule{Kind: Monthly} }

// EveryWeekOn builds a Weekly rule from Go weekdays.
func EveryWeekOn(days ...time.Weekday) RecurrenceRule {
	r := RecurrenceRule{Kind: Weekly}
	for _, d := range days {
		r.Weekdays = append(r.Weekdays, WeekdayNumber(d))
	}
	r.normalize()
	return r
}

// WeekdayNumber converts a Go weekday to the 1=Sunday … 7=Saturday numbering.
func WeekdayNumber(d time.Weekday) int {
	return int(d) + 1
}

// HasWeekday reports whether a Weekly rule fires on d.
func (r RecurrenceRule) HasWeekday(d time.Weekday) bool {
	return slices.Contains(r.Weekdays, WeekdayNumber(d))
}

// IsRecurring is false only for None (and the zero value).
func (r RecurrenceRule) IsRecurring() bool {
	return r.Kind != None && r.Kind != ""
}

func (r RecurrenceRule) Clone() RecurrenceRule {
	return RecurrenceRule{Kind: r.Kind, Weekdays: slices.Clone(r.Weekdays)}
}

func (r RecurrenceRule) Validate() error {
	switch r.Kind {
	case "", None, Daily, Monthly:
		return nil
	case Weekly:
		if len(r.Weekdays) == 0 {
			return fmt.Errorf("%w: weekly rule needs at least one weekday", ErrInvalidRecurrence)
		}
		for _, d := range r.Weekdays {
			if d < 1 || d > 7 {
				return fmt.Errorf("%w: weekday %d out of range 1..7", ErrInvalidRecurrence, d)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown rule %q", ErrInvalidRecurrence, r.Kind)
	}
}

func (r *RecurrenceRule) normalize() {
	if r.Kind == "" {
		r.Kind = None
	}
	if r.Kind != Weekly {
		r.Weekdays = nil
		return
	}
	slices.Sort(r.Weekdays)
	r.Weekdays = slices.Compact(r.Weekdays)
}

type ruleJSON struct {
	Type     RuleKind `json:"type"`
	Weekdays []int    `json:"weekdays,omitempty"`
}

func (r RecurrenceRule) MarshalJSON() ([]byte, error) {
	n := r.Clone()
	n.normalize()
	return json.Marshal(ruleJSON{Type: n.Kind, Weekdays: n.Weekdays})
}

func (r *RecurrenceRule) UnmarshalJSON(data []byte) error {
	var raw ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode recurrence rule: %w", err)
	}
	*r = RecurrenceRule{Kind: raw.Type, Weekdays: raw.Weekdays}
	r.normalize()
	return r.Validate()
}
