package model

import "time"

// Period buckets events by how far away their anchor is.
type Period string

const (
	PeriodPast           Period = "past"
	PeriodNextSevenDays  Period = "next-7-days"
	PeriodNextThirtyDays Period = "next-30-days"
	PeriodFuture         Period = "future"
)

var Periods = []Period{PeriodNextSevenDays, PeriodNextThirtyDays, PeriodFuture, PeriodPast}

// PeriodAt classifies the anchor relative to now.
func (e Event) PeriodAt(now time.Time) Period {
	switch {
	case e.Date.Before(now):
		return PeriodPast
	case e.Date.Before(now.AddDate(0, 0, 7)):
		return PeriodNextSevenDays
	case e.Date.Before(now.AddDate(0, 0, 30)):
		return PeriodNextThirtyDays
	default:
		return PeriodFuture
	}
}

func ParsePeriod(s string) (Period, bool) {
	for _, p := range Periods {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}
