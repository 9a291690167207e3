// Package ics converts between the event store and iCalendar (RFC 5545)
// payloads.
package ics

import (
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
	"github.com/albacostas/planificadorFecha/internal/model"
	"github.com/albacostas/planificadorFecha/internal/recurrence"
)

const (
	productName = "planificadorFecha"

	propSymbol  = "X-PLANNER-SYMBOL"
	propSubtype = "X-PLANNER-SUBTYPE"

	icalLocalLayout = "20060102T150405"

	taskDone = "[x] "
	taskOpen = "[ ] "
)

// Export writes every event as a VEVENT. Recurring events carry an RRULE;
// the calendar title goes into CATEGORIES and tasks into DESCRIPTION.
func Export(w io.Writer, events []model.Event, calendars []model.Calendar, now time.Time) error {
	cal := ical.NewCalendarFor(productName)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(productName)

	titles := make(map[uuid.UUID]string, len(calendars))
	for _, c := range calendars {
		titles[c.ID] = c.Title
	}

	for _, e := range events {
		ve := cal.AddEvent(e.ID.String())
		ve.SetDtStampTime(now)
		ve.SetSummary(e.Title)
		ve.SetColor(e.Color.Hex())
		if e.Symbol != "" {
			ve.SetProperty(ical.ComponentPropertyExtended(propSymbol), e.Symbol)
		}
		if e.Subtype != "" {
			ve.SetProperty(ical.ComponentPropertyExtended(propSubtype), string(e.Subtype))
		}
		if e.CalendarID != nil {
			if title, ok := titles[*e.CalendarID]; ok {
				ve.AddCategory(title)
			}
		}
		if desc := describeTasks(e.Tasks); desc != "" {
			ve.SetDescription(desc)
		}

		setTimes(ve, e)

		if e.Recurrence.IsRecurring() {
			rule, err := RRule(e)
			if err != nil {
				appLog.Error("ics export: skipping rrule", err, "event_id", e.ID)
			} else {
				ve.AddRrule(rule)
			}
		}
	}

	appLog.Info("ics export completed", "event_count", len(events))
	return cal.SerializeTo(w)
}

func setTimes(ve *ical.VEvent, e model.Event) {
	if e.AllDay {
		start := model.StartOfDay(e.Date)
		days := int(e.Duration().Hours()/24 + 0.5)
		if days < 1 {
			days = 1
		}
		ve.SetAllDayStartAt(start)
		ve.SetAllDayEndAt(start.AddDate(0, 0, days))
		return
	}

	if tzid := zoneName(e.Date.Location()); tzid != "" {
		ve.SetProperty(ical.ComponentPropertyDtStart, e.Date.Format(icalLocalLayout), ical.WithTZID(tzid))
		ve.SetProperty(ical.ComponentPropertyDtEnd, e.End().In(e.Date.Location()).Format(icalLocalLayout), ical.WithTZID(tzid))
		return
	}
	ve.SetStartAt(e.Date)
	ve.SetEndAt(e.End())
}

// zoneName returns an IANA name usable as TZID, or "" when the location is
// UTC or cannot be resolved by readers.
func zoneName(loc *time.Location) string {
	name := loc.String()
	switch name {
	case "", "UTC", "Local":
		return ""
	}
	if _, err := time.LoadLocation(name); err != nil {
		return ""
	}
	return name
}

// RRule renders the event's recurrence as an RFC 5545 RRULE value. The
// end date becomes UNTIL at the end of that day.
func RRule(e model.Event) (string, error) {
	opt, err := recurrence.Options(e.Recurrence, e.Date)
	if err != nil {
		return "", err
	}
	if e.RecurrenceEnd != nil {
		end := e.RecurrenceEnd.In(e.Date.Location())
		opt.Until = model.StartOfDay(end).AddDate(0, 0, 1).Add(-time.Second)
	}
	return opt.RRuleString(), nil
}

func describeTasks(tasks []model.Task) string {
	var b strings.Builder
	for _, t := range tasks {
		if t.Text == "" {
			continue
		}
		if t.IsCompleted {
			b.WriteString(taskDone)
		} else {
			b.WriteString(taskOpen)
		}
		b.WriteString(t.Text)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}
