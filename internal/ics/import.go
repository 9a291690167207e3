package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
	"github.com/albacostas/planificadorFecha/internal/model"
	"github.com/albacostas/planificadorFecha/internal/recurrence"
)

// Import parses an ICS payload into events ready for the store.
//
//   - Floating and date-only values are read in loc (time.Local if nil).
//   - CATEGORIES is matched against calendar titles to set CalendarID.
//   - RRULE is mapped onto the daily/weekly/monthly variants. Anything else
//     (yearly, intervals other than 1, hourly) becomes a one-off event.
//   - VEVENTs that cannot be read are logged and skipped.
func Import(r io.Reader, calendars []model.Calendar, loc *time.Location) ([]model.Event, error) {
	if loc == nil {
		loc = time.Local
	}
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, fmt.Errorf("parse ics: %w", err)
	}

	byTitle := make(map[string]model.Calendar, len(calendars))
	for _, c := range calendars {
		byTitle[strings.ToLower(c.Title)] = c
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve, byTitle, loc)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent parse failed", perr)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics import completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, calendars map[string]model.Calendar, loc *time.Location) (model.Event, error) {
	var out model.Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}

	summary := ""
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		summary = strings.TrimSpace(p.Value)
	}
	if summary == "" {
		summary = "(untitled)"
	}

	allDay := isAllDay(ve.GetProperty(ical.ComponentPropertyDtStart))
	start, end, err := eventTimes(ve, allDay, loc)
	if err != nil {
		return out, fmt.Errorf("uid %s: %w", uidProp.Value, err)
	}

	out = model.NewEvent(summary, start)
	out.ID = eventID(uidProp.Value)
	out.AllDay = allDay
	if !end.IsZero() && end.After(start) {
		out.DurationMinutes = int(end.Sub(start) / time.Minute)
	}

	if p := ve.GetProperty(ical.ComponentPropertyExtended(propSymbol)); p != nil {
		out.Symbol = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyExtended(propSubtype)); p != nil && p.Value != "" {
		out.Subtype = model.Subtype(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyColor); p != nil {
		if c, err := model.ParseHex(p.Value); err == nil {
			out.Color = c
		}
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, title := range strings.Split(p.Value, ",") {
			if c, ok := calendars[strings.ToLower(strings.TrimSpace(title))]; ok {
				id := c.ID
				out.CalendarID = &id
				out.Color = c.Color
				break
			}
		}
		if out.CalendarID != nil {
			break
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Tasks = parseTasks(p.Value)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		rule, until, ok := mapRRule(p.Value, start)
		if ok {
			out.Recurrence = rule
			out.RecurrenceEnd = until
		} else {
			appLog.Info("ics import: unsupported RRULE, importing as one-off", "uid", uidProp.Value, "rrule", p.Value)
		}
	}

	return out, nil
}

// isAllDay detects VALUE=DATE or a value without a time part.
func isAllDay(p *ical.IANAProperty) bool {
	if p == nil {
		return false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func eventTimes(ve *ical.VEvent, allDay bool, loc *time.Location) (time.Time, time.Time, error) {
	if allDay {
		start, err := ve.GetAllDayStartAt()
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		end, err := ve.GetAllDayEndAt()
		if err != nil {
			return start, time.Time{}, nil
		}
		return start, time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc), nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start = floating(start, loc)
	end, err := ve.GetEndAt()
	if err != nil {
		return start, time.Time{}, nil
	}
	return start, floating(end, loc), nil
}

// floating re-reads library-local times (no TZID, no Z) in loc.
func floating(t time.Time, loc *time.Location) time.Time {
	if t.Location() != time.Local || loc == time.Local {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// eventID keeps UUID UIDs and derives a stable UUID for any other UID so
// re-importing the same file updates rather than duplicates.
func eventID(uid string) uuid.UUID {
	if id, err := uuid.Parse(uid); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("ics:"+uid))
}

func parseTasks(desc string) []model.Task {
	tasks := []model.Task{}
	for _, line := range strings.Split(desc, "\n") {
		switch {
		case strings.HasPrefix(line, taskDone):
			t := model.NewTask(strings.TrimPrefix(line, taskDone))
			t.IsCompleted = true
			tasks = append(tasks, t)
		case strings.HasPrefix(line, taskOpen):
			tasks = append(tasks, model.NewTask(strings.TrimPrefix(line, taskOpen)))
		}
	}
	return tasks
}

// mapRRule converts an RRULE value into the recurrence variant. COUNT is
// turned into an end date by walking the rule.
func mapRRule(value string, start time.Time) (model.RecurrenceRule, *time.Time, bool) {
	opt, err := rrule.StrToROptionInLocation(value, start.Location())
	if err != nil {
		appLog.Error("ics import: bad RRULE", err, "rrule", value)
		return model.RecurrenceRule{}, nil, false
	}
	if opt.Interval > 1 {
		return model.RecurrenceRule{}, nil, false
	}

	var rule model.RecurrenceRule
	switch opt.Freq {
	case rrule.DAILY:
		rule = model.EveryDay()
	case rrule.WEEKLY:
		days := []time.Weekday{start.Weekday()}
		if len(opt.Byweekday) > 0 {
			days = days[:0]
			for _, wd := range opt.Byweekday {
				days = append(days, time.Weekday(recurrence.FromRRuleWeekday(wd)-1))
			}
		}
		rule = model.EveryWeekOn(days...)
	case rrule.MONTHLY:
		if len(opt.Bymonthday) > 1 || (len(opt.Bymonthday) == 1 && opt.Bymonthday[0] != start.Day()) || len(opt.Byweekday) > 0 {
			return model.RecurrenceRule{}, nil, false
		}
		rule = model.EveryMonth()
	default:
		return model.RecurrenceRule{}, nil, false
	}

	switch {
	case !opt.Until.IsZero():
		until := opt.Until.In(start.Location())
		return rule, &until, true
	case opt.Count > 0:
		opt.Dtstart = start
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return model.RecurrenceRule{}, nil, false
		}
		all := r.All()
		if len(all) == 0 {
			return rule, nil, true
		}
		last := all[len(all)-1]
		return rule, &last, true
	default:
		return rule, nil, true
	}
}
