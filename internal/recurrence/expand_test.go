package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"github.com/albacostas/planificadorFecha/internal/model"
)

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func starts(occs []model.Occurrence) []time.Time {
	out := make([]time.Time, len(occs))
	for i, o := range occs {
		out[i] = o.Start
	}
	return out
}

func TestExpandWeeklyWithEnd(t *testing.T) {
	end := day(2024, 1, 15, 0)
	ev := model.NewEvent("Lecture", day(2024, 1, 1, 9))
	ev.Recurrence = model.EveryWeekOn(time.Monday, time.Wednesday)
	ev.RecurrenceEnd = &end

	res, err := Expand([]model.Event{ev}, Config{Today: day(2024, 1, 1, 0)})
	require.NoError(t, err)

	want := []time.Time{
		day(2024, 1, 1, 9),
		day(2024, 1, 3, 9),
		day(2024, 1, 8, 9),
		day(2024, 1, 10, 9),
		day(2024, 1, 15, 9),
	}
	assert.Equal(t, want, starts(res.Occurrences))
	assert.Empty(t, res.Truncated)
	assert.True(t, res.Occurrences[0].IsAnchor)
	for _, o := range res.Occurrences {
		assert.Equal(t, ev.ID, o.SourceID)
		assert.Equal(t, o.Start.Add(time.Hour), o.End)
	}
}

func TestExpandNoneYieldsAnchorOnly(t *testing.T) {
	ev := model.NewEvent("Dentist", day(2024, 2, 10, 15))
	res, err := Expand([]model.Event{ev}, Config{Today: day(2024, 1, 1, 0)})
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 1)
	assert.Equal(t, ev.Date, res.Occurrences[0].Start)
	assert.Equal(t, model.OccurrenceKey{SourceID: ev.ID, Date: ev.Date}, res.Occurrences[0].Key)
}

func TestExpandWeeklyMembership(t *testing.T) {
	end := day(2024, 3, 31, 0)
	ev := model.NewEvent("Gym", day(2024, 1, 2, 7))
	ev.Recurrence = model.EveryWeekOn(time.Tuesday, time.Friday, time.Sunday)
	ev.RecurrenceEnd = &end

	res, err := Expand([]model.Event{ev}, Config{Today: day(2024, 1, 1, 0)})
	require.NoError(t, err)
	require.NotEmpty(t, res.Occurrences)

	seen := map[string]bool{}
	for _, o := range res.Occurrences {
		assert.True(t, ev.Recurrence.HasWeekday(o.Start.Weekday()), "unexpected weekday %s", o.Start)
		assert.Equal(t, 7, o.Start.Hour())
		assert.False(t, o.Start.After(end.Add(24*time.Hour)))
		seen[o.Start.Format("2006-01-02")] = true
	}
	// every matching day between anchor and end is present
	for d := ev.Date; !d.After(end.Add(23 * time.Hour)); d = d.AddDate(0, 0, 1) {
		if ev.Recurrence.HasWeekday(d.Weekday()) {
			assert.True(t, seen[d.Format("2006-01-02")], "missing %s", d)
		}
	}
}

func TestExpandMonthlySkipsShortMonths(t *testing.T) {
	end := day(2024, 6, 30, 0)
	ev := model.NewEvent("Rent", day(2024, 1, 31, 8))
	ev.Recurrence = model.EveryMonth()
	ev.RecurrenceEnd = &end

	res, err := Expand([]model.Event{ev}, Config{Today: day(2024, 1, 1, 0)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		day(2024, 1, 31, 8),
		day(2024, 3, 31, 8),
		day(2024, 5, 31, 8),
	}, starts(res.Occurrences))
}

func TestExpandDailyBoundedByHorizon(t *testing.T) {
	ev := model.NewEvent("Meds", day(2024, 1, 1, 21))
	ev.Recurrence = model.EveryDay()

	res, err := Expand([]model.Event{ev}, Config{Today: day(2024, 1, 1, 0), HorizonDays: 5})
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 6)
	assert.Equal(t, day(2024, 1, 6, 21), res.Occurrences[5].Start)
}

func TestExpandEndOnAnchorDay(t *testing.T) {
	end := day(2024, 1, 1, 0)
	ev := model.NewEvent("Once", day(2024, 1, 1, 10))
	ev.Recurrence = model.EveryDay()
	ev.RecurrenceEnd = &end

	res, err := Expand([]model.Event{ev}, Config{Today: day(2024, 1, 1, 0)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{ev.Date}, starts(res.Occurrences))
}

func TestExpandAnchorAlwaysIncluded(t *testing.T) {
	// Anchor on a Thursday, rule only fires Mondays.
	end := day(2024, 1, 10, 0)
	ev := model.NewEvent("Club", day(2024, 1, 4, 18))
	ev.Recurrence = model.EveryWeekOn(time.Monday)
	ev.RecurrenceEnd = &end

	res, err := Expand([]model.Event{ev}, Config{Today: day(2024, 1, 1, 0)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2024, 1, 4, 18), day(2024, 1, 8, 18)}, starts(res.Occurrences))
}

func TestExpandCap(t *testing.T) {
	ev := model.NewEvent("Spam", day(2024, 1, 1, 9))
	ev.Recurrence = model.EveryDay()

	res, err := Expand([]model.Event{ev}, Config{Today: day(2024, 1, 1, 0), MaxOccurrencesPerEvent: 3})
	require.NoError(t, err)
	assert.Len(t, res.Occurrences, 3)
	assert.Equal(t, ev.ID, res.Truncated[0])
}

func TestExpandIsIdempotentAndSorted(t *testing.T) {
	end := day(2024, 2, 1, 0)
	a := model.NewEvent("A", day(2024, 1, 1, 12))
	a.Recurrence = model.EveryDay()
	a.RecurrenceEnd = &end
	b := model.NewEvent("B", day(2024, 1, 1, 8))
	b.Recurrence = model.EveryWeekOn(time.Monday, time.Thursday)
	c := model.NewEvent("C", day(2024, 1, 15, 12))

	events := []model.Event{a, b, c}
	cfg := Config{Today: day(2024, 1, 1, 0), HorizonDays: 60}

	first, err := Expand(events, cfg)
	require.NoError(t, err)
	second, err := Expand(events, cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for i := 1; i < len(first.Occurrences); i++ {
		assert.False(t, first.Occurrences[i].Start.Before(first.Occurrences[i-1].Start))
	}
}

func TestExpandKeepsTimeOfDayAndLocation(t *testing.T) {
	madrid := time.FixedZone("CET", 3600)
	end := time.Date(2024, 1, 5, 0, 0, 0, 0, madrid)
	ev := model.NewEvent("Standup", time.Date(2024, 1, 1, 9, 30, 0, 500, madrid))
	ev.Recurrence = model.EveryDay()
	ev.RecurrenceEnd = &end

	res, err := Expand([]model.Event{ev}, Config{Today: day(2024, 1, 1, 0)})
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 5)
	for _, o := range res.Occurrences {
		assert.Equal(t, madrid, o.Start.Location())
		assert.Equal(t, 9, o.Start.Hour())
		assert.Equal(t, 30, o.Start.Minute())
		assert.Equal(t, 500, o.Start.Nanosecond())
	}

	res, err = Expand([]model.Event{ev}, Config{Today: day(2024, 1, 1, 0), Location: time.UTC})
	require.NoError(t, err)
	assert.Equal(t, 8, res.Occurrences[1].Start.Hour())
	assert.Equal(t, time.UTC, res.Occurrences[1].Start.Location())
}

func TestExpandRequiresToday(t *testing.T) {
	_, err := Expand(nil, Config{})
	assert.Error(t, err)
}

func TestWeekdayMapping(t *testing.T) {
	for n := 1; n <= 7; n++ {
		wd, err := toRRuleWeekday(n)
		require.NoError(t, err)
		assert.Equal(t, n, FromRRuleWeekday(wd))
	}
	assert.Equal(t, 1, FromRRuleWeekday(rrule.SU))
	assert.Equal(t, 2, FromRRuleWeekday(rrule.MO))

	_, err := toRRuleWeekday(8)
	assert.ErrorIs(t, err, model.ErrInvalidRecurrence)
}

func TestExpandLongRunningSeriesKeepsToday(t *testing.T) {
	today := day(2026, 10, 19, 0)
	ev := model.NewEvent("Vitamins", day(2010, 1, 1, 8))
	ev.Recurrence = model.EveryDay()

	res, err := Expand([]model.Event{ev}, Config{Today: today})
	require.NoError(t, err)
	assert.Empty(t, res.Truncated)

	occs := res.Occurrences
	require.Greater(t, len(occs), 2)
	assert.True(t, occs[0].IsAnchor)
	assert.True(t, occs[0].Start.Equal(ev.Date))

	windowStart := Config{Today: today}.WindowStart()
	assert.True(t, day(2024, 10, 19, 0).Equal(windowStart), windowStart.String())
	assert.True(t, day(2024, 10, 19, 8).Equal(occs[1].Start), occs[1].Start.String())

	var onToday int
	for _, o := range occs {
		if model.SameDay(today, o.Start) {
			onToday++
			assert.Equal(t, 8, o.Start.Hour())
		}
	}
	assert.Equal(t, 1, onToday)
	assert.True(t, day(2028, 10, 18, 8).Equal(occs[len(occs)-1].Start))
}

func TestExpandCapCountsOnlyLiveWindow(t *testing.T) {
	// 2008-01-07 and 2026-10-19 are both Mondays.
	ev := model.NewEvent("Choir", day(2008, 1, 7, 18))
	ev.Recurrence = model.EveryWeekOn(time.Monday)

	res, err := Expand([]model.Event{ev}, Config{
		Today:                  day(2026, 10, 19, 0),
		HorizonDays:            7,
		MaxOccurrencesPerEvent: 4,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Truncated)
	assert.Equal(t, []time.Time{
		day(2008, 1, 7, 18),
		day(2026, 10, 12, 18),
		day(2026, 10, 19, 18),
		day(2026, 10, 26, 18),
	}, starts(res.Occurrences))
}

func TestExpandEvaluatesRuleInEventZone(t *testing.T) {
	bogota := time.FixedZone("COT", -5*3600)
	cet := time.FixedZone("CET", 3600)
	cfg := Config{Today: day(2024, 1, 1, 0), Location: cet}

	end := time.Date(2024, 1, 15, 0, 0, 0, 0, bogota)
	weekly := model.NewEvent("Late call", time.Date(2024, 1, 1, 23, 30, 0, 0, bogota))
	weekly.Recurrence = model.EveryWeekOn(time.Monday)
	weekly.RecurrenceEnd = &end

	res, err := Expand([]model.Event{weekly}, cfg)
	require.NoError(t, err)
	want := []time.Time{
		time.Date(2024, 1, 2, 5, 30, 0, 0, cet),
		time.Date(2024, 1, 9, 5, 30, 0, 0, cet),
		time.Date(2024, 1, 16, 5, 30, 0, 0, cet),
	}
	require.Len(t, res.Occurrences, len(want))
	for i, o := range res.Occurrences {
		assert.True(t, want[i].Equal(o.Start), "got %s want %s", o.Start, want[i])
		assert.Equal(t, cet, o.Start.Location())
		assert.Equal(t, time.Monday, o.Start.In(bogota).Weekday())
	}

	monthEnd := time.Date(2024, 4, 30, 0, 0, 0, 0, bogota)
	monthly := model.NewEvent("Invoice", time.Date(2024, 1, 31, 22, 0, 0, 0, bogota))
	monthly.Recurrence = model.EveryMonth()
	monthly.RecurrenceEnd = &monthEnd

	res, err = Expand([]model.Event{monthly}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 2)
	for _, o := range res.Occurrences {
		assert.Equal(t, 31, o.Start.In(bogota).Day())
		assert.Equal(t, 1, o.Start.Day())
	}
}
