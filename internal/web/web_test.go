package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albacostas/planificadorFecha/internal/config"
	"github.com/albacostas/planificadorFecha/internal/model"
	"github.com/albacostas/planificadorFecha/internal/persist"
	"github.com/albacostas/planificadorFecha/internal/store"
)

// Wednesday.
var testNow = time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) (http.Handler, *store.Store) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	seed := false
	cfg.SeedDefaults = &seed
	for _, m := range mutate {
		m(cfg)
	}

	now := func() time.Time { return testNow }
	st, err := store.New(context.Background(), store.Options{
		Gateway:  persist.NewFileStore(filepath.Join(t.TempDir(), "planner.json")),
		Location: time.UTC,
		Now:      now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	s := NewServer(cfg, st)
	s.now = now
	return s.Handler(), st
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createCalendar(t *testing.T, h http.Handler, title string) model.Calendar {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/calendars", map[string]any{"title": title, "color": model.Green})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Calendar](t, rec)
}

func createWeeklyClass(t *testing.T, h http.Handler, calID uuid.UUID) model.Event {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/events", map[string]any{
		"title":          "Clase",
		"date":           "2024-01-01T09:00:00Z",
		"calendarId":     calID,
		"recurrenceRule": map[string]any{"type": "weekly", "weekdays": []int{2, 4}},
		"tasks":          []map[string]any{{"text": "Leer apuntes"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Event](t, rec)
}

func TestHealthAndBasicAuth(t *testing.T) {
	h, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "ana", Password: "secret"}
	})

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("ana", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("ana", "wrong!")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEventLifecycle(t *testing.T) {
	h, _ := newTestServer(t)
	cal := createCalendar(t, h, "Matemáticas")
	ev := createWeeklyClass(t, h, cal.ID)

	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.True(t, model.Green.Equal(ev.Color))
	require.Len(t, ev.Tasks, 1)
	assert.NotEqual(t, uuid.Nil, ev.Tasks[0].ID)
	assert.Equal(t, model.DefaultDurationMinutes, ev.DurationMinutes)

	// Wednesday is one of the rule's weekdays.
	rec := do(t, h, http.MethodGet, "/api/day?date=2024-01-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	day := decode[dayResponse](t, rec)
	require.Len(t, day.Occurrences, 1)
	assert.Equal(t, ev.ID, day.Occurrences[0].SourceID)
	assert.Equal(t, 9, day.Occurrences[0].Start.Hour())
	assert.Equal(t, 1, day.Occurrences[0].RemainingTasks)
	assert.False(t, day.Occurrences[0].IsAnchor)

	// Default date is today.
	rec = do(t, h, http.MethodGet, "/api/day", nil)
	assert.Len(t, decode[dayResponse](t, rec).Occurrences, 1)

	rec = do(t, h, http.MethodGet, "/api/week?start=2024-01-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	week := decode[weekResponse](t, rec)
	assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Equal(week.Start))
	require.Len(t, week.Days, 7)
	counts := make([]int, 7)
	for i, d := range week.Days {
		counts[i] = len(d.Occurrences)
	}
	assert.Equal(t, []int{1, 0, 1, 0, 0, 0, 0}, counts)
	assert.True(t, week.Days[0].Occurrences[0].IsAnchor)

	rec = do(t, h, http.MethodPost, "/api/events/"+ev.ID.String()+"/tasks/"+ev.Tasks[0].ID.String()+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.Event](t, rec).Tasks[0].IsCompleted)

	rec = do(t, h, http.MethodPut, "/api/events/"+ev.ID.String(), map[string]any{"title": "Clase de álgebra"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Event](t, rec)
	assert.Equal(t, "Clase de álgebra", updated.Title)
	assert.True(t, ev.Date.Equal(updated.Date))
	assert.Equal(t, model.Weekly, updated.Recurrence.Kind)

	rec = do(t, h, http.MethodDelete, "/api/events/"+ev.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/events/"+ev.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/events/"+ev.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateEventReplacesTasks(t *testing.T) {
	h, _ := newTestServer(t)
	cal := createCalendar(t, h, "Física")
	ev := createWeeklyClass(t, h, cal.ID)
	oldTask := ev.Tasks[0]

	rec := do(t, h, http.MethodPost, "/api/events/"+ev.ID.String()+"/tasks/"+oldTask.ID.String()+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/events/"+ev.ID.String(), map[string]any{
		"tasks": []map[string]any{{"text": "Hacer ejercicios"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Event](t, rec)
	require.Len(t, updated.Tasks, 1)
	assert.Equal(t, "Hacer ejercicios", updated.Tasks[0].Text)
	assert.False(t, updated.Tasks[0].IsCompleted)
	assert.NotEqual(t, uuid.Nil, updated.Tasks[0].ID)
	assert.NotEqual(t, oldTask.ID, updated.Tasks[0].ID)

	// Omitting tasks keeps the current list.
	rec = do(t, h, http.MethodPut, "/api/events/"+ev.ID.String(), map[string]any{"title": "Física II"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	kept := decode[model.Event](t, rec)
	require.Len(t, kept.Tasks, 1)
	assert.Equal(t, updated.Tasks[0].ID, kept.Tasks[0].ID)

	rec = do(t, h, http.MethodPut, "/api/events/"+ev.ID.String(), map[string]any{"tasks": []any{}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decode[model.Event](t, rec).Tasks)
}

func TestCalendarColorCascade(t *testing.T) {
	h, st := newTestServer(t)
	cal := createCalendar(t, h, "Computación Distribuida")
	ev := createWeeklyClass(t, h, cal.ID)

	other := do(t, h, http.MethodPost, "/api/events", map[string]any{
		"title": "Sin calendario",
		"date":  "2024-01-02T12:00:00Z",
		"color": model.Orange,
	})
	require.Equal(t, http.StatusCreated, other.Code, other.Body.String())

	rec := do(t, h, http.MethodPut, "/api/calendars/"+cal.ID.String()+"/color", map[string]any{"hex": "#FF0000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "#FF0000", decode[model.Calendar](t, rec).Color.Hex())

	got, err := st.EventFor(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "#FF0000", got.Color.Hex())

	untouched, err := st.EventFor(decode[model.Event](t, other).ID)
	require.NoError(t, err)
	assert.True(t, model.Orange.Equal(untouched.Color))

	rec = do(t, h, http.MethodPut, "/api/calendars/"+uuid.NewString()+"/color", map[string]any{"color": model.Blue})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/calendars/"+cal.ID.String()+"/color", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHiddenCalendarFiltering(t *testing.T) {
	h, _ := newTestServer(t)
	cal := createCalendar(t, h, "Oculto")
	createWeeklyClass(t, h, cal.ID)

	rec := do(t, h, http.MethodPut, "/api/calendars/"+cal.ID.String(), map[string]any{"isVisible": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[model.Calendar](t, rec).IsVisible)

	rec = do(t, h, http.MethodGet, "/api/day?date=2024-01-03", nil)
	assert.Empty(t, decode[dayResponse](t, rec).Occurrences)

	rec = do(t, h, http.MethodGet, "/api/day?date=2024-01-03&all=1", nil)
	assert.Len(t, decode[dayResponse](t, rec).Occurrences, 1)
}

func TestDeleteCalendarDetachesEvents(t *testing.T) {
	h, st := newTestServer(t)
	cal := createCalendar(t, h, "Temporal")
	ev := createWeeklyClass(t, h, cal.ID)

	rec := do(t, h, http.MethodDelete, "/api/calendars/"+cal.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	got, err := st.EventFor(ev.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CalendarID)

	rec = do(t, h, http.MethodGet, "/api/calendars", nil)
	assert.Empty(t, decode[calendarsResponse](t, rec).Calendars)
}

func TestEventsByPeriod(t *testing.T) {
	h, _ := newTestServer(t)
	for _, date := range []string{"2023-12-20T09:00:00Z", "2024-01-05T09:00:00Z", "2024-01-20T09:00:00Z"} {
		rec := do(t, h, http.MethodPost, "/api/events", map[string]any{"title": "Evento " + date, "date": date})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodGet, "/api/events", nil)
	assert.Len(t, decode[eventsResponse](t, rec).Events, 3)

	rec = do(t, h, http.MethodGet, "/api/events?period=next-7-days", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[eventsResponse](t, rec).Events
	require.Len(t, events, 1)
	assert.Equal(t, 5, events[0].Date.Day())

	rec = do(t, h, http.MethodGet, "/api/events?period=future", nil)
	assert.Empty(t, decode[eventsResponse](t, rec).Events)

	rec = do(t, h, http.MethodGet, "/api/events?period=someday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBadRequests(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad uuid", http.MethodGet, "/api/events/not-a-uuid", nil, http.StatusBadRequest},
		{"bad date", http.MethodGet, "/api/day?date=03/01/2024", nil, http.StatusBadRequest},
		{"bad week", http.MethodGet, "/api/week?start=tomorrow", nil, http.StatusBadRequest},
		{"empty title", http.MethodPost, "/api/events", map[string]any{"title": " ", "date": "2024-01-05T09:00:00Z"}, http.StatusBadRequest},
		{"missing date", http.MethodPost, "/api/events", map[string]any{"title": "x"}, http.StatusBadRequest},
		{"weekly without days", http.MethodPost, "/api/events", map[string]any{
			"title": "x", "date": "2024-01-05T09:00:00Z", "recurrenceRule": map[string]any{"type": "weekly"},
		}, http.StatusBadRequest},
		{"end before anchor", http.MethodPost, "/api/events", map[string]any{
			"title": "x", "date": "2024-01-05T09:00:00Z",
			"recurrenceRule": map[string]any{"type": "daily"}, "recurrenceEndDate": "2024-01-01T00:00:00Z",
		}, http.StatusBadRequest},
		{"unknown calendar", http.MethodPost, "/api/events", map[string]any{
			"title": "x", "date": "2024-01-05T09:00:00Z", "calendarId": uuid.NewString(),
		}, http.StatusNotFound},
		{"unknown field", http.MethodPost, "/api/events", map[string]any{"title": "x", "colour": "red"}, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/calendars", "{", http.StatusBadRequest},
		{"calendar without title", http.MethodPost, "/api/calendars", map[string]any{"title": ""}, http.StatusBadRequest},
		{"unknown calendar update", http.MethodPut, "/api/calendars/" + uuid.NewString(), map[string]any{"title": "x"}, http.StatusNotFound},
		{"unknown task", http.MethodPost, "/api/events/" + uuid.NewString() + "/tasks/" + uuid.NewString() + "/toggle", nil, http.StatusNotFound},
		{"wrong method", http.MethodPatch, "/api/events", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

const importFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ext-1@example.com\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240104T150000Z\r\n" +
	"DTEND:20240104T160000Z\r\n" +
	"SUMMARY:Seminario\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestImportAndExport(t *testing.T) {
	h, st := newTestServer(t)

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/api/import", importFeed)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, map[string]int{"imported": 1, "rejected": 0}, decode[map[string]int](t, rec))
	}
	require.Len(t, st.Events(), 1, "re-import updates in place")

	rec := do(t, h, http.MethodGet, "/api/day?date=2024-01-04", nil)
	day := decode[dayResponse](t, rec)
	require.Len(t, day.Occurrences, 1)
	assert.Equal(t, "Seminario", day.Occurrences[0].Title)

	rec = do(t, h, http.MethodGet, "/api/export.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "BEGIN:VEVENT")
	assert.Contains(t, rec.Body.String(), "SUMMARY:Seminario")

	rec = do(t, h, http.MethodPost, "/api/import", "garbage")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh(t *testing.T) {
	h, _ := newTestServer(t)
	createWeeklyClass(t, h, createCalendar(t, h, "Cal").ID)

	rec := do(t, h, http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Greater(t, decode[map[string]int](t, rec)["occurrences"], 100)
}
