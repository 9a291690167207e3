package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/albacostas/planificadorFecha/internal/ics"
	appLog "github.com/albacostas/planificadorFecha/internal/log"
	"github.com/albacostas/planificadorFecha/internal/model"
	"github.com/albacostas/planificadorFecha/internal/query"
)

const dateLayout = "2006-01-02"

type occurrenceDTO struct {
	Key            string      `json:"key"`
	SourceID       uuid.UUID   `json:"sourceId"`
	Title          string      `json:"title"`
	Symbol         string      `json:"symbol"`
	Color          model.Color `json:"color"`
	ColorHex       string      `json:"colorHex"`
	CalendarID     *uuid.UUID  `json:"calendarId,omitempty"`
	Subtype        string      `json:"subtype"`
	AllDay         bool        `json:"allDay"`
	Start          time.Time   `json:"start"`
	End            time.Time   `json:"end"`
	RemainingTasks int         `json:"remainingTasks"`
	IsAnchor       bool        `json:"isAnchor"`
}

type dayResponse struct {
	Date            string          `json:"date"`
	Occurrences     []occurrenceDTO `json:"occurrences"`
	DisplayTimeZone string          `json:"displayTimeZone"`
}

type weekResponse struct {
	Start           time.Time     `json:"start"`
	End             time.Time     `json:"end"`
	WeekStart       string        `json:"weekStart"`
	Days            []dayResponse `json:"days"`
	TruncatedEvents []uuid.UUID   `json:"truncatedEventIds"`
	DisplayTimeZone string        `json:"displayTimeZone"`
}

type eventsResponse struct {
	Events []model.Event `json:"events"`
}

type calendarsResponse struct {
	Calendars []model.Calendar `json:"calendars"`
}

// GET /api/day?date=YYYY-MM-DD&all=1
//   - date: defaults to today in the configured timezone
//   - all:  include occurrences of hidden calendars
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r, "date", s.today())
	if !ok {
		return
	}
	occs := s.visible(r, s.store.OccurrencesOn(date))
	writeJSON(w, http.StatusOK, s.dayResponse(date, occs))
}

// GET /api/week?start=YYYY-MM-DD&all=1
//   - start: any day of the week; snapped back to the configured week start
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dateParam(w, r, "start", s.today())
	if !ok {
		return
	}
	start := query.StartOfWeek(day, s.weekStart)
	occs := s.visible(r, s.store.OccurrencesInWeek(start))

	resp := weekResponse{
		Start:           start,
		End:             start.AddDate(0, 0, 7),
		WeekStart:       string(s.weekStart),
		Days:            make([]dayResponse, 0, 7),
		TruncatedEvents: s.store.Truncated(),
		DisplayTimeZone: s.loc.String(),
	}
	for i := 0; i < 7; i++ {
		d := start.AddDate(0, 0, i)
		resp.Days = append(resp.Days, s.dayResponse(d, query.On(occs, d)))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) dayResponse(date time.Time, occs []model.Occurrence) dayResponse {
	dtos := make([]occurrenceDTO, 0, len(occs))
	for _, o := range occs {
		dtos = append(dtos, occurrenceDTO{
			Key:            o.Key.String(),
			SourceID:       o.SourceID,
			Title:          o.Title,
			Symbol:         o.Symbol,
			Color:          o.Color,
			ColorHex:       o.Color.Hex(),
			CalendarID:     o.CalendarID,
			Subtype:        string(o.Subtype),
			AllDay:         o.AllDay,
			Start:          o.Start.In(s.loc),
			End:            o.End.In(s.loc),
			RemainingTasks: o.RemainingTasks,
			IsAnchor:       o.IsAnchor,
		})
	}
	return dayResponse{
		Date:            date.Format(dateLayout),
		Occurrences:     dtos,
		DisplayTimeZone: s.loc.String(),
	}
}

func (s *Server) visible(r *http.Request, occs []model.Occurrence) []model.Occurrence {
	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); all {
		return occs
	}
	return query.VisibleOnly(occs, s.store.Calendars())
}

func (s *Server) today() time.Time {
	return model.StartOfDay(s.now().In(s.loc))
}

func (s *Server) dateParam(w http.ResponseWriter, r *http.Request, name string, def time.Time) (time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	t, err := time.ParseInLocation(dateLayout, v, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

// GET /api/events?period=next-7-days
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("period")
	if p == "" {
		writeJSON(w, http.StatusOK, eventsResponse{Events: s.store.Events()})
		return
	}
	period, ok := model.ParsePeriod(p)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown period "+strconv.Quote(p))
		return
	}
	events := s.store.EventsByPeriod()[period]
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	// Omitted fields keep NewEvent's defaults.
	in := model.NewEvent("", time.Time{})
	in.ID = uuid.Nil
	if !decodeJSON(w, r, &in) {
		return
	}
	e, err := s.store.Add(r.Context(), in)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	e, err := s.store.EventFor(id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// PUT /api/events/{id} merges the body into the stored event, so a partial
// body only changes the fields it names.
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	cur, err := s.store.EventFor(id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	// A tasks field replaces the list wholesale.
	prevTasks := cur.Tasks
	cur.Tasks = nil
	if !decodeJSON(w, r, &cur) {
		return
	}
	if cur.Tasks == nil {
		cur.Tasks = prevTasks
	}
	e, err := s.store.WriteBack(r.Context(), id, cur)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.Remove(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	taskID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	e, err := s.store.ToggleTask(r.Context(), id, taskID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleListCalendars(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, calendarsResponse{Calendars: s.store.Calendars()})
}

func (s *Server) handleCreateCalendar(w http.ResponseWriter, r *http.Request) {
	in := model.Calendar{IsVisible: true, Color: model.Gray}
	if !decodeJSON(w, r, &in) {
		return
	}
	c, err := s.store.AddCalendar(r.Context(), in)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCalendar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	cur, err := s.store.Calendar(id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if !decodeJSON(w, r, &cur) {
		return
	}
	c, err := s.store.UpdateCalendar(r.Context(), id, cur)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCalendar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.RemoveCalendar(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/calendars/{id}/color accepts {"color":{"r":..,"g":..,"b":..,"a":..}}
// or {"hex":"#RRGGBB"} and recolors every event of the calendar.
func (s *Server) handleCalendarColor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in struct {
		Color *model.Color `json:"color"`
		Hex   string       `json:"hex"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	var color model.Color
	switch {
	case in.Color != nil:
		color = *in.Color
	case in.Hex != "":
		c, err := model.ParseHex(in.Hex)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		color = c
	default:
		writeError(w, http.StatusBadRequest, "color or hex is required")
		return
	}

	if err := s.store.SetCalendarColor(r.Context(), id, color); err != nil {
		writeStoreError(w, r, err)
		return
	}
	c, err := s.store.Calendar(id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="planner.ics"`)
	if err := ics.Export(w, s.store.Events(), s.store.Calendars(), s.now()); err != nil {
		appLog.Error("api export failed", err, "path", r.URL.Path)
	}
}

// POST /api/import takes a raw ICS body. Events are upserted by UID.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	imported, rejected, err := ics.ImportInto(r.Context(), body, s.store, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": imported, "rejected": rejected})
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	n := s.store.Refresh()
	writeJSON(w, http.StatusOK, map[string]int{"occurrences": n})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
