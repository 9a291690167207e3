package persist

import (
	"time"

	"github.com/albacostas/planificadorFecha/internal/model"
)

type sample struct {
	symbol string
	color  model.Color
	title  string
	tasks  []string
	in     time.Duration
}

var samples = []sample{
	{"gift.fill", model.Red, "Maya's Birthday", []string{"Guava kombucha", "Paper cups and plates", "Cheese plate", "Party poppers"}, 30 * 24 * time.Hour},
	{"theatermasks.fill", model.Yellow, "Pagliacci", []string{"Buy new tux", "Get tickets", "Book a flight for Carmen"}, 22 * time.Hour},
	{"heart.text.square.fill", model.Indigo, "Health Check-up", []string{"Bring medical ID", "Record heart rate data"}, 4 * 24 * time.Hour},
	{"leaf.fill", model.Green, "Camping Trip", []string{"Find a sleeping bag", "Bug spray", "Paper towels", "Food for 4 meals", "Straw hat"}, 36 * time.Hour},
	{"gamecontroller.fill", model.Cyan, "Game Night", []string{"Find a board game to bring", "Bring a dessert to share"}, 2 * 24 * time.Hour},
	{"graduationcap.fill", model.Gray, "First Day of School", []string{"Notebooks", "Pencils", "Binder", "First day of school outfit"}, 365 * 24 * time.Hour},
	{"book.fill", model.Purple, "Book Launch", []string{"Finish first draft", "Send draft to editor", "Final read-through"}, 2 * 365 * 24 * time.Hour},
	{"case.fill", model.Orange, "Sayulita Trip", []string{"Buy plane tickets", "Get a new bathing suit", "Find a hotel room"}, 19 * 24 * time.Hour},
}

// Defaults is the bundled data set used when nothing can be loaded. Event
// dates are relative to now and rounded down to the hour.
func Defaults(now time.Time) Snapshot {
	snap := Snapshot{
		Calendars: []model.Calendar{
			model.NewCalendar("Computación Distribuida", model.Blue),
			model.NewCalendar("Matemáticas", model.Green),
		},
	}

	for _, s := range samples {
		e := model.NewEvent(s.title, roundedHour(now.Add(s.in)))
		e.Symbol = s.symbol
		e.Color = s.color
		for _, text := range s.tasks {
			e.Tasks = append(e.Tasks, model.NewTask(text))
		}
		snap.Events = append(snap.Events, e)
	}

	wwdc := model.NewEvent("WWDC", time.Date(2021, time.June, 7, 0, 0, 0, 0, now.Location()))
	wwdc.Symbol = "globe.americas.fill"
	wwdc.Color = model.Gray
	for _, text := range []string{"Watch Keynote", "Watch What's new in SwiftUI", "Go to DT developer labs", "Learn about Create ML"} {
		wwdc.Tasks = append(wwdc.Tasks, model.NewTask(text))
	}
	snap.Events = append(snap.Events, wwdc)

	return snap
}

func roundedHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
