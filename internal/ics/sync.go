package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
	"github.com/albacostas/planificadorFecha/internal/model"
)

// Sink receives imported events.
type Sink interface {
	Calendars() []model.Calendar
	Upsert(ctx context.Context, e model.Event) (model.Event, error)
}

// SyncResult summarizes one pass over the subscriptions.
type SyncResult struct {
	Imported int
	Rejected int
}

// Sync fetches every subscription and upserts its events into sink.
// Per-feed and per-event failures are logged and joined into the returned
// error; the remaining feeds are still processed.
func Sync(ctx context.Context, f *Fetcher, subs []Subscription, sink Sink, loc *time.Location) (SyncResult, error) {
	var (
		res  SyncResult
		errs []error
	)
	for _, sub := range subs {
		body, _, err := f.Fetch(ctx, sub)
		if err != nil {
			appLog.Error("ics sync: fetch failed", err, "id", sub.ID, "url", redactURL(sub.URL))
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		n, rejected, err := ImportInto(ctx, bytes.NewReader(body), sink, loc)
		res.Imported += n
		res.Rejected += rejected
		if err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
		}
	}
	return res, errors.Join(errs...)
}

// ImportInto parses r and upserts each event. Events the sink rejects are
// counted and logged.
func ImportInto(ctx context.Context, r io.Reader, sink Sink, loc *time.Location) (imported, rejected int, err error) {
	events, err := Import(r, sink.Calendars(), loc)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range events {
		if _, err := sink.Upsert(ctx, e); err != nil {
			appLog.Error("ics import: event rejected", err, "event_id", e.ID, "title", e.Title)
			rejected++
			continue
		}
		imported++
	}
	return imported, rejected, nil
}
