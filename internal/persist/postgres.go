package persist

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
	"github.com/albacostas/planificadorFecha/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore persists snapshots into two tables. Save replaces both
// tables inside one transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// OpenPostgres connects, applies pending migrations and returns a ready
// store. Timestamps are read back in loc (UTC if nil).
func OpenPostgres(ctx context.Context, dsn string, loc *time.Location) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is empty", ErrUnavailable)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresStore{pool: pool, loc: loc}, nil
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	// goose needs a *sql.DB; closing it leaves the pool open.
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("%w: apply migrations: %w", ErrUnavailable, err)
	}
	return nil
}

type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	appLog.Info("goose: " + fmt.Sprintf(format, v...))
}

// Fatalf must not exit the process; it is only logged.
func (gooseLogger) Fatalf(format string, v ...interface{}) {
	appLog.Error("goose: fatal", fmt.Errorf(format, v...))
}

const (
	selectCalendars = `
		SELECT id, title, color, is_visible
		FROM calendars
		ORDER BY position, id
	`
	selectEvents = `
		SELECT id, title, symbol, color, starts_at, duration_minutes, ends_at,
		       all_day, calendar_id, subtype, recurrence, recurrence_end, tasks
		FROM events
		ORDER BY starts_at, id
	`
	insertCalendar = `
		INSERT INTO calendars (id, title, color, is_visible, position)
		VALUES ($1, $2, $3, $4, $5)
	`
	insertEvent = `
		INSERT INTO events (id, title, symbol, color, starts_at, duration_minutes, ends_at,
		                    all_day, calendar_id, subtype, recurrence, recurrence_end, tasks)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	upsertMeta = `
		INSERT INTO snapshot_meta (id, saved_at)
		VALUES (1, NOW())
		ON CONFLICT (id) DO UPDATE SET saved_at = EXCLUDED.saved_at
	`
)

func (p *PostgresStore) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	var savedAt time.Time
	err := p.pool.QueryRow(ctx, `SELECT saved_at FROM snapshot_meta WHERE id = 1`).Scan(&savedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return snap, fmt.Errorf("%w: %w: database never saved", ErrUnavailable, ErrNoData)
	}
	if err != nil {
		return snap, fmt.Errorf("%w: read snapshot meta: %w", ErrUnavailable, err)
	}

	rows, err := p.pool.Query(ctx, selectCalendars)
	if err != nil {
		return snap, fmt.Errorf("%w: select calendars: %w", ErrUnavailable, err)
	}
	snap.Calendars, err = pgx.CollectRows(rows, scanCalendar)
	if err != nil {
		return snap, fmt.Errorf("%w: scan calendars: %w", ErrUnavailable, err)
	}

	rows, err = p.pool.Query(ctx, selectEvents)
	if err != nil {
		return snap, fmt.Errorf("%w: select events: %w", ErrUnavailable, err)
	}
	snap.Events, err = pgx.CollectRows(rows, p.scanEvent)
	if err != nil {
		return snap, fmt.Errorf("%w: scan events: %w", ErrUnavailable, err)
	}

	appLog.Debug("persist: snapshot loaded from postgres", "saved_at", savedAt)
	return sanitize(snap), nil
}

func scanCalendar(row pgx.CollectableRow) (model.Calendar, error) {
	var (
		c  model.Calendar
		id pgtype.UUID
	)
	if err := row.Scan(&id, &c.Title, &c.Color, &c.IsVisible); err != nil {
		return c, err
	}
	c.ID = uuid.UUID(id.Bytes)
	return c, nil
}

func (p *PostgresStore) scanEvent(row pgx.CollectableRow) (model.Event, error) {
	var (
		e                    model.Event
		id, calendarID       pgtype.UUID
		start                time.Time
		endAt, recurrenceEnd pgtype.Timestamptz
		subtype              string
	)
	err := row.Scan(
		&id,
		&e.Title,
		&e.Symbol,
		&e.Color,
		&start,
		&e.DurationMinutes,
		&endAt,
		&e.AllDay,
		&calendarID,
		&subtype,
		&e.Recurrence,
		&recurrenceEnd,
		&e.Tasks,
	)
	if err != nil {
		return e, err
	}

	e.ID = uuid.UUID(id.Bytes)
	e.Date = start.In(p.loc)
	e.Subtype = model.Subtype(subtype)
	if endAt.Valid {
		t := endAt.Time.In(p.loc)
		e.EndOverride = &t
	}
	if recurrenceEnd.Valid {
		t := recurrenceEnd.Time.In(p.loc)
		e.RecurrenceEnd = &t
	}
	if calendarID.Valid {
		cid := uuid.UUID(calendarID.Bytes)
		e.CalendarID = &cid
	}
	return e, nil
}

// Save deletes every row and re-inserts the snapshot in one transaction.
func (p *PostgresStore) Save(ctx context.Context, snap Snapshot) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("%w: clear events: %w", ErrUnavailable, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM calendars`); err != nil {
		return fmt.Errorf("%w: clear calendars: %w", ErrUnavailable, err)
	}

	batch := &pgx.Batch{}
	for i, c := range snap.Calendars {
		batch.Queue(insertCalendar, pgUUID(&c.ID), c.Title, c.Color, c.IsVisible, i)
	}
	for _, e := range snap.Events {
		tasks := e.Tasks
		if tasks == nil {
			tasks = []model.Task{}
		}
		batch.Queue(insertEvent,
			pgUUID(&e.ID),
			e.Title,
			e.Symbol,
			e.Color,
			e.Date,
			e.DurationMinutes,
			pgTime(e.EndOverride),
			e.AllDay,
			pgUUID(e.CalendarID),
			string(e.Subtype),
			e.Recurrence,
			pgTime(e.RecurrenceEnd),
			tasks,
		)
	}

	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("%w: insert row %d: %w", ErrUnavailable, i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("%w: close batch: %w", ErrUnavailable, err)
		}
	}

	if _, err := tx.Exec(ctx, upsertMeta); err != nil {
		return fmt.Errorf("%w: update snapshot meta: %w", ErrUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrUnavailable, err)
	}
	appLog.Debug("persist: snapshot saved to postgres",
		"events", len(snap.Events),
		"calendars", len(snap.Calendars),
	)
	return nil
}

func pgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func pgTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
