package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
	"github.com/albacostas/planificadorFecha/internal/model"
)

// FileStore keeps the snapshot in a single JSON document.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string { return f.path }

// Load reads the document. A missing file is reported as ErrUnavailable so
// the caller can seed defaults. Records that fail validation are dropped
// and logged rather than failing the whole load.
func (f *FileStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, fmt.Errorf("%w: %w: %s", ErrUnavailable, ErrNoData, f.path)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read %s: %w", ErrUnavailable, f.path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decode %s: %w", ErrUnavailable, f.path, err)
	}
	return sanitize(snap), nil
}

// Save writes the document atomically: temp file in the same directory,
// fsync, chmod 0600, rename.
func (f *FileStore) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if f.path == "" {
		return fmt.Errorf("%w: data path is empty", ErrUnavailable)
	}
	if snap.Events == nil {
		snap.Events = []model.Event{}
	}
	if snap.Calendars == nil {
		snap.Calendars = []model.Calendar{}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", ErrUnavailable, err)
	}
	if err := writeAtomic(f.path, data); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".planner-data-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func sanitize(snap Snapshot) Snapshot {
	out := Snapshot{
		Events:    make([]model.Event, 0, len(snap.Events)),
		Calendars: make([]model.Calendar, 0, len(snap.Calendars)),
	}
	known := make(map[string]bool, len(snap.Calendars))
	for _, c := range snap.Calendars {
		if err := c.Color.Validate(); err != nil {
			appLog.Error("persist: dropping calendar", err, "calendar_id", c.ID)
			continue
		}
		known[c.ID.String()] = true
		out.Calendars = append(out.Calendars, c)
	}
	for _, e := range snap.Events {
		if e.Tasks == nil {
			e.Tasks = []model.Task{}
		}
		if err := e.Validate(); err != nil {
			appLog.Error("persist: dropping event", err, "event_id", e.ID, "title", e.Title)
			continue
		}
		if e.CalendarID != nil && !known[e.CalendarID.String()] {
			appLog.Info("persist: detaching event from missing calendar", "event_id", e.ID, "calendar_id", *e.CalendarID)
			e.CalendarID = nil
		}
		out.Events = append(out.Events, e)
	}
	return out
}
