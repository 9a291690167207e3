// Package scheduler runs the periodic maintenance jobs: re-expanding the
// occurrence cache, retrying failed saves and pulling ICS subscriptions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
)

const defaultJobTimeout = 2 * time.Minute

// Target is the part of the store the jobs drive.
type Target interface {
	Refresh() int
	Pending() bool
	Flush(ctx context.Context) error
}

// SyncFunc pulls remote feeds into the store.
type SyncFunc func(ctx context.Context) error

// Config holds cron specs in the standard five-field syntax or a
// descriptor such as "@daily" or "@every 1m". An empty spec disables the job.
type Config struct {
	Refresh   string
	SaveRetry string
	Sync      string

	Location   *time.Location
	JobTimeout time.Duration
}

type Scheduler struct {
	cron       *cron.Cron
	target     Target
	sync       SyncFunc
	jobTimeout time.Duration
}

// New validates every spec and registers the jobs. Nothing runs until
// Start. sync may be nil.
func New(cfg Config, target Target, sync SyncFunc) (*Scheduler, error) {
	if target == nil {
		return nil, errors.New("scheduler: target is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}

	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		target:     target,
		sync:       sync,
		jobTimeout: cfg.JobTimeout,
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"refresh", cfg.Refresh, s.RunRefresh},
		{"save_retry", cfg.SaveRetry, s.RunSaveRetry},
		{"sync", cfg.Sync, s.RunSync},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if j.name == "sync" && sync == nil {
			continue
		}
		run := j.run
		if _, err := s.cron.AddFunc(j.spec, func() { s.withTimeout(run) }); err != nil {
			return nil, fmt.Errorf("scheduler: %s spec %q: %w", j.name, j.spec, err)
		}
		appLog.Info("scheduler: job registered", "job", j.name, "spec", j.spec)
	}
	return s, nil
}

func (s *Scheduler) withTimeout(run func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()
	run(ctx)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunRefresh rebuilds the occurrence cache so a new day is picked up even
// when nobody queries overnight.
func (s *Scheduler) RunRefresh(context.Context) {
	start := time.Now()
	n := s.target.Refresh()
	appLog.Info("scheduler: expansion refreshed", "occurrences", n, "took", time.Since(start).String())
}

// RunSaveRetry flushes a snapshot left pending by a failed save.
func (s *Scheduler) RunSaveRetry(ctx context.Context) {
	if !s.target.Pending() {
		return
	}
	if err := s.target.Flush(ctx); err != nil {
		appLog.Error("scheduler: save retry failed", err)
		return
	}
	appLog.Info("scheduler: pending snapshot saved")
}

func (s *Scheduler) RunSync(ctx context.Context) {
	if s.sync == nil {
		return
	}
	if err := s.sync(ctx); err != nil {
		appLog.Error("scheduler: subscription sync finished with errors", err)
	}
}

// cronLogger routes cron's own messages to the package logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
