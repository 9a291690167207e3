package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/albacostas/planificadorFecha/internal/config"
	"github.com/albacostas/planificadorFecha/internal/ics"
	appLog "github.com/albacostas/planificadorFecha/internal/log"
	"github.com/albacostas/planificadorFecha/internal/persist"
	"github.com/albacostas/planificadorFecha/internal/scheduler"
	"github.com/albacostas/planificadorFecha/internal/store"
	"github.com/albacostas/planificadorFecha/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	importSrc  string
	exportPath string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", flags.configPath, err)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	if err := appLog.Init(conf.Environment, appLog.ParseLevel(conf.LogLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer appLog.Sync()

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("planner starting",
		"version", version,
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"horizon_days", conf.HorizonDays,
		"storage", conf.Storage.Backend,
		"subscriptions", len(conf.Subscriptions),
		"environment", conf.Environment,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("planner stopped with error", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Info("planner exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	loc := conf.Location()

	gw, closeGateway, err := openGateway(ctx, conf, loc)
	if err != nil {
		return err
	}
	defer closeGateway()

	st, err := store.New(ctx, store.Options{
		Gateway:      gw,
		SeedDefaults: conf.Seed(),
		Location:     loc,
		HorizonDays:  conf.HorizonDays,
		StaleAfter:   conf.StaleAfterDuration(),
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			appLog.Error("final save failed", err)
		}
	}()

	fetcher := ics.NewFetcher(nil)

	// One-shot modes.
	if flags.importSrc != "" {
		return importOnce(ctx, st, fetcher, flags.importSrc, loc)
	}
	if flags.exportPath != "" {
		return exportOnce(st, flags.exportPath)
	}

	subs := make([]ics.Subscription, 0, len(conf.Subscriptions))
	for _, s := range conf.Subscriptions {
		subs = append(subs, ics.Subscription{ID: s.ID, URL: s.URL})
	}
	var syncFn scheduler.SyncFunc
	if len(subs) > 0 {
		syncFn = func(ctx context.Context) error {
			res, err := ics.Sync(ctx, fetcher, subs, st, loc)
			appLog.Info("subscriptions synced", "imported", res.Imported, "rejected", res.Rejected)
			return err
		}
	}

	sched, err := scheduler.New(scheduler.Config{
		Refresh:   conf.Refresh,
		SaveRetry: conf.SaveRetry,
		Sync:      conf.SyncCron,
		Location:  loc,
	}, st, syncFn)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sched.Stop(stopCtx); err != nil {
			appLog.Error("scheduler stop timed out", err)
		}
	}()

	// Pull subscriptions once at startup so the first view is complete.
	if syncFn != nil {
		go sched.RunSync(ctx)
	}

	return web.NewServer(conf, st).Run(ctx)
}

func openGateway(ctx context.Context, conf *config.Config, loc *time.Location) (persist.Gateway, func(), error) {
	switch conf.Storage.Backend {
	case config.BackendPostgres:
		pg, err := persist.OpenPostgres(ctx, conf.Storage.DSN, loc)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		appLog.Info("using file storage", "path", conf.Storage.Path)
		return persist.NewFileStore(conf.Storage.Path), func() {}, nil
	}
}

func importOnce(ctx context.Context, st *store.Store, f *ics.Fetcher, src string, loc *time.Location) error {
	var (
		body []byte
		err  error
	)
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		body, _, err = f.Fetch(ctx, ics.Subscription{ID: "cli", URL: src})
	} else {
		body, err = os.ReadFile(src)
	}
	if err != nil {
		return fmt.Errorf("import %s: %w", src, err)
	}

	imported, rejected, err := ics.ImportInto(ctx, bytes.NewReader(body), st, loc)
	if err != nil {
		return fmt.Errorf("import %s: %w", src, err)
	}
	appLog.Info("import finished", "imported", imported, "rejected", rejected)
	return st.Flush(ctx)
}

func exportOnce(st *store.Store, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ics.Export(f, st.Events(), st.Calendars(), time.Now()); err != nil {
		return errors.Join(err, f.Close())
	}
	if err := f.Close(); err != nil {
		return err
	}
	appLog.Info("export written", "path", path, "events", len(st.Events()))
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.importSrc, "import", "", "Import an ICS file or URL into the store and exit")
	flag.StringVar(&cfg.exportPath, "export", "", "Write all events to an ICS file and exit")

	flag.Parse()

	return cfg
}
