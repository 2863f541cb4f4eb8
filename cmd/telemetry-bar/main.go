package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/bar"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/coalesce"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/collector"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/config"
	dbussvc "github.com/cptspacemanspiff/gnome-telemetry-bar/internal/dbus"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/engine"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/metric"
	"github.com/cptspacemanspiff/gnome-telemetry-bar/internal/storage"
)

// configEnv overrides the config path when -config is not given. It may be
// set in a .env file in the working directory.
const configEnv = "TELEMETRY_BAR_CONFIG"

const healthInterval = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configFlag := flag.String("config", "", "path to config.toml (default $"+configEnv+" or the user config dir)")
	verbose := flag.Bool("verbose", false, "enable all verbose logging (equivalent to -log=all)")
	logFlag := flag.String("log", "", "comma-separated log topics: engine,source,bar,config,dbus,storage (or 'all')")
	noDBus := flag.Bool("no-dbus", false, "do not register on the session bus; frames are only logged")
	resetDB := flag.Bool("reset-db", false, "clear the source health database and exit")
	exportPath := flag.String("export", "", "write the active config to this file (.toml, .yaml or .json) and exit")
	importPath := flag.String("import", "", "replace the config with this file (.toml, .yaml or .json) and exit")
	flag.Parse()

	filter, unknownTopics := parseTopics(*verbose, *logFlag)
	logger := newLogger(os.Stderr, filter)
	slog.SetDefault(logger)
	if len(unknownTopics) > 0 {
		logger.Warn("ignoring unknown log topics", "topics", unknownTopics, "known", knownTopics)
	}

	engineLog := logger.With("topic", "engine")
	sourceLog := logger.With("topic", "source")
	barLog := logger.With("topic", "bar")
	configLog := logger.With("topic", "config")
	dbusLog := logger.With("topic", "dbus")
	storageLog := logger.With("topic", "storage")

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("read .env", "err", err)
	}

	path := *configFlag
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		logger.Error("load config", "path", path, "err", err)
		return 1
	}
	logger.Info("config loaded", "path", path, "preset", cfg.Display.ActivePreset, "metrics", len(cfg.Display.EnabledMetrics))

	if *exportPath != "" {
		if err := config.Export(*exportPath, cfg); err != nil {
			logger.Error("export config", "path", *exportPath, "err", err)
			return 1
		}
		logger.Info("config exported", "path", *exportPath)
		return 0
	}
	if *importPath != "" {
		imported, err := config.Import(*importPath)
		if err != nil {
			logger.Error("import config", "path", *importPath, "err", err)
			return 1
		}
		if err := config.Save(path, imported); err != nil {
			logger.Error("save config", "path", path, "err", err)
			return 1
		}
		logger.Info("config imported", "from", *importPath, "to", path)
		return 0
	}

	dbPath := cfg.Storage.DBPath
	db := openDB(dbPath, logger)
	if *resetDB {
		if db == nil {
			return 1
		}
		defer db.Close()
		if err := db.Reset(); err != nil {
			logger.Error("reset database", "err", err)
			return 1
		}
		logger.Info("database reset", "path", dbPath)
		return 0
	}
	if db != nil {
		defer db.Close()
	}

	store := config.NewStore(path, cfg, configLog)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("save config", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup := engine.NewSupervisor(func(c *config.Config) []metric.Source {
		return collector.Build(c, sourceLog)
	}, engineLog)

	svc := dbussvc.NewService(store, nil, sup, db, dbusLog)
	var renderer bar.Renderer = bar.RendererFunc(func(f coalesce.Frame) {
		for _, it := range f.Items {
			barLog.Debug("item", "id", it.ID, "text", it.Text, "alert", it.Alert)
		}
	})
	if !*noDBus {
		conn, err := svc.Export()
		if err != nil {
			logger.Error("export dbus service", "err", err)
			return 1
		}
		defer conn.Close()
		renderer = svc
		logger.Info("D-Bus service registered", "name", dbussvc.BusName)
	}

	// Counter based sources report one huge delta across a suspend; force
	// a full re-render as soon as the machine is back.
	var wakeCh <-chan struct{}
	if sleepMon, err := collector.NewSleepMonitor(sourceLog); err != nil {
		logger.Warn("sleep monitor unavailable", "err", err)
	} else {
		wakeCh = sleepMon.Wake()
		defer sleepMon.Close()
	}

	b := bar.New(store, renderer, bar.WithLogger(barLog), bar.WithWake(wakeCh))
	svc.SetFrames(b)

	updates := store.Subscribe()
	initial := store.Current()
	snapshots := make(chan metric.Snapshot, 64)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sup.Run(gctx, initial, updates, snapshots) })
	g.Go(func() error { return b.Run(gctx, snapshots) })
	if watcher, err := config.Watch(store, configLog); err != nil {
		logger.Warn("config hot reload unavailable", "err", err)
	} else {
		defer watcher.Close()
		g.Go(func() error { return watcher.Run(gctx) })
	}
	if db != nil {
		g.Go(func() error { return persistHealth(gctx, db, sup, storageLog) })
		g.Go(func() error { return runCleanup(gctx, db, store, storageLog) })
	}

	logger.Info("telemetry-bar started", "sources", len(initial.VisibleMetrics()))
	if err := g.Wait(); err != nil {
		logger.Error("stopped", "err", err)
		return 1
	}
	logger.Info("shutting down")
	return 0
}

// openDB opens the health database. Persistence is optional, so failures
// are logged and the daemon carries on without it.
func openDB(path string, logger *slog.Logger) *storage.DB {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn("create data dir", "err", err)
		return nil
	}
	db, err := storage.Open(path)
	if err != nil {
		logger.Warn("open database, source health will not be persisted", "err", err)
		return nil
	}
	return db
}

// persistHealth writes per-source counters periodically and once more on
// shutdown.
func persistHealth(ctx context.Context, db *storage.DB, sup *engine.Supervisor, logger *slog.Logger) error {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	record := func() {
		stats := sup.Stats()
		if len(stats) == 0 {
			return
		}
		if err := db.RecordHealth(stats, time.Now()); err != nil {
			logger.Error("record source health", "err", err)
			return
		}
		logger.Debug("source health recorded", "sources", len(stats))
	}
	for {
		select {
		case <-ctx.Done():
			record()
			return nil
		case <-ticker.C:
			record()
		}
	}
}

// runCleanup prunes stale health rows on start and every cleanup interval.
func runCleanup(ctx context.Context, db *storage.DB, store *config.Store, logger *slog.Logger) error {
	interval := cleanupInterval(store.Current())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prune := func() {
		cfg := store.Current()
		before := time.Now().Add(-time.Duration(cfg.Cleanup.RetentionDays) * 24 * time.Hour)
		n, err := db.DeleteOlderThan(before)
		if err != nil {
			logger.Error("cleanup", "err", err)
			return
		}
		logger.Info("cleanup done", "deleted", n, "retention_days", cfg.Cleanup.RetentionDays)
		if next := cleanupInterval(cfg); next != interval {
			interval = next
			ticker.Reset(interval)
		}
	}

	prune()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prune()
		}
	}
}

func cleanupInterval(cfg *config.Config) time.Duration {
	if cfg.Cleanup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(cfg.Cleanup.IntervalHours) * time.Hour
}
