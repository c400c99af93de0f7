// Command hqd is the OpenClaw HQ server daemon.
// It owns the SQLite database, serves the REST API, and dispatches tasks
// to agents via the configured agent CLI.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camster91/openclaw-hq/activity"
	"github.com/camster91/openclaw-hq/agent"
	"github.com/camster91/openclaw-hq/config"
	"github.com/camster91/openclaw-hq/crm"
	"github.com/camster91/openclaw-hq/dispatch"
	"github.com/camster91/openclaw-hq/internal/version"
	"github.com/camster91/openclaw-hq/server"
	"github.com/camster91/openclaw-hq/store"
	"github.com/camster91/openclaw-hq/task"
	"github.com/camster91/openclaw-hq/update"
)

var (
	configPath  = flag.String("config", "openclaw-hq.yaml", "path to config file")
	seedData    = flag.Bool("seed", false, "seed starter data into an empty database")
	selfUpdate  = flag.Bool("update", false, "check for and apply the latest release, then exit")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("hqd %s", version.String())
		return
	}
	if *selfUpdate {
		runSelfUpdate()
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	logger.Info("starting hqd",
		"version", version.Version,
		"commit", version.Commit,
	)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database %s: %v", cfg.DBPath, err)
	}
	defer db.Close()

	tasks, err := task.NewSQLiteStore(db)
	if err != nil {
		log.Fatalf("Failed to init task store: %v", err)
	}
	crmStore, err := crm.NewSQLiteStore(db)
	if err != nil {
		log.Fatalf("Failed to init crm store: %v", err)
	}
	activities, err := activity.NewRecorder(db)
	if err != nil {
		log.Fatalf("Failed to init activity log: %v", err)
	}

	if *seedData {
		if err := seed(crmStore, tasks, activities); err != nil {
			log.Fatalf("Failed to seed database: %v", err)
		}
	}

	roster := agent.NewRoster(cfg.Agents)
	dispatcher := dispatch.New(tasks, crmStore, activities, roster,
		cfg.Dispatch.Command, cfg.Dispatch.Timeout.Std(), logger)

	srv := server.New(*cfg, version.Version, server.Deps{
		Tasks:      tasks,
		CRM:        crmStore,
		Activities: activities,
		Roster:     roster,
		Dispatcher: dispatcher,
		Stats:      server.StatsSource{Tasks: tasks, CRM: crmStore},
	}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("server stop error", "error", err)
	}

	// Give in-flight agent completions a bounded chance to land.
	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("timed out waiting for in-flight dispatches")
	}
	logger.Info("shutdown complete")
}

// runSelfUpdate replaces the running binary with the latest release.
func runSelfUpdate() {
	u := update.New(version.Version)
	rel, err := u.CheckForUpdate()
	if err != nil {
		log.Fatalf("Update check failed: %v", err)
	}
	if rel == nil {
		log.Printf("hqd %s is up to date", version.Version)
		return
	}
	log.Printf("Updating to %s", rel.Version)
	if err := u.ApplyUpdate(rel); err != nil {
		log.Fatalf("Update failed: %v", err)
	}
	log.Printf("Updated to %s", rel.Version)
}

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
