package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/irqd/internal/api"
	"github.com/mattjoyce/irqd/internal/config"
	"github.com/mattjoyce/irqd/internal/console"
	"github.com/mattjoyce/irqd/internal/dispatch"
	"github.com/mattjoyce/irqd/internal/driver"
	"github.com/mattjoyce/irqd/internal/events"
	"github.com/mattjoyce/irqd/internal/handler"
	"github.com/mattjoyce/irqd/internal/journal"
	"github.com/mattjoyce/irqd/internal/lock"
	"github.com/mattjoyce/irqd/internal/log"
	"github.com/mattjoyce/irqd/internal/observability"
	"github.com/mattjoyce/irqd/internal/queue"
	"github.com/mattjoyce/irqd/internal/storage"
)

// runtimeIO is the terminal the handlers talk to.
type runtimeIO struct {
	in  io.Reader
	out io.Writer
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	count := fs.Int("count", -1, "Override driver.count")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *count >= 0 {
		cfg.Driver.Count = *count
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := serve(cfg, runtimeIO{in: os.Stdin, out: os.Stdout}, sigCh); err != nil {
		log.Error("irqd stopped with error", "error", err)
		return 1
	}
	return 0
}

// serve wires every component and runs until the driver finishes (or a
// signal arrives) and the queue has drained.
func serve(cfg *config.Config, term runtimeIO, sigCh <-chan os.Signal) error {
	logger := log.WithComponent("main")

	fingerprint, err := cfg.Fingerprint()
	if err != nil {
		return fmt.Errorf("fingerprint config: %w", err)
	}
	logger.Info("irqd starting", "version", version, "config", cfg.SourcePath, "config_hash", fingerprint)

	tel := observability.Setup(cfg.Telemetry.Enabled, log.WithComponent("telemetry"))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	var store *journal.Store
	if cfg.Journal.Enabled {
		jl, err := lock.Acquire(lock.PathFor(cfg.Journal.Path))
		if err != nil {
			return fmt.Errorf("lock journal: %w", err)
		}
		defer jl.Release()

		db, err := storage.OpenSQLite(context.Background(), cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer closeDB(db, logger)
		store = journal.New(db)
		logger.Info("journal opened", "path", cfg.Journal.Path)
	}

	out := console.New(term.out)
	handlers, err := handler.NewSet(
		handler.NewTimer(cfg.Dispatch.TimerDelay, out),
		handler.NewIO(term.in, cfg.Dispatch.IOTimeout, out),
		handler.NewFault(out),
	)
	if err != nil {
		return fmt.Errorf("build handlers: %w", err)
	}

	q := queue.New()
	hub := events.NewHub(256)

	opts := dispatch.Options{
		PollInterval: cfg.Dispatch.PollInterval,
		Hub:          hub,
		Metrics:      tel.Metrics,
		Spans:        tel.Spans,
		Console:      out,
	}
	if store != nil {
		opts.Journal = store
	}
	disp := dispatch.New(q, handlers, opts)

	// abortCtx is cancelled only on a second signal.
	abortCtx, abort := context.WithCancel(context.Background())
	defer abort()

	runErr := make(chan error, 1)
	go func() { runErr <- disp.Run(abortCtx) }()

	apiCtx, stopAPI := context.WithCancel(context.Background())
	defer stopAPI()
	apiErr := make(chan error, 1)
	if cfg.API.Enabled {
		deps := api.Deps{Queue: q, Intake: disp, Hub: hub}
		if store != nil {
			deps.Journal = store
		}
		if tel.Enabled() {
			deps.Metrics = tel
		}
		srv := api.New(api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.APIKey}, deps, log.WithComponent("api"))
		go func() { apiErr <- srv.Start(apiCtx) }()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	driverCtx, stopDriver := context.WithCancel(abortCtx)
	defer stopDriver()
	driverDone := make(chan struct{})
	drv := driver.New(cfg.Driver, q, hub, log.Get())
	go func() {
		defer close(driverDone)
		if _, err := drv.Run(driverCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("driver failed", "error", err)
		}
	}()

	// With no simulated interrupts and an API to feed us, keep running.
	waitDriver := driverDone
	if cfg.Driver.Count == 0 && cfg.API.Enabled {
		waitDriver = nil
	}

	select {
	case <-waitDriver:
		logger.Info("driver finished, draining queue", "pending", q.Pending())
	case sig := <-sigCh:
		logger.Info("received shutdown signal, draining queue", "signal", sig, "pending", q.Pending())
		out.Warn("Shutdown requested, finishing %d pending interrupt(s)", q.Pending())
	case err := <-apiErr:
		stopDriver()
		abort()
		<-runErr
		return fmt.Errorf("api: %w", err)
	case err := <-runErr:
		return fmt.Errorf("dispatcher exited early: %w", err)
	}
	stopDriver()
	<-driverDone

	drainCtx, cancelDrain := context.WithCancel(context.Background())
	defer cancelDrain()
	if cfg.Dispatch.DrainTimeout > 0 {
		drainCtx, cancelDrain = context.WithTimeout(drainCtx, cfg.Dispatch.DrainTimeout)
		defer cancelDrain()
	}

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- disp.Shutdown(drainCtx) }()

	var result error
	select {
	case err := <-shutdownErr:
		result = err
	case sig := <-sigCh:
		logger.Warn("second signal, aborting", "signal", sig)
		abort()
		<-shutdownErr
		result = context.Canceled
	}

	if result != nil {
		// Drain timed out or was aborted: stop the loop after the current handler.
		abort()
		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dispatch loop failed", "error", err)
		}
		out.Error("Stopped with %d interrupt(s) unhandled", q.Pending())
		stopAPI()
		return fmt.Errorf("shutdown: %w", result)
	}
	if err := <-runErr; err != nil {
		return fmt.Errorf("dispatch loop: %w", err)
	}

	stopAPI()
	if cfg.API.Enabled {
		if err := <-apiErr; err != nil {
			logger.Warn("API server shutdown", "error", err)
		}
	}

	out.Summary("All interrupts were processed successfully!")
	logger.Info("irqd stopped")
	return nil
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("failed to close journal", "error", err)
	}
}
