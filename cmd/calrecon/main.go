package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calrecon/internal/cache"
	"calrecon/internal/config"
	appLog "calrecon/internal/log"
	"calrecon/internal/reconcile"
	"calrecon/internal/scheduler"
	"calrecon/internal/store"
	"calrecon/internal/summary"
	"calrecon/internal/web"
)

const (
	version         = "0.1.0"
	janitorInterval = time.Minute
	shutdownTimeout = 10 * time.Second
)

// flagConfig holds CLI flag values that override the config file.
type flagConfig struct {
	configPath string
	listen     string
	logLevel   string
	once       bool
}

func main() {
	if err := run(parseFlags()); err != nil {
		appLog.Error("calrecon exited with error", err)
		os.Exit(1)
	}
}

func run(flags flagConfig) error {
	appLog.Info("calrecon starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return err
	}

	// CLI flags override the config file when set.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"log_level", conf.LogLevel,
		"database", conf.DatabasePath,
		"batch_limit", conf.BatchLimit,
		"reconcile_cron", conf.ReconcileCron,
		"summary_model", conf.Summary.Model,
		"summary_enabled", conf.Summary.APIKey != "",
		"horizon_days", conf.ICS.HorizonDays,
		"once", flags.once,
	)

	st, err := store.New(conf.DatabasePath, store.WithBatchLimit(conf.BatchLimit))
	if err != nil {
		return err
	}
	defer st.Close()

	summaries := cache.New()
	summaries.StartJanitor(janitorInterval)
	defer summaries.Close()

	// A nil Generator makes every summary use the deterministic fallback.
	var gen reconcile.Generator
	if conf.Summary.APIKey != "" {
		gen = summary.NewClient(conf.Summary.Endpoint, conf.Summary.APIKey,
			summary.WithModel(conf.Summary.Model),
			summary.WithTimeout(conf.Summary.Timeout),
		)
	}
	enricher := reconcile.NewEnricher(gen, summaries,
		reconcile.WithSummaryTTL(conf.Summary.CacheTTL),
		reconcile.WithGenerateTimeout(conf.Summary.Timeout),
	)
	rec := reconcile.NewReconciler(st, st, enricher)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once {
		n, err := rec.ReconcileAll(ctx, st)
		appLog.Info("single reconcile pass finished", "users", n)
		return err
	}

	if conf.ReconcileCron != "" {
		sched, err := scheduler.New(conf.ReconcileCron, func(ctx context.Context) error {
			n, err := rec.ReconcileAll(ctx, st)
			appLog.Info("scheduled reconcile pass finished", "users", n)
			return err
		})
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
		appLog.Info("reconcile scheduler started", "cron", conf.ReconcileCron, "next", sched.Next())
	}

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, st, rec).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("http server listening", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("calrecon exiting")
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/calrecon/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Reconcile every user once and exit")

	flag.Parse()

	return cfg
}
