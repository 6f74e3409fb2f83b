// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unclebandit/salon-messaging/internal/config"
	"github.com/unclebandit/salon-messaging/internal/db"
	"github.com/unclebandit/salon-messaging/internal/lockfile"
	"github.com/unclebandit/salon-messaging/internal/metrics"
	"github.com/unclebandit/salon-messaging/internal/provider"
	"github.com/unclebandit/salon-messaging/internal/queue"
	"github.com/unclebandit/salon-messaging/internal/service"
	"github.com/unclebandit/salon-messaging/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("delivery worker exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	config.ConfigureLogger(cfg.LogLevel)
	metrics.Register()

	// Claims are not safe across processes sharing a local document.
	switch cfg.StoreDriver {
	case "file", "sqlite":
		dir := cfg.DataDir
		if cfg.StoreDriver == "sqlite" {
			dir = filepath.Dir(cfg.SQLitePath)
		}
		lock, err := lockfile.Acquire(dir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	deliverer := provider.FromConfig(cfg)
	if err := deliverer.EnsureConfigured(); err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Init(cfg.OTelServiceName+"-worker", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	store, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	q := queue.New(store, queue.Config{MaxAttempts: cfg.MaxAttempts, RetryDelay: cfg.RetryDelay()})

	var opts []service.WorkerOption
	wake, err := queue.OpenWakeSource(cfg)
	if err != nil {
		return err
	}
	if wake != nil {
		defer wake.Close()
		opts = append(opts, service.WithWake(wake.Wake()))
	}

	worker := service.NewWorker(q, deliverer, service.WorkerConfig{
		BatchSize:    cfg.BatchSize,
		PollInterval: cfg.PollInterval(),
		StaleAfter:   cfg.StaleAfter(),
	}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := worker.Start(ctx); err != nil {
		return err
	}

	var metricsSrv *http.Server
	if cfg.WorkerMetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Info().Str("addr", metricsSrv.Addr).Msg("worker metrics listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("worker metrics server")
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info().Str("signal", s.String()).Msg("shutting down delivery worker")

	// Stop before cancelling so the current batch is marked with a live context.
	if err := worker.Stop(); err != nil {
		log.Warn().Err(err).Msg("stop worker")
	}
	if metricsSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}
