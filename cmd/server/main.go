// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/unclebandit/salon-messaging/internal/cache"
	"github.com/unclebandit/salon-messaging/internal/config"
	"github.com/unclebandit/salon-messaging/internal/controller"
	"github.com/unclebandit/salon-messaging/internal/db"
	"github.com/unclebandit/salon-messaging/internal/handler"
	"github.com/unclebandit/salon-messaging/internal/metrics"
	"github.com/unclebandit/salon-messaging/internal/model"
	"github.com/unclebandit/salon-messaging/internal/queue"
	"github.com/unclebandit/salon-messaging/internal/repository"
	"github.com/unclebandit/salon-messaging/internal/service"
	"github.com/unclebandit/salon-messaging/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	config.ConfigureLogger(cfg.LogLevel)
	metrics.Register()

	shutdownTracing, err := telemetry.Init(cfg.OTelServiceName+"-api", cfg.OTelEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("init tracing")
	}
	defer shutdownTracing()

	store, err := db.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open store")
	}
	defer store.Close()

	backend, err := cache.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open cache")
	}
	defer backend.Close()

	notifier, err := queue.OpenNotifier(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.WakeDriver).Msg("connect wake notifier")
	}
	if notifier != nil {
		defer notifier.Close()
	}

	q := queue.New(store,
		queue.Config{MaxAttempts: cfg.MaxAttempts, RetryDelay: cfg.RetryDelay()},
		queue.WithNotifier(notifier),
	)
	contactRepo := &repository.ContactRepository{
		Store: store,
		Cache: cache.NewMemo[[]model.Contact](backend, cfg.ContactCacheTTL()),
	}
	campaignService := &service.CampaignService{
		Contacts:  contactRepo,
		Queue:     q,
		BrandName: cfg.BrandName,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(metrics.HTTPMiddleware)

	controller.Routes(r,
		&controller.CampaignController{CampaignService: campaignService},
		&controller.MessageController{Service: campaignService, Queue: q},
	)
	handler.Routes(r,
		handler.NewQueueHandler(q),
		&handler.HealthHandler{StoreDriver: cfg.StoreDriver, WakeDriver: cfg.WakeDriver, CacheDriver: cfg.CacheDriver},
	)
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("messaging API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("messaging API stopped")
}
