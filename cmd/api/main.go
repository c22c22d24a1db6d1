package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/audioprep/internal/api"
	"github.com/nikhilbhutani/audioprep/internal/api/handlers"
	"github.com/nikhilbhutani/audioprep/internal/app"
	"github.com/nikhilbhutani/audioprep/internal/config"
	"github.com/nikhilbhutani/audioprep/internal/logger"
	"github.com/nikhilbhutani/audioprep/internal/queue"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	ctx := context.Background()
	components, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build pipeline")
	}
	defer components.Close()

	deps := api.Deps{
		Config:       cfg,
		Log:          log,
		Metrics:      components.Metrics,
		Gatherer:     components.Registry,
		Transcriber:  components.Service,
		Capabilities: components.Capabilities,
		Ready:        map[string]handlers.Pinger{},
	}
	if components.DB != nil {
		deps.Runs = components.Audit
		deps.Ready["database"] = components.DB
	}
	if components.Cache != nil {
		deps.RateCounter = components.Cache
		deps.Ready["redis"] = components.Cache

		jobs := queue.NewClient(cfg.Redis, cfg.Queue)
		defer jobs.Close()
		deps.Jobs = jobs
	}

	router := api.NewRouter(deps)
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr()).Info("starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced shutdown")
	}
	log.Info("server stopped")
}
