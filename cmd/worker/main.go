package main

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/nikhilbhutani/audioprep/internal/app"
	"github.com/nikhilbhutani/audioprep/internal/config"
	"github.com/nikhilbhutani/audioprep/internal/logger"
	"github.com/nikhilbhutani/audioprep/internal/queue"
	"github.com/nikhilbhutani/audioprep/internal/queue/workers"
	"github.com/nikhilbhutani/audioprep/internal/webhook"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	components, err := app.Build(context.Background(), cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build pipeline")
	}
	defer components.Close()

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				queue.QueueDefault: 1,
			},
			Logger: log.Component("asynq"),
		},
	)

	dispatcher := webhook.NewDispatcher(cfg.Webhook.Secret, cfg.Webhook.MaxRetries, log.Component("webhook"))
	worker := workers.NewTranscribeWorker(components.Service, dispatcher, log.Component("worker"))

	registry := queue.NewHandlersRegistry()
	registry.Use(workers.Logging(log.Component("worker")))
	registry.Register(queue.TypeAudioTranscribe, asynq.HandlerFunc(worker.ProcessTask))

	log.WithFields(logrus.Fields{
		"concurrency": cfg.Queue.Concurrency,
		"task_types":  registry.Types(),
	}).Info("starting worker")
	if err := srv.Run(registry.Mux()); err != nil {
		log.WithError(err).Fatal("worker error")
	}
}
