package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyeonsoft/billscan/internal/bootstrap"
	"github.com/hyeonsoft/billscan/internal/config"
	"github.com/hyeonsoft/billscan/internal/core/domain"
	"github.com/hyeonsoft/billscan/internal/observability/logging"
	"github.com/hyeonsoft/billscan/internal/observability/metrics"
)

const serviceName = "billscan-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if app.Queue == nil {
		log.Fatalf("worker requires a message queue; set NATS_URL")
	}

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app.ProcessUC.WithStageObserver(func(stage domain.Stage, duration time.Duration, err error) {
		workerMetrics.ObserveStage(serviceName, stage, duration, err)
	})

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeJobQueued(ctx, func(handlerCtx context.Context, jobID string) error {
		if job, err := app.Repo.GetByID(handlerCtx, jobID); err == nil {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(job.CreatedAt))
		}

		workerMetrics.StartJob()
		start := time.Now()

		processCtx, cancel := context.WithTimeout(handlerCtx, time.Duration(cfg.ProcessTimeoutSecs)*time.Second)
		defer cancel()
		procErr := app.ProcessUC.ProcessByID(processCtx, jobID)
		workerMetrics.FinishJob(serviceName, time.Since(start), procErr)
		return procErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
