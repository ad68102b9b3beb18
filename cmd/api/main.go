package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/hyeonsoft/billscan/internal/adapters/http"
	"github.com/hyeonsoft/billscan/internal/bootstrap"
	"github.com/hyeonsoft/billscan/internal/config"
	"github.com/hyeonsoft/billscan/internal/observability/logging"
	"github.com/hyeonsoft/billscan/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("billscan-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics("billscan-api")
	router := httpadapter.NewRouter(
		app.UploadUC,
		app.ReadUC,
		app.ReviewUC,
		app.ExportUC,
		app.ProcessUC,
		httpadapter.Options{
			TriggerSecret:    cfg.TriggerSecret,
			RateLimitRPS:     cfg.APIRateLimitRPS,
			RateLimitBurst:   cfg.APIRateLimitBurst,
			MaxConcurrent:    cfg.APIMaxConcurrent,
			BackpressureWait: time.Duration(cfg.APIBackpressureMS) * time.Millisecond,
			Metrics:          httpMetrics,
			Service:          "billscan-api",
		},
	).Handler()

	mux := http.NewServeMux()
	mux.Handle("/metrics", httpMetrics.Handler())
	mux.Handle("/", router)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
