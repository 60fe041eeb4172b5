package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getclever/docqa-assistant/internal/bootstrap"
	"github.com/getclever/docqa-assistant/internal/config"
	"github.com/getclever/docqa-assistant/internal/observability/metrics"
)

const serviceName = "docqa-worker"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	app.Logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeIngestRequested(ctx, func(handlerCtx context.Context, directory string) error {
		ingestCtx, cancel := context.WithTimeout(handlerCtx, 15*time.Minute)
		defer cancel()

		workerMetrics.StartIngest()
		start := time.Now()
		report := app.Assistant.Ingest(ingestCtx, directory)

		var runErr error
		if !report.Success {
			runErr = errIngestFailed{message: report.Message}
		}
		workerMetrics.FinishIngest(serviceName, time.Since(start), report.Stats.TotalChunks, runErr)
		return runErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

type errIngestFailed struct {
	message string
}

func (e errIngestFailed) Error() string { return "ingest failed: " + e.message }
