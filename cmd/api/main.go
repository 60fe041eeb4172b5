package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/getclever/docqa-assistant/internal/adapters/http"
	"github.com/getclever/docqa-assistant/internal/bootstrap"
	"github.com/getclever/docqa-assistant/internal/config"
	"github.com/getclever/docqa-assistant/internal/infrastructure/storage/localfs"
	"github.com/getclever/docqa-assistant/internal/observability/metrics"
)

const serviceName = "docqa-api"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	store, err := localfs.New(cfg.DocumentsDir)
	if err != nil {
		log.Fatalf("init document store: %v", err)
	}

	options := httpadapter.Options{
		Queue:   app.Queue,
		Store:   store,
		Metrics: metrics.NewHTTPServerMetrics(serviceName),
		Logger:  app.Logger,
		Service: serviceName,
	}
	if app.TurnLog != nil {
		options.Turns = app.TurnLog
	}
	router := httpadapter.NewRouter(app.Assistant, options).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		app.Logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("api_shutdown_error", "error", err)
	}
}
