package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/compliance-analyzer/internal/adapters/http"
	"github.com/kirillkom/compliance-analyzer/internal/bootstrap"
	"github.com/kirillkom/compliance-analyzer/internal/config"
	"github.com/kirillkom/compliance-analyzer/internal/observability/logging"
	"github.com/kirillkom/compliance-analyzer/internal/observability/metrics"
)

const serviceName = "compliance-api"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, serviceName, httpMetrics.Registry())
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	app.WatchCatalog(ctx)

	router := httpadapter.NewRouter(cfg, httpadapter.RouterDeps{
		Sessions: app.Sessions,
		Analyzer: app.Analyzer,
		Enqueuer: app.Enqueuer,
		Uploader: app.Uploader,
		Catalog:  app.Catalog,
		Metrics:  httpMetrics,
	}).Handler()
	// No WriteTimeout: analysis streams run for minutes.
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
