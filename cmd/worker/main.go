package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/compliance-analyzer/internal/bootstrap"
	"github.com/kirillkom/compliance-analyzer/internal/config"
	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/core/usecase"
	"github.com/kirillkom/compliance-analyzer/internal/observability/logging"
	"github.com/kirillkom/compliance-analyzer/internal/observability/metrics"
)

const (
	serviceName = "compliance-worker"
	runTimeout  = 60 * time.Minute
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, serviceName, workerMetrics.Registry())
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	app.WatchCatalog(ctx)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeAnalysisRequested(ctx, func(handlerCtx context.Context, req domain.RunRequest) error {
		if !req.RequestedAt.IsZero() {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(req.RequestedAt))
		}
		runCtx, cancel := context.WithTimeout(handlerCtx, runTimeout)
		defer cancel()

		workerMetrics.StartDelivery()
		start := time.Now()
		outcome, err := app.Analyzer.Run(runCtx, req)
		workerMetrics.FinishDelivery(serviceName, usecase.OutcomeLabel(outcome, err), outcome, time.Since(start))
		if err != nil {
			return err
		}
		slog.Info("worker_analysis_completed",
			"session_id", outcome.SessionID,
			"job_id", outcome.JobID,
			"score", outcome.ComplianceScore,
			"cache_hit", outcome.CacheHit,
		)
		return nil
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
