package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/culture-relevance/internal/bootstrap"
	"github.com/kirillkom/culture-relevance/internal/config"
	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/observability/logging"
	"github.com/kirillkom/culture-relevance/internal/observability/metrics"
)

const jobTimeout = 10 * time.Minute

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:      "worker",
		Registerer:   workerMetrics.Registry(),
		ConnectQueue: true,
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeAnalysisJobs(ctx, func(handlerCtx context.Context, job domain.AnalysisJob) (*domain.AnalysisResult, error) {
		jobCtx, cancel := context.WithTimeout(handlerCtx, jobTimeout)
		defer cancel()

		start := time.Now()
		workerMetrics.StartJob()
		result, err := app.JobUC.Handle(jobCtx, job)
		workerMetrics.FinishJob("worker", time.Since(start), err)
		if err == nil {
			slog.Info("job_completed",
				"image_key", job.ImageKey,
				"session_id", result.SessionID,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
		return result, err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
