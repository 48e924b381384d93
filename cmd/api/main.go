package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/culture-relevance/internal/adapters/http"
	"github.com/kirillkom/culture-relevance/internal/bootstrap"
	"github.com/kirillkom/culture-relevance/internal/config"
	"github.com/kirillkom/culture-relevance/internal/core/ports"
	"github.com/kirillkom/culture-relevance/internal/observability/logging"
	"github.com/kirillkom/culture-relevance/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api", httpadapter.Routes...)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:      "api",
		Registerer:   httpMetrics.Registry(),
		ConnectQueue: cfg.AnalysisJobsEnabled,
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	var jobs ports.AnalysisJobQueuer
	if app.JobUC != nil {
		jobs = app.JobUC
	}

	router := httpadapter.NewRouter(cfg, app.PipelineUC, app.PipelineUC, jobs, app.Lists, httpMetrics).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "addr", server.Addr)
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
