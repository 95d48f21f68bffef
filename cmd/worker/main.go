package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finsight-io/finsight/internal/bootstrap"
	"github.com/finsight-io/finsight/internal/config"
	"github.com/finsight-io/finsight/internal/observability/logging"
	"github.com/finsight-io/finsight/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("finsight-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("finsight-worker")

	app, err := bootstrap.New(ctx, cfg, workerMetrics.Observer("finsight-worker"), logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
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
	err = app.Queue.SubscribeJobs(ctx, func(handlerCtx context.Context, jobID string) error {
		start := time.Now()
		workerMetrics.StartJob()

		runCtx, cancel := context.WithTimeout(handlerCtx, 15*time.Minute)
		defer cancel()

		if job, statusErr := app.JobUC.Status(runCtx, jobID); statusErr == nil {
			workerMetrics.ObserveQueueLag("finsight-worker", time.Since(job.CreatedAt))
		}

		runErr := app.PipelineUC.RunJob(runCtx, jobID)
		workerMetrics.FinishJob("finsight-worker", time.Since(start), runErr)
		return runErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
