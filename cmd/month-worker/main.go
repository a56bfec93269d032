package main

import (
	"context"
	"errors"
	"os"
	"time"

	"bilancio/internal/cli"
	"bilancio/internal/log"
	"bilancio/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting month-worker",
		"interval", cfg.WorkerInterval.String(),
		"lookahead_months", cfg.WorkerLookaheadMonths,
		"concurrency", cfg.WorkerConcurrency)

	app, err := cli.NewApp(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to release resources", log.FieldError, err)
		}
	}()

	w := worker.NewMonthWorker(app.Months, cfg.WorkerLookaheadMonths, cfg.WorkerConcurrency, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx, cfg.WorkerInterval)
	})
	if app.AMQP != nil {
		g.Go(func() error {
			return app.AMQP.Consume(gctx, w.HandleEvent)
		})
	} else {
		logger.Info("AMQP disabled, sync requests are only picked up by the periodic run")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", log.FieldError, err)
		return
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
