package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"fundflow/internal/amfi"
	"fundflow/internal/amqp"
	"fundflow/internal/cli"
	"fundflow/internal/pipeline"
	"fundflow/internal/registry"
	"fundflow/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		logger.Error("Failed to load registry", "error", err, "path", cfg.RegistryPath)
		os.Exit(1)
	}

	fetcher := amfi.New(amfi.Options{
		BaseURL:      cfg.AMFIBaseURL,
		FundHouseID:  cfg.FundHouseID,
		RequestDelay: cfg.RequestDelay,
		Timeout:      cfg.FetchTimeout,
		Registry:     reg,
	})

	var publisher pipeline.EventPublisher
	if cfg.AMQPURL != "" {
		broker, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP", "error", err)
			os.Exit(1)
		}
		defer broker.Close()
		publisher = broker
		logger.Info("Connected to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	pipe := pipeline.New(fetcher, repo, publisher, nil, pipeline.Options{
		RetryDays:     cfg.RetryDays,
		BackfillDelay: cfg.BackfillDelay,
	})

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	logger.Info("Starting fundflow scheduler",
		"run_day", cfg.SchedulerRunDay,
		"interval", cfg.SchedulerInterval.String())

	runScheduler(ctx, pipe, repo, cfg.SchedulerRunDay, cfg.SchedulerInterval)
	logger.Info("Scheduler stopped gracefully")
}

// runScheduler checks on every tick whether the previous month is due and
// runs the pipeline when it is. A failed run is retried on the next tick.
func runScheduler(ctx context.Context, pipe *pipeline.Pipeline, repo *storage.SQLiteRepository, runDay int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := func() {
		year, month, due, err := pipeline.DueMonth(ctx, time.Now(), runDay, repo)
		if err != nil {
			slog.ErrorContext(ctx, "Dueness check failed", "error", err)
			return
		}
		if !due {
			slog.DebugContext(ctx, "No month due", "year", year, "month", month.String())
			return
		}

		slog.InfoContext(ctx, "Month due, running pipeline", "year", year, "month", month.String())
		if _, err := pipe.ComputeMonth(ctx, year, month); err != nil {
			slog.ErrorContext(ctx, "Scheduled run failed", "error", err, "year", year, "month", month.String())
		}
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}
