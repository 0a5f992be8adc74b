package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fundflow/internal/amfi"
	"fundflow/internal/amqp"
	"fundflow/internal/cli"
	sheetsexport "fundflow/internal/export/sheets"
	apphttp "fundflow/internal/http"
	"fundflow/internal/pipeline"
	"fundflow/internal/registry"
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

	// Optional AMQP: publish from the compute endpoint, consume to drop
	// stale dashboard caches when another process recomputes a month.
	var broker *amqp.Client
	if cfg.AMQPURL != "" {
		broker, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP", "error", err)
			os.Exit(1)
		}
		defer broker.Close()
		logger.Info("Connected to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	var exporter pipeline.SummaryExporter
	if cfg.SheetsExportEnabled() {
		client, err := sheetsexport.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			logger.Error("Failed to initialize sheets export", "error", err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Sheets export enabled", "sheet", cfg.GoogleSheetName)
	}

	var publisher pipeline.EventPublisher
	if broker != nil {
		publisher = broker
	}
	pipe := pipeline.New(fetcher, repo, publisher, exporter, pipeline.Options{
		RetryDays:     cfg.RetryDays,
		BackfillDelay: cfg.BackfillDelay,
	})

	srv := apphttp.NewServer(":"+cfg.Port, repo, pipe, 36)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 120 * time.Second // compute requests fetch upstream
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting fundflow server", "port", cfg.Port, "fund_house_id", cfg.FundHouseID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if broker != nil {
		g.Go(func() error {
			err := broker.ConsumeMonthComputed(gctx, func(msg *amqp.MonthComputedMessage) error {
				srv.InvalidateMonth(msg.MonthEnd)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
