package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fundflow/internal/amfi"
	"fundflow/internal/amqp"
	"fundflow/internal/cli"
	sheetsexport "fundflow/internal/export/sheets"
	"fundflow/internal/pipeline"
	"fundflow/internal/registry"
)

var (
	flagYear   int
	flagMonth  int
	flagMonths int
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	rootCmd := &cobra.Command{
		Use:           "fundflow-pipeline",
		Short:         "Compute month-over-month net capital flows for mutual fund schemes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Compute flows for one month (default: the previous month)",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, cleanup, err := buildPipeline()
			if err != nil {
				return err
			}
			defer cleanup()

			year, month := targetMonth()
			ctx, cancel := cli.SignalContext(logger)
			defer cancel()

			result, err := pipe.ComputeMonth(ctx, year, month)
			if err != nil {
				return err
			}
			fmt.Printf("Computed %s: %d schemes, net flow %s Cr\n",
				result.MonthEnd, result.Schemes, result.TotalNetFlowCr.Round(0))
			return nil
		},
	}
	runCmd.Flags().IntVar(&flagYear, "year", 0, "target year (default: previous month's year)")
	runCmd.Flags().IntVar(&flagMonth, "month", 0, "target month 1-12 (default: previous month)")

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Compute flows for a range of past months, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, cleanup, err := buildPipeline()
			if err != nil {
				return err
			}
			defer cleanup()

			year, month := targetMonth()
			ctx, cancel := cli.SignalContext(logger)
			defer cancel()

			succeeded, failed, err := pipe.Backfill(ctx, year, month, flagMonths)
			if err != nil {
				return err
			}
			fmt.Printf("Backfill finished: %d months computed, %d failed\n", succeeded, failed)
			if failed > 0 && succeeded == 0 {
				return fmt.Errorf("all %d months failed", failed)
			}
			return nil
		},
	}
	backfillCmd.Flags().IntVar(&flagYear, "year", 0, "end year (default: previous month's year)")
	backfillCmd.Flags().IntVar(&flagMonth, "month", 0, "end month 1-12 (default: previous month)")
	backfillCmd.Flags().IntVar(&flagMonths, "months", 12, "how many months before the end month to include")

	rootCmd.AddCommand(runCmd, backfillCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("Pipeline command failed", "error", err)
		os.Exit(1)
	}
}

// targetMonth resolves the requested month, defaulting to the previous
// calendar month whose figures are the newest complete set.
func targetMonth() (int, time.Month) {
	now := time.Now()
	year, month := now.Year(), now.Month()
	if flagYear == 0 && flagMonth == 0 {
		prevYear, prevMonth := year, month-1
		if prevMonth < time.January {
			prevYear, prevMonth = year-1, time.December
		}
		return prevYear, prevMonth
	}
	if flagYear != 0 {
		year = flagYear
	}
	if flagMonth >= 1 && flagMonth <= 12 {
		month = time.Month(flagMonth)
	}
	return year, month
}

func buildPipeline() (*pipeline.Pipeline, func(), error) {
	logger := slog.Default()
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	cleanups := []func(){func() { repo.Close() }}
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("load registry: %w", err)
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
			cleanup()
			return nil, nil, fmt.Errorf("connect AMQP: %w", err)
		}
		cleanups = append(cleanups, func() { broker.Close() })
		publisher = broker
	}

	var exporter pipeline.SummaryExporter
	if cfg.SheetsExportEnabled() {
		client, err := sheetsexport.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("init sheets export: %w", err)
		}
		exporter = client
	}

	pipe := pipeline.New(fetcher, repo, publisher, exporter, pipeline.Options{
		RetryDays:     cfg.RetryDays,
		BackfillDelay: cfg.BackfillDelay,
	})
	return pipe, cleanup, nil
}
