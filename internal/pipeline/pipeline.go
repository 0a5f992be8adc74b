// Package pipeline orchestrates the monthly flow computation: resolve the
// month-end reporting dates, fetch both months from the gateway, merge by
// scheme name, compute net flows and persist them idempotently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fundflow/internal/amqp"
	"fundflow/internal/core"
	"fundflow/internal/storage"

	"github.com/shopspring/decimal"
)

// ErrNoData is returned when the gateway had no rows for a month even after
// walking the report date backward.
var ErrNoData = errors.New("no data available")

// ErrNoOverlap is returned when no scheme appears in both months.
var ErrNoOverlap = errors.New("no matching schemes between months")

// Fetcher retrieves all scheme snapshots for one trading day.
type Fetcher interface {
	FetchAllForDate(ctx context.Context, day time.Time) ([]core.Snapshot, error)
}

// Store is the slice of the repository the pipeline writes through.
type Store interface {
	ReplaceSnapshots(ctx context.Context, monthEnd core.MonthEnd, snaps []core.Snapshot) error
	ReplaceFlows(ctx context.Context, monthEnd core.MonthEnd, flows []core.FlowRecord) error
	AppendRun(ctx context.Context, run storage.RunRecord) error
}

// EventPublisher announces completed months. Optional.
type EventPublisher interface {
	PublishMonthComputed(ctx context.Context, msg *amqp.MonthComputedMessage) error
}

// SummaryExporter pushes one summary row per computed month. Optional.
type SummaryExporter interface {
	ExportMonthSummary(ctx context.Context, result Result) error
}

// Result summarizes one computed month.
type Result struct {
	MonthEnd       core.MonthEnd
	PrevMonthEnd   core.MonthEnd
	Schemes        int
	TotalNetFlowCr decimal.Decimal
	TotalAUMCr     decimal.Decimal
}

// Options configures a Pipeline.
type Options struct {
	RetryDays     int
	BackfillDelay time.Duration
}

type Pipeline struct {
	fetcher   Fetcher
	store     Store
	publisher EventPublisher
	exporter  SummaryExporter
	opts      Options
}

// New builds a pipeline. publisher and exporter may be nil; the pipeline
// then runs standalone.
func New(fetcher Fetcher, store Store, publisher EventPublisher, exporter SummaryExporter, opts Options) *Pipeline {
	if opts.RetryDays < 0 {
		opts.RetryDays = 0
	}
	return &Pipeline{
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		exporter:  exporter,
		opts:      opts,
	}
}

// ComputeMonth runs the full pipeline for one target month: fetch the
// target and preceding month ends, merge, compute and persist. Reruns fully
// replace the month's stored rows; the audit log gets one entry per run.
func (p *Pipeline) ComputeMonth(ctx context.Context, year int, month time.Month) (Result, error) {
	curTarget := core.LastBusinessDay(year, month)
	prevYear, prevMonth := core.PrevMonth(year, month)
	prevTarget := core.LastBusinessDay(prevYear, prevMonth)

	slog.InfoContext(ctx, "Computing flows",
		"year", year,
		"month", month.String(),
		"current_month_end", core.ReportDate(curTarget),
		"previous_month_end", core.ReportDate(prevTarget))

	curSnaps, curDay, err := p.fetchWithRetry(ctx, curTarget)
	if err != nil {
		return Result{}, p.fail(ctx, core.MonthEndOf(curTarget),
			fmt.Errorf("current month (%s): %w", core.ReportDate(curTarget), err))
	}

	prevSnaps, prevDay, err := p.fetchWithRetry(ctx, prevTarget)
	if err != nil {
		return Result{}, p.fail(ctx, core.MonthEndOf(curDay),
			fmt.Errorf("previous month (%s): %w", core.ReportDate(prevTarget), err))
	}

	curMonthEnd := core.MonthEndOf(curDay)
	prevMonthEnd := core.MonthEndOf(prevDay)

	if err := p.store.ReplaceSnapshots(ctx, curMonthEnd, curSnaps); err != nil {
		return Result{}, p.fail(ctx, curMonthEnd, fmt.Errorf("store current snapshots: %w", err))
	}
	if err := p.store.ReplaceSnapshots(ctx, prevMonthEnd, prevSnaps); err != nil {
		return Result{}, p.fail(ctx, curMonthEnd, fmt.Errorf("store previous snapshots: %w", err))
	}

	flows := merge(curSnaps, prevSnaps)
	if len(flows) == 0 {
		return Result{}, p.fail(ctx, curMonthEnd, ErrNoOverlap)
	}

	if err := p.store.ReplaceFlows(ctx, curMonthEnd, flows); err != nil {
		return Result{}, p.fail(ctx, curMonthEnd, fmt.Errorf("store flows: %w", err))
	}

	result := Result{
		MonthEnd:     curMonthEnd,
		PrevMonthEnd: prevMonthEnd,
		Schemes:      len(flows),
	}
	for _, f := range flows {
		result.TotalNetFlowCr = result.TotalNetFlowCr.Add(f.NetFlowCr)
		result.TotalAUMCr = result.TotalAUMCr.Add(f.AUMCurCr)
	}

	if err := p.store.AppendRun(ctx, storage.RunRecord{
		RunAt:          time.Now(),
		MonthProcessed: curMonthEnd.String(),
		SchemesUpdated: len(flows),
		Status:         storage.RunStatusSuccess,
		Message:        fmt.Sprintf("%d schemes, net flow %s Cr", len(flows), result.TotalNetFlowCr.Round(0)),
	}); err != nil {
		slog.ErrorContext(ctx, "Failed to append audit entry", "error", err)
	}

	slog.InfoContext(ctx, "Month computed",
		"month_end", curMonthEnd.String(),
		"schemes", len(flows),
		"total_net_flow_cr", result.TotalNetFlowCr.Round(0).String(),
		"total_aum_cr", result.TotalAUMCr.Round(0).String())

	p.announce(ctx, result)

	return result, nil
}

// Backfill processes the target month and the given number of months before
// it, oldest first. Individual month failures are logged and skipped so one
// unpublished month does not block the rest of the history.
func (p *Pipeline) Backfill(ctx context.Context, year int, month time.Month, months int) (succeeded, failed int, err error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -months, 0)

	slog.InfoContext(ctx, "Backfilling months",
		"from", start.Format("2006-01"),
		"to", fmt.Sprintf("%04d-%02d", year, month),
		"months", months+1)

	for i := 0; i <= months; i++ {
		target := start.AddDate(0, i, 0)
		if _, err := p.ComputeMonth(ctx, target.Year(), target.Month()); err != nil {
			if ctx.Err() != nil {
				return succeeded, failed, ctx.Err()
			}
			slog.WarnContext(ctx, "Backfill month failed",
				"year", target.Year(),
				"month", target.Month().String(),
				"error", err)
			failed++
		} else {
			succeeded++
		}

		if i < months && p.opts.BackfillDelay > 0 {
			timer := time.NewTimer(p.opts.BackfillDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return succeeded, failed, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return succeeded, failed, nil
}

// fetchWithRetry fetches the target day and, on a miss, walks backward up
// to RetryDays calendar days skipping weekends. Publication lags a few days
// around exchange holidays.
func (p *Pipeline) fetchWithRetry(ctx context.Context, target time.Time) ([]core.Snapshot, time.Time, error) {
	snaps, err := p.fetcher.FetchAllForDate(ctx, target)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(snaps) > 0 {
		return snaps, target, nil
	}

	tried := map[string]bool{core.ReportDate(target): true}
	for offset := 1; offset <= p.opts.RetryDays; offset++ {
		day := target.AddDate(0, 0, -offset)
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, -1)
		}
		key := core.ReportDate(day)
		if tried[key] {
			continue
		}
		tried[key] = true

		slog.InfoContext(ctx, "No data, retrying earlier report date", "report_date", key)
		snaps, err = p.fetcher.FetchAllForDate(ctx, day)
		if err != nil {
			return nil, time.Time{}, err
		}
		if len(snaps) > 0 {
			return snaps, day, nil
		}
	}

	return nil, time.Time{}, ErrNoData
}

// fail records a FAILED audit entry and returns the original error.
func (p *Pipeline) fail(ctx context.Context, monthEnd core.MonthEnd, cause error) error {
	slog.ErrorContext(ctx, "Pipeline run failed",
		"month_end", monthEnd.String(),
		"error", cause)

	if err := p.store.AppendRun(ctx, storage.RunRecord{
		RunAt:          time.Now(),
		MonthProcessed: monthEnd.String(),
		SchemesUpdated: 0,
		Status:         storage.RunStatusFailed,
		Message:        cause.Error(),
	}); err != nil {
		slog.ErrorContext(ctx, "Failed to append audit entry", "error", err)
	}
	return cause
}

// announce pushes the optional event and summary export. Both are best
// effort: the computed month is already durable.
func (p *Pipeline) announce(ctx context.Context, result Result) {
	if p.publisher != nil {
		msg := amqp.NewMonthComputedMessage(
			result.MonthEnd.String(),
			result.Schemes,
			result.TotalNetFlowCr.InexactFloat64(),
			result.TotalAUMCr.InexactFloat64(),
		)
		if err := p.publisher.PublishMonthComputed(ctx, msg); err != nil {
			slog.WarnContext(ctx, "Failed to publish month computed event", "error", err)
		}
	}

	if p.exporter != nil {
		if err := p.exporter.ExportMonthSummary(ctx, result); err != nil {
			slog.WarnContext(ctx, "Failed to export month summary", "error", err)
		}
	}
}

// merge joins the two months by scheme name and computes flows. The join is
// inner: schemes present in only one month carry no flow. Duplicate scheme
// names within a month keep the first record.
func merge(cur, prev []core.Snapshot) []core.FlowRecord {
	prevByName := make(map[string]core.Snapshot, len(prev))
	for _, s := range prev {
		if _, ok := prevByName[s.SchemeName]; !ok {
			prevByName[s.SchemeName] = s
		}
	}

	seen := make(map[string]bool, len(cur))
	var flows []core.FlowRecord
	for _, c := range cur {
		if seen[c.SchemeName] {
			continue
		}
		seen[c.SchemeName] = true

		pSnap, ok := prevByName[c.SchemeName]
		if !ok {
			continue
		}
		flow, err := core.ComputeFlow(c, pSnap)
		if err != nil {
			slog.Debug("Skipping scheme in merge",
				"scheme_name", c.SchemeName,
				"error", err)
			continue
		}
		flows = append(flows, flow)
	}
	return flows
}
