package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fundflow/internal/core"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Run statuses recorded in the pipeline audit log.
const (
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// RunRecord is one pipeline audit-log entry.
type RunRecord struct {
	RunAt          time.Time
	MonthProcessed string
	SchemesUpdated int
	Status         string
	Message        string
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ReplaceSnapshots stores a month-end snapshot set, replacing whatever the
// month already held. Delete-then-insert in one transaction keeps reruns
// idempotent.
func (r *SQLiteRepository) ReplaceSnapshots(ctx context.Context, monthEnd core.MonthEnd, snaps []core.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.DeleteSnapshotsByMonth(ctx, monthEnd.String()); err != nil {
		return fmt.Errorf("delete snapshots for %s: %w", monthEnd, err)
	}
	for _, s := range snaps {
		if err := q.InsertSnapshot(ctx, snapshotRow(s)); err != nil {
			return fmt.Errorf("insert snapshot %q: %w", s.SchemeName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot transaction: %w", err)
	}

	slog.InfoContext(ctx, "Stored snapshot records",
		"month_end", monthEnd.String(),
		"schemes", len(snaps))
	return nil
}

// ReplaceFlows stores a month's computed flows, replacing any previous run.
func (r *SQLiteRepository) ReplaceFlows(ctx context.Context, monthEnd core.MonthEnd, flows []core.FlowRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flow transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.DeleteFlowsByMonth(ctx, monthEnd.String()); err != nil {
		return fmt.Errorf("delete flows for %s: %w", monthEnd, err)
	}
	for _, f := range flows {
		if err := q.InsertFlow(ctx, flowRow(f)); err != nil {
			return fmt.Errorf("insert flow %q: %w", f.SchemeName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flow transaction: %w", err)
	}

	slog.InfoContext(ctx, "Stored flow records",
		"month_end", monthEnd.String(),
		"schemes", len(flows))
	return nil
}

// SnapshotsForMonth returns the stored snapshot set for a month end.
func (r *SQLiteRepository) SnapshotsForMonth(ctx context.Context, monthEnd core.MonthEnd) ([]core.Snapshot, error) {
	rows, err := r.queries.GetSnapshotsByMonth(ctx, monthEnd.String())
	if err != nil {
		return nil, fmt.Errorf("get snapshots for %s: %w", monthEnd, err)
	}
	snaps := make([]core.Snapshot, len(rows))
	for i, row := range rows {
		snaps[i] = snapshotFromRow(row)
	}
	return snaps, nil
}

// FlowsForMonth returns a month's flow records, largest inflow first.
func (r *SQLiteRepository) FlowsForMonth(ctx context.Context, monthEnd core.MonthEnd) ([]core.FlowRecord, error) {
	rows, err := r.queries.GetFlowsByMonth(ctx, monthEnd.String())
	if err != nil {
		return nil, fmt.Errorf("get flows for %s: %w", monthEnd, err)
	}
	return flowsFromRows(rows), nil
}

// FlowsSince returns flow records for the trailing N months.
func (r *SQLiteRepository) FlowsSince(ctx context.Context, months int) ([]core.FlowRecord, error) {
	rows, err := r.queries.GetFlowsSince(ctx, fmt.Sprintf("-%d months", months))
	if err != nil {
		return nil, fmt.Errorf("get flows since %d months: %w", months, err)
	}
	return flowsFromRows(rows), nil
}

// Months returns every computed month end, newest first.
func (r *SQLiteRepository) Months(ctx context.Context) ([]core.MonthEnd, error) {
	rows, err := r.queries.GetDistinctMonths(ctx)
	if err != nil {
		return nil, fmt.Errorf("get distinct months: %w", err)
	}
	months := make([]core.MonthEnd, len(rows))
	for i, m := range rows {
		months[i] = core.MonthEnd(m)
	}
	return months, nil
}

// LatestMonth returns the newest computed month end, or ok=false when the
// database is empty.
func (r *SQLiteRepository) LatestMonth(ctx context.Context) (core.MonthEnd, bool, error) {
	m, err := r.queries.GetLatestMonth(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get latest month: %w", err)
	}
	return core.MonthEnd(m), true, nil
}

// AppendRun appends an audit-log entry. The log is append-only.
func (r *SQLiteRepository) AppendRun(ctx context.Context, run RunRecord) error {
	err := r.queries.InsertPipelineRun(ctx, PipelineRun{
		RunAt:          run.RunAt.UTC().Format(time.RFC3339),
		MonthProcessed: run.MonthProcessed,
		SchemesUpdated: int64(run.SchemesUpdated),
		Status:         run.Status,
		Message:        run.Message,
	})
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

// RecentRuns returns the newest audit-log entries.
func (r *SQLiteRepository) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := r.queries.GetRecentRuns(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get recent runs: %w", err)
	}
	runs := make([]RunRecord, len(rows))
	for i, row := range rows {
		runAt, _ := time.Parse(time.RFC3339, row.RunAt)
		runs[i] = RunRecord{
			RunAt:          runAt,
			MonthProcessed: row.MonthProcessed,
			SchemesUpdated: int(row.SchemesUpdated),
			Status:         row.Status,
			Message:        row.Message,
		}
	}
	return runs, nil
}

// MonthComputed reports whether the "YYYY-MM" month has both a successful
// run and stored flow rows. A month whose rows were wiped counts as not
// computed, so the scheduler picks it up again.
func (r *SQLiteRepository) MonthComputed(ctx context.Context, year int, month time.Month) (bool, error) {
	prefix := fmt.Sprintf("%04d-%02d", year, month)
	runs, err := r.queries.CountSuccessfulRunsForMonthPrefix(ctx, prefix)
	if err != nil {
		return false, fmt.Errorf("count successful runs for %s: %w", prefix, err)
	}
	if runs == 0 {
		return false, nil
	}
	flows, err := r.queries.CountFlowsForMonthPrefix(ctx, prefix)
	if err != nil {
		return false, fmt.Errorf("count flows for %s: %w", prefix, err)
	}
	return flows > 0, nil
}

// Row conversions. Decimals cross the storage edge as REAL, matching the
// published figures' precision (two to four decimal places).

func snapshotRow(s core.Snapshot) MonthlySnapshot {
	return MonthlySnapshot{
		SchemeName:  s.SchemeName,
		FundHouse:   s.FundHouse,
		Category:    string(s.Category),
		SubCategory: s.SubCategory,
		MonthEnd:    s.MonthEnd.String(),
		NAVRegular:  s.NAVRegular.InexactFloat64(),
		NAVDirect:   s.NAVDirect.InexactFloat64(),
		AUMCr:       s.AUMCr.InexactFloat64(),
	}
}

func snapshotFromRow(row MonthlySnapshot) core.Snapshot {
	return core.Snapshot{
		SchemeName:  row.SchemeName,
		FundHouse:   row.FundHouse,
		Category:    core.Category(row.Category),
		SubCategory: row.SubCategory,
		MonthEnd:    core.MonthEnd(row.MonthEnd),
		NAVRegular:  decimal.NewFromFloat(row.NAVRegular),
		NAVDirect:   decimal.NewFromFloat(row.NAVDirect),
		AUMCr:       decimal.NewFromFloat(row.AUMCr),
	}
}

func flowRow(f core.FlowRecord) MonthlyFlow {
	return MonthlyFlow{
		SchemeName:    f.SchemeName,
		FundHouse:     f.FundHouse,
		Category:      string(f.Category),
		SubCategory:   f.SubCategory,
		MonthEnd:      f.MonthEnd.String(),
		PrevMonthEnd:  f.PrevMonthEnd.String(),
		NAVCur:        f.NAVCur.InexactFloat64(),
		NAVPrev:       f.NAVPrev.InexactFloat64(),
		NAVReturn:     f.NAVReturn.InexactFloat64(),
		AUMCurCr:      f.AUMCurCr.InexactFloat64(),
		AUMPrevCr:     f.AUMPrevCr.InexactFloat64(),
		ExpectedAUMCr: f.ExpectedAUMCr.InexactFloat64(),
		NetFlowCr:     f.NetFlowCr.InexactFloat64(),
		FlowPct:       f.FlowPct.InexactFloat64(),
	}
}

func flowsFromRows(rows []MonthlyFlow) []core.FlowRecord {
	flows := make([]core.FlowRecord, len(rows))
	for i, row := range rows {
		flows[i] = core.FlowRecord{
			SchemeName:    row.SchemeName,
			FundHouse:     row.FundHouse,
			Category:      core.Category(row.Category),
			SubCategory:   row.SubCategory,
			MonthEnd:      core.MonthEnd(row.MonthEnd),
			PrevMonthEnd:  core.MonthEnd(row.PrevMonthEnd),
			NAVCur:        decimal.NewFromFloat(row.NAVCur),
			NAVPrev:       decimal.NewFromFloat(row.NAVPrev),
			NAVReturn:     decimal.NewFromFloat(row.NAVReturn),
			AUMCurCr:      decimal.NewFromFloat(row.AUMCurCr),
			AUMPrevCr:     decimal.NewFromFloat(row.AUMPrevCr),
			ExpectedAUMCr: decimal.NewFromFloat(row.ExpectedAUMCr),
			NetFlowCr:     decimal.NewFromFloat(row.NetFlowCr),
			FlowPct:       decimal.NewFromFloat(row.FlowPct),
		}
	}
	return flows
}
