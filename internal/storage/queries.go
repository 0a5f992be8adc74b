package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so queries can run inside
// or outside a transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Row models mirror the table definitions in migrations/.

type MonthlySnapshot struct {
	SchemeName  string
	FundHouse   string
	Category    string
	SubCategory string
	MonthEnd    string
	NAVRegular  float64
	NAVDirect   float64
	AUMCr       float64
}

type MonthlyFlow struct {
	SchemeName    string
	FundHouse     string
	Category      string
	SubCategory   string
	MonthEnd      string
	PrevMonthEnd  string
	NAVCur        float64
	NAVPrev       float64
	NAVReturn     float64
	AUMCurCr      float64
	AUMPrevCr     float64
	ExpectedAUMCr float64
	NetFlowCr     float64
	FlowPct       float64
}

type PipelineRun struct {
	ID             int64
	RunAt          string
	MonthProcessed string
	SchemesUpdated int64
	Status         string
	Message        string
}

const insertSnapshot = `
INSERT INTO monthly_snapshots (
    scheme_name, fund_house, category, sub_category, month_end,
    nav_regular, nav_direct, aum_cr
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertSnapshot(ctx context.Context, s MonthlySnapshot) error {
	_, err := q.db.ExecContext(ctx, insertSnapshot,
		s.SchemeName, s.FundHouse, s.Category, s.SubCategory, s.MonthEnd,
		s.NAVRegular, s.NAVDirect, s.AUMCr)
	return err
}

const deleteSnapshotsByMonth = `
DELETE FROM monthly_snapshots WHERE month_end = ?
`

func (q *Queries) DeleteSnapshotsByMonth(ctx context.Context, monthEnd string) error {
	_, err := q.db.ExecContext(ctx, deleteSnapshotsByMonth, monthEnd)
	return err
}

const getSnapshotsByMonth = `
SELECT scheme_name, fund_house, category, sub_category, month_end,
       nav_regular, nav_direct, aum_cr
FROM monthly_snapshots
WHERE month_end = ?
ORDER BY scheme_name
`

func (q *Queries) GetSnapshotsByMonth(ctx context.Context, monthEnd string) ([]MonthlySnapshot, error) {
	rows, err := q.db.QueryContext(ctx, getSnapshotsByMonth, monthEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MonthlySnapshot
	for rows.Next() {
		var s MonthlySnapshot
		if err := rows.Scan(
			&s.SchemeName, &s.FundHouse, &s.Category, &s.SubCategory, &s.MonthEnd,
			&s.NAVRegular, &s.NAVDirect, &s.AUMCr,
		); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const insertFlow = `
INSERT INTO monthly_flows (
    scheme_name, fund_house, category, sub_category, month_end, prev_month_end,
    nav_cur, nav_prev, nav_return, aum_cur_cr, aum_prev_cr,
    expected_aum_cr, net_flow_cr, flow_pct
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertFlow(ctx context.Context, f MonthlyFlow) error {
	_, err := q.db.ExecContext(ctx, insertFlow,
		f.SchemeName, f.FundHouse, f.Category, f.SubCategory, f.MonthEnd, f.PrevMonthEnd,
		f.NAVCur, f.NAVPrev, f.NAVReturn, f.AUMCurCr, f.AUMPrevCr,
		f.ExpectedAUMCr, f.NetFlowCr, f.FlowPct)
	return err
}

const deleteFlowsByMonth = `
DELETE FROM monthly_flows WHERE month_end = ?
`

func (q *Queries) DeleteFlowsByMonth(ctx context.Context, monthEnd string) error {
	_, err := q.db.ExecContext(ctx, deleteFlowsByMonth, monthEnd)
	return err
}

const flowColumns = `
scheme_name, fund_house, category, sub_category, month_end, prev_month_end,
nav_cur, nav_prev, nav_return, aum_cur_cr, aum_prev_cr,
expected_aum_cr, net_flow_cr, flow_pct
`

const getFlowsByMonth = `
SELECT ` + flowColumns + `
FROM monthly_flows
WHERE month_end = ?
ORDER BY net_flow_cr DESC
`

func (q *Queries) GetFlowsByMonth(ctx context.Context, monthEnd string) ([]MonthlyFlow, error) {
	return q.queryFlows(ctx, getFlowsByMonth, monthEnd)
}

const getFlowsSince = `
SELECT ` + flowColumns + `
FROM monthly_flows
WHERE month_end >= date('now', ?)
ORDER BY month_end DESC, net_flow_cr DESC
`

// GetFlowsSince returns flows for the trailing window, e.g. offset "-36 months".
func (q *Queries) GetFlowsSince(ctx context.Context, offset string) ([]MonthlyFlow, error) {
	return q.queryFlows(ctx, getFlowsSince, offset)
}

func (q *Queries) queryFlows(ctx context.Context, query string, args ...any) ([]MonthlyFlow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MonthlyFlow
	for rows.Next() {
		var f MonthlyFlow
		if err := rows.Scan(
			&f.SchemeName, &f.FundHouse, &f.Category, &f.SubCategory, &f.MonthEnd, &f.PrevMonthEnd,
			&f.NAVCur, &f.NAVPrev, &f.NAVReturn, &f.AUMCurCr, &f.AUMPrevCr,
			&f.ExpectedAUMCr, &f.NetFlowCr, &f.FlowPct,
		); err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

const getDistinctMonths = `
SELECT DISTINCT month_end FROM monthly_flows ORDER BY month_end DESC
`

func (q *Queries) GetDistinctMonths(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, getDistinctMonths)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var months []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		months = append(months, m)
	}
	return months, rows.Err()
}

const getLatestMonth = `
SELECT month_end FROM monthly_flows ORDER BY month_end DESC LIMIT 1
`

func (q *Queries) GetLatestMonth(ctx context.Context) (string, error) {
	var m string
	err := q.db.QueryRowContext(ctx, getLatestMonth).Scan(&m)
	return m, err
}

const countFlowsForMonthPrefix = `
SELECT COUNT(*) FROM monthly_flows WHERE month_end LIKE ?
`

// CountFlowsForMonthPrefix counts flow rows whose month end starts with the
// given "YYYY-MM" prefix. The actual trading day varies, the month doesn't.
func (q *Queries) CountFlowsForMonthPrefix(ctx context.Context, prefix string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countFlowsForMonthPrefix, prefix+"%").Scan(&n)
	return n, err
}

const insertPipelineRun = `
INSERT INTO pipeline_runs (run_at, month_processed, schemes_updated, status, message)
VALUES (?, ?, ?, ?, ?)
`

func (q *Queries) InsertPipelineRun(ctx context.Context, r PipelineRun) error {
	_, err := q.db.ExecContext(ctx, insertPipelineRun,
		r.RunAt, r.MonthProcessed, r.SchemesUpdated, r.Status, r.Message)
	return err
}

const getRecentRuns = `
SELECT id, run_at, month_processed, schemes_updated, status, message
FROM pipeline_runs
ORDER BY run_at DESC, id DESC
LIMIT ?
`

func (q *Queries) GetRecentRuns(ctx context.Context, limit int64) ([]PipelineRun, error) {
	rows, err := q.db.QueryContext(ctx, getRecentRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PipelineRun
	for rows.Next() {
		var r PipelineRun
		if err := rows.Scan(
			&r.ID, &r.RunAt, &r.MonthProcessed, &r.SchemesUpdated, &r.Status, &r.Message,
		); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const countSuccessfulRunsForMonthPrefix = `
SELECT COUNT(*) FROM pipeline_runs WHERE month_processed LIKE ? AND status = 'SUCCESS'
`

func (q *Queries) CountSuccessfulRunsForMonthPrefix(ctx context.Context, prefix string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countSuccessfulRunsForMonthPrefix, prefix+"%").Scan(&n)
	return n, err
}
