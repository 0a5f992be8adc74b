package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	CategoryEquity Category = "Equity"
	CategoryHybrid Category = "Hybrid"
)

type (
	// Category is the top-level investment category reported by AMFI.
	Category string

	// Snapshot is one scheme's published figures on a single month-end
	// reporting date. AUM is in ₹ crore, NAVs are per-unit prices.
	Snapshot struct {
		SchemeName  string
		FundHouse   string
		Category    Category
		SubCategory string
		MonthEnd    MonthEnd
		NAVRegular  decimal.Decimal
		NAVDirect   decimal.Decimal
		AUMCr       decimal.Decimal
	}

	// FlowRecord is the derived month-over-month flow for one scheme.
	FlowRecord struct {
		SchemeName    string
		FundHouse     string
		Category      Category
		SubCategory   string
		MonthEnd      MonthEnd
		PrevMonthEnd  MonthEnd
		NAVCur        decimal.Decimal
		NAVPrev       decimal.Decimal
		NAVReturn     decimal.Decimal
		AUMCurCr      decimal.Decimal
		AUMPrevCr     decimal.Decimal
		ExpectedAUMCr decimal.Decimal
		NetFlowCr     decimal.Decimal
		FlowPct       decimal.Decimal
	}
)

var (
	ErrEmptySchemeName  = errors.New("empty scheme name")
	ErrNonPositiveNAV   = errors.New("nav must be positive")
	ErrNonPositiveAUM   = errors.New("aum must be positive")
	ErrSchemeMismatch   = errors.New("snapshots belong to different schemes")
	ErrSamePeriod       = errors.New("snapshots belong to the same month end")
)

// Validate checks that a snapshot carries everything flow computation needs.
// NAVDirect is optional: several older schemes never published a direct plan.
func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.SchemeName) == "" {
		return ErrEmptySchemeName
	}
	if !s.NAVRegular.IsPositive() {
		return ErrNonPositiveNAV
	}
	if !s.AUMCr.IsPositive() {
		return ErrNonPositiveAUM
	}
	return nil
}

// ComputeFlow derives the net flow for cur given the previous month's
// snapshot prev of the same scheme:
//
//	expected_AUM(t) = AUM(t-1) × NAV(t)/NAV(t-1)
//	net_flow(t)     = AUM(t)  − expected_AUM(t)
//	flow_pct(t)     = net_flow(t) / AUM(t-1) × 100
func ComputeFlow(cur, prev Snapshot) (FlowRecord, error) {
	if cur.SchemeName != prev.SchemeName {
		return FlowRecord{}, ErrSchemeMismatch
	}
	if cur.MonthEnd == prev.MonthEnd {
		return FlowRecord{}, ErrSamePeriod
	}
	if err := cur.Validate(); err != nil {
		return FlowRecord{}, err
	}
	if err := prev.Validate(); err != nil {
		return FlowRecord{}, err
	}

	navReturn := cur.NAVRegular.Div(prev.NAVRegular)
	expected := prev.AUMCr.Mul(navReturn)
	netFlow := cur.AUMCr.Sub(expected)
	flowPct := netFlow.Div(prev.AUMCr).Mul(decimal.NewFromInt(100))

	return FlowRecord{
		SchemeName:    cur.SchemeName,
		FundHouse:     cur.FundHouse,
		Category:      cur.Category,
		SubCategory:   cur.SubCategory,
		MonthEnd:      cur.MonthEnd,
		PrevMonthEnd:  prev.MonthEnd,
		NAVCur:        cur.NAVRegular,
		NAVPrev:       prev.NAVRegular,
		NAVReturn:     navReturn,
		AUMCurCr:      cur.AUMCr,
		AUMPrevCr:     prev.AUMCr,
		ExpectedAUMCr: expected,
		NetFlowCr:     netFlow,
		FlowPct:       flowPct,
	}, nil
}

// Inflow reports whether the scheme saw net buying during the month.
func (f FlowRecord) Inflow() bool {
	return f.NetFlowCr.IsPositive()
}
