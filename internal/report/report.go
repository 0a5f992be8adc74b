// Package report aggregates stored flow records into the figures the
// dashboard shows: headline KPIs, trend series and breakdowns.
package report

import (
	"sort"
	"time"

	"fundflow/internal/core"

	"github.com/shopspring/decimal"
)

// Period selects the bucketing of the trend series.
type Period string

const (
	PeriodMonthly    Period = "monthly"
	PeriodQuarterly  Period = "quarterly"
	PeriodFiscalYear Period = "fiscal_year"
	PeriodFYTD       Period = "fytd"
)

// ValidPeriod reports whether p is one of the known bucketing periods.
func ValidPeriod(p Period) bool {
	switch p {
	case PeriodMonthly, PeriodQuarterly, PeriodFiscalYear, PeriodFYTD:
		return true
	}
	return false
}

// Bucket is one point of a trend series.
type Bucket struct {
	Label     string          `json:"label"`
	NetFlowCr decimal.Decimal `json:"net_flow_cr"`
	AUMCr     decimal.Decimal `json:"aum_cr"`
	Schemes   int             `json:"schemes"`
}

// Summary carries the headline KPIs for the most recent computed month.
type Summary struct {
	MonthEnd       string          `json:"month_end"`
	MonthLabel     string          `json:"month_label"`
	FiscalYear     string          `json:"fiscal_year"`
	Schemes        int             `json:"schemes"`
	Inflows        int             `json:"inflows"`
	Outflows       int             `json:"outflows"`
	TotalNetFlowCr decimal.Decimal `json:"total_net_flow_cr"`
	TotalAUMCr     decimal.Decimal `json:"total_aum_cr"`
	FlowPct        decimal.Decimal `json:"flow_pct"`
	FYTDNetFlowCr  decimal.Decimal `json:"fytd_net_flow_cr"`
}

// Breakdown is an aggregate over one grouping dimension.
type Breakdown struct {
	Name      string          `json:"name"`
	NetFlowCr decimal.Decimal `json:"net_flow_cr"`
	AUMCr     decimal.Decimal `json:"aum_cr"`
	Schemes   int             `json:"schemes"`
}

// Summarize builds the KPI block. latest holds the most recent month's
// flows, history everything available (used for the FY-to-date figure).
func Summarize(latest, history []core.FlowRecord) Summary {
	if len(latest) == 0 {
		return Summary{}
	}

	monthEnd := latest[0].MonthEnd
	t, err := monthEnd.Time()
	if err != nil {
		return Summary{}
	}

	s := Summary{
		MonthEnd:   monthEnd.String(),
		MonthLabel: core.MonthLabel(t),
		FiscalYear: core.FiscalYear(t),
		Schemes:    len(latest),
	}

	var prevAUM decimal.Decimal
	for _, f := range latest {
		s.TotalNetFlowCr = s.TotalNetFlowCr.Add(f.NetFlowCr)
		s.TotalAUMCr = s.TotalAUMCr.Add(f.AUMCurCr)
		prevAUM = prevAUM.Add(f.AUMPrevCr)
		if f.Inflow() {
			s.Inflows++
		} else {
			s.Outflows++
		}
	}
	if prevAUM.IsPositive() {
		s.FlowPct = s.TotalNetFlowCr.Div(prevAUM).Mul(decimal.NewFromInt(100))
	}

	fy := core.FiscalYear(t)
	for _, f := range history {
		ft, err := f.MonthEnd.Time()
		if err != nil || core.FiscalYear(ft) != fy || ft.After(t) {
			continue
		}
		s.FYTDNetFlowCr = s.FYTDNetFlowCr.Add(f.NetFlowCr)
	}

	return s
}

// Aggregate buckets flows into a chronological trend series. Quarterly and
// fiscal-year buckets sum net flows across their months; AUM is the bucket's
// latest month so it reads as a point-in-time figure, not a sum of levels.
func Aggregate(flows []core.FlowRecord, period Period) []Bucket {
	if len(flows) == 0 {
		return nil
	}

	if period == PeriodFYTD {
		flows = currentFiscalYear(flows)
		period = PeriodMonthly
	}

	type acc struct {
		label    string
		start    string // ISO month end, for chronological ordering
		latest   string
		netFlow  decimal.Decimal
		monthAUM map[string]decimal.Decimal
		monthCnt map[string]int
	}

	buckets := make(map[string]*acc)
	for _, f := range flows {
		t, err := f.MonthEnd.Time()
		if err != nil {
			continue
		}
		label := bucketLabel(t, period)
		b, ok := buckets[label]
		if !ok {
			b = &acc{
				label:    label,
				start:    f.MonthEnd.String(),
				monthAUM: make(map[string]decimal.Decimal),
				monthCnt: make(map[string]int),
			}
			buckets[label] = b
		}
		me := f.MonthEnd.String()
		if me < b.start {
			b.start = me
		}
		if me > b.latest {
			b.latest = me
		}
		b.netFlow = b.netFlow.Add(f.NetFlowCr)
		b.monthAUM[me] = b.monthAUM[me].Add(f.AUMCurCr)
		b.monthCnt[me]++
	}

	ordered := make([]*acc, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].start < ordered[j].start })

	out := make([]Bucket, 0, len(ordered))
	for _, b := range ordered {
		out = append(out, Bucket{
			Label:     b.label,
			NetFlowCr: b.netFlow,
			AUMCr:     b.monthAUM[b.latest],
			Schemes:   b.monthCnt[b.latest],
		})
	}
	return out
}

// ByCategory groups flows by top-level category, largest net flow first.
func ByCategory(flows []core.FlowRecord) []Breakdown {
	return breakdown(flows, func(f core.FlowRecord) string { return string(f.Category) })
}

// BySubCategory groups flows by sub-category, largest net flow first.
func BySubCategory(flows []core.FlowRecord) []Breakdown {
	return breakdown(flows, func(f core.FlowRecord) string { return f.SubCategory })
}

// ByFundHouse groups flows by fund house, largest net flow first. Only
// meaningful for industry-wide datasets; a single-house dataset collapses
// to one row.
func ByFundHouse(flows []core.FlowRecord) []Breakdown {
	return breakdown(flows, func(f core.FlowRecord) string { return f.FundHouse })
}

func breakdown(flows []core.FlowRecord, key func(core.FlowRecord) string) []Breakdown {
	byKey := make(map[string]*Breakdown)
	for _, f := range flows {
		k := key(f)
		b, ok := byKey[k]
		if !ok {
			b = &Breakdown{Name: k}
			byKey[k] = b
		}
		b.NetFlowCr = b.NetFlowCr.Add(f.NetFlowCr)
		b.AUMCr = b.AUMCr.Add(f.AUMCurCr)
		b.Schemes++
	}

	out := make([]Breakdown, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NetFlowCr.GreaterThan(out[j].NetFlowCr)
	})
	return out
}

// TopSchemes returns the n schemes with the largest net inflow.
func TopSchemes(flows []core.FlowRecord, n int) []core.FlowRecord {
	return rank(flows, n, func(a, b core.FlowRecord) bool {
		return a.NetFlowCr.GreaterThan(b.NetFlowCr)
	})
}

// BottomSchemes returns the n schemes with the largest net outflow.
func BottomSchemes(flows []core.FlowRecord, n int) []core.FlowRecord {
	return rank(flows, n, func(a, b core.FlowRecord) bool {
		return a.NetFlowCr.LessThan(b.NetFlowCr)
	})
}

func rank(flows []core.FlowRecord, n int, less func(a, b core.FlowRecord) bool) []core.FlowRecord {
	sorted := make([]core.FlowRecord, len(flows))
	copy(sorted, flows)
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

func bucketLabel(t time.Time, period Period) string {
	switch period {
	case PeriodQuarterly:
		return core.FiscalQuarter(t)
	case PeriodFiscalYear:
		return core.FiscalYear(t)
	default:
		return core.MonthLabel(t)
	}
}

// currentFiscalYear keeps only the flows belonging to the fiscal year of
// the most recent month end present.
func currentFiscalYear(flows []core.FlowRecord) []core.FlowRecord {
	var latest time.Time
	for _, f := range flows {
		t, err := f.MonthEnd.Time()
		if err != nil {
			continue
		}
		if t.After(latest) {
			latest = t
		}
	}
	if latest.IsZero() {
		return nil
	}

	fy := core.FiscalYear(latest)
	out := make([]core.FlowRecord, 0, len(flows))
	for _, f := range flows {
		t, err := f.MonthEnd.Time()
		if err != nil {
			continue
		}
		if core.FiscalYear(t) == fy {
			out = append(out, f)
		}
	}
	return out
}
