package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fundflow/internal/core"
	"fundflow/internal/report"
)

// flowJSON is the wire shape of one scheme's flow row. Money figures go out
// as plain numbers so the charts can consume them directly.
type flowJSON struct {
	SchemeName    string  `json:"scheme_name"`
	FundHouse     string  `json:"fund_house"`
	Category      string  `json:"category"`
	SubCategory   string  `json:"sub_category"`
	MonthEnd      string  `json:"month_end"`
	PrevMonthEnd  string  `json:"prev_month_end"`
	NAVCur        float64 `json:"nav_cur"`
	NAVPrev       float64 `json:"nav_prev"`
	NAVReturn     float64 `json:"nav_return"`
	AUMCurCr      float64 `json:"aum_cur_cr"`
	AUMPrevCr     float64 `json:"aum_prev_cr"`
	ExpectedAUMCr float64 `json:"expected_aum_cr"`
	NetFlowCr     float64 `json:"net_flow_cr"`
	FlowPct       float64 `json:"flow_pct"`
}

type summaryJSON struct {
	MonthEnd       string  `json:"month_end"`
	MonthLabel     string  `json:"month_label"`
	FiscalYear     string  `json:"fiscal_year"`
	Schemes        int     `json:"schemes"`
	Inflows        int     `json:"inflows"`
	Outflows       int     `json:"outflows"`
	TotalNetFlowCr float64 `json:"total_net_flow_cr"`
	TotalAUMCr     float64 `json:"total_aum_cr"`
	FlowPct        float64 `json:"flow_pct"`
	FYTDNetFlowCr  float64 `json:"fytd_net_flow_cr"`
}

type bucketJSON struct {
	Label     string  `json:"label"`
	NetFlowCr float64 `json:"net_flow_cr"`
	AUMCr     float64 `json:"aum_cr"`
	Schemes   int     `json:"schemes"`
}

type breakdownJSON struct {
	Name      string  `json:"name"`
	NetFlowCr float64 `json:"net_flow_cr"`
	AUMCr     float64 `json:"aum_cr"`
	Schemes   int     `json:"schemes"`
}

type runJSON struct {
	RunAt          string `json:"run_at"`
	MonthProcessed string `json:"month_processed"`
	SchemesUpdated int    `json:"schemes_updated"`
	Status         string `json:"status"`
	Message        string `json:"message"`
}

func toFlowJSON(f core.FlowRecord) flowJSON {
	return flowJSON{
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

func toFlowsJSON(flows []core.FlowRecord) []flowJSON {
	out := make([]flowJSON, len(flows))
	for i, f := range flows {
		out[i] = toFlowJSON(f)
	}
	return out
}

func toBreakdownsJSON(breakdowns []report.Breakdown) []breakdownJSON {
	out := make([]breakdownJSON, len(breakdowns))
	for i, b := range breakdowns {
		out[i] = breakdownJSON{
			Name:      b.Name,
			NetFlowCr: b.NetFlowCr.InexactFloat64(),
			AUMCr:     b.AUMCr.InexactFloat64(),
			Schemes:   b.Schemes,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// monthFlows reads one month's flows through the LRU cache.
func (s *Server) monthFlows(ctx context.Context, monthEnd core.MonthEnd) ([]core.FlowRecord, error) {
	key := monthEnd.String()
	if flows, found := s.monthCache.Get(key); found {
		slog.DebugContext(ctx, "Month cache hit", "month_end", key)
		return flows, nil
	}

	flows, err := s.store.FlowsForMonth(ctx, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("flows for month %s: %w", monthEnd, err)
	}
	s.monthCache.Set(key, flows)
	return flows, nil
}

// historyFlows reads the bounded trend window through the LRU cache.
func (s *Server) historyFlows(ctx context.Context) ([]core.FlowRecord, error) {
	key := "history"
	if flows, found := s.historyCache.Get(key); found {
		slog.DebugContext(ctx, "History cache hit")
		return flows, nil
	}

	flows, err := s.store.FlowsSince(ctx, s.historyMonths)
	if err != nil {
		return nil, fmt.Errorf("flows since %d months: %w", s.historyMonths, err)
	}
	s.historyCache.Set(key, flows)
	return flows, nil
}

// resolveMonth picks the month from the query string, falling back to the
// most recent computed month.
func (s *Server) resolveMonth(r *http.Request) (core.MonthEnd, bool, error) {
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if _, err := time.Parse(core.ISODateLayout, v); err != nil {
			return "", false, fmt.Errorf("invalid month %q, want YYYY-MM-DD", v)
		}
		return core.MonthEnd(v), true, nil
	}
	return s.store.LatestMonth(r.Context())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	months, err := s.store.Months(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Months list error", "error", err)
	}
	// The store returns months newest first; keep that order so the first
	// picker option is the latest month.
	labels := make([]string, 0, len(months))
	for _, m := range months {
		labels = append(labels, m.String())
	}

	data := struct {
		Months []string
		Latest string
	}{Months: labels}
	if len(labels) > 0 {
		data.Latest = labels[0]
	}

	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Dashboard template execution failed", "error", err, "template", "dashboard.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	monthEnd, ok, err := s.resolveMonth(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, summaryJSON{})
		return
	}

	latest, err := s.monthFlows(r.Context(), monthEnd)
	if err != nil {
		slog.ErrorContext(r.Context(), "Summary read error", "error", err, "month_end", monthEnd.String())
		writeJSONError(w, http.StatusInternalServerError, "failed to read flows")
		return
	}
	history, err := s.historyFlows(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "History read error", "error", err)
		history = latest
	}

	sum := report.Summarize(latest, history)
	writeJSON(w, http.StatusOK, summaryJSON{
		MonthEnd:       sum.MonthEnd,
		MonthLabel:     sum.MonthLabel,
		FiscalYear:     sum.FiscalYear,
		Schemes:        sum.Schemes,
		Inflows:        sum.Inflows,
		Outflows:       sum.Outflows,
		TotalNetFlowCr: sum.TotalNetFlowCr.InexactFloat64(),
		TotalAUMCr:     sum.TotalAUMCr.InexactFloat64(),
		FlowPct:        sum.FlowPct.InexactFloat64(),
		FYTDNetFlowCr:  sum.FYTDNetFlowCr.InexactFloat64(),
	})
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	monthEnd, ok, err := s.resolveMonth(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"month_end": "", "flows": []flowJSON{}})
		return
	}

	flows, err := s.monthFlows(r.Context(), monthEnd)
	if err != nil {
		slog.ErrorContext(r.Context(), "Flows read error", "error", err, "month_end", monthEnd.String())
		writeJSONError(w, http.StatusInternalServerError, "failed to read flows")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"month_end": monthEnd.String(),
		"flows":     toFlowsJSON(flows),
	})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	period := report.Period(strings.TrimSpace(r.URL.Query().Get("period")))
	if period == "" {
		period = report.PeriodMonthly
	}
	if !report.ValidPeriod(period) {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown period %q", period))
		return
	}

	history, err := s.historyFlows(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "History read error", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	buckets := report.Aggregate(history, period)
	out := make([]bucketJSON, len(buckets))
	for i, b := range buckets {
		out[i] = bucketJSON{
			Label:     b.Label,
			NetFlowCr: b.NetFlowCr.InexactFloat64(),
			AUMCr:     b.AUMCr.InexactFloat64(),
			Schemes:   b.Schemes,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period":  string(period),
		"buckets": out,
	})
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	months, err := s.store.Months(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Months read error", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to read months")
		return
	}
	out := make([]string, len(months))
	for i, m := range months {
		out[i] = m.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"months": out})
}

func (s *Server) handleSchemes(w http.ResponseWriter, r *http.Request) {
	monthEnd, ok, err := s.resolveMonth(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"top": []flowJSON{}, "bottom": []flowJSON{}})
		return
	}

	n := 10
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100 {
			n = parsed
		}
	}

	flows, err := s.monthFlows(r.Context(), monthEnd)
	if err != nil {
		slog.ErrorContext(r.Context(), "Schemes read error", "error", err, "month_end", monthEnd.String())
		writeJSONError(w, http.StatusInternalServerError, "failed to read flows")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"month_end": monthEnd.String(),
		"top":       toFlowsJSON(report.TopSchemes(flows, n)),
		"bottom":    toFlowsJSON(report.BottomSchemes(flows, n)),
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	monthEnd, ok, err := s.resolveMonth(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	flows, err := s.monthFlows(r.Context(), monthEnd)
	if err != nil {
		slog.ErrorContext(r.Context(), "Categories read error", "error", err, "month_end", monthEnd.String())
		writeJSONError(w, http.StatusInternalServerError, "failed to read flows")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"month_end":       monthEnd.String(),
		"by_category":     toBreakdownsJSON(report.ByCategory(flows)),
		"by_sub_category": toBreakdownsJSON(report.BySubCategory(flows)),
		"by_fund_house":   toBreakdownsJSON(report.ByFundHouse(flows)),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	runs, err := s.store.RecentRuns(r.Context(), limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "Runs read error", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to read runs")
		return
	}

	out := make([]runJSON, len(runs))
	for i, run := range runs {
		out[i] = runJSON{
			RunAt:          run.RunAt.Format(time.RFC3339),
			MonthProcessed: run.MonthProcessed,
			SchemesUpdated: run.SchemesUpdated,
			Status:         run.Status,
			Message:        run.Message,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

// handleCompute triggers a pipeline run for one month. Defaults to the
// previous calendar month, whose figures are the newest complete set.
func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.runner == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}

	var req struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Year == 0 && req.Month == 0 {
		y, m := core.PrevMonth(time.Now().Year(), time.Now().Month())
		req.Year, req.Month = y, int(m)
	}
	if req.Month < 1 || req.Month > 12 || req.Year < 2000 {
		writeJSONError(w, http.StatusUnprocessableEntity, "year/month out of range")
		return
	}

	result, err := s.runner.ComputeMonth(r.Context(), req.Year, time.Month(req.Month))
	if err != nil {
		slog.ErrorContext(r.Context(), "Compute request failed", "error", err, "year", req.Year, "month", req.Month)
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.InvalidateMonth(result.MonthEnd.String())
	writeJSON(w, http.StatusOK, map[string]any{
		"month_end":         result.MonthEnd.String(),
		"prev_month_end":    result.PrevMonthEnd.String(),
		"schemes":           result.Schemes,
		"total_net_flow_cr": result.TotalNetFlowCr.InexactFloat64(),
		"total_aum_cr":      result.TotalAUMCr.InexactFloat64(),
	})
}
