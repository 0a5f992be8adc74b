package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"fundflow/internal/core"
	"fundflow/internal/pipeline"
	"fundflow/internal/storage"

	"github.com/shopspring/decimal"
)

type fakeStore struct {
	flows      map[core.MonthEnd][]core.FlowRecord
	runs       []storage.RunRecord
	monthReads int
}

func (s *fakeStore) FlowsForMonth(ctx context.Context, monthEnd core.MonthEnd) ([]core.FlowRecord, error) {
	s.monthReads++
	return s.flows[monthEnd], nil
}

func (s *fakeStore) FlowsSince(ctx context.Context, months int) ([]core.FlowRecord, error) {
	var all []core.FlowRecord
	for _, flows := range s.flows {
		all = append(all, flows...)
	}
	return all, nil
}

func (s *fakeStore) Months(ctx context.Context) ([]core.MonthEnd, error) {
	var months []core.MonthEnd
	for m := range s.flows {
		months = append(months, m)
	}
	// Newest first, like the repository.
	sort.Slice(months, func(i, j int) bool { return months[i] > months[j] })
	return months, nil
}

func (s *fakeStore) LatestMonth(ctx context.Context) (core.MonthEnd, bool, error) {
	var latest core.MonthEnd
	for m := range s.flows {
		if m > latest {
			latest = m
		}
	}
	return latest, latest != "", nil
}

func (s *fakeStore) RecentRuns(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	if limit > len(s.runs) {
		limit = len(s.runs)
	}
	return s.runs[:limit], nil
}

type fakeRunner struct {
	result pipeline.Result
	err    error
	calls  int
}

func (r *fakeRunner) ComputeMonth(ctx context.Context, year int, month time.Month) (pipeline.Result, error) {
	r.calls++
	return r.result, r.err
}

func testFlow(name string, monthEnd core.MonthEnd, netFlow float64) core.FlowRecord {
	return core.FlowRecord{
		SchemeName:   name,
		FundHouse:    "ICICI Pru",
		Category:     core.CategoryEquity,
		SubCategory:  "Large Cap",
		MonthEnd:     monthEnd,
		PrevMonthEnd: "2025-06-30",
		NAVCur:       decimal.NewFromFloat(110),
		NAVPrev:      decimal.NewFromFloat(100),
		NAVReturn:    decimal.NewFromFloat(1.1),
		AUMCurCr:     decimal.NewFromFloat(1150),
		AUMPrevCr:    decimal.NewFromFloat(1000),
		NetFlowCr:    decimal.NewFromFloat(netFlow),
		FlowPct:      decimal.NewFromFloat(netFlow / 10),
	}
}

func newTestServer(store FlowStore, runner ComputeRunner) *Server {
	s := NewServer(":0", store, runner, 36)
	return s
}

func doRequest(t *testing.T, s *Server, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleIndexMonthPicker(t *testing.T) {
	store := &fakeStore{flows: map[core.MonthEnd][]core.FlowRecord{
		"2025-06-30": {testFlow("Bluechip Fund", "2025-06-30", 40)},
		"2025-07-31": {testFlow("Bluechip Fund", "2025-07-31", 50)},
	}}
	s := newTestServer(store, nil)
	defer s.Shutdown(context.Background())

	rec := doRequest(t, s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	july := strings.Index(body, "2025-07-31")
	june := strings.Index(body, "2025-06-30")
	if july < 0 || june < 0 {
		t.Fatalf("picker is missing months:\n%s", body)
	}
	if july > june {
		t.Error("picker lists 2025-06-30 before 2025-07-31, want the latest month first")
	}
	if !strings.Contains(body, `value="2025-07-31" selected`) {
		t.Error("latest month option should be preselected")
	}
}

func TestHandleSummary(t *testing.T) {
	store := &fakeStore{flows: map[core.MonthEnd][]core.FlowRecord{
		"2025-07-31": {
			testFlow("Bluechip Fund", "2025-07-31", 50),
			testFlow("Midcap Fund", "2025-07-31", -20),
		},
	}}
	s := newTestServer(store, nil)
	defer s.Shutdown(context.Background())

	rec := doRequest(t, s, http.MethodGet, "/api/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var got struct {
		MonthEnd       string  `json:"month_end"`
		Schemes        int     `json:"schemes"`
		Inflows        int     `json:"inflows"`
		Outflows       int     `json:"outflows"`
		TotalNetFlowCr float64 `json:"total_net_flow_cr"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.MonthEnd != "2025-07-31" || got.Schemes != 2 {
		t.Errorf("summary = %+v", got)
	}
	if got.Inflows != 1 || got.Outflows != 1 {
		t.Errorf("inflows/outflows = %d/%d", got.Inflows, got.Outflows)
	}
	if got.TotalNetFlowCr != 30 {
		t.Errorf("TotalNetFlowCr = %v, want 30", got.TotalNetFlowCr)
	}
}

func TestHandleSummaryEmptyDatabase(t *testing.T) {
	s := newTestServer(&fakeStore{flows: map[core.MonthEnd][]core.FlowRecord{}}, nil)
	defer s.Shutdown(context.Background())

	rec := doRequest(t, s, http.MethodGet, "/api/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["month_end"] != "" {
		t.Errorf("month_end = %v, want empty", got["month_end"])
	}
}

func TestHandleFlowsWithMonthParam(t *testing.T) {
	store := &fakeStore{flows: map[core.MonthEnd][]core.FlowRecord{
		"2025-06-30": {testFlow("Bluechip Fund", "2025-06-30", 40)},
		"2025-07-31": {testFlow("Bluechip Fund", "2025-07-31", 50)},
	}}
	s := newTestServer(store, nil)
	defer s.Shutdown(context.Background())

	rec := doRequest(t, s, http.MethodGet, "/api/flows?month=2025-06-30", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got struct {
		MonthEnd string     `json:"month_end"`
		Flows    []flowJSON `json:"flows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.MonthEnd != "2025-06-30" || len(got.Flows) != 1 {
		t.Errorf("flows response = %+v", got)
	}
	if got.Flows[0].NetFlowCr != 40 {
		t.Errorf("NetFlowCr = %v", got.Flows[0].NetFlowCr)
	}
}

func TestHandleFlowsRejectsBadMonth(t *testing.T) {
	s := newTestServer(&fakeStore{flows: map[core.MonthEnd][]core.FlowRecord{}}, nil)
	defer s.Shutdown(context.Background())

	rec := doRequest(t, s, http.MethodGet, "/api/flows?month=July-2025", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMonthFlowsCaching(t *testing.T) {
	store := &fakeStore{flows: map[core.MonthEnd][]core.FlowRecord{
		"2025-07-31": {testFlow("Bluechip Fund", "2025-07-31", 50)},
	}}
	s := newTestServer(store, nil)
	defer s.Shutdown(context.Background())

	for i := 0; i < 3; i++ {
		if rec := doRequest(t, s, http.MethodGet, "/api/flows?month=2025-07-31", ""); rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	if store.monthReads != 1 {
		t.Errorf("store reads = %d, want 1 (cached)", store.monthReads)
	}

	// Invalidation forces the next request back to the store.
	s.InvalidateMonth("2025-07-31")
	doRequest(t, s, http.MethodGet, "/api/flows?month=2025-07-31", "")
	if store.monthReads != 2 {
		t.Errorf("store reads after invalidation = %d, want 2", store.monthReads)
	}
}

func TestHandleSchemes(t *testing.T) {
	store := &fakeStore{flows: map[core.MonthEnd][]core.FlowRecord{
		"2025-07-31": {
			testFlow("Winner Fund", "2025-07-31", 100),
			testFlow("Loser Fund", "2025-07-31", -80),
			testFlow("Quiet Fund", "2025-07-31", 5),
		},
	}}
	s := newTestServer(store, nil)
	defer s.Shutdown(context.Background())

	rec := doRequest(t, s, http.MethodGet, "/api/schemes?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got struct {
		Top    []flowJSON `json:"top"`
		Bottom []flowJSON `json:"bottom"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Top) != 1 || got.Top[0].SchemeName != "Winner Fund" {
		t.Errorf("top = %+v", got.Top)
	}
	if len(got.Bottom) != 1 || got.Bottom[0].SchemeName != "Loser Fund" {
		t.Errorf("bottom = %+v", got.Bottom)
	}
}

func TestHandleComputeMethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeStore{flows: map[core.MonthEnd][]core.FlowRecord{}}, &fakeRunner{})
	defer s.Shutdown(context.Background())

	rec := doRequest(t, s, http.MethodGet, "/api/compute", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestHandleComputeWithoutRunner(t *testing.T) {
	s := newTestServer(&fakeStore{flows: map[core.MonthEnd][]core.FlowRecord{}}, nil)
	defer s.Shutdown(context.Background())

	rec := doRequest(t, s, http.MethodPost, "/api/compute", `{"year":2025,"month":7}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleCompute(t *testing.T) {
	runner := &fakeRunner{result: pipeline.Result{
		MonthEnd:       "2025-07-31",
		PrevMonthEnd:   "2025-06-30",
		Schemes:        2,
		TotalNetFlowCr: decimal.NewFromInt(30),
		TotalAUMCr:     decimal.NewFromInt(1690),
	}}
	s := newTestServer(&fakeStore{flows: map[core.MonthEnd][]core.FlowRecord{}}, runner)
	defer s.Shutdown(context.Background())

	rec := doRequest(t, s, http.MethodPost, "/api/compute", `{"year":2025,"month":7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if runner.calls != 1 {
		t.Errorf("runner calls = %d", runner.calls)
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["month_end"] != "2025-07-31" {
		t.Errorf("month_end = %v", got["month_end"])
	}
}

func TestHandleComputeRejectsBadMonth(t *testing.T) {
	s := newTestServer(&fakeStore{flows: map[core.MonthEnd][]core.FlowRecord{}}, &fakeRunner{})
	defer s.Shutdown(context.Background())

	rec := doRequest(t, s, http.MethodPost, "/api/compute", `{"year":2025,"month":13}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(&fakeStore{flows: map[core.MonthEnd][]core.FlowRecord{}}, nil)
	defer s.Shutdown(context.Background())

	if rec := doRequest(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(&fakeStore{flows: map[core.MonthEnd][]core.FlowRecord{}}, nil)
	defer s.Shutdown(context.Background())

	rec := doRequest(t, s, http.MethodGet, "/api/months", "")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options header")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy header")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < 60; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("request 61 within a minute should be rejected")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("different client should not be affected")
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := newLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts "a"

	if _, found := c.Get("a"); found {
		t.Error("oldest entry should have been evicted")
	}
	if v, found := c.Get("c"); !found || v != 3 {
		t.Errorf("Get(c) = %d, %v", v, found)
	}
}

func TestLRUCacheTTL(t *testing.T) {
	c := newLRUCache[int](10, 10*time.Millisecond)
	c.Set("a", 1)

	if _, found := c.Get("a"); !found {
		t.Fatal("entry should be present before TTL")
	}
	time.Sleep(20 * time.Millisecond)
	if _, found := c.Get("a"); found {
		t.Error("entry should expire after TTL")
	}
}
