package amfi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fundflow/internal/registry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, fundHouseID int) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	reg := registry.Default()
	reg.Categories = []registry.CategoryGroup{
		{
			ID:   1,
			Name: "Equity",
			SubCategories: []registry.SubCategory{
				{ID: 1, Name: "Large Cap"},
				{ID: 5, Name: "Mid Cap"},
			},
		},
	}

	client := New(Options{
		BaseURL:     srv.URL,
		FundHouseID: fundHouseID,
		Timeout:     5 * time.Second,
		Registry:    reg,
	})
	return client, srv
}

func successResponse(records []map[string]any) []byte {
	body, _ := json.Marshal(map[string]any{
		"validationMsg": "SUCCESS",
		"data":          records,
	})
	return body
}

func TestFetchAllForDate(t *testing.T) {
	day := time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC)

	var payloads []fundPerformanceRequest
	handler := func(w http.ResponseWriter, r *http.Request) {
		var req fundPerformanceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		payloads = append(payloads, req)

		switch req.SubCategory {
		case 1:
			w.Write(successResponse([]map[string]any{
				{"schemeName": "ICICI Prudential Bluechip Fund", "navRegular": 110.5, "navDirect": 118.2, "dailyAUM": 62000.4},
				{"schemeName": "", "navRegular": 10, "dailyAUM": 5},       // no name, skipped
				{"schemeName": "Ghost Fund", "navRegular": 0, "dailyAUM": 5}, // zero nav, skipped
			}))
		default:
			w.Write(successResponse(nil))
		}
	}

	client, _ := newTestClient(t, handler, 17)

	snaps, err := client.FetchAllForDate(context.Background(), day)
	if err != nil {
		t.Fatalf("FetchAllForDate: %v", err)
	}

	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	snap := snaps[0]
	if snap.SchemeName != "ICICI Prudential Bluechip Fund" {
		t.Errorf("SchemeName = %q", snap.SchemeName)
	}
	if snap.FundHouse != "ICICI Pru" {
		t.Errorf("FundHouse = %q, want ICICI Pru", snap.FundHouse)
	}
	if snap.MonthEnd != "2025-07-31" {
		t.Errorf("MonthEnd = %s, want 2025-07-31", snap.MonthEnd)
	}
	if snap.Category != "Equity" || snap.SubCategory != "Large Cap" {
		t.Errorf("category = %s/%s", snap.Category, snap.SubCategory)
	}

	if len(payloads) != 2 {
		t.Fatalf("gateway saw %d requests, want 2 (one per sub-category)", len(payloads))
	}
	first := payloads[0]
	if first.MaturityType != 1 || first.Category != 1 || first.FundHouseID != 17 {
		t.Errorf("unexpected payload: %+v", first)
	}
	if first.ReportDate != "31-Jul-2025" {
		t.Errorf("ReportDate = %s, want 31-Jul-2025", first.ReportDate)
	}
}

func TestFetchAllForDateIndustryMode(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Write(successResponse([]map[string]any{
			{"schemeName": "Parag Parikh Flexi Cap Fund", "navRegular": 80.1, "dailyAUM": 110000},
			{"schemeName": "Mystery Scheme", "navRegular": 12.5, "dailyAUM": 90},
		}))
	}

	client, _ := newTestClient(t, handler, registry.IndustryFundHouseID)

	snaps, err := client.FetchAllForDate(context.Background(), time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchAllForDate: %v", err)
	}
	if len(snaps) != 4 { // two sub-categories, two records each
		t.Fatalf("got %d snapshots, want 4", len(snaps))
	}
	if snaps[0].FundHouse != "PPFAS" {
		t.Errorf("FundHouse = %q, want PPFAS (prefix extraction)", snaps[0].FundHouse)
	}
	if snaps[1].FundHouse != "Other" {
		t.Errorf("FundHouse = %q, want Other for unknown prefix", snaps[1].FundHouse)
	}
}

func TestFetchAllForDateNonSuccessIsEmpty(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"validationMsg": "FAILURE",
			"errorMsgs":     []string{"No data found"},
		})
	}

	client, _ := newTestClient(t, handler, 17)

	snaps, err := client.FetchAllForDate(context.Background(), time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchAllForDate: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("got %d snapshots, want 0 for non-success response", len(snaps))
	}
}

func TestFetchAllForDateServerErrorsAreSkipped(t *testing.T) {
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream broke", http.StatusBadGateway)
			return
		}
		w.Write(successResponse([]map[string]any{
			{"schemeName": "ICICI Prudential Midcap Fund", "navRegular": 50, "dailyAUM": 6000},
		}))
	}

	client, _ := newTestClient(t, handler, 17)

	snaps, err := client.FetchAllForDate(context.Background(), time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchAllForDate: %v", err)
	}
	if len(snaps) != 1 {
		t.Errorf("got %d snapshots, want 1 (failed sub-category skipped)", len(snaps))
	}
}

func TestFetchAllForDateHonorsContextCancel(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Write(successResponse(nil))
	}
	client, _ := newTestClient(t, handler, 17)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.FetchAllForDate(ctx, time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Error("FetchAllForDate with cancelled context should error")
	}
}
