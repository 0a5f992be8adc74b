package sheets

import (
	"context"
	"os"
	"testing"

	"fundflow/internal/pipeline"
)

func TestNewMissingSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), "", "Flows"); err == nil {
		t.Fatal("expected error for missing spreadsheet ID")
	}
}

func TestNewMissingCredentials(t *testing.T) {
	for _, key := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
		old := os.Getenv(key)
		os.Unsetenv(key)
		defer os.Setenv(key, old)
	}

	_, err := New(context.Background(), "sheet-id", "Flows")
	if err == nil {
		t.Fatal("expected error when no credentials are configured")
	}
}

func TestExportMonthSummaryWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "sheet-id", sheetName: "Flows"}
	if err := c.ExportMonthSummary(context.Background(), pipeline.Result{}); err == nil {
		t.Fatal("expected error when the sheets service is nil")
	}
}
