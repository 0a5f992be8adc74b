package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	if r.MaturityType != 1 {
		t.Errorf("MaturityType = %d, want 1 (open ended)", r.MaturityType)
	}
	if got := r.SubCategoryCount(); got != 19 {
		t.Errorf("SubCategoryCount = %d, want 19 (12 equity + 7 hybrid)", got)
	}

	var equity, hybrid *CategoryGroup
	for i := range r.Categories {
		switch r.Categories[i].Name {
		case "Equity":
			equity = &r.Categories[i]
		case "Hybrid":
			hybrid = &r.Categories[i]
		}
	}
	if equity == nil || equity.ID != 1 {
		t.Fatal("default registry missing Equity category with id 1")
	}
	if hybrid == nil || hybrid.ID != 3 {
		t.Fatal("default registry missing Hybrid category with id 3")
	}
}

func TestFundHouseName(t *testing.T) {
	r := Default()

	name, ok := r.FundHouseName(17)
	if !ok || name != "ICICI Prudential MF" {
		t.Errorf("FundHouseName(17) = %q, %v; want ICICI Prudential MF", name, ok)
	}
	if _, ok := r.FundHouseName(999); ok {
		t.Error("FundHouseName(999) should not resolve")
	}
}

func TestShortName(t *testing.T) {
	r := Default()

	tests := []struct {
		in, want string
	}{
		{"ICICI Prudential MF", "ICICI Pru"},
		{"Aditya Birla Sun Life MF", "ABSL"},
		{"Unknown House MF", "Unknown House"},
		{"Some Mutual Fund", "Some"},
	}
	for _, tt := range tests {
		if got := r.ShortName(tt.in); got != tt.want {
			t.Errorf("ShortName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractFundHouse(t *testing.T) {
	r := Default()

	tests := []struct {
		scheme, want string
	}{
		{"ICICI Prudential Bluechip Fund", "ICICI Pru"},
		{"Parag Parikh Flexi Cap Fund", "PPFAS"},
		{"Invesco India Contra Fund", "Invesco"},
		{"Totally Unknown Scheme", "Other"},
	}
	for _, tt := range tests {
		if got := r.ExtractFundHouse(tt.scheme); got != tt.want {
			t.Errorf("ExtractFundHouse(%q) = %q, want %q", tt.scheme, got, tt.want)
		}
	}
}

func TestLoadOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	content := `
maturity_type: 1
categories:
  - id: 1
    name: Equity
    sub_categories:
      - { id: 5, name: Mid Cap }
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.SubCategoryCount() != 1 {
		t.Errorf("SubCategoryCount = %d, want 1", r.SubCategoryCount())
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load("/nonexistent/registry.yaml"); err == nil {
		t.Error("Load of missing file should error")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("maturity_type: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load of registry without categories should error")
	}

	if r, err := Load(""); err != nil || r == nil {
		t.Errorf("Load(\"\") should fall back to embedded default, got %v", err)
	}
}
