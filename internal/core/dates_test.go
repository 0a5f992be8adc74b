package core

import (
	"testing"
	"time"
)

func TestLastBusinessDay(t *testing.T) {
	tests := []struct {
		name  string
		year  int
		month time.Month
		want  string
	}{
		{"weekday month end", 2025, time.July, "2025-07-31"},
		{"sunday rolls back to friday", 2025, time.August, "2025-08-29"},
		{"saturday rolls back to friday", 2025, time.May, "2025-05-30"},
		{"december crosses year boundary", 2024, time.December, "2024-12-31"},
		{"february non leap", 2025, time.February, "2025-02-28"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LastBusinessDay(tt.year, tt.month)
			if got.Format(ISODateLayout) != tt.want {
				t.Errorf("LastBusinessDay(%d, %s) = %s, want %s",
					tt.year, tt.month, got.Format(ISODateLayout), tt.want)
			}
			if wd := got.Weekday(); wd == time.Saturday || wd == time.Sunday {
				t.Errorf("LastBusinessDay landed on %s", wd)
			}
		})
	}
}

func TestPrevBusinessDay(t *testing.T) {
	tests := []struct {
		name string
		from string
		want string
	}{
		{"midweek steps one day", "2025-07-31", "2025-07-30"},
		{"monday skips the weekend", "2025-08-04", "2025-08-01"},
		{"sunday start lands on friday", "2025-08-03", "2025-08-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, err := time.Parse(ISODateLayout, tt.from)
			if err != nil {
				t.Fatal(err)
			}
			got := PrevBusinessDay(from)
			if got.Format(ISODateLayout) != tt.want {
				t.Errorf("PrevBusinessDay(%s) = %s, want %s",
					tt.from, got.Format(ISODateLayout), tt.want)
			}
		})
	}
}

func TestPrevMonth(t *testing.T) {
	y, m := PrevMonth(2025, time.January)
	if y != 2024 || m != time.December {
		t.Errorf("PrevMonth(2025, January) = %d, %s", y, m)
	}
	y, m = PrevMonth(2025, time.July)
	if y != 2025 || m != time.June {
		t.Errorf("PrevMonth(2025, July) = %d, %s", y, m)
	}
}

func TestReportDateRoundTrip(t *testing.T) {
	day := time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC)
	s := ReportDate(day)
	if s != "31-Jul-2025" {
		t.Fatalf("ReportDate = %q, want 31-Jul-2025", s)
	}
	back, err := ParseReportDate(s)
	if err != nil {
		t.Fatalf("ParseReportDate: %v", err)
	}
	if !back.Equal(day) {
		t.Errorf("round trip = %s, want %s", back, day)
	}
}

func TestMonthEndTime(t *testing.T) {
	me := MonthEndOf(time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC))
	if me != "2025-06-30" {
		t.Fatalf("MonthEndOf = %q", me)
	}
	parsed, err := me.Time()
	if err != nil {
		t.Fatalf("Time(): %v", err)
	}
	if parsed.Month() != time.June || parsed.Day() != 30 {
		t.Errorf("parsed = %s", parsed)
	}

	if _, err := MonthEnd("not-a-date").Time(); err == nil {
		t.Error("Time() on garbage should error")
	}
}

func TestFiscalLabels(t *testing.T) {
	tests := []struct {
		date        string
		wantFY      string
		wantQuarter string
	}{
		{"2025-04-30", "FY26", "Q1 FY26"},
		{"2025-07-31", "FY26", "Q2 FY26"},
		{"2025-12-31", "FY26", "Q3 FY26"},
		{"2026-03-31", "FY26", "Q4 FY26"},
		{"2025-03-31", "FY25", "Q4 FY25"},
	}

	for _, tt := range tests {
		d, err := time.Parse(ISODateLayout, tt.date)
		if err != nil {
			t.Fatal(err)
		}
		if got := FiscalYear(d); got != tt.wantFY {
			t.Errorf("FiscalYear(%s) = %s, want %s", tt.date, got, tt.wantFY)
		}
		if got := FiscalQuarter(d); got != tt.wantQuarter {
			t.Errorf("FiscalQuarter(%s) = %s, want %s", tt.date, got, tt.wantQuarter)
		}
	}
}
