package core

import (
	"fmt"
	"time"
)

// Indian fiscal year runs April through March: FY26 is Apr 2025 – Mar 2026.

// FiscalYear returns the FY label ("FY26") for a date.
func FiscalYear(t time.Time) string {
	year := t.Year()
	if t.Month() >= time.April {
		year++
	}
	return fmt.Sprintf("FY%02d", year%100)
}

// FiscalQuarter returns the quarter label ("Q2 FY26") for a date.
// Q1 is Apr–Jun.
func FiscalQuarter(t time.Time) string {
	var q string
	switch t.Month() {
	case time.April, time.May, time.June:
		q = "Q1"
	case time.July, time.August, time.September:
		q = "Q2"
	case time.October, time.November, time.December:
		q = "Q3"
	default:
		q = "Q4"
	}
	return q + " " + FiscalYear(t)
}

// MonthLabel returns the compact chart label for a month end ("Mar '25").
func MonthLabel(t time.Time) string {
	return t.Format("Jan '06")
}
