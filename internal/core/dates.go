package core

import (
	"fmt"
	"time"
)

// Wire and storage date layouts. AMFI expects report dates as "02-Jan-2006";
// the database keeps ISO dates so lexical ordering matches chronology.
const (
	ReportDateLayout = "02-Jan-2006"
	ISODateLayout    = "2006-01-02"
)

// MonthEnd is the actual trading day a month's figures were published for,
// held as an ISO date string (the storage representation).
type MonthEnd string

func (m MonthEnd) String() string { return string(m) }

// Time parses the month end back into a time.Time.
func (m MonthEnd) Time() (time.Time, error) {
	t, err := time.Parse(ISODateLayout, string(m))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse month end %q: %w", m, err)
	}
	return t, nil
}

// MonthEndOf converts a concrete date to its storage representation.
func MonthEndOf(t time.Time) MonthEnd {
	return MonthEnd(t.Format(ISODateLayout))
}

// LastBusinessDay returns the last weekday of the given month. Exchange
// holidays are not modelled here; the fetch retry walks further back when
// the publisher had no data for this day.
func LastBusinessDay(year int, month time.Month) time.Time {
	day := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// PrevBusinessDay steps back one calendar day and then skips any weekend.
func PrevBusinessDay(t time.Time) time.Time {
	day := t.AddDate(0, 0, -1)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// PrevMonth returns the year and month preceding the given one.
func PrevMonth(year int, month time.Month) (int, time.Month) {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return t.Year(), t.Month()
}

// ReportDate formats a date the way the fundperformance endpoint wants it.
func ReportDate(t time.Time) string {
	return t.Format(ReportDateLayout)
}

// ParseReportDate parses a wire-format report date.
func ParseReportDate(s string) (time.Time, error) {
	t, err := time.Parse(ReportDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse report date %q: %w", s, err)
	}
	return t, nil
}
