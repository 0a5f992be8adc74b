package pipeline

import (
	"context"
	"fmt"
	"time"

	"fundflow/internal/core"
)

// MonthChecker answers whether a month already has a successful run.
type MonthChecker interface {
	MonthComputed(ctx context.Context, year int, month time.Month) (bool, error)
}

// DueMonth decides whether the previous calendar month is due for
// computation. AMFI publishes month-end figures with a lag, so runs are
// held until runDay of the following month; after that the month stays due
// until a successful run lands.
func DueMonth(ctx context.Context, now time.Time, runDay int, checker MonthChecker) (int, time.Month, bool, error) {
	year, month := core.PrevMonth(now.Year(), now.Month())

	if now.Day() < runDay {
		return year, month, false, nil
	}

	computed, err := checker.MonthComputed(ctx, year, month)
	if err != nil {
		return year, month, false, fmt.Errorf("check month %04d-%02d: %w", year, month, err)
	}
	return year, month, !computed, nil
}
