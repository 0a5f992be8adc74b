package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := New(Config{
		Component: component,
		Handler:   slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
	return logger, &buf
}

func TestLoggerAddsComponent(t *testing.T) {
	logger, buf := newBufferLogger("amfi")

	logger.Info("Fetched schemes", FieldSchemes, 42)

	out := buf.String()
	if !strings.Contains(out, "component=amfi") {
		t.Errorf("output missing component: %s", out)
	}
	if !strings.Contains(out, "schemes=42") {
		t.Errorf("output missing field: %s", out)
	}
}

func TestWithComponent(t *testing.T) {
	logger, buf := newBufferLogger("app")

	logger.WithComponent("scheduler").Warn("Month due")

	out := buf.String()
	if !strings.Contains(out, "component=scheduler") {
		t.Errorf("output = %s", out)
	}
	if logger.Component() != "app" {
		t.Errorf("original logger component changed: %s", logger.Component())
	}
}

func TestWithKeepsComponent(t *testing.T) {
	logger, buf := newBufferLogger("pipeline")

	logger.With(FieldMonthEnd, "2025-07-31").Error("Run failed", FieldError, "no data")

	out := buf.String()
	for _, want := range []string{"component=pipeline", "month_end=2025-07-31", "level=ERROR"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}
