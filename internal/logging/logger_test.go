package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"recap/internal/services"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestConsoleHandlerOutput(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger = NewComponentLogger(logger, "ledger")
	logger.Info("reserved capacity", Int("amount", 20), String(FieldAccount, "acct-1"))

	out := buf.String()
	if !strings.Contains(out, "[ledger]") {
		t.Fatalf("expected component prefix, got %q", out)
	}
	if !strings.Contains(out, "reserved capacity") {
		t.Fatalf("expected message, got %q", out)
	}
	if !strings.Contains(out, "amount=20") || !strings.Contains(out, "account=acct-1") {
		t.Fatalf("expected attrs, got %q", out)
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be suppressed, got %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn line missing, got %q", out)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	ctx := services.WithAccount(context.Background(), "acct-7")
	ctx = services.WithRunToken(ctx, "run-42")

	WithContext(ctx, logger).Info("settled")

	out := buf.String()
	if !strings.Contains(out, "account=acct-7") || !strings.Contains(out, "run_token=run-42") {
		t.Fatalf("expected context fields, got %q", out)
	}
}

func TestWithContextNilLogger(t *testing.T) {
	if got := WithContext(context.Background(), nil); got == nil {
		t.Fatal("expected usable logger")
	}
}
