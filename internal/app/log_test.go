package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"qcsync/internal/config"
)

func TestQcHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "run-123",
			level:   slog.LevelInfo,
			message: "sync finished",
			want:    "2024-06-15T14:30:45Z\tINFO\trun-123\tsync finished\n",
		},
		{
			name:    "debug level",
			runID:   "run-456",
			level:   slog.LevelDebug,
			message: "sync already running, coalescing",
			want:    "2024-06-15T14:30:45Z\tDEBUG\trun-456\tsync already running, coalescing\n",
		},
		{
			name:    "with record attrs",
			runID:   "run-789",
			level:   slog.LevelWarn,
			message: "entry rejected",
			attrs:   []slog.Attr{slog.String("product_id", "p-404"), slog.Int64("sequence", 42)},
			want:    "2024-06-15T14:30:45Z\tWARN\trun-789\tentry rejected\tproduct_id=p-404\tsequence=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &qcHandler{w: &buf, runID: tt.runID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestQcHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &qcHandler{w: &buf, runID: "run-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "scheduler")}).(*qcHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "sync started", 0)
	r.AddAttrs(slog.String("trigger", "reconnect"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=scheduler") {
		t.Errorf("expected pre-set attr component=scheduler, got: %q", got)
	}
	if !strings.Contains(got, "trigger=reconnect") {
		t.Errorf("expected record attr trigger=reconnect, got: %q", got)
	}
}

func TestQcHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &qcHandler{w: &buf, runID: "run-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*qcHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestQcHandler_Enabled(t *testing.T) {
	t.Run("no level enables everything", func(t *testing.T) {
		h := &qcHandler{}
		for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
			if !h.Enabled(context.Background(), level) {
				t.Errorf("Enabled(%v) = false, want true", level)
			}
		}
	})

	t.Run("warn filters debug and info", func(t *testing.T) {
		h := &qcHandler{level: slog.LevelWarn}
		tests := map[slog.Level]bool{
			slog.LevelDebug: false,
			slog.LevelInfo:  false,
			slog.LevelWarn:  true,
			slog.LevelError: true,
		}
		for level, want := range tests {
			if got := h.Enabled(context.Background(), level); got != want {
				t.Errorf("Enabled(%v) = %v, want %v", level, got, want)
			}
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "WARN", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, closer, err := newLogger(config.LogConfig{Level: "info", MaxSizeMB: 1}, dir, "test-run", &console)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("entry saved locally", "sequence", 1)

	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "qc.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	for name, out := range map[string]string{"file": string(data), "console": console.String()} {
		if !strings.Contains(out, "\ttest-run\tentry saved locally\tsequence=1") {
			t.Errorf("%s output missing info line: %q", name, out)
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("%s output contains debug line: %q", name, out)
		}
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, _, err := newLogger(config.LogConfig{Level: "verbose"}, t.TempDir(), "r", nil); err == nil {
		t.Error("newLogger() expected error for invalid level")
	}
}

func TestNewConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewConsoleLogger("warn", "srv", &buf)
	if err != nil {
		t.Fatalf("NewConsoleLogger() error = %v", err)
	}

	logger.Info("dropped")
	logger.Warn("sync rejected entry", "reason", "unknown productId")

	got := buf.String()
	if strings.Contains(got, "dropped") {
		t.Errorf("info line written at warn level: %q", got)
	}
	if !strings.Contains(got, "\tWARN\tsrv\tsync rejected entry\treason=unknown productId\n") {
		t.Errorf("output = %q, want warn line", got)
	}

	if _, err := NewConsoleLogger("nope", "srv", &buf); err == nil {
		t.Error("NewConsoleLogger() expected error for invalid level")
	}
}
