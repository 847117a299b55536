package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupLoggerWritesCategoryFiles(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	prevDefault := slog.Default()
	if err := SetupLogger(Options{Dir: dir, Console: &console}); err != nil {
		t.Fatalf("SetupLogger() failed: %v", err)
	}
	t.Cleanup(func() {
		GlobalLogger.Sync()
		mu.Lock()
		GlobalLogger = nil
		mu.Unlock()
		slog.SetDefault(prevDefault)
	})

	BusLogger().Info("subscribed", "topic", "events:*")
	GlobalLogger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "bus.log"))
	if err != nil {
		t.Fatalf("read bus.log: %v", err)
	}
	if !strings.Contains(string(data), "topic=events:*") {
		t.Fatalf("expected topic attribute in bus.log, got %q", data)
	}
	if !strings.Contains(console.String(), "category=bus") {
		t.Fatalf("expected console copy with category, got %q", console.String())
	}
}

func TestLoggersFallBackToDefault(t *testing.T) {
	mu.Lock()
	prev := GlobalLogger
	GlobalLogger = nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		GlobalLogger = prev
		mu.Unlock()
	})

	if ApplicationLogger() != slog.Default() {
		t.Fatalf("expected default slog logger before setup")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", in, got, want)
		}
	}
}
