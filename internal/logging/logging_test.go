package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	if filepath.Base(path) != "pagegenie.log" {
		t.Errorf("DefaultLogPath should end with pagegenie.log, got: %s", path)
	}
	if !strings.Contains(path, ".pagegenie") {
		t.Errorf("DefaultLogPath should live under .pagegenie, got: %s", path)
	}
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()
	if cfg.Level != "debug" {
		t.Errorf("expected level 'debug', got: %s", cfg.Level)
	}
	if !cfg.WriteToStderr {
		t.Error("expected WriteToStderr to be true")
	}
}

func TestStdioConfig_NeverWritesStderr(t *testing.T) {
	cfg := StdioConfig("info")
	if cfg.WriteToStderr {
		t.Error("stdio config must not write to stderr")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pagegenie.log")
	logger, cleanup, err := Setup(Config{Level: "info", FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("ingest_complete", slog.String("slug", "home"), slog.Int("chunks", 7))
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(out, `"msg":"ingest_complete"`) || !strings.Contains(out, `"slug":"home"`) {
		t.Errorf("unexpected log content: %s", out)
	}
}

func TestRotatingWriter_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagegenie.log")
	w, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	w.syncEach = false
	w.maxSize = 64

	for i := 0; i < 10; i++ {
		if _, err := fmt.Fprintf(w, "line %02d padding padding padding\n", i); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected %s.1 to exist", path)
	}
	if _, err := os.Stat(path + ".3"); err == nil {
		t.Errorf("expected at most 2 rotated files")
	}
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestViewer_TailFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagegenie.log")
	writeLines(t, path,
		`{"time":"2026-01-02T10:00:00Z","level":"DEBUG","msg":"embed_start","run_id":"a"}`,
		`{"time":"2026-01-02T10:00:01Z","level":"WARN","msg":"rerank_permutation_mismatch","run_id":"a"}`,
		`{"time":"2026-01-02T10:00:02Z","level":"ERROR","msg":"pipeline_failed","run_id":"b"}`,
		`not json`,
	)

	tests := []struct {
		name string
		cfg  ViewerConfig
		want int
	}{
		{"all", ViewerConfig{}, 4},
		{"level", ViewerConfig{Level: "warn"}, 2},
		{"pattern", ViewerConfig{Pattern: regexp.MustCompile("rerank")}, 1},
		{"run id", ViewerConfig{RunID: "a"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := NewViewer(tt.cfg, &bytes.Buffer{}).Tail(path, 100)
			if err != nil {
				t.Fatalf("Tail: %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("got %d entries, want %d", len(entries), tt.want)
			}
		})
	}
}

func TestViewer_TailKeepsLastN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagegenie.log")
	writeLines(t, path, "a", "b", "c")

	entries, err := NewViewer(ViewerConfig{}, &bytes.Buffer{}).Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(entries) != 2 || entries[0].Raw != "b" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestViewer_FormatEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	entry := v.parseLine(`{"time":"2026-01-02T10:00:00.5Z","level":"INFO","msg":"done","slug":"home","chunks":3}`)

	got := v.FormatEntry(entry)
	want := "10:00:00.500 INFO  done chunks=3 slug=home"
	if got != want {
		t.Errorf("FormatEntry = %q, want %q", got, want)
	}
}

func TestViewer_Follow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagegenie.log")
	writeLines(t, path, `{"level":"INFO","msg":"old"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- NewViewer(ViewerConfig{}, &bytes.Buffer{}).Follow(ctx, path, entries) }()

	time.Sleep(150 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString(`{"level":"INFO","msg":"new"}` + "\n")
	_ = f.Close()

	select {
	case e := <-entries:
		if e.Msg != "new" {
			t.Errorf("got %q, want new", e.Msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for followed entry")
	}
	cancel()
	<-done
}
