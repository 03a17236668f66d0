package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrettyJSONHandler_GroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyJSONHandler(&buf, Options{Compact: true}))

	logger.With("session", "abc").WithGroup("tick").Info("food reached",
		"score", 3,
		"error", errors.New("boom"),
		slog.Group("food", "x", 10, "y", 20),
	)

	var got map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got["msg"] != "food reached" || got["level"] != "INFO" || got["session"] != "abc" {
		t.Fatalf("top level=%v", got)
	}
	tick, ok := got["tick"].(map[string]any)
	if !ok {
		t.Fatalf("tick group missing: %v", got)
	}
	if tick["score"] != float64(3) || tick["error"] != "boom" {
		t.Fatalf("tick=%v", tick)
	}
	food, ok := tick["food"].(map[string]any)
	if !ok || food["x"] != float64(10) {
		t.Fatalf("food=%v", tick["food"])
	}
}

func TestPrettyJSONHandler_AttrsKeepTheirGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyJSONHandler(&buf, Options{Compact: true}))

	logger.With("worker", 1).WithGroup("episode").With("id", "e1").WithGroup("tick").Info("step", "n", 4)

	var got map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got["worker"] != float64(1) {
		t.Fatalf("worker not at top level: %v", got)
	}
	ep, ok := got["episode"].(map[string]any)
	if !ok || ep["id"] != "e1" || ep["worker"] != nil {
		t.Fatalf("episode=%v", got["episode"])
	}
	tick, ok := ep["tick"].(map[string]any)
	if !ok || tick["n"] != float64(4) || tick["id"] != nil {
		t.Fatalf("tick=%v", ep["tick"])
	}
}

func TestPrettyJSONHandler_LevelAndIndent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyJSONHandler(&buf, Options{Level: slog.LevelWarn}))
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "\n  \"msg\": \"shown\"") {
		t.Fatalf("expected indented output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "": slog.LevelInfo,
		"warning": slog.LevelWarn, "error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q)=%v,%v want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestSetup_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "snake.log")
	logger, closer, err := Setup("debug", path)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger.Debug("one")
	logger.Info("two")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%d want 2: %q", len(lines), data)
	}
	if !strings.Contains(lines[0], "prettyjson_test.go:") {
		t.Fatalf("debug file logs should carry source: %s", lines[0])
	}
}
