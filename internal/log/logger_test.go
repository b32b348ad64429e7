package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewTextLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewText(&buf, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "key=value") {
		t.Errorf("info message missing from output: %q", out)
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewText(&buf, slog.LevelDebug).With("stage", "download")

	logger.Debug("start")

	if !strings.Contains(buf.String(), "stage=download") {
		t.Errorf("context attribute missing: %q", buf.String())
	}
}

func TestDefaultIsNoopUntilSet(t *testing.T) {
	// Default() must never return nil, even before SetDefault.
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}

	var buf bytes.Buffer
	SetDefault(NewText(&buf, slog.LevelInfo))
	t.Cleanup(func() { SetDefault(NewNoop()) })

	Default().Info("configured")
	if !strings.Contains(buf.String(), "configured") {
		t.Error("SetDefault did not take effect")
	}
}
