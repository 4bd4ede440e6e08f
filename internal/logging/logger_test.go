package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger_DefaultConfig(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
	if logger.level != LevelInfo {
		t.Errorf("default level = %v, want LevelInfo", logger.level)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("should not appear")
	logger.Info("should not appear either")
	if buf.Len() != 0 {
		t.Errorf("expected no output below configured level, got %q", buf.String())
	}

	logger.Warn("warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Errorf("expected warn message in output, got %q", buf.String())
	}
}

func TestLogger_FormatArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("submitting op", "cid", 7, "kind", "read")
	output := buf.String()
	if !strings.Contains(output, "cid=7") || !strings.Contains(output, "kind=read") {
		t.Errorf("expected key=value pairs in output, got %q", output)
	}
}

func TestLogger_Printf(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Debugf("acquired slot %d of %d", 3, 8)
	if !strings.Contains(buf.String(), "acquired slot 3 of 8") {
		t.Errorf("expected formatted message, got %q", buf.String())
	}
}

func TestDefaultAndSetDefault(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))
	defer SetDefault(NewLogger(nil))

	Info("hello from default logger")
	if !strings.Contains(buf.String(), "hello from default logger") {
		t.Errorf("expected message via package-level Info, got %q", buf.String())
	}
}
