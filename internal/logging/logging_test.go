package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/config"
)

func TestJSONFormatProducesParseableLines(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Format: "json", Level: "info"}, &buf)
	logger.Info("server ready", "port", 7713)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got %q: %v", buf.String(), err)
	}
	if decoded["msg"] != "server ready" {
		t.Fatalf("unexpected msg field: %+v", decoded)
	}
}

func TestPrettyFormatIncludesMessageAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Format: "pretty", Level: "info"}, &buf)
	logger.Info("dialog created", "dialog_id", "dlg-1")

	out := buf.String()
	if !strings.Contains(out, "dialog created") || !strings.Contains(out, "dialog_id=dlg-1") {
		t.Fatalf("unexpected pretty output: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Format: "pretty", Level: "warn"}, &buf)
	logger.Info("should be filtered out")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered out") {
		t.Fatalf("expected info level to be filtered, got %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("expected warn level to appear, got %q", out)
	}
}
