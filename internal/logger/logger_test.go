package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestWriteEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)
	defer InitWriter(&bytes.Buffer{})

	fields := map[string]any{"model": "User"}
	Info("model_loaded", fields)
	Debug("hidden", nil)
	SetDebug(true)
	Debug("visible", nil)
	SetDebug(false)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["msg"] != "model_loaded" || entry["level"] != "info" || entry["model"] != "User" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := fields["ts"]; ok {
		t.Fatalf("caller fields must not be modified")
	}
	if !strings.Contains(lines[1], `"msg":"visible"`) {
		t.Fatalf("debug line missing: %s", lines[1])
	}
}
