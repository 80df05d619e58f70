package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func captureOutput(t *testing.T, fn func()) []Entry {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	fn()

	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("failed to parse log line %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestInfo(t *testing.T) {
	entries := captureOutput(t, func() {
		Info("pipeline started", F("queue_capacity", 2048))
	})

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Body != "pipeline started" {
		t.Errorf("Body = %q, want %q", e.Body, "pipeline started")
	}
	if e.SeverityText != "INFO" {
		t.Errorf("SeverityText = %q, want INFO", e.SeverityText)
	}
	if e.SeverityNumber != 9 {
		t.Errorf("SeverityNumber = %d, want 9", e.SeverityNumber)
	}
	if got := e.Attributes["queue_capacity"]; got != float64(2048) {
		t.Errorf("queue_capacity attribute = %v, want 2048", got)
	}
}

func TestSeverityNumbers(t *testing.T) {
	tests := []struct {
		level Level
		want  int
	}{
		{LevelDebug, 5},
		{LevelInfo, 9},
		{LevelWarn, 13},
		{LevelError, 17},
		{LevelFatal, 21},
	}
	for _, tt := range tests {
		if got := SeverityNumber(tt.level); got != tt.want {
			t.Errorf("SeverityNumber(%s) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestResourceAttached(t *testing.T) {
	SetResource(map[string]string{"service.name": "test-service"})
	defer SetResource(nil)

	entries := captureOutput(t, func() {
		Warn("queue full")
	})

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].Resource["service.name"]; got != "test-service" {
		t.Errorf("Resource[service.name] = %q, want test-service", got)
	}
}

func TestFHelper(t *testing.T) {
	fields := F("a", 1, "b", "two", "c", true)
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	if fields["b"] != "two" {
		t.Errorf("fields[b] = %v, want two", fields["b"])
	}

	// Odd trailing value and non-string keys are ignored.
	fields = F("a", 1, 42, "ignored", "trailing")
	if len(fields) != 1 {
		t.Errorf("expected 1 field, got %d: %v", len(fields), fields)
	}
}

func TestErrorLevel(t *testing.T) {
	entries := captureOutput(t, func() {
		Error("export failed", F("error", "connection refused"))
	})
	if entries[0].SeverityNumber != 17 {
		t.Errorf("SeverityNumber = %d, want 17", entries[0].SeverityNumber)
	}
	if entries[0].Attributes["error"] != "connection refused" {
		t.Errorf("error attribute = %v", entries[0].Attributes["error"])
	}
}
