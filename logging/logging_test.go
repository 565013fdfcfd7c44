package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.WithField("segment", 3).Debug("extracted")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "extracted" {
		t.Fatalf("msg: got %v", entry["msg"])
	}
	if entry["segment"] != float64(3) {
		t.Fatalf("segment field: got %v", entry["segment"])
	}
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{" ERROR ", logrus.ErrorLevel},
		{"debug", logrus.DebugLevel},
	}
	for _, tt := range tests {
		l, err := New(&bytes.Buffer{}, tt.in, "text")
		if err != nil {
			t.Fatalf("New(%q): %v", tt.in, err)
		}
		if l.GetLevel() != tt.want {
			t.Fatalf("level %q: got %s want %s", tt.in, l.GetLevel(), tt.want)
		}
	}
}

func TestNewRejectsUnknownValues(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud", "text"); err == nil || !strings.Contains(err.Error(), "log level") {
		t.Fatalf("expected level error, got %v", err)
	}
	if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil || !strings.Contains(err.Error(), "log format") {
		t.Fatalf("expected format error, got %v", err)
	}
}
