package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMultiHandler_WritesToAll(t *testing.T) {
	var text, js bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&text, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&js, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	log := slog.New(h).With("service", "test")

	log.Info("only text")
	log.Warn("both", "drop_id", "d1")

	if !strings.Contains(text.String(), "only text") || !strings.Contains(text.String(), "both") {
		t.Errorf("text output = %q", text.String())
	}
	if strings.Contains(js.String(), "only text") {
		t.Errorf("json handler should filter info: %q", js.String())
	}
	if !strings.Contains(js.String(), `"drop_id":"d1"`) || !strings.Contains(js.String(), `"service":"test"`) {
		t.Errorf("json output = %q", js.String())
	}
}
