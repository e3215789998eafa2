package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
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
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}

func TestJSONLoggerTagsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf}).WithComponent(ComponentWorker)

	logger.Info("audit done", FieldCount, 3)

	line := buf.String()
	if strings.Count(line, `"component"`) != 1 {
		t.Fatalf("component should appear once: %s", line)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["component"] != ComponentWorker || entry["count"] != float64(3) {
		t.Errorf("entry = %v", entry)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext must never return nil")
	}

	var buf bytes.Buffer
	logger := New(Config{Output: &buf}).With(FieldRequestID, "abc")
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=abc") {
		t.Errorf("request logger not propagated: %s", buf.String())
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "INFO"},
		{404, "WARN"},
		{500, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := New(Config{Output: &buf})
		ctx := NewContext(context.Background(), logger)
		sl := NewStructuredLogger(logger)

		sl.LogHTTPEnd(ctx, httptest.NewRequest(http.MethodGet, "/revenue", nil), tt.status, 5, "127.0.0.1")
		if !strings.Contains(buf.String(), "level="+tt.level) {
			t.Errorf("status %d: %s", tt.status, buf.String())
		}
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithRevenue(1, 2, "aeronautika", 1500).
		WithError(errors.New("boom")).
		WithError(nil).
		WithRequestID("")

	if f[FieldRevenueID] != int64(1) || f[FieldError] != "boom" {
		t.Errorf("fields = %v", f)
	}
	if _, ok := f[FieldRequestID]; ok {
		t.Error("empty request id should be skipped")
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Error("ToSlice should yield key/value pairs")
	}
}
