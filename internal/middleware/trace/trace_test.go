package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"revenue/internal/log"
)

func TestRequestIDAssigned(t *testing.T) {
	var seen string
	m := NewMiddleware(log.Discard(), nil, nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/revenue", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("request id %q is not a uuid", seen)
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response header = %q, want %q", rec.Header().Get(RequestIDHeader), seen)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	m := NewMiddleware(log.Discard(), nil, nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "upstream-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Header().Get(RequestIDHeader) != "upstream-42" {
		t.Errorf("got %q", rec.Header().Get(RequestIDHeader))
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "has spaces")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Header().Get(RequestIDHeader) == "has spaces" {
		t.Error("malformed ids must be replaced")
	}
}

func TestPanicRecovered(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Output: &buf})
	m := NewMiddleware(logger, func(*http.Request) string { return "10.0.0.1" }, nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/revenue", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "Panic while serving request") || !strings.Contains(buf.String(), "status_code=500") {
		t.Errorf("log = %s", buf.String())
	}
	if got := m.GetMetrics(); got.Panics != 1 || got.TotalRequests != 1 {
		t.Errorf("metrics = %+v", got)
	}
}

func TestStatusCaptured(t *testing.T) {
	var buf bytes.Buffer
	m := NewMiddleware(log.New(log.Config{Output: &buf}), nil, nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/revenue/9", nil))

	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "status_code=404") {
		t.Errorf("log = %s", buf.String())
	}
}
