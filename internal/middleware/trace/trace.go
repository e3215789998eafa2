package trace

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"revenue/internal/log"
)

type ContextKey string

const (
	RequestIDKey    ContextKey = "request_id"
	RequestIDHeader            = "X-Request-ID"
)

// Middleware assigns request ids, scopes a logger to each request, writes
// the access log and turns panics into 500 responses.
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *log.Logger
	access    *log.StructuredLogger
	onPanic   func(http.ResponseWriter, *http.Request)
	metrics   Metrics
}

type Metrics struct {
	TotalRequests int64
	Panics        int64
}

func NewMiddleware(logger *log.Logger, extractIP func(*http.Request) string, onPanic func(http.ResponseWriter, *http.Request)) *Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return &Middleware{
		extractIP: extractIP,
		logger:    logger,
		access:    log.NewStructuredLogger(logger),
		onPanic:   onPanic,
	}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		atomic.AddInt64(&m.metrics.TotalRequests, 1)

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := incomingRequestID(r)
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = log.NewContext(ctx, m.logger.With(log.FieldRequestID, requestID))
		r = r.WithContext(ctx)

		m.access.LogHTTPStart(ctx, r, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		defer func() {
			if rec := recover(); rec != nil {
				atomic.AddInt64(&m.metrics.Panics, 1)
				log.FromContext(ctx).ErrorContext(ctx, "Panic while serving request",
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()))
				if !rw.wroteHeader {
					if m.onPanic != nil {
						m.onPanic(rw, r)
					} else {
						http.Error(rw, "Server error", http.StatusInternalServerError)
					}
				}
			}
			m.access.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
		}()

		next.ServeHTTP(rw, r)
	})
}

// incomingRequestID keeps a caller-supplied id when it looks sane.
func incomingRequestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(RequestIDHeader)); id != "" && len(id) <= 64 && !strings.ContainsAny(id, " \t\r\n") {
		return id
	}
	return uuid.NewString()
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests: atomic.LoadInt64(&m.metrics.TotalRequests),
		Panics:        atomic.LoadInt64(&m.metrics.Panics),
	}
}
