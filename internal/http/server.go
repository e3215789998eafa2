package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"revenue/internal/core"
	"revenue/internal/log"
	"revenue/internal/middleware/ratelimit"
	"revenue/internal/middleware/security"
	"revenue/internal/middleware/trace"
)

// LedgerService is the write and list side of the API.
type LedgerService interface {
	CreateRevenue(ctx context.Context, in core.RevenueInput) (core.Revenue, error)
	GetRevenue(ctx context.Context, id int64) (core.Revenue, error)
	UpdateRevenue(ctx context.Context, id int64, patch core.RevenuePatch) (core.Revenue, error)
	DeleteRevenue(ctx context.Context, id int64) (core.Revenue, error)
	BulkDeleteRevenues(ctx context.Context, ids []int64) (core.BulkDeleteResult, error)
	ListRevenues(ctx context.Context, f core.ListFilter) ([]core.Revenue, core.Pagination, error)

	CreatePartner(ctx context.Context, name string) (core.Partner, error)
	GetPartner(ctx context.Context, id int64) (core.Partner, error)
	ListPartners(ctx context.Context) ([]core.Partner, error)

	Ping(ctx context.Context) error
}

// ReportReader serves the aggregate views.
type ReportReader interface {
	Monthly(ctx context.Context, year int) ([]core.MonthlyEntry, error)
	Summary(ctx context.Context, year int) (core.YearlySummary, error)
	Stats(ctx context.Context, year int) (core.StatsOverview, error)
	MonthlyDetail(ctx context.Context, q core.DetailQuery) (core.MonthlyDetail, error)
}

// Options configures the server's middleware.
type Options struct {
	Addr string
	// RateLimitPerMinute caps mutations per client; 0 disables limiting.
	RateLimitPerMinute int
	TrustedProxies     []string
	Logger             *log.Logger
}

type Server struct {
	http.Server
	ledger  LedgerService
	reports ReportReader
	logger  *log.Logger

	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, ledger LedgerService, reports ReportReader) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithComponent(log.ComponentHTTP)
	}

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		ledger:  ledger,
		reports: reports,
		logger:  logger,
	}

	ipResolver := security.NewClientIPResolver()
	for _, cidr := range opts.TrustedProxies {
		if err := ipResolver.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	if opts.RateLimitPerMinute > 0 {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute})
		handler = s.rateLimiter.Middleware(ipResolver.ClientIP, ratelimit.Mutations, handleRateLimited)(handler)
	}
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	s.tracer = trace.NewMiddleware(logger, ipResolver.ClientIP, func(w http.ResponseWriter, _ *http.Request) {
		InternalServerError().Write(w)
	})
	s.Handler = s.tracer.Middleware(handler)

	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /revenue", s.handleListRevenues)
	mux.HandleFunc("POST /revenue", s.handleCreateRevenue)
	mux.HandleFunc("GET /revenue/monthly-detail", s.handleMonthlyDetail)
	mux.HandleFunc("GET /revenue/monthly", s.handleMonthly)
	mux.HandleFunc("GET /revenue/summary", s.handleSummary)
	mux.HandleFunc("GET /revenue/stats/overview", s.handleStatsOverview)
	mux.HandleFunc("POST /revenue/bulk-delete", s.handleBulkDelete)
	mux.HandleFunc("GET /revenue/{id}", s.handleGetRevenue)
	mux.HandleFunc("PUT /revenue/{id}", s.handleUpdateRevenue)
	mux.HandleFunc("DELETE /revenue/{id}", s.handleDeleteRevenue)

	mux.HandleFunc("GET /partners", s.handleListPartners)
	mux.HandleFunc("POST /partners", s.handleCreatePartner)
	mux.HandleFunc("GET /partners/{id}", s.handleGetPartner)

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		NotFoundError("Not found").Write(w)
	})
}

// Shutdown stops the rate limiter and drains the HTTP server. Safe to call
// more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics exposes request counters from the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

func handleRateLimited(w http.ResponseWriter, _ *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewResponse().Message("ok").Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ledger.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
		return
	}
	NewResponse().Message("ready").Write(w)
}
