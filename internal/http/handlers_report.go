package http

import (
	"net/http"
)

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	series, err := s.reports.Monthly(r.Context(), year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(series).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.reports.Summary(r.Context(), year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(summary).Write(w)
}

func (s *Server) handleStatsOverview(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := s.reports.Stats(r.Context(), year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(stats).Write(w)
}

func (s *Server) handleMonthlyDetail(w http.ResponseWriter, r *http.Request) {
	q, err := parseDetailQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := s.reports.MonthlyDetail(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(detail).Write(w)
}
