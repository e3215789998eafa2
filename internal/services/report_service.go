package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"revenue/internal/cache"
	"revenue/internal/core"
	"revenue/internal/storage"
)

const topN = 10

// FactsReader is the read side ReportService needs.
type FactsReader interface {
	YearFacts(ctx context.Context, year int) (storage.YearFacts, error)
	MonthlyDetail(ctx context.Context, q core.DetailQuery) (core.MonthlyDetail, error)
}

// ReportService shapes the per-year aggregates behind a read-through cache.
// Monthly detail is always read fresh.
type ReportService struct {
	repo  FactsReader
	cache cache.Cache[int, storage.YearFacts]
	group singleflight.Group

	// mu guards generations and orders cache fills against Invalidate.
	mu          sync.Mutex
	generations map[int]uint64
}

// NewReportService wires a report service. A nil cache disables caching.
func NewReportService(repo FactsReader, c cache.Cache[int, storage.YearFacts]) *ReportService {
	return &ReportService{repo: repo, cache: c, generations: make(map[int]uint64)}
}

// NewReportCache builds the per-year LRU used by ReportService.
func NewReportCache(size int, ttl time.Duration) *cache.LRUCache[int, storage.YearFacts] {
	return cache.NewLRUCache[int, storage.YearFacts](size, ttl)
}

// Invalidate drops the cached facts of each year and of the following year,
// whose growth figures depend on it. Reads already in flight for those years
// neither populate the cache nor serve callers that arrive afterwards.
func (s *ReportService) Invalidate(years ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, y := range years {
		for _, year := range []int{y, y + 1} {
			s.generations[year]++
			if s.cache != nil {
				s.cache.Delete(year)
			}
		}
	}
}

func (s *ReportService) generation(year int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[year]
}

func (s *ReportService) facts(ctx context.Context, year int) (storage.YearFacts, error) {
	if s.cache != nil {
		if f, ok := s.cache.Get(year); ok {
			return f, nil
		}
	}

	gen := s.generation(year)
	key := strconv.Itoa(year) + "/" + strconv.FormatUint(gen, 10)
	v, err, shared := s.group.Do(key, func() (any, error) {
		f, err := s.repo.YearFacts(ctx, year)
		if err != nil {
			return storage.YearFacts{}, err
		}
		if s.cache != nil {
			s.mu.Lock()
			if s.generations[year] == gen {
				s.cache.Set(year, f)
			}
			s.mu.Unlock()
		}
		return f, nil
	})
	if err != nil {
		return storage.YearFacts{}, err
	}
	if shared {
		slog.DebugContext(ctx, "Year facts read shared between callers", "year", year)
	}
	return v.(storage.YearFacts), nil
}

// Monthly returns the 12-entry series of year.
func (s *ReportService) Monthly(ctx context.Context, year int) ([]core.MonthlyEntry, error) {
	f, err := s.facts(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("monthly summary %d: %w", year, err)
	}
	return BuildMonthlySeries(f), nil
}

func (s *ReportService) Summary(ctx context.Context, year int) (core.YearlySummary, error) {
	f, err := s.facts(ctx, year)
	if err != nil {
		return core.YearlySummary{}, fmt.Errorf("yearly summary %d: %w", year, err)
	}
	return BuildYearlySummary(f), nil
}

func (s *ReportService) Stats(ctx context.Context, year int) (core.StatsOverview, error) {
	f, err := s.facts(ctx, year)
	if err != nil {
		return core.StatsOverview{}, fmt.Errorf("stats overview %d: %w", year, err)
	}
	return BuildStatsOverview(f), nil
}

// MonthlyDetail validates q, applies its defaults and reads the month.
func (s *ReportService) MonthlyDetail(ctx context.Context, q core.DetailQuery) (core.MonthlyDetail, error) {
	q, err := q.Normalize()
	if err != nil {
		return core.MonthlyDetail{}, err
	}
	return s.repo.MonthlyDetail(ctx, q)
}

// BuildMonthlySeries spreads the month/category groups over all 12 months.
func BuildMonthlySeries(f storage.YearFacts) []core.MonthlyEntry {
	series := make([]core.MonthlyEntry, 12)
	for i := range series {
		series[i] = core.MonthlyEntry{Month: core.MonthAbbrev(i + 1), MonthNumber: i + 1}
	}
	for _, row := range f.Months {
		if row.Month < 1 || row.Month > 12 {
			continue
		}
		e := &series[row.Month-1]
		switch row.Category {
		case core.CategoryAeronautika:
			e.Aeronautika = e.Aeronautika.Add(row.Amount)
		case core.CategoryNonAeronautika:
			e.NonAeronautika = e.NonAeronautika.Add(row.Amount)
		}
		e.Total = e.Total.Add(row.Amount)
		e.Transactions += row.Count
	}
	return series
}

func BuildYearlySummary(f storage.YearFacts) core.YearlySummary {
	out := core.YearlySummary{
		Summary: core.SummaryTotals{
			TotalRevenue:      f.Totals.Sum,
			TotalTransactions: f.Totals.Count,
		},
	}
	for _, c := range f.ByCategory {
		switch c.Category {
		case core.CategoryAeronautika:
			out.Summary.AeronautikaRevenue = c.Amount
		case core.CategoryNonAeronautika:
			out.Summary.NonAeronautikaRevenue = c.Amount
		}
	}
	for _, st := range f.ByStatus {
		switch st.Status {
		case core.PaymentPaid:
			out.Summary.PaidAmount = st.Amount
		case core.PaymentPending:
			out.Summary.PendingAmount = st.Amount
		case core.PaymentOverdue:
			out.Summary.OverdueAmount = st.Amount
		}
	}

	services := make([]core.ServiceTotal, 0, len(f.ByService))
	for _, r := range f.ByService {
		services = append(services, core.ServiceTotal{Name: r.Name, Amount: r.Amount, Count: r.Count})
	}
	sort.SliceStable(services, func(i, j int) bool { return services[i].Amount.Cents > services[j].Amount.Cents })
	out.TopServices = services[:min(topN, len(services))]

	partners := make([]core.PartnerTotal, 0, len(f.ByPartner))
	for _, r := range f.ByPartner {
		partners = append(partners, core.PartnerTotal{ID: r.ID, Name: r.Name, Amount: r.Amount, Count: r.Count})
	}
	sort.SliceStable(partners, func(i, j int) bool { return partners[i].Amount.Cents > partners[j].Amount.Cents })
	out.TopPartners = partners[:min(topN, len(partners))]

	return out
}

func BuildStatsOverview(f storage.YearFacts) core.StatsOverview {
	out := core.StatsOverview{
		Overview: core.OverviewTotals{
			TotalRevenue:      f.Totals.Sum,
			TotalTransactions: f.Totals.Count,
			AverageAmount:     core.Average(f.Totals.Sum, f.Totals.Count),
			MaxAmount:         f.Totals.Max,
			MinAmount:         f.Totals.Min,
			RevenueGrowth:     core.GrowthRate(f.Totals.Sum.Decimal(), f.Previous.Sum.Decimal()),
			TransactionGrowth: core.GrowthRate(decimal.NewFromInt(f.Totals.Count), decimal.NewFromInt(f.Previous.Count)),
			PreviousYear: core.PeriodTotals{
				TotalRevenue:      f.Previous.Sum,
				TotalTransactions: f.Previous.Count,
			},
		},
		MonthlyGrowth:          make([]core.MonthTotal, 12),
		CategoryBreakdown:      make([]core.CategoryStat, 0, len(f.ByCategory)),
		PaymentStatusBreakdown: make([]core.StatusStat, 0, len(f.ByStatus)),
	}

	for i := range out.MonthlyGrowth {
		out.MonthlyGrowth[i].Month = i + 1
	}
	for _, row := range f.Months {
		if row.Month >= 1 && row.Month <= 12 {
			m := &out.MonthlyGrowth[row.Month-1]
			m.Total = m.Total.Add(row.Amount)
		}
	}

	for _, cat := range core.Categories() {
		for _, c := range f.ByCategory {
			if c.Category == cat {
				out.CategoryBreakdown = append(out.CategoryBreakdown, core.CategoryStat{
					Category: c.Category,
					Total:    c.Amount,
					Count:    c.Count,
					Average:  core.Average(c.Amount, c.Count),
				})
			}
		}
	}
	for _, status := range core.PaymentStatuses() {
		for _, st := range f.ByStatus {
			if st.Status == status {
				out.PaymentStatusBreakdown = append(out.PaymentStatusBreakdown, core.StatusStat{
					Status: st.Status,
					Total:  st.Amount,
					Count:  st.Count,
				})
			}
		}
	}
	return out
}
