package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"revenue/internal/core"
	"revenue/internal/storage"
)

func money(cents int64) core.Money { return core.Money{Cents: cents} }

func sampleFacts() storage.YearFacts {
	return storage.YearFacts{
		Year: 2024,
		Months: []storage.MonthCategoryRow{
			{Month: 1, Category: core.CategoryAeronautika, Amount: money(100000), Count: 2},
			{Month: 1, Category: core.CategoryNonAeronautika, Amount: money(5050), Count: 1},
			{Month: 7, Category: core.CategoryAeronautika, Amount: money(20000), Count: 1},
		},
		Totals:   storage.AmountStats{Sum: money(125050), Count: 4, Min: money(5050), Max: money(60000)},
		Previous: storage.AmountStats{Sum: money(100000), Count: 5},
		ByStatus: []storage.StatusRow{
			{Status: core.PaymentOverdue, Amount: money(20000), Count: 1},
			{Status: core.PaymentPaid, Amount: money(105050), Count: 3},
		},
		ByCategory: []storage.CategoryRow{
			{Category: core.CategoryNonAeronautika, Amount: money(5050), Count: 1},
			{Category: core.CategoryAeronautika, Amount: money(120000), Count: 3},
		},
		ByService: []storage.ServiceRow{
			{Name: "parking", Amount: money(20000), Count: 1},
			{Name: "landing_fee", Amount: money(100000), Count: 2},
			{Name: "rent", Amount: money(5050), Count: 1},
		},
		ByPartner: []storage.PartnerRow{
			{ID: 1, Name: "Garuda Indonesia", Amount: money(60000), Count: 2},
			{ID: 2, Name: "Lion Air", Amount: money(60000), Count: 1},
			{ID: 3, Name: "Citilink", Amount: money(5050), Count: 1},
		},
	}
}

func TestBuildMonthlySeries(t *testing.T) {
	series := BuildMonthlySeries(sampleFacts())
	if len(series) != 12 {
		t.Fatalf("len = %d, want 12", len(series))
	}

	jan := series[0]
	if jan.Month != "Jan" || jan.MonthNumber != 1 {
		t.Errorf("label = %s/%d", jan.Month, jan.MonthNumber)
	}
	if jan.Aeronautika.Cents != 100000 || jan.NonAeronautika.Cents != 5050 || jan.Total.Cents != 105050 || jan.Transactions != 3 {
		t.Errorf("january = %+v", jan)
	}
	if series[1].Total.Cents != 0 || series[11].Month != "Dec" {
		t.Errorf("empty months should be zero: %+v", series[1])
	}

	var sum int64
	for _, e := range series {
		sum += e.Total.Cents
	}
	if sum != sampleFacts().Totals.Sum.Cents {
		t.Errorf("monthly sum %d != yearly total %d", sum, sampleFacts().Totals.Sum.Cents)
	}
}

func TestBuildMonthlySeriesEmptyYear(t *testing.T) {
	series := BuildMonthlySeries(storage.YearFacts{Year: 2030})
	if len(series) != 12 {
		t.Fatalf("len = %d", len(series))
	}
	for _, e := range series {
		if !e.Total.IsZero() || e.Transactions != 0 {
			t.Fatalf("expected zeros, got %+v", e)
		}
	}
}

func TestBuildYearlySummary(t *testing.T) {
	s := BuildYearlySummary(sampleFacts())

	if s.Summary.TotalRevenue.Cents != 125050 || s.Summary.TotalTransactions != 4 {
		t.Errorf("totals = %+v", s.Summary)
	}
	if s.Summary.AeronautikaRevenue.Cents != 120000 || s.Summary.NonAeronautikaRevenue.Cents != 5050 {
		t.Errorf("category split = %+v", s.Summary)
	}
	if s.Summary.PaidAmount.Cents != 105050 || s.Summary.PendingAmount.Cents != 0 || s.Summary.OverdueAmount.Cents != 20000 {
		t.Errorf("status split = %+v", s.Summary)
	}

	if s.TopServices[0].Name != "landing_fee" || s.TopServices[2].Name != "rent" {
		t.Errorf("services not sorted desc: %+v", s.TopServices)
	}
	// Equal sums keep ledger order.
	if s.TopPartners[0].Name != "Garuda Indonesia" || s.TopPartners[1].Name != "Lion Air" {
		t.Errorf("partner tie not stable: %+v", s.TopPartners)
	}
}

func TestBuildYearlySummaryCapsAtTen(t *testing.T) {
	f := storage.YearFacts{}
	for i := 0; i < 15; i++ {
		f.ByService = append(f.ByService, storage.ServiceRow{Name: string(rune('a' + i)), Amount: money(int64(i))})
	}
	s := BuildYearlySummary(f)
	if len(s.TopServices) != 10 {
		t.Fatalf("len = %d, want 10", len(s.TopServices))
	}
	if s.TopServices[0].Name != "o" {
		t.Errorf("largest first, got %s", s.TopServices[0].Name)
	}
	if s.TopPartners == nil || len(s.TopPartners) != 0 {
		t.Errorf("empty partners should encode as [], got %#v", s.TopPartners)
	}
}

func TestBuildStatsOverview(t *testing.T) {
	st := BuildStatsOverview(sampleFacts())
	o := st.Overview

	if o.AverageAmount.String() != "312.63" {
		t.Errorf("average = %s, want 312.63", o.AverageAmount)
	}
	if o.RevenueGrowth.String() != "25.05" {
		t.Errorf("revenue growth = %s, want 25.05", o.RevenueGrowth)
	}
	if o.TransactionGrowth.String() != "-20" {
		t.Errorf("transaction growth = %s, want -20", o.TransactionGrowth)
	}
	if o.PreviousYear.TotalTransactions != 5 {
		t.Errorf("previous = %+v", o.PreviousYear)
	}
	if len(st.MonthlyGrowth) != 12 || st.MonthlyGrowth[6].Month != 7 || st.MonthlyGrowth[6].Total.Cents != 20000 {
		t.Errorf("monthly growth = %+v", st.MonthlyGrowth)
	}
	if len(st.CategoryBreakdown) != 2 || st.CategoryBreakdown[0].Category != core.CategoryAeronautika {
		t.Errorf("category breakdown = %+v", st.CategoryBreakdown)
	}
	if st.CategoryBreakdown[0].Average.String() != "400" {
		t.Errorf("category average = %s", st.CategoryBreakdown[0].Average)
	}
	if len(st.PaymentStatusBreakdown) != 2 || st.PaymentStatusBreakdown[0].Status != core.PaymentPaid {
		t.Errorf("status breakdown = %+v", st.PaymentStatusBreakdown)
	}
}

func TestBuildStatsOverviewNoPreviousYear(t *testing.T) {
	f := sampleFacts()
	f.Previous = storage.AmountStats{}
	o := BuildStatsOverview(f).Overview
	if !o.RevenueGrowth.IsZero() || !o.TransactionGrowth.IsZero() {
		t.Errorf("growth with empty previous year = %s / %s", o.RevenueGrowth, o.TransactionGrowth)
	}
}

func TestReportService_CachesPerYear(t *testing.T) {
	repo := newFakeRepo()
	repo.facts[2024] = sampleFacts()
	svc := NewReportService(repo, NewReportCache(8, time.Minute))
	ctx := context.Background()

	if _, err := svc.Monthly(ctx, 2024); err != nil {
		t.Fatalf("Monthly: %v", err)
	}
	if _, err := svc.Summary(ctx, 2024); err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if repo.factReads != 1 {
		t.Fatalf("facts read %d times, want 1", repo.factReads)
	}

	svc.Invalidate(2023)
	if _, err := svc.Stats(ctx, 2024); err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if repo.factReads != 2 {
		t.Errorf("a change in 2023 must refresh 2024 growth; reads = %d", repo.factReads)
	}

	svc.Invalidate(2024)
	_, _ = svc.Monthly(ctx, 2024)
	if repo.factReads != 3 {
		t.Errorf("reads after invalidation = %d", repo.factReads)
	}
	_, _ = svc.Monthly(ctx, 2024)
	if repo.factReads != 3 {
		t.Errorf("refilled cache not used; reads = %d", repo.factReads)
	}
}

// gatedFacts snapshots the total when a read starts and holds the first
// read until release is closed.
type gatedFacts struct {
	mu      sync.Mutex
	cents   int64
	reads   int
	started chan struct{}
	release chan struct{}
}

func (g *gatedFacts) setTotal(cents int64) {
	g.mu.Lock()
	g.cents = cents
	g.mu.Unlock()
}

func (g *gatedFacts) YearFacts(_ context.Context, year int) (storage.YearFacts, error) {
	g.mu.Lock()
	snapshot := g.cents
	g.reads++
	first := g.reads == 1
	g.mu.Unlock()
	if first {
		close(g.started)
		<-g.release
	}
	return storage.YearFacts{
		Year:   year,
		Totals: storage.AmountStats{Sum: core.Money{Cents: snapshot}, Count: 1},
	}, nil
}

func (g *gatedFacts) MonthlyDetail(context.Context, core.DetailQuery) (core.MonthlyDetail, error) {
	return core.MonthlyDetail{}, nil
}

func TestReportService_InvalidateDuringRead(t *testing.T) {
	tests := []struct {
		name  string
		cache bool
	}{
		{"cached", true},
		{"uncached", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &gatedFacts{cents: 100, started: make(chan struct{}), release: make(chan struct{})}
			svc := NewReportService(repo, nil)
			if tt.cache {
				svc = NewReportService(repo, NewReportCache(8, time.Minute))
			}
			ctx := context.Background()

			stale := make(chan core.Money, 1)
			go func() {
				sum, err := svc.Summary(ctx, 2024)
				if err != nil {
					t.Error(err)
				}
				stale <- sum.Summary.TotalRevenue
			}()
			<-repo.started

			// a write lands while the first read is still running
			repo.setTotal(500)
			svc.Invalidate(2024)

			fresh, err := svc.Summary(ctx, 2024)
			if err != nil {
				t.Fatal(err)
			}
			if fresh.Summary.TotalRevenue.Cents != 500 {
				t.Errorf("read after invalidation joined the earlier read: %s", fresh.Summary.TotalRevenue)
			}

			close(repo.release)
			if got := <-stale; got.Cents != 100 {
				t.Errorf("first read = %s", got)
			}

			after, err := svc.Summary(ctx, 2024)
			if err != nil {
				t.Fatal(err)
			}
			if after.Summary.TotalRevenue.Cents != 500 {
				t.Errorf("stale facts cached after invalidation: %s", after.Summary.TotalRevenue)
			}
		})
	}
}

func TestReportService_WithoutCache(t *testing.T) {
	repo := newFakeRepo()
	svc := NewReportService(repo, nil)
	ctx := context.Background()

	_, _ = svc.Monthly(ctx, 2024)
	_, _ = svc.Monthly(ctx, 2024)
	svc.Invalidate(2024)
	if repo.factReads != 2 {
		t.Errorf("reads = %d, want 2", repo.factReads)
	}

	repo.failWith = errors.New("disk I/O error")
	if _, err := svc.Summary(ctx, 2024); err == nil {
		t.Error("expected storage error to surface")
	}
}

func TestReportService_MonthlyDetailValidates(t *testing.T) {
	svc := NewReportService(newFakeRepo(), nil)
	ctx := context.Background()

	_, err := svc.MonthlyDetail(ctx, core.DetailQuery{Year: 2024})
	var ve *core.ValidationError
	if !errors.As(err, &ve) || ve.Message != core.MsgYearMonthRequired {
		t.Fatalf("expected year/month error, got %v", err)
	}

	_, err = svc.MonthlyDetail(ctx, core.DetailQuery{Year: 2024, Month: 2, Sort: "drop table"})
	if !errors.As(err, &ve) {
		t.Fatalf("expected sort validation error, got %v", err)
	}

	d, err := svc.MonthlyDetail(ctx, core.DetailQuery{Year: 2024, Month: 2})
	if err != nil || d.Period.MonthName != "Februari" {
		t.Fatalf("detail = %+v, err = %v", d.Period, err)
	}
}
