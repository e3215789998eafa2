package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"revenue/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "revenue.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustPartner(t *testing.T, repo *SQLiteRepository, name string) core.Partner {
	t.Helper()
	p, err := repo.CreatePartner(context.Background(), name)
	if err != nil {
		t.Fatalf("CreatePartner(%s): %v", name, err)
	}
	return p
}

func mustRevenue(t *testing.T, repo *SQLiteRepository, in core.RevenueInput) core.Revenue {
	t.Helper()
	rev, err := repo.CreateRevenue(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateRevenue: %v", err)
	}
	return rev
}

func revenueInput(partnerID int64, date core.Date, cat core.Category, service string, cents int64) core.RevenueInput {
	return core.RevenueInput{
		Date:          date,
		PartnerID:     partnerID,
		Category:      cat,
		ServiceType:   service,
		Amount:        core.Money{Cents: cents},
		PaymentStatus: core.PaymentPaid,
	}
}

// setPartnerTotals seeds running totals directly, standing in for the
// historical values a partner row may carry.
func setPartnerTotals(t *testing.T, repo *SQLiteRepository, id, count, cents int64) {
	t.Helper()
	_, err := repo.db.Exec(`UPDATE partners SET total_transactions = ?, total_amount_cents = ? WHERE id = ?`, count, cents, id)
	if err != nil {
		t.Fatalf("seed partner totals: %v", err)
	}
}

func TestCreateRevenueDoesNotTouchPartnerTotals(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := mustPartner(t, repo, "Garuda")

	rev := mustRevenue(t, repo, revenueInput(p.ID, core.NewDate(2024, 3, 15), core.CategoryAeronautika, "landing_fee", 500000))
	if rev.Partner == nil || rev.Partner.Name != "Garuda" {
		t.Fatalf("partner not resolved: %+v", rev.Partner)
	}

	got, err := repo.GetPartner(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPartner: %v", err)
	}
	if got.TotalTransactions != 0 || got.TotalAmount.Cents != 0 {
		t.Fatalf("create must not increment totals, got %d / %d", got.TotalTransactions, got.TotalAmount.Cents)
	}
}

func TestCreateRevenueUnknownPartner(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.CreateRevenue(context.Background(), revenueInput(42, core.NewDate(2024, 1, 1), core.CategoryAeronautika, "x", 100))
	var verr *core.ValidationError
	if !errors.As(err, &verr) || verr.Message != core.MsgPartnerNotFound {
		t.Fatalf("expected partner-not-found validation error, got %v", err)
	}
}

func TestDuplicateInvoiceIsConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := mustPartner(t, repo, "AP II")

	in := revenueInput(p.ID, core.NewDate(2024, 1, 10), core.CategoryNonAeronautika, "rent", 1000)
	in.InvoiceNumber = "INV-001"
	first := mustRevenue(t, repo, in)

	_, err := repo.CreateRevenue(ctx, in)
	var cerr *core.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError on create, got %v", err)
	}

	other := revenueInput(p.ID, core.NewDate(2024, 1, 11), core.CategoryNonAeronautika, "rent", 2000)
	second := mustRevenue(t, repo, other)
	dup := "INV-001"
	_, err = repo.UpdateRevenue(ctx, second.ID, core.RevenuePatch{InvoiceNumber: &dup})
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError on update, got %v", err)
	}

	// Re-saving the same invoice on its own row is not a conflict.
	if _, err := repo.UpdateRevenue(ctx, first.ID, core.RevenuePatch{InvoiceNumber: &dup}); err != nil {
		t.Fatalf("self update: %v", err)
	}
}

func TestUpdateRevenue(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p1 := mustPartner(t, repo, "Lion")
	p2 := mustPartner(t, repo, "Citilink")
	rev := mustRevenue(t, repo, revenueInput(p1.ID, core.NewDate(2024, 5, 1), core.CategoryAeronautika, "parking", 1500))

	amount := core.Money{Cents: 2500}
	updated, err := repo.UpdateRevenue(ctx, rev.ID, core.RevenuePatch{Amount: &amount, PartnerID: &p2.ID})
	if err != nil {
		t.Fatalf("UpdateRevenue: %v", err)
	}
	if updated.Amount.Cents != 2500 || updated.PartnerID != p2.ID || updated.ServiceType != "parking" {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	missing := int64(999)
	_, err = repo.UpdateRevenue(ctx, rev.ID, core.RevenuePatch{PartnerID: &missing})
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unknown partner, got %v", err)
	}

	bad := core.Category("cargo")
	_, err = repo.UpdateRevenue(ctx, rev.ID, core.RevenuePatch{Category: &bad})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for bad category, got %v", err)
	}

	var nf *core.NotFoundError
	if _, err := repo.UpdateRevenue(ctx, 12345, core.RevenuePatch{Amount: &amount}); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestDeleteRevenueDecrementsPartner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := mustPartner(t, repo, "Garuda")
	rev := mustRevenue(t, repo, revenueInput(p.ID, core.NewDate(2024, 3, 15), core.CategoryAeronautika, "landing_fee", 500000))
	setPartnerTotals(t, repo, p.ID, 3, 700000)

	if _, err := repo.DeleteRevenue(ctx, rev.ID); err != nil {
		t.Fatalf("DeleteRevenue: %v", err)
	}
	got, _ := repo.GetPartner(ctx, p.ID)
	if got.TotalTransactions != 2 || got.TotalAmount.Cents != 200000 {
		t.Fatalf("totals after delete = %d / %d, want 2 / 200000", got.TotalTransactions, got.TotalAmount.Cents)
	}

	var nf *core.NotFoundError
	if _, err := repo.DeleteRevenue(ctx, rev.ID); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError on second delete, got %v", err)
	}
}

func TestDeleteRevenueFloorsAtZero(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := mustPartner(t, repo, "Garuda")
	rev := mustRevenue(t, repo, revenueInput(p.ID, core.NewDate(2024, 3, 15), core.CategoryAeronautika, "landing_fee", 500000))

	if _, err := repo.DeleteRevenue(ctx, rev.ID); err != nil {
		t.Fatalf("DeleteRevenue: %v", err)
	}
	got, _ := repo.GetPartner(ctx, p.ID)
	if got.TotalTransactions != 0 || got.TotalAmount.Cents != 0 {
		t.Fatalf("totals must floor at zero, got %d / %d", got.TotalTransactions, got.TotalAmount.Cents)
	}
}

func TestBulkDeleteGroupsByPartner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p1 := mustPartner(t, repo, "Garuda")
	p2 := mustPartner(t, repo, "Lion")
	d := core.NewDate(2024, 6, 1)
	a := mustRevenue(t, repo, revenueInput(p1.ID, d, core.CategoryAeronautika, "landing_fee", 1000))
	b := mustRevenue(t, repo, revenueInput(p1.ID, d, core.CategoryAeronautika, "parking", 2000))
	c := mustRevenue(t, repo, revenueInput(p2.ID, d, core.CategoryNonAeronautika, "rent", 4000))
	keep := mustRevenue(t, repo, revenueInput(p2.ID, d, core.CategoryNonAeronautika, "rent", 8000))
	setPartnerTotals(t, repo, p1.ID, 2, 3000)
	setPartnerTotals(t, repo, p2.ID, 1, 1000)

	res, err := repo.BulkDeleteRevenues(ctx, []int64{a.ID, b.ID, c.ID, 9999, a.ID})
	if err != nil {
		t.Fatalf("BulkDeleteRevenues: %v", err)
	}
	if res.Deleted != 3 || len(res.Missing) != 1 || res.Missing[0] != 9999 {
		t.Fatalf("unexpected result: %+v", res)
	}

	got1, _ := repo.GetPartner(ctx, p1.ID)
	if got1.TotalTransactions != 0 || got1.TotalAmount.Cents != 0 {
		t.Fatalf("partner 1 totals = %d / %d", got1.TotalTransactions, got1.TotalAmount.Cents)
	}
	got2, _ := repo.GetPartner(ctx, p2.ID)
	if got2.TotalTransactions != 0 || got2.TotalAmount.Cents != 0 {
		t.Fatalf("partner 2 totals must floor at zero, got %d / %d", got2.TotalTransactions, got2.TotalAmount.Cents)
	}

	if _, err := repo.GetRevenue(ctx, keep.ID); err != nil {
		t.Fatalf("unrelated row removed: %v", err)
	}

	var nf *core.NotFoundError
	if _, err := repo.BulkDeleteRevenues(ctx, []int64{a.ID, 9999}); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError when nothing matches, got %v", err)
	}
	var verr *core.ValidationError
	if _, err := repo.BulkDeleteRevenues(ctx, nil); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for empty ids, got %v", err)
	}
}

func TestListRevenuesFilterAndOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := mustPartner(t, repo, "Garuda")
	mustRevenue(t, repo, revenueInput(p.ID, core.NewDate(2024, 1, 31), core.CategoryAeronautika, "a", 100))
	mustRevenue(t, repo, revenueInput(p.ID, core.NewDate(2024, 2, 1), core.CategoryAeronautika, "b", 200))
	mustRevenue(t, repo, revenueInput(p.ID, core.NewDate(2024, 2, 29), core.CategoryNonAeronautika, "c", 300))
	mustRevenue(t, repo, revenueInput(p.ID, core.NewDate(2023, 2, 10), core.CategoryAeronautika, "d", 400))

	tests := []struct {
		name     string
		filter   core.ListFilter
		wantSvc  []string
		wantTotl int64
	}{
		{"year", core.ListFilter{Year: 2024, Page: 1, Limit: 10}, []string{"c", "b", "a"}, 3},
		{"year month", core.ListFilter{Year: 2024, Month: 2, Page: 1, Limit: 10}, []string{"c", "b"}, 2},
		{"month only", core.ListFilter{Month: 2, Page: 1, Limit: 10}, []string{"c", "b", "d"}, 3},
		{"category", core.ListFilter{Year: 2024, Category: core.CategoryAeronautika, Page: 1, Limit: 10}, []string{"b", "a"}, 2},
		{"second page", core.ListFilter{Page: 2, Limit: 2}, []string{"a", "d"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := repo.ListRevenues(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListRevenues: %v", err)
			}
			if total != tt.wantTotl {
				t.Fatalf("total = %d, want %d", total, tt.wantTotl)
			}
			if len(items) != len(tt.wantSvc) {
				t.Fatalf("got %d items, want %d", len(items), len(tt.wantSvc))
			}
			for i, svc := range tt.wantSvc {
				if items[i].ServiceType != svc {
					t.Fatalf("item %d = %s, want %s", i, items[i].ServiceType, svc)
				}
			}
		})
	}
}
