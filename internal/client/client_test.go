package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"revenue/internal/core"
	apihttp "revenue/internal/http"
	"revenue/internal/log"
	"revenue/internal/services"
	"revenue/internal/storage"
)

// newAPI runs the real API over a temp SQLite file.
func newAPI(t *testing.T) *Client {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "revenue.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	reports := services.NewReportService(repo, services.NewReportCache(8, time.Minute))
	ledger := services.NewRevenueService(repo, nil, reports, 0)
	srv := apihttp.NewServer(apihttp.Options{Logger: log.Discard()}, ledger, reports)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	return New(ts.URL, WithLogger(log.Discard()))
}

func TestClient_RoundTrip(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()

	p, err := c.CreatePartner(ctx, "Garuda")
	if err != nil {
		t.Fatalf("CreatePartner: %v", err)
	}

	in := core.RevenueInput{
		Date:          core.NewDate(2024, 4, 2),
		PartnerID:     p.ID,
		Category:      core.CategoryNonAeronautika,
		ServiceType:   "parking",
		Amount:        core.Money{Cents: 12345},
		PaymentStatus: core.PaymentPending,
		InvoiceNumber: "INV-001",
	}
	rev, err := c.CreateRevenue(ctx, in)
	if err != nil {
		t.Fatalf("CreateRevenue: %v", err)
	}
	if rev.ID == 0 || rev.Amount.Cents != 12345 || rev.PartnerName() != "Garuda" {
		t.Fatalf("created = %+v", rev)
	}

	// Duplicate invoice comes back as an APIError with the server message.
	_, err = c.CreateRevenue(ctx, in)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Message != core.MsgDuplicateInvoice {
		t.Fatalf("duplicate err = %v", err)
	}

	amount := core.Money{Cents: 20000}
	updated, err := c.UpdateRevenue(ctx, rev.ID, core.RevenuePatch{Amount: &amount})
	if err != nil {
		t.Fatalf("UpdateRevenue: %v", err)
	}
	if updated.Amount != amount || updated.ServiceType != "parking" {
		t.Errorf("updated = %+v", updated)
	}

	items, page, err := c.ListRevenues(ctx, core.ListFilter{Year: 2024})
	if err != nil {
		t.Fatalf("ListRevenues: %v", err)
	}
	if len(items) != 1 || page.Limit != DefaultListLimit || page.Total != 1 {
		t.Errorf("items=%d page=%+v", len(items), page)
	}

	monthly, err := c.Monthly(ctx, 2024)
	if err != nil {
		t.Fatalf("Monthly: %v", err)
	}
	if len(monthly) != 12 || monthly[3].Total != amount {
		t.Errorf("monthly[3] = %+v", monthly[3])
	}

	summary, err := c.Summary(ctx, 2024)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Summary.TotalRevenue != amount || summary.Summary.PendingAmount != amount {
		t.Errorf("summary = %+v", summary.Summary)
	}

	stats, err := c.Stats(ctx, 2024)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Overview.TotalTransactions != 1 {
		t.Errorf("stats = %+v", stats.Overview)
	}

	detail, err := c.MonthlyDetail(ctx, core.DetailQuery{Year: 2024, Month: 4, Sort: "amount", Order: "ASC"})
	if err != nil {
		t.Fatalf("MonthlyDetail: %v", err)
	}
	if detail.Period.MonthName != "April" || len(detail.Transactions) != 1 {
		t.Errorf("detail = %+v", detail)
	}

	if err := c.DeleteRevenue(ctx, rev.ID); err != nil {
		t.Fatalf("DeleteRevenue: %v", err)
	}
	if _, err := c.GetRevenue(ctx, rev.ID); !IsNotFound(err) {
		t.Errorf("GetRevenue after delete: %v", err)
	}

	partners, err := c.ListPartners(ctx)
	if err != nil || len(partners) != 1 {
		t.Fatalf("ListPartners = %v, %v", partners, err)
	}
	if _, err := c.GetPartner(ctx, p.ID); err != nil {
		t.Errorf("GetPartner: %v", err)
	}
}

func TestClient_BulkDelete(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()
	p, err := c.CreatePartner(ctx, "Lion")
	if err != nil {
		t.Fatalf("CreatePartner: %v", err)
	}
	rev, err := c.CreateRevenue(ctx, core.RevenueInput{
		Date: core.NewDate(2024, 1, 1), PartnerID: p.ID, Category: core.CategoryAeronautika,
		ServiceType: "landing", Amount: core.Money{Cents: 100}, PaymentStatus: core.PaymentPaid,
	})
	if err != nil {
		t.Fatalf("CreateRevenue: %v", err)
	}

	res, err := c.BulkDeleteRevenues(ctx, []int64{rev.ID, 777})
	if err != nil {
		t.Fatalf("BulkDeleteRevenues: %v", err)
	}
	if res.Deleted != 1 || len(res.Missing) != 1 || res.Missing[0] != 777 {
		t.Errorf("result = %+v", res)
	}

	_, err = c.BulkDeleteRevenues(ctx, []int64{rev.ID})
	if !IsNotFound(err) {
		t.Errorf("second delete should 404, got %v", err)
	}

	_, err = c.BulkDeleteRevenues(ctx, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != core.MsgIDsRequired {
		t.Errorf("empty ids err = %v", err)
	}
}

func TestClient_Unauthorized(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := New(ts.URL, WithToken("secret"), WithLogger(log.Discard()))
	_, err := c.Summary(context.Background(), 2024)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestClient_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := New(ts.URL, WithLogger(log.Discard()))
	_, err := c.Monthly(context.Background(), 2024)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Message != http.StatusText(http.StatusBadGateway) {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestClient_UnsuccessfulEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"message":"nope"}`))
	}))
	defer ts.Close()

	c := New(ts.URL, WithLogger(log.Discard()))
	_, err := c.ListPartners(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "nope" {
		t.Fatalf("err = %v", err)
	}
}

func TestListQuery(t *testing.T) {
	q := listQuery(core.ListFilter{Year: 2024, Category: core.CategoryAeronautika}, 100)
	if q.Get("year") != "2024" || q.Get("category") != "aeronautika" || q.Get("page") != "1" || q.Get("limit") != "100" {
		t.Errorf("query = %v", q.Encode())
	}
	if q.Has("month") || q.Has("payment_status") {
		t.Errorf("unset filters must be omitted: %v", q.Encode())
	}
}
