package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"revenue/internal/core"
)

// ListRevenues fetches one page of the ledger. A zero limit uses the
// client's default.
func (c *Client) ListRevenues(ctx context.Context, f core.ListFilter) ([]core.Revenue, core.Pagination, error) {
	env, err := do[[]core.Revenue](ctx, c, http.MethodGet, "/revenue", listQuery(f, c.defaultLimit), nil)
	if err != nil {
		return nil, core.Pagination{}, err
	}
	var page core.Pagination
	if env.Pagination != nil {
		page = *env.Pagination
	}
	items := env.Data
	if items == nil {
		items = []core.Revenue{}
	}
	return items, page, nil
}

func (c *Client) GetRevenue(ctx context.Context, id int64) (core.Revenue, error) {
	env, err := do[core.Revenue](ctx, c, http.MethodGet, revenuePath(id), nil, nil)
	return env.Data, err
}

func (c *Client) CreateRevenue(ctx context.Context, in core.RevenueInput) (core.Revenue, error) {
	env, err := do[core.Revenue](ctx, c, http.MethodPost, "/revenue", nil, inputBody(in))
	return env.Data, err
}

func (c *Client) UpdateRevenue(ctx context.Context, id int64, patch core.RevenuePatch) (core.Revenue, error) {
	env, err := do[core.Revenue](ctx, c, http.MethodPut, revenuePath(id), nil, patchBody(patch))
	return env.Data, err
}

func (c *Client) DeleteRevenue(ctx context.Context, id int64) error {
	_, err := do[any](ctx, c, http.MethodDelete, revenuePath(id), nil, nil)
	return err
}

func (c *Client) BulkDeleteRevenues(ctx context.Context, ids []int64) (core.BulkDeleteResult, error) {
	body := map[string][]int64{"ids": ids}
	env, err := do[core.BulkDeleteResult](ctx, c, http.MethodPost, "/revenue/bulk-delete", nil, body)
	return env.Data, err
}

func (c *Client) Monthly(ctx context.Context, year int) ([]core.MonthlyEntry, error) {
	env, err := do[[]core.MonthlyEntry](ctx, c, http.MethodGet, "/revenue/monthly", yearQuery(year), nil)
	return env.Data, err
}

func (c *Client) Summary(ctx context.Context, year int) (core.YearlySummary, error) {
	env, err := do[core.YearlySummary](ctx, c, http.MethodGet, "/revenue/summary", yearQuery(year), nil)
	return env.Data, err
}

func (c *Client) Stats(ctx context.Context, year int) (core.StatsOverview, error) {
	env, err := do[core.StatsOverview](ctx, c, http.MethodGet, "/revenue/stats/overview", yearQuery(year), nil)
	return env.Data, err
}

func (c *Client) MonthlyDetail(ctx context.Context, dq core.DetailQuery) (core.MonthlyDetail, error) {
	q := url.Values{}
	q.Set("year", strconv.Itoa(dq.Year))
	q.Set("month", strconv.Itoa(dq.Month))
	for key, v := range map[string]string{
		"partner":      dq.Partner,
		"service_type": dq.ServiceType,
		"category":     string(dq.Category),
		"sort":         dq.Sort,
		"order":        dq.Order,
	} {
		if v != "" {
			q.Set(key, v)
		}
	}
	env, err := do[core.MonthlyDetail](ctx, c, http.MethodGet, "/revenue/monthly-detail", q, nil)
	return env.Data, err
}

func (c *Client) ListPartners(ctx context.Context) ([]core.Partner, error) {
	env, err := do[[]core.Partner](ctx, c, http.MethodGet, "/partners", nil, nil)
	return env.Data, err
}

func (c *Client) GetPartner(ctx context.Context, id int64) (core.Partner, error) {
	env, err := do[core.Partner](ctx, c, http.MethodGet, "/partners/"+strconv.FormatInt(id, 10), nil, nil)
	return env.Data, err
}

func (c *Client) CreatePartner(ctx context.Context, name string) (core.Partner, error) {
	env, err := do[core.Partner](ctx, c, http.MethodPost, "/partners", nil, map[string]string{"name": name})
	return env.Data, err
}

// inputBody is the wire form of a create request.
func inputBody(in core.RevenueInput) map[string]any {
	body := map[string]any{
		"date":           in.Date,
		"partner_id":     in.PartnerID,
		"category":       in.Category,
		"service_type":   in.ServiceType,
		"amount":         in.Amount,
		"payment_status": in.PaymentStatus,
	}
	if in.PaymentMethod != "" {
		body["payment_method"] = in.PaymentMethod
	}
	if in.InvoiceNumber != "" {
		body["invoice_number"] = in.InvoiceNumber
	}
	if in.Description != "" {
		body["description"] = in.Description
	}
	if !in.PeriodStart.IsZero() {
		body["period_start"] = in.PeriodStart
	}
	if !in.PeriodEnd.IsZero() {
		body["period_end"] = in.PeriodEnd
	}
	return body
}

// patchBody sends only the fields the patch sets.
func patchBody(p core.RevenuePatch) map[string]any {
	body := make(map[string]any)
	if p.Date != nil {
		body["date"] = *p.Date
	}
	if p.PartnerID != nil {
		body["partner_id"] = *p.PartnerID
	}
	if p.Category != nil {
		body["category"] = *p.Category
	}
	if p.ServiceType != nil {
		body["service_type"] = *p.ServiceType
	}
	if p.Amount != nil {
		body["amount"] = *p.Amount
	}
	if p.PaymentStatus != nil {
		body["payment_status"] = *p.PaymentStatus
	}
	if p.PaymentMethod != nil {
		body["payment_method"] = *p.PaymentMethod
	}
	if p.InvoiceNumber != nil {
		body["invoice_number"] = *p.InvoiceNumber
	}
	if p.Description != nil {
		body["description"] = *p.Description
	}
	if p.PeriodStart != nil {
		body["period_start"] = *p.PeriodStart
	}
	if p.PeriodEnd != nil {
		body["period_end"] = *p.PeriodEnd
	}
	return body
}
