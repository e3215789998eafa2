package storage

import (
	"context"
	"fmt"

	"revenue/internal/core"
)

type (
	// MonthCategoryRow is one (month, category) group of a year.
	MonthCategoryRow struct {
		Month    int
		Category core.Category
		Amount   core.Money
		Count    int64
	}

	// AmountStats holds ungrouped aggregates over a period.
	AmountStats struct {
		Sum   core.Money
		Count int64
		Min   core.Money
		Max   core.Money
	}

	StatusRow struct {
		Status core.PaymentStatus
		Amount core.Money
		Count  int64
	}

	CategoryRow struct {
		Category core.Category
		Amount   core.Money
		Count    int64
	}

	// ServiceRow and PartnerRow come back in ledger first-appearance order.
	ServiceRow struct {
		Name   string
		Amount core.Money
		Count  int64
	}

	PartnerRow struct {
		ID     int64
		Name   string
		Amount core.Money
		Count  int64
	}

	// YearFacts is a single-snapshot read of every grouped sum a year's
	// reports are built from.
	YearFacts struct {
		Year       int
		Months     []MonthCategoryRow
		Totals     AmountStats
		Previous   AmountStats
		ByStatus   []StatusRow
		ByCategory []CategoryRow
		ByService  []ServiceRow
		ByPartner  []PartnerRow
	}

	// PartnerDrift compares a partner's running totals with the ledger.
	PartnerDrift struct {
		PartnerID          int64
		Name               string
		StoredTransactions int64
		StoredAmount       core.Money
		LedgerTransactions int64
		LedgerAmount       core.Money
	}
)

// Drifted reports whether the running totals disagree with the ledger.
func (d PartnerDrift) Drifted() bool {
	return d.StoredTransactions != d.LedgerTransactions || d.StoredAmount != d.LedgerAmount
}

// YearFacts reads every grouped sum of year (and the totals of the year
// before) inside one transaction so the derived reports agree.
func (r *SQLiteRepository) YearFacts(ctx context.Context, year int) (YearFacts, error) {
	facts := YearFacts{Year: year}
	err := r.inTx(ctx, func(q *Queries) error {
		var err error
		if facts.Months, err = q.monthCategoryRows(ctx, year); err != nil {
			return fmt.Errorf("monthly groups: %w", err)
		}
		if facts.Totals, err = q.amountStats(ctx, year); err != nil {
			return fmt.Errorf("year totals: %w", err)
		}
		if facts.Previous, err = q.amountStats(ctx, year-1); err != nil {
			return fmt.Errorf("previous year totals: %w", err)
		}
		if facts.ByStatus, err = q.statusRows(ctx, year); err != nil {
			return fmt.Errorf("status groups: %w", err)
		}
		if facts.ByCategory, err = q.categoryRows(ctx, year); err != nil {
			return fmt.Errorf("category groups: %w", err)
		}
		if facts.ByService, err = q.serviceRows(ctx, year); err != nil {
			return fmt.Errorf("service groups: %w", err)
		}
		if facts.ByPartner, err = q.partnerRows(ctx, year); err != nil {
			return fmt.Errorf("partner groups: %w", err)
		}
		return nil
	})
	if err != nil {
		return YearFacts{}, fmt.Errorf("read year %d facts: %w", year, err)
	}
	return facts, nil
}

func yearWhere(year int) *where {
	w := &where{}
	w.period(year, 0)
	return w
}

func (q *Queries) monthCategoryRows(ctx context.Context, year int) ([]MonthCategoryRow, error) {
	w := yearWhere(year)
	rows, err := q.db.QueryContext(ctx, `
SELECT CAST(strftime('%m', r.date) AS INTEGER) AS month, r.category,
       COALESCE(SUM(r.amount_cents), 0), COUNT(*)
FROM revenues r`+w.String()+`
GROUP BY month, r.category
ORDER BY month, r.category`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MonthCategoryRow
	for rows.Next() {
		var (
			row      MonthCategoryRow
			category string
		)
		if err := rows.Scan(&row.Month, &category, &row.Amount.Cents, &row.Count); err != nil {
			return nil, err
		}
		row.Category = core.Category(category)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *Queries) amountStats(ctx context.Context, year int) (AmountStats, error) {
	w := yearWhere(year)
	var s AmountStats
	err := q.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(r.amount_cents), 0), COUNT(*),
       COALESCE(MIN(r.amount_cents), 0), COALESCE(MAX(r.amount_cents), 0)
FROM revenues r`+w.String(), w.args...).Scan(&s.Sum.Cents, &s.Count, &s.Min.Cents, &s.Max.Cents)
	return s, err
}

func (q *Queries) statusRows(ctx context.Context, year int) ([]StatusRow, error) {
	w := yearWhere(year)
	rows, err := q.db.QueryContext(ctx, `
SELECT r.payment_status, COALESCE(SUM(r.amount_cents), 0), COUNT(*)
FROM revenues r`+w.String()+`
GROUP BY r.payment_status`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusRow
	for rows.Next() {
		var (
			row    StatusRow
			status string
		)
		if err := rows.Scan(&status, &row.Amount.Cents, &row.Count); err != nil {
			return nil, err
		}
		row.Status = core.PaymentStatus(status)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *Queries) categoryRows(ctx context.Context, year int) ([]CategoryRow, error) {
	w := yearWhere(year)
	rows, err := q.db.QueryContext(ctx, `
SELECT r.category, COALESCE(SUM(r.amount_cents), 0), COUNT(*)
FROM revenues r`+w.String()+`
GROUP BY r.category`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryRow
	for rows.Next() {
		var (
			row      CategoryRow
			category string
		)
		if err := rows.Scan(&category, &row.Amount.Cents, &row.Count); err != nil {
			return nil, err
		}
		row.Category = core.Category(category)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *Queries) serviceRows(ctx context.Context, year int) ([]ServiceRow, error) {
	w := yearWhere(year)
	rows, err := q.db.QueryContext(ctx, `
SELECT r.service_type, COALESCE(SUM(r.amount_cents), 0), COUNT(*)
FROM revenues r`+w.String()+`
GROUP BY r.service_type
ORDER BY MIN(r.id)`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ServiceRow
	for rows.Next() {
		var row ServiceRow
		if err := rows.Scan(&row.Name, &row.Amount.Cents, &row.Count); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *Queries) partnerRows(ctx context.Context, year int) ([]PartnerRow, error) {
	w := yearWhere(year)
	rows, err := q.db.QueryContext(ctx, `
SELECT r.partner_id, COALESCE(p.name, ''), COALESCE(SUM(r.amount_cents), 0), COUNT(*)
FROM revenues r
LEFT JOIN partners p ON p.id = r.partner_id`+w.String()+`
GROUP BY r.partner_id, p.name
ORDER BY MIN(r.id)`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PartnerRow
	for rows.Next() {
		var row PartnerRow
		if err := rows.Scan(&row.ID, &row.Name, &row.Amount.Cents, &row.Count); err != nil {
			return nil, err
		}
		if row.Name == "" {
			row.Name = core.UnknownPartner
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var detailSortColumns = map[string]string{
	"date":           "r.date",
	"amount":         "r.amount_cents",
	"service_type":   "r.service_type",
	"category":       "r.category",
	"payment_status": "r.payment_status",
	"partner":        "p.name",
	"created_at":     "r.created_at",
}

func detailWhere(dq core.DetailQuery) *where {
	w := &where{}
	w.period(dq.Year, dq.Month)
	if dq.Partner != "" {
		w.add(`p.name LIKE ? ESCAPE '\'`, "%"+escapeLike(dq.Partner)+"%")
	}
	if dq.ServiceType != "" {
		w.add("r.service_type = ?", dq.ServiceType)
	}
	if dq.Category != "" {
		w.add("r.category = ?", string(dq.Category))
	}
	return w
}

// MonthlyDetail returns the transactions, summary and breakdowns of one
// month under the query's filters. The query must already be normalized.
func (r *SQLiteRepository) MonthlyDetail(ctx context.Context, dq core.DetailQuery) (core.MonthlyDetail, error) {
	detail := core.MonthlyDetail{
		Period: core.Period{Year: dq.Year, Month: dq.Month, MonthName: core.MonthNameID(dq.Month)},
	}
	w := detailWhere(dq)
	from := `
FROM revenues r
LEFT JOIN partners p ON p.id = r.partner_id` + w.String()

	sortCol, ok := detailSortColumns[dq.Sort]
	if !ok {
		sortCol = "r.date"
	}
	order := "DESC"
	if dq.Order == "ASC" {
		order = "ASC"
	}

	err := r.inTx(ctx, func(q *Queries) error {
		rows, err := q.db.QueryContext(ctx,
			revenueSelect+w.String()+` ORDER BY `+sortCol+` `+order+`, r.created_at DESC, r.id DESC`, w.args...)
		if err != nil {
			return fmt.Errorf("transactions: %w", err)
		}
		if detail.Transactions, err = scanRevenues(rows); err != nil {
			return fmt.Errorf("scan transactions: %w", err)
		}
		for i := range detail.Transactions {
			if detail.Transactions[i].Partner == nil {
				detail.Transactions[i].Partner = &core.PartnerRef{
					ID:   detail.Transactions[i].PartnerID,
					Name: core.UnknownPartner,
				}
			}
		}

		s := &detail.Summary
		err = q.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(r.amount_cents), 0), COUNT(*),
       COALESCE(SUM(CASE WHEN r.category = 'aeronautika' THEN r.amount_cents ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN r.category = 'aeronautika' THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN r.category = 'non-aeronautika' THEN r.amount_cents ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN r.category = 'non-aeronautika' THEN 1 ELSE 0 END), 0)`+from, w.args...).
			Scan(&s.TotalAmount.Cents, &s.TotalTransactions,
				&s.AeronautikaAmount.Cents, &s.AeronautikaCount,
				&s.NonAeronautikaAmount.Cents, &s.NonAeronautikaCount)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}

		if detail.Breakdown.ByPartner, err = q.partnerGroups(ctx, from, w.args); err != nil {
			return fmt.Errorf("partner breakdown: %w", err)
		}
		if detail.Breakdown.ByService, err = q.serviceGroups(ctx, from, w.args); err != nil {
			return fmt.Errorf("service breakdown: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.MonthlyDetail{}, fmt.Errorf("read monthly detail %d-%02d: %w", dq.Year, dq.Month, err)
	}
	return detail, nil
}

func (q *Queries) partnerGroups(ctx context.Context, from string, args []any) ([]core.PartnerGroup, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT COALESCE(p.name, '`+core.UnknownPartnerGroup+`'), SUM(r.amount_cents) AS total, COUNT(*)`+from+`
GROUP BY r.partner_id, p.name
ORDER BY total DESC, MIN(r.id)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.PartnerGroup{}
	for rows.Next() {
		var g core.PartnerGroup
		if err := rows.Scan(&g.Partner, &g.Amount.Cents, &g.Count); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (q *Queries) serviceGroups(ctx context.Context, from string, args []any) ([]core.ServiceGroup, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT r.service_type, r.category, SUM(r.amount_cents) AS total, COUNT(*)`+from+`
GROUP BY r.service_type, r.category
ORDER BY total DESC, MIN(r.id)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.ServiceGroup{}
	for rows.Next() {
		var (
			g        core.ServiceGroup
			category string
		)
		if err := rows.Scan(&g.ServiceType, &category, &g.Amount.Cents, &g.Count); err != nil {
			return nil, err
		}
		g.Category = core.Category(category)
		out = append(out, g)
	}
	return out, rows.Err()
}

// PartnerDrift compares stored running totals with ledger sums for the given
// partners, or for every partner when ids is empty.
func (r *SQLiteRepository) PartnerDrift(ctx context.Context, ids []int64) ([]PartnerDrift, error) {
	query := `
SELECT p.id, p.name, p.total_transactions, p.total_amount_cents,
       COUNT(r.id), COALESCE(SUM(r.amount_cents), 0)
FROM partners p
LEFT JOIN revenues r ON r.partner_id = p.id`
	var args []any
	if ids = uniqueIDs(ids); len(ids) > 0 {
		query += ` WHERE p.id IN (` + inPlaceholders(len(ids)) + `)`
		args = int64Args(ids)
	}
	query += ` GROUP BY p.id ORDER BY p.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query partner drift: %w", err)
	}
	defer rows.Close()

	var out []PartnerDrift
	for rows.Next() {
		var d PartnerDrift
		if err := rows.Scan(&d.PartnerID, &d.Name, &d.StoredTransactions, &d.StoredAmount.Cents,
			&d.LedgerTransactions, &d.LedgerAmount.Cents); err != nil {
			return nil, fmt.Errorf("scan partner drift: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
