package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"revenue/internal/core"
)

const timestampLayout = "2006-01-02 15:04:05.000"

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the hand-written statements of the ledger. It runs against
// either the pool or a transaction.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

func nowTimestamp() string {
	return time.Now().UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// where accumulates AND-ed conditions with their positional args.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) period(year, month int) {
	if year > 0 {
		start, end := core.PeriodBounds(year, month)
		w.add("r.date >= ? AND r.date < ?", start.String(), end.String())
		return
	}
	if month >= 1 && month <= 12 {
		w.add("CAST(strftime('%m', r.date) AS INTEGER) = ?", month)
	}
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// --- partners ---

const partnerColumns = `id, name, total_transactions, total_amount_cents, created_at, updated_at`

func scanPartner(row rowScanner) (core.Partner, error) {
	var (
		p                core.Partner
		created, updated string
		totalCents       int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.TotalTransactions, &totalCents, &created, &updated); err != nil {
		return core.Partner{}, err
	}
	p.TotalAmount = core.Money{Cents: totalCents}
	p.CreatedAt = parseTimestamp(created)
	p.UpdatedAt = parseTimestamp(updated)
	return p, nil
}

func (q *Queries) CreatePartner(ctx context.Context, name string) (core.Partner, error) {
	ts := nowTimestamp()
	row := q.db.QueryRowContext(ctx,
		`INSERT INTO partners (name, created_at, updated_at) VALUES (?, ?, ?) RETURNING `+partnerColumns,
		name, ts, ts)
	return scanPartner(row)
}

func (q *Queries) GetPartner(ctx context.Context, id int64) (core.Partner, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+partnerColumns+` FROM partners WHERE id = ?`, id)
	return scanPartner(row)
}

func (q *Queries) ListPartners(ctx context.Context) ([]core.Partner, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+partnerColumns+` FROM partners ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var partners []core.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

func (q *Queries) PartnerExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM partners WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}

// DecrementPartnerTotals subtracts count and cents from a partner's running
// totals, flooring both at zero.
func (q *Queries) DecrementPartnerTotals(ctx context.Context, id, count, cents int64) error {
	_, err := q.db.ExecContext(ctx, `
UPDATE partners
SET total_transactions = MAX(0, total_transactions - ?),
    total_amount_cents = MAX(0, total_amount_cents - ?),
    updated_at = ?
WHERE id = ?`, count, cents, nowTimestamp(), id)
	return err
}

// --- revenues ---

const revenueSelect = `
SELECT r.id, r.date, r.partner_id, p.id, p.name, r.category, r.service_type, r.amount_cents,
       r.payment_status, COALESCE(r.payment_method, ''), COALESCE(r.invoice_number, ''),
       COALESCE(r.description, ''), COALESCE(r.period_start, ''), COALESCE(r.period_end, ''),
       r.created_at, r.updated_at
FROM revenues r
LEFT JOIN partners p ON p.id = r.partner_id`

func scanRevenue(row rowScanner) (core.Revenue, error) {
	var (
		rev              core.Revenue
		date, start, end string
		created, updated string
		partnerID        sql.NullInt64
		partnerName      sql.NullString
		amountCents      int64
		category, status string
	)
	err := row.Scan(&rev.ID, &date, &rev.PartnerID, &partnerID, &partnerName, &category, &rev.ServiceType,
		&amountCents, &status, &rev.PaymentMethod, &rev.InvoiceNumber, &rev.Description, &start, &end,
		&created, &updated)
	if err != nil {
		return core.Revenue{}, err
	}
	if rev.Date, err = core.ParseDate(date); err != nil {
		return core.Revenue{}, fmt.Errorf("revenue %d has malformed date %q: %w", rev.ID, date, err)
	}
	rev.PeriodStart, _ = core.ParseDate(start)
	rev.PeriodEnd, _ = core.ParseDate(end)
	if partnerID.Valid {
		rev.Partner = &core.PartnerRef{ID: partnerID.Int64, Name: partnerName.String}
	}
	rev.Category = core.Category(category)
	rev.PaymentStatus = core.PaymentStatus(status)
	rev.Amount = core.Money{Cents: amountCents}
	rev.CreatedAt = parseTimestamp(created)
	rev.UpdatedAt = parseTimestamp(updated)
	return rev, nil
}

func scanRevenues(rows *sql.Rows) ([]core.Revenue, error) {
	defer rows.Close()
	revenues := []core.Revenue{}
	for rows.Next() {
		rev, err := scanRevenue(rows)
		if err != nil {
			return nil, err
		}
		revenues = append(revenues, rev)
	}
	return revenues, rows.Err()
}

func (q *Queries) GetRevenue(ctx context.Context, id int64) (core.Revenue, error) {
	return scanRevenue(q.db.QueryRowContext(ctx, revenueSelect+` WHERE r.id = ?`, id))
}

func (q *Queries) GetRevenuesByIDs(ctx context.Context, ids []int64) ([]core.Revenue, error) {
	rows, err := q.db.QueryContext(ctx,
		revenueSelect+` WHERE r.id IN (`+inPlaceholders(len(ids))+`) ORDER BY r.id`, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	return scanRevenues(rows)
}

// InvoiceInUse reports whether another row already carries the invoice number.
func (q *Queries) InvoiceInUse(ctx context.Context, number string, excludeID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM revenues WHERE invoice_number = ? AND id != ?)`, number, excludeID).Scan(&exists)
	return exists, err
}

func (q *Queries) InsertRevenue(ctx context.Context, in core.RevenueInput) (int64, error) {
	ts := nowTimestamp()
	res, err := q.db.ExecContext(ctx, `
INSERT INTO revenues (date, partner_id, category, service_type, amount_cents, payment_status,
                      payment_method, invoice_number, description, period_start, period_end,
                      created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Date.String(), in.PartnerID, string(in.Category), in.ServiceType, in.Amount.Cents,
		string(in.PaymentStatus), nullString(in.PaymentMethod), nullString(in.InvoiceNumber),
		nullString(in.Description), nullDate(in.PeriodStart), nullDate(in.PeriodEnd), ts, ts)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) UpdateRevenue(ctx context.Context, id int64, in core.RevenueInput) error {
	_, err := q.db.ExecContext(ctx, `
UPDATE revenues
SET date = ?, partner_id = ?, category = ?, service_type = ?, amount_cents = ?, payment_status = ?,
    payment_method = ?, invoice_number = ?, description = ?, period_start = ?, period_end = ?,
    updated_at = ?
WHERE id = ?`,
		in.Date.String(), in.PartnerID, string(in.Category), in.ServiceType, in.Amount.Cents,
		string(in.PaymentStatus), nullString(in.PaymentMethod), nullString(in.InvoiceNumber),
		nullString(in.Description), nullDate(in.PeriodStart), nullDate(in.PeriodEnd), nowTimestamp(), id)
	return err
}

func (q *Queries) DeleteRevenues(ctx context.Context, ids []int64) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM revenues WHERE id IN (`+inPlaceholders(len(ids))+`)`, int64Args(ids)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func listWhere(f core.ListFilter) *where {
	w := &where{}
	w.period(f.Year, f.Month)
	if f.Category != "" {
		w.add("r.category = ?", string(f.Category))
	}
	if f.PaymentStatus != "" {
		w.add("r.payment_status = ?", string(f.PaymentStatus))
	}
	return w
}

func (q *Queries) CountRevenues(ctx context.Context, f core.ListFilter) (int64, error) {
	w := listWhere(f)
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM revenues r`+w.String(), w.args...).Scan(&n)
	return n, err
}

func (q *Queries) ListRevenues(ctx context.Context, f core.ListFilter) ([]core.Revenue, error) {
	w := listWhere(f)
	args := append(w.args, f.Limit, f.Offset())
	rows, err := q.db.QueryContext(ctx,
		revenueSelect+w.String()+` ORDER BY r.date DESC, r.created_at DESC, r.id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	return scanRevenues(rows)
}
