package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"revenue/internal/core"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// DSN appends the connection pragmas the ledger relies on to a database path.
func DSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite has a single writer; one connection serializes transactions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// inTx runs fn inside one transaction; any error rolls everything back.
func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(r.queries.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func notFound(err error, resource string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &core.NotFoundError{Resource: resource, ID: id}
	}
	return err
}

// --- partners ---

func (r *SQLiteRepository) CreatePartner(ctx context.Context, name string) (core.Partner, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Partner{}, core.NewValidationError(core.FieldError{Field: "name", Message: core.MsgEmptyPartnerName})
	}
	p, err := r.queries.CreatePartner(ctx, name)
	if err != nil {
		return core.Partner{}, fmt.Errorf("create partner: %w", err)
	}
	slog.InfoContext(ctx, "Partner saved to SQLite", "id", p.ID, "name", p.Name)
	return p, nil
}

func (r *SQLiteRepository) GetPartner(ctx context.Context, id int64) (core.Partner, error) {
	p, err := r.queries.GetPartner(ctx, id)
	if err != nil {
		return core.Partner{}, notFound(err, "partner", id)
	}
	return p, nil
}

func (r *SQLiteRepository) ListPartners(ctx context.Context) ([]core.Partner, error) {
	partners, err := r.queries.ListPartners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	return partners, nil
}

// --- revenues ---

// CreateRevenue inserts a ledger row after checking the partner and invoice.
// Partner running totals are not incremented here; only deletes adjust them.
func (r *SQLiteRepository) CreateRevenue(ctx context.Context, in core.RevenueInput) (core.Revenue, error) {
	var created core.Revenue
	err := r.inTx(ctx, func(q *Queries) error {
		exists, err := q.PartnerExists(ctx, in.PartnerID)
		if err != nil {
			return fmt.Errorf("check partner: %w", err)
		}
		if !exists {
			return core.PartnerNotFound()
		}

		if in.InvoiceNumber != "" {
			inUse, err := q.InvoiceInUse(ctx, in.InvoiceNumber, 0)
			if err != nil {
				return fmt.Errorf("check invoice number: %w", err)
			}
			if inUse {
				return core.DuplicateInvoice(in.InvoiceNumber)
			}
		}

		id, err := q.InsertRevenue(ctx, in)
		if err != nil {
			if isUniqueViolation(err) {
				return core.DuplicateInvoice(in.InvoiceNumber)
			}
			return fmt.Errorf("insert revenue: %w", err)
		}

		created, err = q.GetRevenue(ctx, id)
		if err != nil {
			return fmt.Errorf("reload revenue %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return core.Revenue{}, err
	}

	slog.InfoContext(ctx, "Revenue saved to SQLite",
		"id", created.ID,
		"partner_id", created.PartnerID,
		"category", created.Category,
		"amount_cents", created.Amount.Cents,
		"date", created.Date.String())

	return created, nil
}

func (r *SQLiteRepository) GetRevenue(ctx context.Context, id int64) (core.Revenue, error) {
	rev, err := r.queries.GetRevenue(ctx, id)
	if err != nil {
		return core.Revenue{}, notFound(err, "revenue", id)
	}
	return rev, nil
}

// UpdateRevenue merges patch into the stored row. The partner is re-checked
// only when the patch moves the row to a different partner.
func (r *SQLiteRepository) UpdateRevenue(ctx context.Context, id int64, patch core.RevenuePatch) (core.Revenue, error) {
	var updated core.Revenue
	err := r.inTx(ctx, func(q *Queries) error {
		current, err := q.GetRevenue(ctx, id)
		if err != nil {
			return notFound(err, "revenue", id)
		}

		merged := patch.Apply(current.Input())
		if err := merged.Validate(); err != nil {
			return err
		}

		if patch.PartnerID != nil && *patch.PartnerID != current.PartnerID {
			exists, err := q.PartnerExists(ctx, merged.PartnerID)
			if err != nil {
				return fmt.Errorf("check partner: %w", err)
			}
			if !exists {
				return core.PartnerNotFound()
			}
		}

		if merged.InvoiceNumber != "" && merged.InvoiceNumber != current.InvoiceNumber {
			inUse, err := q.InvoiceInUse(ctx, merged.InvoiceNumber, id)
			if err != nil {
				return fmt.Errorf("check invoice number: %w", err)
			}
			if inUse {
				return core.DuplicateInvoice(merged.InvoiceNumber)
			}
		}

		if err := q.UpdateRevenue(ctx, id, merged); err != nil {
			if isUniqueViolation(err) {
				return core.DuplicateInvoice(merged.InvoiceNumber)
			}
			return fmt.Errorf("update revenue %d: %w", id, err)
		}

		updated, err = q.GetRevenue(ctx, id)
		if err != nil {
			return fmt.Errorf("reload revenue %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return core.Revenue{}, err
	}

	slog.InfoContext(ctx, "Revenue updated in SQLite", "id", id, "amount_cents", updated.Amount.Cents)
	return updated, nil
}

// DeleteRevenue removes one row and decrements its partner's totals in the
// same transaction.
func (r *SQLiteRepository) DeleteRevenue(ctx context.Context, id int64) (core.Revenue, error) {
	var deleted core.Revenue
	err := r.inTx(ctx, func(q *Queries) error {
		rev, err := q.GetRevenue(ctx, id)
		if err != nil {
			return notFound(err, "revenue", id)
		}
		if _, err := q.DeleteRevenues(ctx, []int64{id}); err != nil {
			return fmt.Errorf("delete revenue %d: %w", id, err)
		}
		if err := q.DecrementPartnerTotals(ctx, rev.PartnerID, 1, rev.Amount.Cents); err != nil {
			return fmt.Errorf("decrement partner %d totals: %w", rev.PartnerID, err)
		}
		deleted = rev
		return nil
	})
	if err != nil {
		return core.Revenue{}, err
	}

	slog.InfoContext(ctx, "Revenue deleted from SQLite",
		"id", id,
		"partner_id", deleted.PartnerID,
		"amount_cents", deleted.Amount.Cents)
	return deleted, nil
}

type partnerDecrement struct {
	count int64
	cents int64
}

// BulkDeleteRevenues deletes every existing row among ids and applies one
// decrement per affected partner, all in one transaction. Unknown ids are
// reported as missing; a NotFoundError is returned only when none exist.
func (r *SQLiteRepository) BulkDeleteRevenues(ctx context.Context, ids []int64) (core.BulkDeleteResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return core.BulkDeleteResult{}, &core.ValidationError{
			Message: core.MsgIDsRequired,
			Fields:  []core.FieldError{{Field: "ids", Message: core.MsgIDsRequired}},
		}
	}

	var result core.BulkDeleteResult
	err := r.inTx(ctx, func(q *Queries) error {
		rows, err := q.GetRevenuesByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("load revenues: %w", err)
		}
		if len(rows) == 0 {
			return &core.NotFoundError{Resource: "revenues"}
		}

		found := make(map[int64]bool, len(rows))
		byPartner := make(map[int64]*partnerDecrement)
		var partnerOrder []int64
		existing := make([]int64, 0, len(rows))
		for _, rev := range rows {
			found[rev.ID] = true
			existing = append(existing, rev.ID)
			dec, ok := byPartner[rev.PartnerID]
			if !ok {
				dec = &partnerDecrement{}
				byPartner[rev.PartnerID] = dec
				partnerOrder = append(partnerOrder, rev.PartnerID)
			}
			dec.count++
			dec.cents += rev.Amount.Cents
		}

		if _, err := q.DeleteRevenues(ctx, existing); err != nil {
			return fmt.Errorf("delete revenues: %w", err)
		}
		for _, partnerID := range partnerOrder {
			dec := byPartner[partnerID]
			if err := q.DecrementPartnerTotals(ctx, partnerID, dec.count, dec.cents); err != nil {
				return fmt.Errorf("decrement partner %d totals: %w", partnerID, err)
			}
		}

		result = core.BulkDeleteResult{Deleted: len(existing), IDs: existing, Removed: rows}
		for _, id := range ids {
			if !found[id] {
				result.Missing = append(result.Missing, id)
			}
		}
		return nil
	})
	if err != nil {
		return core.BulkDeleteResult{}, err
	}

	slog.InfoContext(ctx, "Revenues bulk deleted from SQLite",
		"deleted", result.Deleted,
		"missing", len(result.Missing))
	return result, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ListRevenues returns one page of filtered rows plus the unpaginated count.
func (r *SQLiteRepository) ListRevenues(ctx context.Context, f core.ListFilter) ([]core.Revenue, int64, error) {
	var (
		items []core.Revenue
		total int64
	)
	err := r.inTx(ctx, func(q *Queries) error {
		var err error
		if total, err = q.CountRevenues(ctx, f); err != nil {
			return fmt.Errorf("count revenues: %w", err)
		}
		if items, err = q.ListRevenues(ctx, f); err != nil {
			return fmt.Errorf("list revenues: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
