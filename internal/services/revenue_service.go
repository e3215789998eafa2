package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"revenue/internal/amqp"
	"revenue/internal/core"
	"revenue/internal/storage"
)

// Repository is the ledger port the services run against.
type Repository interface {
	CreatePartner(ctx context.Context, name string) (core.Partner, error)
	GetPartner(ctx context.Context, id int64) (core.Partner, error)
	ListPartners(ctx context.Context) ([]core.Partner, error)

	CreateRevenue(ctx context.Context, in core.RevenueInput) (core.Revenue, error)
	GetRevenue(ctx context.Context, id int64) (core.Revenue, error)
	UpdateRevenue(ctx context.Context, id int64, patch core.RevenuePatch) (core.Revenue, error)
	DeleteRevenue(ctx context.Context, id int64) (core.Revenue, error)
	BulkDeleteRevenues(ctx context.Context, ids []int64) (core.BulkDeleteResult, error)
	ListRevenues(ctx context.Context, f core.ListFilter) ([]core.Revenue, int64, error)

	YearFacts(ctx context.Context, year int) (storage.YearFacts, error)
	MonthlyDetail(ctx context.Context, q core.DetailQuery) (core.MonthlyDetail, error)
	PartnerDrift(ctx context.Context, ids []int64) ([]storage.PartnerDrift, error)

	Ping(ctx context.Context) error
	Close() error
}

// Publisher emits change events after a mutation commits.
type Publisher interface {
	PublishRevenueEvent(ctx context.Context, ev *amqp.RevenueEvent) error
	Close() error
}

// Invalidator drops cached reports touched by a mutation.
type Invalidator interface {
	Invalidate(years ...int)
}

// RevenueService orchestrates ledger mutations across SQLite, the report
// cache and AMQP.
type RevenueService struct {
	repo         Repository
	publisher    Publisher
	reports      Invalidator
	defaultLimit int
}

func NewRevenueService(repo Repository, publisher Publisher, reports Invalidator, defaultLimit int) *RevenueService {
	if defaultLimit < 1 {
		defaultLimit = 10000
	}
	return &RevenueService{
		repo:         repo,
		publisher:    publisher,
		reports:      reports,
		defaultLimit: defaultLimit,
	}
}

// CreateRevenue validates in and stores it. Partner running totals are left
// unchanged.
func (s *RevenueService) CreateRevenue(ctx context.Context, in core.RevenueInput) (core.Revenue, error) {
	if err := in.Validate(); err != nil {
		return core.Revenue{}, err
	}
	rev, err := s.repo.CreateRevenue(ctx, in)
	if err != nil {
		return core.Revenue{}, fmt.Errorf("save revenue: %w", err)
	}

	s.invalidate(rev.Date.Year())
	s.publish(ctx, amqp.NewRevenueEvent(amqp.EventRevenueCreated, rev))
	return rev, nil
}

func (s *RevenueService) GetRevenue(ctx context.Context, id int64) (core.Revenue, error) {
	return s.repo.GetRevenue(ctx, id)
}

func (s *RevenueService) UpdateRevenue(ctx context.Context, id int64, patch core.RevenuePatch) (core.Revenue, error) {
	before, err := s.repo.GetRevenue(ctx, id)
	if err != nil {
		return core.Revenue{}, err
	}
	rev, err := s.repo.UpdateRevenue(ctx, id, patch)
	if err != nil {
		return core.Revenue{}, fmt.Errorf("update revenue %d: %w", id, err)
	}

	s.invalidate(before.Date.Year(), rev.Date.Year())
	s.publish(ctx, amqp.NewRevenueEvent(amqp.EventRevenueUpdated, rev))
	return rev, nil
}

func (s *RevenueService) DeleteRevenue(ctx context.Context, id int64) (core.Revenue, error) {
	rev, err := s.repo.DeleteRevenue(ctx, id)
	if err != nil {
		return core.Revenue{}, fmt.Errorf("delete revenue %d: %w", id, err)
	}

	s.invalidate(rev.Date.Year())
	s.publish(ctx, amqp.NewRevenueEvent(amqp.EventRevenueDeleted, rev))
	return rev, nil
}

func (s *RevenueService) BulkDeleteRevenues(ctx context.Context, ids []int64) (core.BulkDeleteResult, error) {
	res, err := s.repo.BulkDeleteRevenues(ctx, ids)
	if err != nil {
		return core.BulkDeleteResult{}, fmt.Errorf("bulk delete revenues: %w", err)
	}

	years := make([]int, 0, len(res.Removed))
	for _, rev := range res.Removed {
		years = append(years, rev.Date.Year())
	}
	s.invalidate(years...)
	s.publish(ctx, amqp.NewRevenueEvent(amqp.EventRevenueBulkDeleted, res.Removed...))
	return res, nil
}

// ListRevenues applies paging defaults, validates the enum filters and
// returns one page with its metadata.
func (s *RevenueService) ListRevenues(ctx context.Context, f core.ListFilter) ([]core.Revenue, core.Pagination, error) {
	var fields []core.FieldError
	if f.Category != "" && !f.Category.Valid() {
		fields = append(fields, core.FieldError{Field: "category", Message: core.MsgInvalidCategory})
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		fields = append(fields, core.FieldError{Field: "payment_status", Message: core.MsgInvalidPaymentStatus})
	}
	if f.Month != 0 && (f.Month < 1 || f.Month > 12) {
		fields = append(fields, core.FieldError{Field: "month", Message: "Bulan harus antara 1 dan 12"})
	}
	if len(fields) > 0 {
		return nil, core.Pagination{}, core.NewValidationError(fields...)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = s.defaultLimit
	}

	items, total, err := s.repo.ListRevenues(ctx, f)
	if err != nil {
		return nil, core.Pagination{}, err
	}
	return items, core.NewPagination(total, f.Page, f.Limit), nil
}

func (s *RevenueService) CreatePartner(ctx context.Context, name string) (core.Partner, error) {
	p, err := s.repo.CreatePartner(ctx, name)
	if err != nil {
		return core.Partner{}, err
	}
	s.publish(ctx, amqp.NewPartnerEvent(p))
	return p, nil
}

func (s *RevenueService) GetPartner(ctx context.Context, id int64) (core.Partner, error) {
	return s.repo.GetPartner(ctx, id)
}

func (s *RevenueService) ListPartners(ctx context.Context) ([]core.Partner, error) {
	partners, err := s.repo.ListPartners(ctx)
	if err != nil {
		return nil, err
	}
	if partners == nil {
		partners = []core.Partner{}
	}
	return partners, nil
}

// Ping reports whether the database answers.
func (s *RevenueService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *RevenueService) invalidate(years ...int) {
	if s.reports != nil && len(years) > 0 {
		s.reports.Invalidate(years...)
	}
}

// publish never fails the request; the row is already committed.
func (s *RevenueService) publish(ctx context.Context, ev *amqp.RevenueEvent) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping revenue event", "type", ev.Type)
		return
	}
	if err := s.publisher.PublishRevenueEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish revenue event",
			"type", ev.Type,
			"event_id", ev.EventID,
			"error", err)
	}
}

// Close closes both storage and AMQP connections.
func (s *RevenueService) Close() error {
	var errs []error
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close revenue service: %w", err)
	}
	return nil
}
