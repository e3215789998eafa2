package services

import (
	"context"
	"errors"
	"sync"

	"revenue/internal/amqp"
	"revenue/internal/core"
	"revenue/internal/storage"
)

// fakeRepo is an in-memory Repository good enough for service tests.
type fakeRepo struct {
	mu        sync.Mutex
	revenues  map[int64]core.Revenue
	partners  map[int64]core.Partner
	nextID    int64
	facts     map[int]storage.YearFacts
	factReads int
	lastList  core.ListFilter
	closed    bool
	failWith  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		revenues: map[int64]core.Revenue{},
		partners: map[int64]core.Partner{1: {ID: 1, Name: "Garuda Indonesia"}},
		nextID:   1,
		facts:    map[int]storage.YearFacts{},
	}
}

func (f *fakeRepo) CreatePartner(_ context.Context, name string) (core.Partner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := core.Partner{ID: int64(len(f.partners) + 1), Name: name}
	f.partners[p.ID] = p
	return p, nil
}

func (f *fakeRepo) GetPartner(_ context.Context, id int64) (core.Partner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.partners[id]
	if !ok {
		return core.Partner{}, &core.NotFoundError{Resource: "partner", ID: id}
	}
	return p, nil
}

func (f *fakeRepo) ListPartners(context.Context) ([]core.Partner, error) {
	return nil, nil
}

func (f *fakeRepo) CreateRevenue(_ context.Context, in core.RevenueInput) (core.Revenue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return core.Revenue{}, f.failWith
	}
	if _, ok := f.partners[in.PartnerID]; !ok {
		return core.Revenue{}, core.PartnerNotFound()
	}
	rev := core.Revenue{
		ID:            f.nextID,
		Date:          in.Date,
		PartnerID:     in.PartnerID,
		Category:      in.Category,
		ServiceType:   in.ServiceType,
		Amount:        in.Amount,
		PaymentStatus: in.PaymentStatus,
	}
	f.nextID++
	f.revenues[rev.ID] = rev
	return rev, nil
}

func (f *fakeRepo) GetRevenue(_ context.Context, id int64) (core.Revenue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rev, ok := f.revenues[id]
	if !ok {
		return core.Revenue{}, &core.NotFoundError{Resource: "revenue", ID: id}
	}
	return rev, nil
}

func (f *fakeRepo) UpdateRevenue(_ context.Context, id int64, patch core.RevenuePatch) (core.Revenue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rev, ok := f.revenues[id]
	if !ok {
		return core.Revenue{}, &core.NotFoundError{Resource: "revenue", ID: id}
	}
	in := patch.Apply(rev.Input())
	rev.Date, rev.Amount, rev.Category = in.Date, in.Amount, in.Category
	f.revenues[id] = rev
	return rev, nil
}

func (f *fakeRepo) DeleteRevenue(_ context.Context, id int64) (core.Revenue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rev, ok := f.revenues[id]
	if !ok {
		return core.Revenue{}, &core.NotFoundError{Resource: "revenue", ID: id}
	}
	delete(f.revenues, id)
	return rev, nil
}

func (f *fakeRepo) BulkDeleteRevenues(_ context.Context, ids []int64) (core.BulkDeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res core.BulkDeleteResult
	for _, id := range ids {
		rev, ok := f.revenues[id]
		if !ok {
			res.Missing = append(res.Missing, id)
			continue
		}
		delete(f.revenues, id)
		res.IDs = append(res.IDs, id)
		res.Removed = append(res.Removed, rev)
	}
	res.Deleted = len(res.IDs)
	if res.Deleted == 0 {
		return core.BulkDeleteResult{}, &core.NotFoundError{Resource: "revenues"}
	}
	return res, nil
}

func (f *fakeRepo) ListRevenues(_ context.Context, filter core.ListFilter) ([]core.Revenue, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastList = filter
	return []core.Revenue{}, int64(len(f.revenues)), nil
}

func (f *fakeRepo) YearFacts(_ context.Context, year int) (storage.YearFacts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factReads++
	if f.failWith != nil {
		return storage.YearFacts{}, f.failWith
	}
	facts := f.facts[year]
	facts.Year = year
	return facts, nil
}

func (f *fakeRepo) MonthlyDetail(_ context.Context, q core.DetailQuery) (core.MonthlyDetail, error) {
	return core.MonthlyDetail{Period: core.Period{Year: q.Year, Month: q.Month, MonthName: core.MonthNameID(q.Month)}}, nil
}

func (f *fakeRepo) PartnerDrift(context.Context, []int64) ([]storage.PartnerDrift, error) {
	return nil, nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }

func (f *fakeRepo) Close() error {
	f.closed = true
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.RevenueEvent
	err    error
}

func (p *fakePublisher) PublishRevenueEvent(_ context.Context, ev *amqp.RevenueEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) Close() error { return errors.New("already closed") }

type recordingInvalidator struct {
	years []int
}

func (r *recordingInvalidator) Invalidate(years ...int) {
	r.years = append(r.years, years...)
}
