// Package dashboard keeps a client-side working copy of the revenue ledger
// alongside the server's monthly and yearly aggregates, and checks that the
// three agree.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"revenue/internal/client"
	"revenue/internal/core"
	"revenue/internal/log"
)

// ErrPartialRefresh is returned by RefreshAll when at least one fetch failed.
var ErrPartialRefresh = errors.New("partial data load failure")

// API is the part of the revenue API the store reads and mutates through.
// *client.Client satisfies it.
type API interface {
	ListRevenues(ctx context.Context, f core.ListFilter) ([]core.Revenue, core.Pagination, error)
	Monthly(ctx context.Context, year int) ([]core.MonthlyEntry, error)
	Summary(ctx context.Context, year int) (core.YearlySummary, error)
	MonthlyDetail(ctx context.Context, q core.DetailQuery) (core.MonthlyDetail, error)
	CreateRevenue(ctx context.Context, in core.RevenueInput) (core.Revenue, error)
	UpdateRevenue(ctx context.Context, id int64, patch core.RevenuePatch) (core.Revenue, error)
	DeleteRevenue(ctx context.Context, id int64) error
	BulkDeleteRevenues(ctx context.Context, ids []int64) (core.BulkDeleteResult, error)
}

// Slot names one independently fetched piece of state.
type Slot int

const (
	SlotRevenue Slot = iota
	SlotMonthly
	SlotSummary
	SlotDetail
	slotCount
)

func (s Slot) String() string {
	switch s {
	case SlotRevenue:
		return "revenue"
	case SlotMonthly:
		return "monthly"
	case SlotSummary:
		return "summary"
	case SlotDetail:
		return "detail"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// Phase is the store lifecycle: initialized, populated, cleared. Any
// successful fetch after a clear moves it back to populated.
type Phase int

const (
	PhaseInitialized Phase = iota
	PhasePopulated
	PhaseCleared
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "initialized"
	case PhasePopulated:
		return "populated"
	case PhaseCleared:
		return "cleared"
	}
	return "unknown"
}

type slotState struct {
	inflight int
	err      error
}

type Store struct {
	api    API
	logger *log.Logger
	now    func() time.Time

	mu          sync.RWMutex
	phase       Phase
	currentYear int
	lastUpdated time.Time
	revenues    []core.Revenue
	pagination  core.Pagination
	monthly     []core.MonthlyEntry
	summary     *core.YearlySummary
	detail      *core.MonthlyDetail
	slots       [slotCount]slotState

	// page size used when loading a whole year
	pageSize int

	// background aggregate refreshes started by mutations
	idleMu  sync.Mutex
	idle    *sync.Cond
	pending int
}

type Option func(*Store)

func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPageSize sets the page size used by FetchYear and RefreshAll.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithYear sets the initial active year.
func WithYear(year int) Option {
	return func(s *Store) {
		if year > 0 {
			s.currentYear = year
		}
	}
}

func NewStore(api API, opts ...Option) *Store {
	s := &Store{
		api:        api,
		now:        time.Now,
		pagination: emptyPagination(),
		pageSize:   client.DefaultListLimit,
	}
	s.idle = sync.NewCond(&s.idleMu)
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default().WithComponent(log.ComponentDashboard)
	}
	if s.currentYear == 0 {
		s.currentYear = s.now().Year()
	}
	return s
}

func emptyPagination() core.Pagination {
	return core.Pagination{Page: 1, Limit: client.DefaultListLimit}
}

// begin marks one more fetch of slot in flight and clears its previous
// error.
func (s *Store) begin(slot Slot) {
	s.mu.Lock()
	s.slots[slot].inflight++
	s.slots[slot].err = nil
	s.mu.Unlock()
}

// finish records the outcome of a fetch. The caller holds s.mu.
func (s *Store) finish(slot Slot, err error) {
	if s.slots[slot].inflight > 0 {
		s.slots[slot].inflight--
	}
	s.slots[slot].err = err
	if err == nil {
		s.phase = PhasePopulated
	}
}

func (s *Store) yearOrCurrent(year int) int {
	if year > 0 {
		return year
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentYear
}

// FetchRevenue loads one page of the ledger into the working copy. On
// failure the working copy is emptied.
func (s *Store) FetchRevenue(ctx context.Context, f core.ListFilter) error {
	s.begin(SlotRevenue)
	items, page, err := s.api.ListRevenues(ctx, f)
	return s.storeRevenues(ctx, items, page, err)
}

// FetchYear loads every row of year, or of the active year when year is
// zero, page by page into the working copy. On failure the working copy is
// emptied.
func (s *Store) FetchYear(ctx context.Context, year int) error {
	year = s.yearOrCurrent(year)
	s.begin(SlotRevenue)
	items, page, err := s.listYear(ctx, year)
	return s.storeRevenues(ctx, items, page, err)
}

// listYear walks the pages of year until the reported total is reached or
// the server returns a short page.
func (s *Store) listYear(ctx context.Context, year int) ([]core.Revenue, core.Pagination, error) {
	f := core.ListFilter{Year: year, Page: 1, Limit: s.pageSize}
	var all []core.Revenue
	for {
		items, page, err := s.api.ListRevenues(ctx, f)
		if err != nil {
			return nil, core.Pagination{}, fmt.Errorf("page %d: %w", f.Page, err)
		}
		all = append(all, items...)
		limit := page.Limit
		if limit < 1 {
			limit = f.Limit
		}
		if len(items) == 0 || len(items) < limit || int64(len(all)) >= page.Total {
			s.logger.DebugContext(ctx, "Year loaded",
				log.FieldYear, year, log.FieldCount, len(all), "pages", f.Page)
			return all, page, nil
		}
		f.Page++
	}
}

func (s *Store) storeRevenues(ctx context.Context, items []core.Revenue, page core.Pagination, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.revenues = nil
		s.finish(SlotRevenue, err)
		s.logger.ErrorContext(ctx, "Failed to fetch revenue data", log.FieldError, err)
		return fmt.Errorf("fetch revenue: %w", err)
	}
	s.revenues = items
	s.pagination = page
	s.lastUpdated = s.now()
	s.finish(SlotRevenue, nil)
	s.logger.DebugContext(ctx, "Revenue data loaded", log.FieldCount, len(items))
	return nil
}

// FetchMonthly loads the 12-month series for year, or the active year when
// year is zero.
func (s *Store) FetchMonthly(ctx context.Context, year int) error {
	year = s.yearOrCurrent(year)
	s.begin(SlotMonthly)
	entries, err := s.api.Monthly(ctx, year)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.monthly = nil
		s.finish(SlotMonthly, err)
		s.logger.ErrorContext(ctx, "Failed to fetch monthly data", log.FieldYear, year, log.FieldError, err)
		return fmt.Errorf("fetch monthly %d: %w", year, err)
	}
	s.monthly = entries
	s.finish(SlotMonthly, nil)
	s.logger.DebugContext(ctx, "Monthly data loaded", log.FieldYear, year, log.FieldCount, len(entries))
	return nil
}

// FetchSummary loads the yearly summary for year, or the active year when
// year is zero.
func (s *Store) FetchSummary(ctx context.Context, year int) error {
	year = s.yearOrCurrent(year)
	s.begin(SlotSummary)
	summary, err := s.api.Summary(ctx, year)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.summary = nil
		s.finish(SlotSummary, err)
		s.logger.ErrorContext(ctx, "Failed to fetch summary", log.FieldYear, year, log.FieldError, err)
		return fmt.Errorf("fetch summary %d: %w", year, err)
	}
	s.summary = &summary
	s.finish(SlotSummary, nil)
	return nil
}

// FetchMonthlyDetail loads the detail view for one month. A failed fetch
// keeps the previous detail.
func (s *Store) FetchMonthlyDetail(ctx context.Context, q core.DetailQuery) error {
	s.begin(SlotDetail)
	detail, err := s.api.MonthlyDetail(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.finish(SlotDetail, err)
		s.logger.ErrorContext(ctx, "Failed to fetch monthly detail",
			log.FieldYear, q.Year, log.FieldMonth, q.Month, log.FieldError, err)
		return fmt.Errorf("fetch monthly detail %d-%02d: %w", q.Year, q.Month, err)
	}
	s.detail = &detail
	s.finish(SlotDetail, nil)
	return nil
}

// RefreshAll fetches every ledger row of year, the monthly series and the
// yearly summary concurrently and waits for all three. A failed fetch does not
// cancel the others. The consistency check runs only when every fetch
// succeeded.
func (s *Store) RefreshAll(ctx context.Context, year int) (ConsistencyReport, error) {
	s.ClearErrors()

	s.mu.Lock()
	if year > 0 {
		s.currentYear = year
	}
	year = s.currentYear
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Refreshing all data", log.FieldYear, year)

	var g errgroup.Group
	g.Go(func() error { return s.FetchYear(ctx, year) })
	g.Go(func() error { return s.FetchMonthly(ctx, year) })
	g.Go(func() error { return s.FetchSummary(ctx, year) })
	if err := g.Wait(); err != nil {
		s.logger.WarnContext(ctx, "Some data failed to load", log.FieldYear, year, log.FieldError, err)
		return ConsistencyReport{}, fmt.Errorf("%w: %w", ErrPartialRefresh, err)
	}

	return s.CheckConsistency(ctx), nil
}

// refreshAggregates reloads the monthly series and summary for the active
// year in the background. Errors land in the slots.
func (s *Store) refreshAggregates(ctx context.Context) {
	year := s.CurrentYear()
	ctx = context.WithoutCancel(ctx)

	s.idleMu.Lock()
	s.pending++
	s.idleMu.Unlock()
	go func() {
		defer s.done()
		var g errgroup.Group
		g.Go(func() error { return s.FetchMonthly(ctx, year) })
		g.Go(func() error { return s.FetchSummary(ctx, year) })
		_ = g.Wait()
	}()
}

// WaitIdle blocks until every background refresh started by a mutation has
// finished.
func (s *Store) WaitIdle() {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
}

func (s *Store) done() {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	s.pending--
	if s.pending == 0 {
		s.idle.Broadcast()
	}
}

// CreateRevenue creates a row through the API and puts it at the head of
// the working copy.
func (s *Store) CreateRevenue(ctx context.Context, in core.RevenueInput) (core.Revenue, error) {
	rev, err := s.api.CreateRevenue(ctx, in)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to add revenue", log.FieldError, err)
		return core.Revenue{}, err
	}

	s.mu.Lock()
	s.revenues = append([]core.Revenue{rev}, s.revenues...)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Revenue added", log.NewFields().
		WithOperation(log.OpCreate).
		WithRevenue(rev.ID, rev.PartnerID, string(rev.Category), rev.Amount.Cents).ToSlice()...)
	s.refreshAggregates(ctx)
	return rev, nil
}

// UpdateRevenue updates a row through the API and replaces it in place.
// A row that is not in the working copy is left out.
func (s *Store) UpdateRevenue(ctx context.Context, id int64, patch core.RevenuePatch) (core.Revenue, error) {
	rev, err := s.api.UpdateRevenue(ctx, id, patch)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to update revenue", log.FieldRevenueID, id, log.FieldError, err)
		return core.Revenue{}, err
	}

	s.mu.Lock()
	for i := range s.revenues {
		if s.revenues[i].ID == id {
			s.revenues[i] = rev
			break
		}
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Revenue updated", log.FieldRevenueID, id)
	s.refreshAggregates(ctx)
	return rev, nil
}

func (s *Store) DeleteRevenue(ctx context.Context, id int64) error {
	if err := s.api.DeleteRevenue(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "Failed to delete revenue", log.FieldRevenueID, id, log.FieldError, err)
		return err
	}

	s.mu.Lock()
	s.revenues = removeIDs(s.revenues, map[int64]struct{}{id: {}})
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Revenue deleted", log.FieldRevenueID, id)
	s.refreshAggregates(ctx)
	return nil
}

// BulkDeleteRevenues deletes ids through the API and drops the ones the
// server removed.
func (s *Store) BulkDeleteRevenues(ctx context.Context, ids []int64) (core.BulkDeleteResult, error) {
	res, err := s.api.BulkDeleteRevenues(ctx, ids)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to delete revenues", log.FieldCount, len(ids), log.FieldError, err)
		return core.BulkDeleteResult{}, err
	}

	removed := res.IDs
	if removed == nil {
		removed = ids
	}
	drop := make(map[int64]struct{}, len(removed))
	for _, id := range removed {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	s.revenues = removeIDs(s.revenues, drop)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Bulk delete successful", log.FieldCount, res.Deleted)
	s.refreshAggregates(ctx)
	return res, nil
}

func removeIDs(items []core.Revenue, drop map[int64]struct{}) []core.Revenue {
	kept := make([]core.Revenue, 0, len(items))
	for _, r := range items {
		if _, ok := drop[r.ID]; !ok {
			kept = append(kept, r)
		}
	}
	return kept
}

// ClearErrors resets every slot error.
func (s *Store) ClearErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		s.slots[i].err = nil
	}
}

// ClearAll drops every slot and moves the store to the cleared phase.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revenues = nil
	s.monthly = nil
	s.summary = nil
	s.detail = nil
	s.pagination = emptyPagination()
	for i := range s.slots {
		s.slots[i].err = nil
	}
	s.lastUpdated = time.Time{}
	s.phase = PhaseCleared
	s.logger.Debug("Cleared all revenue data")
}

// SetCurrentYear switches the active year. The monthly series and summary
// belong to the old year and are dropped.
func (s *Store) SetCurrentYear(year int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if year == s.currentYear {
		return
	}
	s.currentYear = year
	s.monthly = nil
	s.summary = nil
	s.slots[SlotMonthly].err = nil
	s.slots[SlotSummary].err = nil
}

func (s *Store) ClearMonthlyDetail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detail = nil
	s.slots[SlotDetail].err = nil
}

func (s *Store) CurrentYear() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentYear
}

func (s *Store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// LastUpdated is the time of the last successful ledger fetch.
func (s *Store) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

func (s *Store) Pagination() core.Pagination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pagination
}

// Revenues returns a copy of the working copy.
func (s *Store) Revenues() []core.Revenue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Revenue(nil), s.revenues...)
}

func (s *Store) Monthly() []core.MonthlyEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.MonthlyEntry(nil), s.monthly...)
}

// Summary returns the yearly summary and whether one is loaded.
func (s *Store) Summary() (core.YearlySummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.summary == nil {
		return core.YearlySummary{}, false
	}
	return *s.summary, true
}

func (s *Store) MonthlyDetail() (core.MonthlyDetail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.detail == nil {
		return core.MonthlyDetail{}, false
	}
	return *s.detail, true
}

func (s *Store) Loading(slot Slot) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[slot].inflight > 0
}

// IsLoading reports whether any slot has a fetch in flight.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.slots {
		if st.inflight > 0 {
			return true
		}
	}
	return false
}

func (s *Store) Err(slot Slot) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[slot].err
}

func (s *Store) HasErrors() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.slots {
		if st.err != nil {
			return true
		}
	}
	return false
}

// Errors returns the failing slots and their errors.
func (s *Store) Errors() map[Slot]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Slot]error)
	for i, st := range s.slots {
		if st.err != nil {
			out[Slot(i)] = st.err
		}
	}
	return out
}
