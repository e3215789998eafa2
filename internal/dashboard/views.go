package dashboard

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"revenue/internal/core"
)

// CategoryTotals splits a total by revenue category.
type CategoryTotals struct {
	Aeronautika    core.Money `json:"aeronautika"`
	NonAeronautika core.Money `json:"nonAeronautika"`
}

// PartnerShare is one partner's part of the working copy.
type PartnerShare struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Amount       core.Money      `json:"amount"`
	Transactions int64           `json:"transactions"`
	Percentage   decimal.Decimal `json:"percentage"`
}

// Filter narrows the working copy. Zero fields match everything; the date
// bounds are inclusive.
type Filter struct {
	Category      core.Category
	ServiceType   string
	PartnerID     int64
	PaymentStatus core.PaymentStatus
	StartDate     core.Date
	EndDate       core.Date
}

func (f Filter) match(r core.Revenue) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.ServiceType != "" && r.ServiceType != f.ServiceType {
		return false
	}
	if f.PartnerID != 0 && partnerID(r) != f.PartnerID {
		return false
	}
	if f.PaymentStatus != "" && r.PaymentStatus != f.PaymentStatus {
		return false
	}
	if !f.StartDate.IsZero() && r.Date.Before(f.StartDate.Time) {
		return false
	}
	if !f.EndDate.IsZero() && r.Date.After(f.EndDate.Time) {
		return false
	}
	return true
}

func partnerID(r core.Revenue) int64 {
	if r.Partner != nil && r.Partner.ID != 0 {
		return r.Partner.ID
	}
	return r.PartnerID
}

func sumRevenues(items []core.Revenue) core.Money {
	var total core.Money
	for _, r := range items {
		total = total.Add(r.Amount)
	}
	return total
}

func splitCategories(items []core.Revenue) CategoryTotals {
	var ct CategoryTotals
	for _, r := range items {
		switch r.Category {
		case core.CategoryAeronautika:
			ct.Aeronautika = ct.Aeronautika.Add(r.Amount)
		case core.CategoryNonAeronautika:
			ct.NonAeronautika = ct.NonAeronautika.Add(r.Amount)
		}
	}
	return ct
}

// TotalRevenue sums the working copy.
func (s *Store) TotalRevenue() core.Money {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumRevenues(s.revenues)
}

func (s *Store) CategoryTotals() CategoryTotals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return splitCategories(s.revenues)
}

// TopServices ranks service types by amount, largest first.
func (s *Store) TopServices(n int) []core.ServiceTotal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := make(map[string]int)
	var out []core.ServiceTotal
	for _, r := range s.revenues {
		i, ok := index[r.ServiceType]
		if !ok {
			i = len(out)
			index[r.ServiceType] = i
			out = append(out, core.ServiceTotal{Name: r.ServiceType})
		}
		out[i].Amount = out[i].Amount.Add(r.Amount)
		out[i].Count++
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Amount.Cents > out[b].Amount.Cents
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// TopPartners ranks partners by amount with their share of the working
// copy total, to one decimal place.
func (s *Store) TopPartners(n int) []PartnerShare {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := sumRevenues(s.revenues).Decimal()
	index := make(map[int64]int)
	var out []PartnerShare
	for _, r := range s.revenues {
		id := partnerID(r)
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, PartnerShare{ID: id, Name: r.PartnerName()})
		}
		out[i].Amount = out[i].Amount.Add(r.Amount)
		out[i].Transactions++
	}

	for i := range out {
		out[i].Percentage = core.Percentage(out[i].Amount.Decimal(), total, 1)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Amount.Cents > out[b].Amount.Cents
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Filter returns the rows of the working copy matching f, in order.
func (s *Store) Filter(f Filter) []core.Revenue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterRevenues(s.revenues, f)
}

func filterRevenues(items []core.Revenue, f Filter) []core.Revenue {
	out := make([]core.Revenue, 0, len(items))
	for _, r := range items {
		if f.match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) RevenueByID(id int64) (core.Revenue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.revenues {
		if r.ID == id {
			return r, true
		}
	}
	return core.Revenue{}, false
}

type exportMetadata struct {
	ExportedAt   time.Time `json:"exported_at"`
	Year         int       `json:"year"`
	TotalRecords int       `json:"total_records"`
}

type export struct {
	Revenue  []core.Revenue      `json:"revenue"`
	Monthly  []core.MonthlyEntry `json:"monthly"`
	Summary  *core.YearlySummary `json:"summary"`
	Metadata exportMetadata      `json:"metadata"`
}

// ExportJSON renders the filtered working copy, the aggregates and an
// export timestamp as indented JSON.
func (s *Store) ExportJSON(f Filter) ([]byte, error) {
	s.mu.RLock()
	rows := filterRevenues(s.revenues, f)
	doc := export{
		Revenue: rows,
		Monthly: append([]core.MonthlyEntry{}, s.monthly...),
		Summary: s.summary,
		Metadata: exportMetadata{
			ExportedAt:   s.now().UTC(),
			Year:         s.currentYear,
			TotalRecords: len(rows),
		},
	}
	s.mu.RUnlock()

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return out, nil
}
