package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var monthAbbrev = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

var monthNamesID = [12]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// MonthAbbrev returns the short English label used by the monthly series.
func MonthAbbrev(month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return monthAbbrev[month-1]
}

// MonthNameID returns the Indonesian month name.
func MonthNameID(month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return monthNamesID[month-1]
}

// PeriodBounds returns the half-open [start, end) range for a year, or for a
// single month when month is 1-12.
func PeriodBounds(year, month int) (Date, Date) {
	if month < 1 || month > 12 {
		return NewDate(year, 1, 1), NewDate(year+1, 1, 1)
	}
	start := NewDate(year, month, 1)
	return start, Date{Time: start.AddDate(0, 1, 0)}
}

type (
	Pagination struct {
		Total      int64 `json:"total"`
		Page       int   `json:"page"`
		Limit      int   `json:"limit"`
		TotalPages int   `json:"totalPages"`
	}

	// ListFilter selects ledger rows for the paginated list.
	ListFilter struct {
		Year          int
		Month         int
		Category      Category
		PaymentStatus PaymentStatus
		Page          int
		Limit         int
	}

	// DetailQuery selects and orders rows for the monthly detail view.
	DetailQuery struct {
		Year        int
		Month       int
		Partner     string
		ServiceType string
		Category    Category
		Sort        string
		Order       string
	}

	MonthlyEntry struct {
		Month          string `json:"month"`
		MonthNumber    int    `json:"monthNumber"`
		Aeronautika    Money  `json:"aeronautika"`
		NonAeronautika Money  `json:"nonAeronautika"`
		Total          Money  `json:"total"`
		Transactions   int64  `json:"transactions"`
	}

	SummaryTotals struct {
		TotalRevenue          Money `json:"totalRevenue"`
		TotalTransactions     int64 `json:"totalTransactions"`
		AeronautikaRevenue    Money `json:"aeronautikaRevenue"`
		NonAeronautikaRevenue Money `json:"nonAeronautikaRevenue"`
		PaidAmount            Money `json:"paidAmount"`
		PendingAmount         Money `json:"pendingAmount"`
		OverdueAmount         Money `json:"overdueAmount"`
	}

	ServiceTotal struct {
		Name   string `json:"name"`
		Amount Money  `json:"amount"`
		Count  int64  `json:"count"`
	}

	PartnerTotal struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Amount Money  `json:"amount"`
		Count  int64  `json:"count"`
	}

	YearlySummary struct {
		Summary     SummaryTotals  `json:"summary"`
		TopServices []ServiceTotal `json:"topServices"`
		TopPartners []PartnerTotal `json:"topPartners"`
	}

	PeriodTotals struct {
		TotalRevenue      Money `json:"totalRevenue"`
		TotalTransactions int64 `json:"totalTransactions"`
	}

	OverviewTotals struct {
		TotalRevenue      Money           `json:"totalRevenue"`
		TotalTransactions int64           `json:"totalTransactions"`
		AverageAmount     decimal.Decimal `json:"averageAmount"`
		MaxAmount         Money           `json:"maxAmount"`
		MinAmount         Money           `json:"minAmount"`
		RevenueGrowth     decimal.Decimal `json:"revenueGrowth"`
		TransactionGrowth decimal.Decimal `json:"transactionGrowth"`
		PreviousYear      PeriodTotals    `json:"previousYear"`
	}

	MonthTotal struct {
		Month int   `json:"month"`
		Total Money `json:"total"`
	}

	CategoryStat struct {
		Category Category        `json:"category"`
		Total    Money           `json:"total"`
		Count    int64           `json:"count"`
		Average  decimal.Decimal `json:"average"`
	}

	StatusStat struct {
		Status PaymentStatus `json:"status"`
		Total  Money         `json:"total"`
		Count  int64         `json:"count"`
	}

	StatsOverview struct {
		Overview               OverviewTotals `json:"overview"`
		MonthlyGrowth          []MonthTotal   `json:"monthlyGrowth"`
		CategoryBreakdown      []CategoryStat `json:"categoryBreakdown"`
		PaymentStatusBreakdown []StatusStat   `json:"paymentStatusBreakdown"`
	}

	Period struct {
		Year      int    `json:"year"`
		Month     int    `json:"month"`
		MonthName string `json:"monthName"`
	}

	DetailSummary struct {
		TotalAmount          Money `json:"totalAmount"`
		TotalTransactions    int64 `json:"totalTransactions"`
		AeronautikaAmount    Money `json:"aeronautikaAmount"`
		AeronautikaCount     int64 `json:"aeronautikaCount"`
		NonAeronautikaAmount Money `json:"nonAeronautikaAmount"`
		NonAeronautikaCount  int64 `json:"nonAeronautikaCount"`
	}

	PartnerGroup struct {
		Partner string `json:"partner"`
		Amount  Money  `json:"amount"`
		Count   int64  `json:"count"`
	}

	ServiceGroup struct {
		ServiceType string   `json:"serviceType"`
		Category    Category `json:"category"`
		Amount      Money    `json:"amount"`
		Count       int64    `json:"count"`
	}

	Breakdown struct {
		ByPartner []PartnerGroup `json:"byPartner"`
		ByService []ServiceGroup `json:"byService"`
	}

	MonthlyDetail struct {
		Period       Period        `json:"period"`
		Summary      DetailSummary `json:"summary"`
		Transactions []Revenue     `json:"transactions"`
		Breakdown    Breakdown     `json:"breakdown"`
	}

	// BulkDeleteResult describes a committed bulk delete.
	BulkDeleteResult struct {
		Deleted int       `json:"deleted"`
		IDs     []int64   `json:"ids"`
		Missing []int64   `json:"missing,omitempty"`
		Removed []Revenue `json:"-"`
	}
)

// NewPagination derives page metadata; totalPages rounds up.
func NewPagination(total int64, page, limit int) Pagination {
	p := Pagination{Total: total, Page: page, Limit: limit}
	if limit > 0 {
		p.TotalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return p
}

// Offset returns the row offset of the filter's page.
func (f ListFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Envelope is the single response shape of every API endpoint.
type Envelope[T any] struct {
	Success    bool         `json:"success"`
	Message    string       `json:"message,omitempty"`
	Data       T            `json:"data,omitempty"`
	Pagination *Pagination  `json:"pagination,omitempty"`
	Errors     []FieldError `json:"errors,omitempty"`
}

// DetailSortFields lists the accepted monthly-detail sort keys.
var DetailSortFields = []string{"date", "amount", "service_type", "category", "payment_status", "partner", "created_at"}

// Normalize applies the defaults (sort=date, order=DESC) and validates the query.
func (q DetailQuery) Normalize() (DetailQuery, error) {
	if q.Year <= 0 || q.Month < 1 || q.Month > 12 {
		return q, &ValidationError{
			Message: MsgYearMonthRequired,
			Fields:  []FieldError{{Field: "month", Message: MsgYearMonthRequired}},
		}
	}
	var fields []FieldError
	if q.Category != "" && !q.Category.Valid() {
		fields = append(fields, FieldError{Field: "category", Message: MsgInvalidCategory})
	}
	if q.Sort == "" {
		q.Sort = "date"
	}
	validSort := false
	for _, f := range DetailSortFields {
		if q.Sort == f {
			validSort = true
			break
		}
	}
	if !validSort {
		fields = append(fields, FieldError{Field: "sort", Message: "Invalid sort field"})
	}
	switch strings.ToUpper(q.Order) {
	case "":
		q.Order = "DESC"
	case "ASC", "DESC":
		q.Order = strings.ToUpper(q.Order)
	default:
		fields = append(fields, FieldError{Field: "order", Message: "Invalid sort order"})
	}
	if len(fields) > 0 {
		return q, NewValidationError(fields...)
	}
	return q, nil
}
