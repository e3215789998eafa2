package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	CategoryAeronautika    Category = "aeronautika"
	CategoryNonAeronautika Category = "non-aeronautika"

	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
	PaymentOverdue PaymentStatus = "overdue"
)

const (
	// UnknownPartner labels transactions whose partner relation is missing.
	UnknownPartner = "Unknown Partner"
	// UnknownPartnerGroup labels the same rows inside partner breakdowns.
	UnknownPartnerGroup = "Unknown"
)

type (
	Category      string
	PaymentStatus string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Partner struct {
		ID                int64     `json:"id"`
		Name              string    `json:"name"`
		TotalTransactions int64     `json:"total_transactions"`
		TotalAmount       Money     `json:"total_amount"`
		CreatedAt         time.Time `json:"created_at"`
		UpdatedAt         time.Time `json:"updated_at"`
	}

	// PartnerRef is the partner projection embedded in revenue rows.
	PartnerRef struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	Revenue struct {
		ID            int64         `json:"id"`
		Date          Date          `json:"date"`
		PartnerID     int64         `json:"partner_id"`
		Partner       *PartnerRef   `json:"partner"`
		Category      Category      `json:"category"`
		ServiceType   string        `json:"service_type"`
		Amount        Money         `json:"amount"`
		PaymentStatus PaymentStatus `json:"payment_status"`
		PaymentMethod string        `json:"payment_method,omitempty"`
		InvoiceNumber string        `json:"invoice_number,omitempty"`
		Description   string        `json:"description,omitempty"`
		PeriodStart   Date          `json:"period_start"`
		PeriodEnd     Date          `json:"period_end"`
		CreatedAt     time.Time     `json:"created_at"`
		UpdatedAt     time.Time     `json:"updated_at"`
	}

	// RevenueInput carries the fields of a new ledger row.
	RevenueInput struct {
		Date          Date
		PartnerID     int64
		Category      Category
		ServiceType   string
		Amount        Money
		PaymentStatus PaymentStatus
		PaymentMethod string
		InvoiceNumber string
		Description   string
		PeriodStart   Date
		PeriodEnd     Date
	}

	// RevenuePatch is a partial update; nil fields are left untouched.
	RevenuePatch struct {
		Date          *Date
		PartnerID     *int64
		Category      *Category
		ServiceType   *string
		Amount        *Money
		PaymentStatus *PaymentStatus
		PaymentMethod *string
		InvoiceNumber *string
		Description   *string
		PeriodStart   *Date
		PeriodEnd     *Date
	}
)

var (
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidCategory      = errors.New("invalid category")
	ErrInvalidPaymentStatus = errors.New("invalid payment status")
	ErrEmptyServiceType     = errors.New("empty service type")
	ErrInvalidPartnerID     = errors.New("invalid partner id")
	ErrEmptyPartnerName     = errors.New("empty partner name")
)

// Categories lists the category enum in display order.
func Categories() []Category {
	return []Category{CategoryAeronautika, CategoryNonAeronautika}
}

// PaymentStatuses lists the payment status enum in display order.
func PaymentStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentPaid, PaymentPending, PaymentOverdue}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryAeronautika, CategoryNonAeronautika:
		return true
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPaid, PaymentPending, PaymentOverdue:
		return true
	}
	return false
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseDate accepts a calendar date or an ISO8601 timestamp and keeps only
// the calendar part as written.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Year(), int(t.Month()), t.Day()), nil
		}
	}
	return Date{}, ErrInvalidDate
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidDate
	}
	if s == nil || strings.TrimSpace(*s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks a complete input and reports every failing field.
func (in RevenueInput) Validate() error {
	var fields []FieldError
	if in.Date.IsZero() {
		fields = append(fields, FieldError{Field: "date", Message: MsgInvalidDate})
	}
	if in.PartnerID <= 0 {
		fields = append(fields, FieldError{Field: "partner_id", Message: MsgInvalidPartnerID})
	}
	if !in.Category.Valid() {
		fields = append(fields, FieldError{Field: "category", Message: MsgInvalidCategory})
	}
	if strings.TrimSpace(in.ServiceType) == "" {
		fields = append(fields, FieldError{Field: "service_type", Message: MsgEmptyServiceType})
	}
	if in.Amount.Cents < 0 || in.Amount.Cents > MaxAmount {
		fields = append(fields, FieldError{Field: "amount", Message: MsgInvalidAmount})
	}
	if !in.PaymentStatus.Valid() {
		fields = append(fields, FieldError{Field: "payment_status", Message: MsgInvalidPaymentStatus})
	}
	if !in.PeriodStart.IsZero() && !in.PeriodEnd.IsZero() && in.PeriodEnd.Before(in.PeriodStart.Time) {
		fields = append(fields, FieldError{Field: "period_end", Message: MsgInvalidPeriod})
	}
	if len(fields) > 0 {
		return NewValidationError(fields...)
	}
	return nil
}

// Input returns the row as an input, for merging patches.
func (r Revenue) Input() RevenueInput {
	return RevenueInput{
		Date:          r.Date,
		PartnerID:     r.PartnerID,
		Category:      r.Category,
		ServiceType:   r.ServiceType,
		Amount:        r.Amount,
		PaymentStatus: r.PaymentStatus,
		PaymentMethod: r.PaymentMethod,
		InvoiceNumber: r.InvoiceNumber,
		Description:   r.Description,
		PeriodStart:   r.PeriodStart,
		PeriodEnd:     r.PeriodEnd,
	}
}

// Apply merges the non-nil fields of p into in.
func (p RevenuePatch) Apply(in RevenueInput) RevenueInput {
	if p.Date != nil {
		in.Date = *p.Date
	}
	if p.PartnerID != nil {
		in.PartnerID = *p.PartnerID
	}
	if p.Category != nil {
		in.Category = *p.Category
	}
	if p.ServiceType != nil {
		in.ServiceType = *p.ServiceType
	}
	if p.Amount != nil {
		in.Amount = *p.Amount
	}
	if p.PaymentStatus != nil {
		in.PaymentStatus = *p.PaymentStatus
	}
	if p.PaymentMethod != nil {
		in.PaymentMethod = *p.PaymentMethod
	}
	if p.InvoiceNumber != nil {
		in.InvoiceNumber = *p.InvoiceNumber
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.PeriodStart != nil {
		in.PeriodStart = *p.PeriodStart
	}
	if p.PeriodEnd != nil {
		in.PeriodEnd = *p.PeriodEnd
	}
	return in
}

// IsEmpty reports whether the patch changes nothing.
func (p RevenuePatch) IsEmpty() bool {
	return p == RevenuePatch{}
}

// PartnerName resolves the display name, falling back to UnknownPartner.
func (r Revenue) PartnerName() string {
	if r.Partner == nil || r.Partner.Name == "" {
		return UnknownPartner
	}
	return r.Partner.Name
}
