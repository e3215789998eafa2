package core

import (
	"fmt"
	"strings"
)

// User-facing messages returned by the API.
const (
	MsgInvalidDate          = "Format tanggal tidak valid"
	MsgInvalidPartnerID     = "Partner ID wajib diisi dan harus berupa angka"
	MsgInvalidCategory      = "Kategori tidak valid"
	MsgEmptyServiceType     = "Jenis layanan wajib diisi"
	MsgInvalidAmount        = "Jumlah harus berupa angka"
	MsgInvalidPaymentStatus = "Status pembayaran tidak valid"
	MsgInvalidPeriod        = "Periode akhir harus setelah periode awal"
	MsgEmptyPartnerName     = "Nama partner wajib diisi"

	MsgValidation        = "Validation error"
	MsgPartnerNotFound   = "Partner tidak ditemukan"
	MsgRevenueNotFound   = "Data pendapatan tidak ditemukan"
	MsgDuplicateInvoice  = "Nomor invoice sudah digunakan"
	MsgYearMonthRequired = "Year and month are required"
	MsgIDsRequired       = "IDs array is required"
	MsgNoRevenuesFound   = "No revenues found"
	MsgServerError       = "Server error"
)

// FieldError names a single failing input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Message: MsgValidation, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// ConflictError reports a uniqueness violation.
type ConflictError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %q", e.Field, e.Value)
}

// PartnerNotFound is the validation failure for an unknown partner reference.
func PartnerNotFound() *ValidationError {
	return &ValidationError{
		Message: MsgPartnerNotFound,
		Fields:  []FieldError{{Field: "partner_id", Message: MsgPartnerNotFound}},
	}
}

// DuplicateInvoice is the conflict for an invoice number already in use.
func DuplicateInvoice(number string) *ConflictError {
	return &ConflictError{Field: "invoice_number", Value: number, Message: MsgDuplicateInvoice}
}
