// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// query filters, path ids and JSON revenue bodies. Malformed values are
// collected as field errors rather than failing on the first one.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"revenue/internal/core"
)

const maxBodyBytes = 1 << 20

const (
	msgNotANumber  = "Harus berupa angka"
	msgInvalidJSON = "Invalid JSON body"
)

// queryParser reads integer and string query parameters and records every
// malformed one.
type queryParser struct {
	values url.Values
	errs   []core.FieldError
}

func newQueryParser(r *http.Request) *queryParser {
	return &queryParser{values: r.URL.Query()}
}

func (p *queryParser) str(key string) string {
	return sanitizeInput(p.values.Get(key))
}

// int returns def when the parameter is absent.
func (p *queryParser) int(key string, def int) int {
	v := strings.TrimSpace(p.values.Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, core.FieldError{Field: key, Message: msgNotANumber})
		return def
	}
	return n
}

func (p *queryParser) err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return core.NewValidationError(p.errs...)
}

// parseListFilter reads the filtered list parameters. Paging defaults are
// applied by the service.
func parseListFilter(r *http.Request) (core.ListFilter, error) {
	p := newQueryParser(r)
	f := core.ListFilter{
		Year:          p.int("year", 0),
		Month:         p.int("month", 0),
		Category:      core.Category(p.str("category")),
		PaymentStatus: core.PaymentStatus(p.str("payment_status")),
		Page:          p.int("page", 1),
		Limit:         p.int("limit", 0),
	}
	return f, p.err()
}

// parseYear reads ?year=, defaulting to the current year.
func parseYear(r *http.Request) (int, error) {
	p := newQueryParser(r)
	year := p.int("year", time.Now().Year())
	if err := p.err(); err != nil {
		return 0, err
	}
	if year < 1 || year > 9999 {
		return 0, core.NewValidationError(core.FieldError{Field: "year", Message: "Tahun tidak valid"})
	}
	return year, nil
}

// parseDetailQuery reads the monthly-detail parameters. Required fields and
// sort keys are checked by DetailQuery.Normalize.
func parseDetailQuery(r *http.Request) (core.DetailQuery, error) {
	p := newQueryParser(r)
	q := core.DetailQuery{
		Year:        p.int("year", 0),
		Month:       p.int("month", 0),
		Partner:     p.str("partner"),
		ServiceType: p.str("service_type"),
		Category:    core.Category(p.str("category")),
		Sort:        p.str("sort"),
		Order:       p.str("order"),
	}
	return q, p.err()
}

// pathID parses the {id} wildcard. ok is false for anything but a positive
// integer.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// decodeObject reads a JSON object body into raw fields.
func decodeObject(r *http.Request) (map[string]json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, &core.ValidationError{Message: "Request body too large"}
	}
	fields := make(map[string]json.RawMessage)
	if len(strings.TrimSpace(string(body))) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &core.ValidationError{Message: msgInvalidJSON}
	}
	return fields, nil
}

// revenueFieldMessages are the per-field messages for malformed values.
var revenueFieldMessages = map[string]string{
	"date":           core.MsgInvalidDate,
	"partner_id":     core.MsgInvalidPartnerID,
	"category":       core.MsgInvalidCategory,
	"service_type":   core.MsgEmptyServiceType,
	"amount":         core.MsgInvalidAmount,
	"payment_status": core.MsgInvalidPaymentStatus,
	"period_start":   core.MsgInvalidDate,
	"period_end":     core.MsgInvalidDate,
}

// parseRevenuePatch converts the present keys of a revenue body into a
// patch. Absent keys stay nil. Type errors are returned as field errors in
// body order of the known fields.
func parseRevenuePatch(fields map[string]json.RawMessage) (core.RevenuePatch, []core.FieldError) {
	var (
		patch core.RevenuePatch
		errs  []core.FieldError
	)
	fail := func(key string) {
		errs = append(errs, core.FieldError{Field: key, Message: revenueFieldMessages[key]})
	}

	if raw, ok := fields["date"]; ok {
		var d core.Date
		if err := json.Unmarshal(raw, &d); err != nil || d.IsZero() {
			fail("date")
		} else {
			patch.Date = &d
		}
	}
	if raw, ok := fields["partner_id"]; ok {
		if id, err := parseJSONInt(raw); err != nil || id <= 0 {
			fail("partner_id")
		} else {
			patch.PartnerID = &id
		}
	}
	if raw, ok := fields["category"]; ok {
		if s, err := parseJSONString(raw); err != nil {
			fail("category")
		} else {
			c := core.Category(s)
			patch.Category = &c
		}
	}
	if raw, ok := fields["service_type"]; ok {
		if s, err := parseJSONString(raw); err != nil {
			fail("service_type")
		} else {
			patch.ServiceType = &s
		}
	}
	if raw, ok := fields["amount"]; ok {
		var m core.Money
		if err := json.Unmarshal(raw, &m); err != nil {
			fail("amount")
		} else {
			patch.Amount = &m
		}
	}
	if raw, ok := fields["payment_status"]; ok {
		if s, err := parseJSONString(raw); err != nil {
			fail("payment_status")
		} else {
			ps := core.PaymentStatus(s)
			patch.PaymentStatus = &ps
		}
	}
	for key, dst := range map[string]**string{
		"payment_method": &patch.PaymentMethod,
		"invoice_number": &patch.InvoiceNumber,
		"description":    &patch.Description,
	} {
		if raw, ok := fields[key]; ok {
			if s, err := parseJSONString(raw); err != nil {
				errs = append(errs, core.FieldError{Field: key, Message: "Harus berupa teks"})
			} else {
				*dst = &s
			}
		}
	}
	for key, dst := range map[string]**core.Date{
		"period_start": &patch.PeriodStart,
		"period_end":   &patch.PeriodEnd,
	} {
		if raw, ok := fields[key]; ok {
			var d core.Date
			if err := json.Unmarshal(raw, &d); err != nil {
				fail(key)
			} else {
				*dst = &d
			}
		}
	}
	sortFieldErrors(errs)
	return patch, errs
}

// revenueFieldOrder is the order field errors are reported in.
var revenueFieldOrder = []string{
	"date", "partner_id", "category", "service_type", "amount", "payment_status",
	"payment_method", "invoice_number", "description", "period_start", "period_end",
}

func sortFieldErrors(errs []core.FieldError) {
	rank := func(field string) int {
		for i, f := range revenueFieldOrder {
			if f == field {
				return i
			}
		}
		return len(revenueFieldOrder)
	}
	for i := 1; i < len(errs); i++ {
		for j := i; j > 0 && rank(errs[j].Field) < rank(errs[j-1].Field); j-- {
			errs[j], errs[j-1] = errs[j-1], errs[j]
		}
	}
}

// parseRevenueInput builds a complete input from a create body. Malformed
// values and failed validation rules are reported together, one error per
// field.
func parseRevenueInput(fields map[string]json.RawMessage) (core.RevenueInput, error) {
	patch, typeErrs := parseRevenuePatch(fields)
	if _, ok := fields["amount"]; !ok {
		typeErrs = append(typeErrs, core.FieldError{Field: "amount", Message: core.MsgInvalidAmount})
	}
	in := patch.Apply(core.RevenueInput{})
	if len(typeErrs) == 0 {
		return in, in.Validate()
	}

	reported := make(map[string]bool, len(typeErrs))
	for _, fe := range typeErrs {
		reported[fe.Field] = true
	}
	all := typeErrs
	var ve *core.ValidationError
	if err := in.Validate(); errors.As(err, &ve) {
		for _, fe := range ve.Fields {
			if !reported[fe.Field] {
				all = append(all, fe)
			}
		}
	}
	sortFieldErrors(all)
	return in, core.NewValidationError(all...)
}

// parseIDs reads {"ids": [...]} accepting numbers or numeric strings.
func parseIDs(fields map[string]json.RawMessage) ([]int64, error) {
	required := &core.ValidationError{
		Message: core.MsgIDsRequired,
		Fields:  []core.FieldError{{Field: "ids", Message: core.MsgIDsRequired}},
	}
	raw, ok := fields["ids"]
	if !ok {
		return nil, required
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return nil, required
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, err := parseJSONInt(item)
		if err != nil {
			return nil, required
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseJSONInt accepts a JSON integer or a string holding one.
func parseJSONInt(raw json.RawMessage) (int64, error) {
	s := strings.TrimSpace(string(raw))
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	return strconv.ParseInt(s, 10, 64)
}

// parseJSONString accepts a JSON string or null, which reads as "".
func parseJSONString(raw json.RawMessage) (string, error) {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	if s == nil {
		return "", nil
	}
	return sanitizeInput(*s), nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
