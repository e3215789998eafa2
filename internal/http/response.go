// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON envelope
// responses. Every endpoint answers with the same shape:
//
//	{ "success": bool, "message"?: string, "data"?: T, "pagination"?: {...}, "errors"?: [...] }
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"revenue/internal/core"
	"revenue/internal/log"
)

// ResponseBuilder provides a fluent API for building envelope responses.
type ResponseBuilder struct {
	statusCode int
	envelope   core.Envelope[any]
	headers    map[string]string
}

// NewResponse creates a successful 200 response builder.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		envelope:   core.Envelope[any]{Success: true},
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code. Codes of 400 and above mark the
// envelope unsuccessful.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	b.envelope.Success = code < http.StatusBadRequest
	return b
}

func (b *ResponseBuilder) Message(msg string) *ResponseBuilder {
	b.envelope.Message = msg
	return b
}

func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.envelope.Data = data
	return b
}

func (b *ResponseBuilder) Pagination(p core.Pagination) *ResponseBuilder {
	b.envelope.Pagination = &p
	return b
}

func (b *ResponseBuilder) Errors(fields []core.FieldError) *ResponseBuilder {
	b.envelope.Errors = fields
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the envelope as JSON.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	body, err := json.Marshal(b.envelope)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"` + core.MsgServerError + `"}`))
		return
	}
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// ErrorResponse creates an unsuccessful response with a message.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).Message(message)
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError() *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, core.MsgServerError)
}

// notFoundMessages maps a missing resource to its user-facing message.
var notFoundMessages = map[string]string{
	"revenue":  core.MsgRevenueNotFound,
	"revenues": core.MsgNoRevenuesFound,
	"partner":  core.MsgPartnerNotFound,
}

// writeError maps the core error taxonomy to a status and envelope. Unknown
// errors are logged through the request-scoped logger, which carries the
// request id, and answered with a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *core.ValidationError
		conflictErr   *core.ConflictError
		notFoundErr   *core.NotFoundError
	)
	switch {
	case errors.As(err, &validationErr):
		BadRequestError(validationErr.Message).Errors(validationErr.Fields).Write(w)
	case errors.As(err, &conflictErr):
		BadRequestError(conflictErr.Message).
			Errors([]core.FieldError{{Field: conflictErr.Field, Message: conflictErr.Message}}).
			Write(w)
	case errors.As(err, &notFoundErr):
		msg, ok := notFoundMessages[notFoundErr.Resource]
		if !ok {
			msg = "Not found"
		}
		NotFoundError(msg).Write(w)
	default:
		ctx := r.Context()
		log.FromContext(ctx).ErrorContext(ctx, "Request failed",
			log.FieldError, err,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		InternalServerError().Write(w)
	}
}
