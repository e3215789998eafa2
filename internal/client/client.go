// Package client is a typed Go client for the revenue API. Every response is
// decoded into core.Envelope; failures surface as ErrUnauthorized or *APIError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"revenue/internal/core"
	"revenue/internal/log"
)

// DefaultListLimit is the page size used when a list call does not set one.
const DefaultListLimit = 100

// ErrUnauthorized is returned for 401 responses.
var ErrUnauthorized = errors.New("unauthorized: missing or invalid API token")

// APIError is a non-2xx response, or a 2xx envelope with success=false.
type APIError struct {
	Status  int
	Message string
	Errors  []core.FieldError
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, f := range e.Errors {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("api error %d: %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	logger       *log.Logger
	defaultLimit int
}

type Option func(*Client)

// WithToken sends Authorization: Bearer <token> on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithDefaultLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.defaultLimit = limit
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		defaultLimit: DefaultListLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Default().WithComponent(log.ComponentClient)
	}
	return c
}

// do sends one request and decodes the envelope into T.
func do[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any) (core.Envelope[T], error) {
	var env core.Envelope[T]

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return env, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return env, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return env, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "API request completed",
		log.FieldMethod, method,
		log.FieldPath, path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusUnauthorized {
		return env, ErrUnauthorized
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return env, fmt.Errorf("read response: %w", err)
	}
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil {
			if env.Message != "" {
				apiErr.Message = env.Message
			}
			apiErr.Errors = env.Errors
		}
		return env, apiErr
	}
	if decodeErr != nil {
		return env, fmt.Errorf("decode %s %s response: %w", method, path, decodeErr)
	}
	if !env.Success {
		return env, &APIError{Status: resp.StatusCode, Message: env.Message, Errors: env.Errors}
	}
	return env, nil
}

func listQuery(f core.ListFilter, defaultLimit int) url.Values {
	q := url.Values{}
	if f.Year > 0 {
		q.Set("year", strconv.Itoa(f.Year))
	}
	if f.Month > 0 {
		q.Set("month", strconv.Itoa(f.Month))
	}
	if f.Category != "" {
		q.Set("category", string(f.Category))
	}
	if f.PaymentStatus != "" {
		q.Set("payment_status", string(f.PaymentStatus))
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	return q
}

func yearQuery(year int) url.Values {
	if year <= 0 {
		return nil
	}
	return url.Values{"year": {strconv.Itoa(year)}}
}

func revenuePath(id int64) string {
	return "/revenue/" + strconv.FormatInt(id, 10)
}
