package api

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

	"github.com/basa-ph/basa/internal/observe"
	"github.com/basa-ph/basa/internal/remedial"
	"github.com/basa-ph/basa/internal/resilience"
)

// DefaultClientTimeout bounds a single request when no http.Client is given.
const DefaultClientTimeout = 10 * time.Second

// StatusError is returned by [Client] for a non-2xx response. It unwraps to
// [remedial.ErrValidation] for 400 and [remedial.ErrNotFound] for 404, so
// callers test server outcomes the same way the service does.
type StatusError struct {
	StatusCode    int
	Message       string
	Fields        []remedial.FieldError
	CorrelationID string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
	if e.CorrelationID != "" {
		msg += " (correlation " + e.CorrelationID + ")"
	}
	return msg
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return remedial.ErrValidation
	case http.StatusNotFound:
		return remedial.ErrNotFound
	case http.StatusConflict:
		return remedial.ErrConflict
	default:
		return nil
	}
}

// IsServerFailure reports whether err says something about the server's
// health. Client-side rejections (4xx) and cancelled contexts do not.
func IsServerFailure(err error) bool {
	if !resilience.DefaultIsFailure(err) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithCircuitBreaker replaces the default breaker configuration. Name and
// IsFailure are filled in when empty.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) ClientOption {
	return func(c *Client) { c.breakerCfg = cfg }
}

// Client is a typed client for the remedial session API. Every call goes
// through a circuit breaker so a capture session stops waiting on a server
// that keeps failing. It is safe for concurrent use.
type Client struct {
	baseURL    string
	http       *http.Client
	breakerCfg resilience.CircuitBreakerConfig
	breaker    *resilience.CircuitBreaker
}

// NewClient returns a Client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultClientTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	if c.breakerCfg.Name == "" {
		c.breakerCfg.Name = "api"
	}
	if c.breakerCfg.IsFailure == nil {
		c.breakerCfg.IsFailure = IsServerFailure
	}
	c.breaker = resilience.NewCircuitBreaker(c.breakerCfg)
	return c
}

// BreakerState returns the state of the client's circuit breaker.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// SubmitSession posts a session submission.
func (c *Client) SubmitSession(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("api: encode submission: %w", err)
	}
	var out SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/remedial/sessions", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchProgress returns the stored session for (studentID, scheduleID).
// Found is false when the student has not submitted yet.
func (c *Client) FetchProgress(ctx context.Context, studentID, scheduleID int64) (*remedial.Progress, error) {
	q := url.Values{}
	q.Set("studentId", strconv.FormatInt(studentID, 10))
	q.Set("approvedScheduleId", strconv.FormatInt(scheduleID, 10))

	var out remedial.Progress
	if err := c.do(ctx, http.MethodGet, "/api/remedial/sessions", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	err := c.breaker.Execute(func() error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return fmt.Errorf("api: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("api: %s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return decodeStatusError(resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("api: decode %s response: %w", path, err)
		}
		return nil
	})
	if err != nil {
		observe.Logger(ctx).Warn("api call failed", "method", method, "path", path, "err", err)
	}
	return err
}

func decodeStatusError(resp *http.Response) error {
	se := &StatusError{
		StatusCode:    resp.StatusCode,
		CorrelationID: resp.Header.Get(observe.CorrelationHeader),
	}
	var body ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		se.Message = body.Error
		se.Fields = body.Fields
	} else {
		se.Message = strings.TrimSpace(string(raw))
		if se.Message == "" {
			se.Message = http.StatusText(resp.StatusCode)
		}
	}
	return se
}
