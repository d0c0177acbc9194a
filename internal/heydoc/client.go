package heydoc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/wolfman30/heydoc-scheduler/pkg/logging"
)

const defaultTimeout = 15 * time.Second

var clientTracer = otel.Tracer("heydoc.internal.heydoc.client")

// TokenSource supplies the bearer token of the current session. An empty
// token sends the request unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RequestObserver receives one observation per backend round-trip.
type RequestObserver interface {
	ObserveAPIRequest(operation, outcome string, seconds float64)
}

// Client wraps the HeyDoc appointment REST endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	limiter    *rate.Limiter
	observer   RequestObserver
	logger     *logging.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit throttles outgoing requests to r per second with the given burst.
func WithRateLimit(r float64, burst int) Option {
	return func(c *Client) {
		if r <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithObserver records request outcomes, typically into Prometheus.
func WithObserver(o RequestObserver) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient constructs a HeyDoc REST client rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListAppointments returns the caller's appointments. The backend filters by
// role and answers with either a bare array or a paginated {results} page.
func (c *Client) ListAppointments(ctx context.Context) ([]Appointment, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, "list_appointments", http.MethodGet, "/appointments/", nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Appointment{}, nil
	}
	if raw[0] == '[' {
		var list []Appointment
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("list appointments: decode response: %w", err)
		}
		return list, nil
	}
	var page struct {
		Results []Appointment `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("list appointments: decode response: %w", err)
	}
	if page.Results == nil {
		return []Appointment{}, nil
	}
	return page.Results, nil
}

// GetAppointment fetches a single appointment by id.
func (c *Client) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	path := fmt.Sprintf("/appointments/%d/", id)
	var appt Appointment
	if err := c.doJSON(ctx, "get_appointment", http.MethodGet, path, nil, nil, &appt); err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return &appt, nil
}

// CreateAppointment submits a booking. Conflicts come back as an *APIError
// carrying the structured field errors.
func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	var appt Appointment
	if err := c.doJSON(ctx, "create_appointment", http.MethodPost, "/appointments/", nil, req, &appt); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return &appt, nil
}

// CancelAppointment asks the backend to cancel an appointment.
func (c *Client) CancelAppointment(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/appointments/%d/cancel/", id)
	if err := c.doJSON(ctx, "cancel_appointment", http.MethodPost, path, nil, nil, nil); err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	return nil
}

// AvailableSlots returns the ordered bookable times (HH:MM) for a doctor on date.
func (c *Client) AvailableSlots(ctx context.Context, doctorID int64, date string) ([]string, error) {
	q := url.Values{}
	q.Set("doctor_id", strconv.FormatInt(doctorID, 10))
	q.Set("date", date)

	var resp availableSlotsResponse
	if err := c.doJSON(ctx, "available_slots", http.MethodGet, "/appointments/available-slots/", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("get available slots: %w", err)
	}
	if resp.AvailableSlots == nil {
		return []string{}, nil
	}
	return resp.AvailableSlots, nil
}

// CheckDateAvailability asks whether a doctor has any free slot on date.
func (c *Client) CheckDateAvailability(ctx context.Context, doctorID int64, date string) (DateAvailability, error) {
	q := url.Values{}
	q.Set("doctor_id", strconv.FormatInt(doctorID, 10))
	q.Set("date", date)

	var resp DateAvailability
	if err := c.doJSON(ctx, "check_date_availability", http.MethodGet, "/appointments/check-date-availability/", q, nil, &resp); err != nil {
		return DateAvailability{}, fmt.Errorf("check date availability: %w", err)
	}
	return resp, nil
}

// CheckDatesAvailability checks several dates in one request. Results are
// positionally aligned with dates.
func (c *Client) CheckDatesAvailability(ctx context.Context, doctorID int64, dates []string) ([]DateAvailability, error) {
	q := url.Values{}
	q.Set("doctor_id", strconv.FormatInt(doctorID, 10))
	q.Set("dates", strings.Join(dates, ","))

	var resp []DateAvailability
	if err := c.doJSON(ctx, "check_dates_availability", http.MethodGet, "/appointments/check-date-availability/", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("check dates availability: %w", err)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, query url.Values, body interface{}, out interface{}) (err error) {
	ctx, span := clientTracer.Start(ctx, "heydoc."+operation)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("heydoc.path", path),
	)

	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			if apiErr, ok := AsAPIError(err); ok {
				outcome = strconv.Itoa(apiErr.StatusCode)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if c.observer != nil {
			c.observer.ObserveAPIRequest(operation, outcome, time.Since(start).Seconds())
		}
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("session token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Path:       path,
			Body:       string(respBody),
			Fields:     parseFieldErrors(respBody),
		}
		c.logger.Warn("heydoc API non-2xx response",
			"status", resp.StatusCode,
			"path", path,
			"request_id", requestID,
		)
		return apiErr
	}

	if len(bytes.TrimSpace(respBody)) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
