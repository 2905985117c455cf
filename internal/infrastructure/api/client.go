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
	"strings"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultErrorMessage = "API request failed"

// Config configures the live backend client
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RateLimit   float64 // requests per second
	Burst       int
	MaxAttempts int
	UserAgent   string
}

// Client talks to the live DealPop backend
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	rateLimiter *rate.Limiter
	maxAttempts int
	logger      zerolog.Logger
	debug       bool
	backoff     func(attempt int) time.Duration
}

// NewClient creates a new live backend client
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "DealPop-Dashboard/1.0"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		maxAttempts: cfg.MaxAttempts,
		logger:      logger.With().Str("component", "api_client").Logger(),
		backoff:     exponentialBackoff,
	}
}

// SetDebug enables logging of response bodies
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// exponentialBackoff returns 500ms, 1s, 2s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

type request struct {
	op       string
	method   string
	path     string
	query    url.Values
	body     any
	public   bool  // no bearer token
	notFound error // sentinel for 404
}

// do executes a request and returns the response body of a 2xx reply.
// Only GET requests are retried, on transport errors, 429 and 5xx.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	var bearer string
	if !req.public {
		user := domain.UserFromContext(ctx)
		if user == nil || user.Token == "" {
			return nil, domain.ErrNotAuthenticated
		}
		bearer = user.Token
	}

	var payload []byte
	if req.body != nil {
		var err error
		if payload, err = json.Marshal(req.body); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	reqURL := c.baseURL + req.path
	if len(req.query) > 0 {
		reqURL += "?" + req.query.Encode()
	}

	attempts := 1
	if req.method == http.MethodGet {
		attempts = c.maxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, c.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		status, body, err := c.doRequest(ctx, req.method, reqURL, payload, bearer)
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Str("op", req.op).Str("path", req.path).Msg("Request failed")
			lastErr = err
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}
		if c.debug {
			c.logger.Debug().Int("status", status).Str("op", req.op).Str("path", req.path).Bytes("body", body).Msg("Response")
		}

		if status >= 200 && status < 300 {
			return body, nil
		}

		apiErr := decodeError(status, body, req.notFound)
		lastErr = apiErr
		if status == http.StatusTooManyRequests || status >= 500 {
			c.logger.Warn().Int("status", status).Int("attempt", attempt).Str("op", req.op).Str("path", req.path).Msg("Retryable API error")
			continue
		}
		return nil, apiErr
	}
	return nil, lastErr
}

// doRequest executes one HTTP request with proper headers
func (c *Client) doRequest(ctx context.Context, method, reqURL string, payload []byte, bearer string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrBackendFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading body: %v", domain.ErrBackendFailure, err)
	}
	return resp.StatusCode, data, nil
}

// errorBody covers {"error":{"message":..}}, {"error":".."} and {"message":..}
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

func decodeError(status int, body []byte, notFound error) *domain.APIError {
	message := defaultErrorMessage
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		var nested struct {
			Message string `json:"message"`
		}
		var flat string
		switch {
		case len(eb.Error) > 0 && json.Unmarshal(eb.Error, &nested) == nil && nested.Message != "":
			message = nested.Message
		case len(eb.Error) > 0 && json.Unmarshal(eb.Error, &flat) == nil && flat != "":
			message = flat
		case eb.Message != "":
			message = eb.Message
		}
	}

	var sentinel error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = domain.ErrNotAuthenticated
	case status == http.StatusNotFound && notFound != nil:
		sentinel = notFound
	case status == http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimited
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		sentinel = domain.ErrInvalidRequest
	default:
		sentinel = domain.ErrBackendFailure
	}
	return &domain.APIError{StatusCode: status, Message: message, Err: sentinel}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Ping checks the backend health endpoint once, without retries
func (c *Client) Ping(ctx context.Context) error {
	status, _, err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/health", nil, "")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: health status %d", domain.ErrBackendUnavailable, status)
	}
	return nil
}

// isNotFound reports whether err is a 404 from the backend
func isNotFound(err error) bool {
	var apiErr *domain.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
