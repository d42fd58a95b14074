package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ahmedkamals/geostream"
	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type (
	// Client performs throttled, retried GET requests against a JSON web service.
	Client struct {
		http            *http.Client
		limiter         *rate.Limiter
		maxRetries      uint64
		initialInterval time.Duration
		userAgent       string
		logger          *zap.Logger
	}

	// Option customises a Client.
	Option func(*Client)
)

// maxBodySize bounds the responses read from a service.
const maxBodySize = 1 << 20

// WithHTTPClient replaces the http client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// WithTimeout sets the per attempt timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// WithRequestsPerMinute throttles the client; zero or less disables throttling.
func WithRequestsPerMinute(requests int) Option {
	return func(c *Client) {
		if requests <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requests)), 1)
	}
}

// WithRetries sets the number of retries after a failed attempt and the first retry delay.
func WithRetries(maxRetries uint64, initialInterval time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialInterval = initialInterval
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client.
func New(options ...Option) *Client {
	c := &Client{
		http:            &http.Client{Timeout: 10 * time.Second},
		limiter:         rate.NewLimiter(rate.Inf, 1),
		initialInterval: 500 * time.Millisecond,
		userAgent:       "geostream",
		logger:          zap.NewNop(),
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Get fetches url and returns the body of a 200 response.
// Non 200 statuses map onto the geostream error kinds; 5xx and network failures are retried.
func (c *Client) Get(ctx context.Context, op string, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, geostream.NewError(op, geostream.ErrUsageLimitReached, err)
	}

	var body []byte

	attempt := 0
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)

	err := backoff.Retry(func() error {
		attempt++
		c.logger.Debug("http request", zap.String("url", url), zap.Int("attempt", attempt))

		var err error
		body, err = c.get(ctx, op, url)

		return err
	}, retry)

	return body, err
}

func (c *Client) get(ctx context.Context, op string, url string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(geostream.NewError(op, geostream.ErrInvalid, err))
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", c.userAgent)

	response, err := c.http.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(geostream.NewError(op, geostream.ErrCancelled, ctx.Err()))
		}

		return nil, geostream.NewError(op, geostream.ErrInternal, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodySize))
	if err != nil {
		return nil, geostream.NewError(op, geostream.ErrInternal, err)
	}

	if err := StatusError(op, response.StatusCode); err != nil {
		if response.StatusCode >= http.StatusInternalServerError {
			return nil, err
		}

		return nil, backoff.Permanent(err)
	}

	return body, nil
}

// StatusError maps an HTTP status onto the geostream error kinds, nil for 200.
func StatusError(op string, status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return geostream.NewError(op, geostream.ErrInvalidAPIKey, nil)
	case status == http.StatusTooManyRequests:
		return geostream.NewError(op, geostream.ErrUsageLimitReached, nil)
	case status == http.StatusNotFound:
		return geostream.NewError(op, geostream.ErrNotFound, nil)
	}

	return geostream.NewError(op, geostream.ErrInternal, fmt.Errorf("unexpected status %d", status))
}
