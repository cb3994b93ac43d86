package sources

// http.go - Resilient HTTP fetching shared by the live NOAA adapters and
// the bulletin downloader: a circuit breaker around each upstream plus
// bounded exponential backoff. SWPC rate limits aggressively during
// geomagnetic storms, which is exactly when these products get polled.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
	errCircuitOpen = errors.New("circuit breaker open")
)

// Client fetches upstream URLs with retries and a shared circuit breaker.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker

	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewClient returns a Client with the house resilience settings: three
// retries from 500 ms doubling to a 5 s cap, breaker opening after the
// failure window and probing again after two minutes.
func NewClient(name string, timeout time.Duration) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		http:            &http.Client{Timeout: timeout},
		breaker:         cb,
		maxRetries:      3,
		initialInterval: 500 * time.Millisecond,
		maxInterval:     5 * time.Second,
	}
}

// Get fetches url and returns the response body. Rate limiting and 5xx
// responses are retried with backoff; an open breaker fails immediately.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if reqErr != nil {
				return nil, reqErr
			}
			resp, doErr := c.http.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				return nil, fmt.Errorf("%w: HTTP %d", errServerError, resp.StatusCode)
			case resp.StatusCode != http.StatusOK:
				return nil, fmt.Errorf("%w: HTTP %d", errUnexpected, resp.StatusCode)
			}

			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return nil, readErr
			}
			return body, nil
		})

		if err == nil {
			return result.([]byte), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= c.maxRetries {
			return nil, lastErr
		}

		delay := c.initialInterval << attempt
		if delay > c.maxInterval {
			delay = c.maxInterval
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
