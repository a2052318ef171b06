// Package divination calls the calendar (kyusei) and name analysis (seimei) services.
//
// Each service sits behind its own circuit breaker. Callers treat any error as an absent
// section, so the clients never panic and never block past their configured timeout.
package divination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ankek/unmeiori/internal/metrics"
)

// ErrUnavailable is returned while a service's breaker is open
var ErrUnavailable = errors.New("divination service unavailable")

const maxResponseBytes = 4 << 20

// Options configures one service client
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
	// BreakerFailures is the number of consecutive failures that opens the breaker
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Logger          zerolog.Logger
}

// StatusError is a non-2xx reply
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// client is the transport shared by both services
type client struct {
	service string
	baseURL string
	http    *retryablehttp.Client
	cb      *gobreaker.CircuitBreaker[map[string]any]
	log     zerolog.Logger
}

func newClient(service string, opts Options) *client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = time.Minute
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = opts.RetryMax
	hc.RetryWaitMin = 100 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	hc.HTTPClient.Timeout = opts.Timeout
	hc.Logger = nil
	// Hand the last response back instead of a generic "giving up" error
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	log := opts.Logger.With().Str("service", service).Logger()
	threshold := opts.BreakerFailures
	metrics.BreakerState.WithLabelValues(service).Set(0)

	cb := gobreaker.NewCircuitBreaker[map[string]any](gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A rejected request says nothing about the service's health
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &client{
		service: service,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		cb:      cb,
		log:     log,
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// postJSON sends body to path and decodes a JSON object reply
func (c *client) postJSON(ctx context.Context, path string, body any) (map[string]any, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%s: no service URL configured", c.service)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	start := time.Now()
	out, err := c.cb.Execute(func() (map[string]any, error) {
		return c.do(ctx, http.MethodPost, path, payload)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ServiceCalls.WithLabelValues(c.service, "rejected").Inc()
		return nil, fmt.Errorf("%s: %w", c.service, ErrUnavailable)
	case err != nil:
		metrics.ServiceCalls.WithLabelValues(c.service, "failure").Inc()
		c.log.Warn().Err(err).Str("path", path).Dur("duration", time.Since(start)).Msg("Service call failed")
		return nil, fmt.Errorf("%s %s: %w", c.service, path, err)
	}
	metrics.ServiceCalls.WithLabelValues(c.service, "success").Inc()
	c.log.Debug().Str("path", path).Dur("duration", time.Since(start)).Msg("Service call completed")
	return out, nil
}

func (c *client) do(ctx context.Context, method, path string, payload []byte) (map[string]any, error) {
	var body any
	if payload != nil {
		body = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: clip(data)}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

// Healthy probes GET /health. Health checks bypass the breaker.
func (c *client) Healthy(ctx context.Context) error {
	if c.baseURL == "" {
		return fmt.Errorf("%s: no service URL configured", c.service)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", c.service, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %w", c.service, &StatusError{Code: resp.StatusCode})
	}
	return nil
}

// State reports the breaker state for status output
func (c *client) State() string {
	return c.cb.State().String()
}

func clip(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
