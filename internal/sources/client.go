package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/joelkehle/trendsim/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

type ClientConfig struct {
	Name          string
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	MaxAttempts   int
	APIKey        string
}

// StatusError is a non-2xx collaborator answer.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

type failureClass string

const (
	failureTimeout   failureClass = "timeout"
	failureRateLimit failureClass = "rate_limit"
	failureServer    failureClass = "server"
	failureClient    failureClass = "client"
)

// Client is a JSON-over-HTTP client shared by the collaborator adapters. Every
// call is rate limited, retried on transient failures and guarded by a
// circuit breaker so a dead collaborator fails fast.
type Client struct {
	name        string
	baseURL     string
	apiKey      string
	http        *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	maxAttempts int
	backoff     func(attempt int) time.Duration
	metrics     *metrics.Registry
}

func NewClient(cfg ClientConfig, reg *metrics.Registry) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	c := &Client{
		name:        cfg.Name,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		http:        &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(limit, cfg.Burst),
		maxAttempts: cfg.MaxAttempts,
		backoff:     backoffDelay,
		metrics:     reg,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     cfg.Name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A 4xx is the caller's problem, not the collaborator's health.
		IsSuccessful: func(err error) bool {
			return err == nil || classifyTransportError(err) == failureClient
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("collaborator", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			reg.SetBreakerState(name, float64(to))
		},
	})
	return c
}

// DoJSON sends in (when non-nil) and decodes the answer into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		blob, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.name, err)
		}
		payload = blob
	}

	started := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}
		_, err := c.breaker.Execute(func() (any, error) {
			return nil, c.once(ctx, method, path, payload, out)
		})
		if err == nil {
			c.metrics.ObserveCollaborator(c.name, "ok", time.Since(started))
			return nil
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		class := classifyTransportError(err)
		if class == failureClient || ctx.Err() != nil || attempt == c.maxAttempts {
			break
		}
		log.Debug().Err(err).Str("collaborator", c.name).Int("attempt", attempt).Str("class", string(class)).Msg("retrying collaborator call")
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(c.backoff(attempt)):
			continue
		}
		break
	}
	c.metrics.ObserveCollaborator(c.name, "error", time.Since(started))
	return fmt.Errorf("%s: %w", c.name, lastErr)
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	blob, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(blob))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func classifyTransportError(err error) failureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusTooManyRequests:
			return failureRateLimit
		case se.Status >= 500:
			return failureServer
		default:
			return failureClient
		}
	}
	return failureServer
}

// backoffDelay stays well inside the per-query timeout.
func backoffDelay(attempt int) time.Duration {
	switch attempt {
	case 1:
		return 100 * time.Millisecond
	case 2:
		return 200 * time.Millisecond
	default:
		return 400 * time.Millisecond
	}
}
