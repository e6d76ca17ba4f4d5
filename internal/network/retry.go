package network

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dojoctl/internal/config"
)

// RetryPolicy encapsulates the rules for retrying failed or transient HTTP
// requests with exponential backoff.
type RetryPolicy struct {
	// Maximum number of retry attempts after the initial request fails.
	MaxRetries int
	// Base duration to wait before the first retry.
	InitialBackoff time.Duration
	// Upper limit for any single wait, including Retry-After hints.
	MaxBackoff time.Duration
	// Multiplier for the exponential backoff calculation (e.g., 2.0).
	BackoffFactor float64
	// Jitter scales each wait by a random factor in [0.5, 1.0).
	Jitter bool
	// HTTP status codes that trigger a retry.
	RetryableStatusCodes map[int]bool
}

// NewDefaultRetryPolicy returns 3 retries with 1s, 2s, 4s backoff for 429 and
// the common 5xx statuses.
func NewDefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		RetryableStatusCodes: map[int]bool{
			http.StatusTooManyRequests:     true,
			http.StatusInternalServerError: true,
			http.StatusBadGateway:          true,
			http.StatusServiceUnavailable:  true,
			http.StatusGatewayTimeout:      true,
		},
	}
}

// RetryPolicyFromConfig converts the configuration section into a policy.
// Zero values fall back to the defaults.
func RetryPolicyFromConfig(rc config.RetryConfig) *RetryPolicy {
	p := NewDefaultRetryPolicy()
	p.MaxRetries = rc.MaxRetries
	if rc.InitialBackoff > 0 {
		p.InitialBackoff = rc.InitialBackoff
	}
	if rc.MaxBackoff > 0 {
		p.MaxBackoff = rc.MaxBackoff
	}
	if rc.BackoffFactor > 0 {
		p.BackoffFactor = rc.BackoffFactor
	}
	p.Jitter = rc.Jitter
	if len(rc.StatusCodes) > 0 {
		p.RetryableStatusCodes = make(map[int]bool, len(rc.StatusCodes))
		for _, code := range rc.StatusCodes {
			p.RetryableStatusCodes[code] = true
		}
	}
	return p
}

// Backoff returns the wait before retry number attempt (1-based).
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt-1))

	if backoff > float64(p.MaxBackoff) || backoff <= 0 {
		if p.MaxBackoff > 0 {
			backoff = float64(p.MaxBackoff)
		} else {
			return p.InitialBackoff
		}
	}

	duration := time.Duration(backoff)
	if p.Jitter && duration > 0 {
		jitterFactor := 0.5 + rand.Float64()*0.5
		duration = time.Duration(float64(duration) * jitterFactor)
	}
	return duration
}

// RetryTransport is an http.RoundTripper that replays a request on transport
// errors and retryable statuses. Request bodies are replayed via GetBody, which
// http.NewRequest populates for in-memory readers.
type RetryTransport struct {
	Base   http.RoundTripper
	Policy *RetryPolicy
	// AttemptTimeout bounds each attempt. Zero means no per-attempt limit.
	AttemptTimeout time.Duration
	Logger         *zap.Logger

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	policy := t.Policy
	if policy == nil {
		policy = NewDefaultRetryPolicy()
	}
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleep := t.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	ctx := req.Context()
	for attempt := 0; ; attempt++ {
		attemptReq, cancel, err := t.prepareAttempt(req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := base.RoundTrip(attemptReq)
		if resp != nil {
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		} else {
			cancel()
		}

		retry, wait := t.shouldRetry(ctx, req, resp, err, policy, attempt)
		if !retry {
			return resp, err
		}

		fields := []zap.Field{
			zap.Int("attempt", attempt+1),
			zap.String("method", req.Method),
			zap.String("url", req.URL.Redacted()),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		if resp != nil {
			fields = append(fields, zap.Int("status", resp.StatusCode))
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		if wait == 0 {
			wait = policy.Backoff(attempt + 1)
		}
		fields = append(fields, zap.Duration("backoff", wait))
		logger.Warn("Retrying request", fields...)

		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (t *RetryTransport) prepareAttempt(req *http.Request, attempt int) (*http.Request, context.CancelFunc, error) {
	ctx := req.Context()
	cancel := context.CancelFunc(func() {})
	if t.AttemptTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.AttemptTimeout)
	}

	attemptReq := req.Clone(ctx)
	if attempt > 0 && req.Body != nil && req.Body != http.NoBody {
		body, err := req.GetBody()
		if err != nil {
			cancel()
			return nil, nil, err
		}
		attemptReq.Body = body
	}
	return attemptReq, cancel, nil
}

// shouldRetry determines if the request should be retried and, when the
// server supplied a Retry-After hint, how long to wait.
func (t *RetryTransport) shouldRetry(ctx context.Context, req *http.Request, resp *http.Response, err error, policy *RetryPolicy, attempt int) (bool, time.Duration) {
	if attempt >= policy.MaxRetries {
		return false, 0
	}
	if ctx.Err() != nil {
		return false, 0
	}
	// A body that cannot be rewound cannot be sent twice.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return false, 0
	}

	if err != nil {
		return !errors.Is(err, context.Canceled), 0
	}

	if !policy.RetryableStatusCodes[resp.StatusCode] {
		return false, 0
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if wait := parseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			if policy.MaxBackoff > 0 && wait > policy.MaxBackoff {
				wait = policy.MaxBackoff
			}
			return true, wait
		}
	}
	return true, 0
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if date, err := http.ParseTime(value); err == nil {
		if d := time.Until(date); d > 0 {
			return d
		}
	}
	return 0
}

// cancelOnClose releases the attempt context once the caller is done with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
