package network

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitTransport throttles outbound requests with a token bucket.
type RateLimitTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

// NewRateLimitTransport allows perSecond requests per second with a burst of one.
func NewRateLimitTransport(base http.RoundTripper, perSecond float64) *RateLimitTransport {
	return &RateLimitTransport{
		Base:    base,
		Limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *RateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.Limiter.Wait(req.Context()); err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
