// File: internal/network/httpclient.go
package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/xkilldash9x/dojoctl/internal/config"
	"github.com/xkilldash9x/dojoctl/internal/observability"
)

// Constants for default TCP/HTTP settings.
const (
	DefaultDialTimeout         = 10 * time.Second
	DefaultKeepAliveInterval   = 30 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultRequestTimeout      = 30 * time.Second
	DefaultUploadTimeout       = 120 * time.Second

	DefaultMaxIdleConns        = 10
	DefaultMaxIdleConnsPerHost = 4
	DefaultIdleConnTimeout     = 90 * time.Second
)

// ClientConfig holds the configuration for the HTTP client and transport layers.
type ClientConfig struct {
	// Security settings
	IgnoreTLSErrors bool
	TLSConfig       *tls.Config

	// RequestTimeout bounds one attempt, including reading the response body.
	RequestTimeout      time.Duration
	DialTimeout         time.Duration
	KeepAlive           time.Duration
	TLSHandshakeTimeout time.Duration

	// Connection pool settings
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	ForceHTTP2 bool
	ProxyURL   *url.URL

	// RetryPolicy enables the retry layer when non-nil.
	RetryPolicy *RetryPolicy
	// RateLimit caps requests per second when positive.
	RateLimit float64

	Logger *zap.Logger
}

// NewDefaultClientConfig creates a configuration suitable for talking to a REST API.
// It carries no retry policy; callers opt in.
func NewDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		RequestTimeout:      DefaultRequestTimeout,
		DialTimeout:         DefaultDialTimeout,
		KeepAlive:           DefaultKeepAliveInterval,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		ForceHTTP2:          true,
		Logger:              observability.GetLogger().Named("httpclient"),
	}
}

// NewSessionClientConfig derives the configuration of the retried session
// used for every search, create and login call.
func NewSessionClientConfig(nc config.NetworkConfig, logger *zap.Logger) (*ClientConfig, error) {
	cfg, err := fromNetworkConfig(nc, logger)
	if err != nil {
		return nil, err
	}
	if nc.Timeout > 0 {
		cfg.RequestTimeout = nc.Timeout
	}
	cfg.RetryPolicy = RetryPolicyFromConfig(nc.Retry)
	cfg.RateLimit = nc.RateLimit
	return cfg, nil
}

// NewUploadClientConfig derives the configuration of the client used for the
// multipart import. It never retries: a large body that failed ambiguously is
// reported once instead of being sent again.
func NewUploadClientConfig(nc config.NetworkConfig, logger *zap.Logger) (*ClientConfig, error) {
	cfg, err := fromNetworkConfig(nc, logger)
	if err != nil {
		return nil, err
	}
	cfg.RequestTimeout = DefaultUploadTimeout
	if nc.UploadTimeout > 0 {
		cfg.RequestTimeout = nc.UploadTimeout
	}
	return cfg, nil
}

func fromNetworkConfig(nc config.NetworkConfig, logger *zap.Logger) (*ClientConfig, error) {
	cfg := NewDefaultClientConfig()
	if logger != nil {
		cfg.Logger = logger
	}
	cfg.IgnoreTLSErrors = nc.IgnoreTLSErrors
	if nc.ProxyURL != "" {
		proxyURL, err := url.Parse(nc.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url '%s': %w", nc.ProxyURL, err)
		}
		cfg.ProxyURL = proxyURL
	}
	return cfg, nil
}

// NewHTTPTransport creates and configures an http.Transport based on the provided configuration.
func NewHTTPTransport(cfg *ClientConfig) *http.Transport {
	if cfg == nil {
		cfg = NewDefaultClientConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	tlsConfig := configureTLS(cfg)

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   cfg.ForceHTTP2,
	}

	if cfg.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(cfg.ProxyURL)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	if cfg.ForceHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			cfg.Logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1", zap.Error(err))
		}
	} else if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{"http/1.1"}
	}

	return transport
}

// NewClient builds an *http.Client whose transport chain is
// retry -> rate limit -> base transport. When a retry policy is present the
// per-attempt timeout is enforced by the retry layer instead of
// http.Client.Timeout, so backoff sleeps do not eat into an attempt's budget.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = NewDefaultClientConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var rt http.RoundTripper = NewHTTPTransport(cfg)
	if cfg.RateLimit > 0 {
		rt = NewRateLimitTransport(rt, cfg.RateLimit)
	}

	client := &http.Client{Transport: rt}
	if cfg.RetryPolicy != nil {
		client.Transport = &RetryTransport{
			Base:           rt,
			Policy:         cfg.RetryPolicy,
			AttemptTimeout: cfg.RequestTimeout,
			Logger:         cfg.Logger,
		}
	} else {
		client.Timeout = cfg.RequestTimeout
	}
	return client
}

// configureTLS sets up the TLS configuration with strong defaults.
func configureTLS(cfg *ClientConfig) *tls.Config {
	var tlsConfig *tls.Config
	if cfg.TLSConfig != nil {
		tlsConfig = cfg.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{
			ClientSessionCache: tls.NewLRUClientSessionCache(64),
		}
	}
	if tlsConfig.MinVersion < tls.VersionTLS12 {
		tlsConfig.MinVersion = tls.VersionTLS12
	}

	// Self-hosted findings services frequently sit behind self-signed certificates.
	tlsConfig.InsecureSkipVerify = cfg.IgnoreTLSErrors
	return tlsConfig
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
