// internal/network/httpclient_test.go
package network

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dojoctl/internal/config"
)

// -- Test Cases: Configuration and Defaults (ClientConfig) --

func TestNewDefaultClientConfig(t *testing.T) {
	cfg := NewDefaultClientConfig()

	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultMaxIdleConns, cfg.MaxIdleConns)
	assert.True(t, cfg.ForceHTTP2)
	assert.Nil(t, cfg.RetryPolicy, "retries are opt-in")
	assert.NotNil(t, cfg.Logger)
}

func TestNewSessionAndUploadClientConfig(t *testing.T) {
	nc := config.NewDefaultConfig().Network
	nc.Timeout = 5 * time.Second
	nc.UploadTimeout = 2 * time.Minute
	nc.RateLimit = 4
	nc.ProxyURL = "http://proxy.internal:3128"

	session, err := NewSessionClientConfig(nc, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, session.RequestTimeout)
	require.NotNil(t, session.RetryPolicy)
	assert.Equal(t, 3, session.RetryPolicy.MaxRetries)
	assert.Equal(t, 4.0, session.RateLimit)
	assert.Equal(t, "proxy.internal:3128", session.ProxyURL.Host)

	upload, err := NewUploadClientConfig(nc, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, upload.RequestTimeout)
	assert.Nil(t, upload.RetryPolicy, "the multipart client must never retry")
	assert.Zero(t, upload.RateLimit)

	nc.ProxyURL = "://bad"
	_, err = NewSessionClientConfig(nc, nil)
	assert.ErrorContains(t, err, "invalid proxy url")
}

func TestConfigureTLS(t *testing.T) {
	cfg := NewDefaultClientConfig()
	tlsConfig := configureTLS(cfg)
	assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion)
	assert.False(t, tlsConfig.InsecureSkipVerify)

	custom := &tls.Config{MinVersion: tls.VersionTLS10, ServerName: "dojo.local"}
	cfg.TLSConfig = custom
	cfg.IgnoreTLSErrors = true
	tlsConfig = configureTLS(cfg)
	assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion, "MinVersion should be raised to TLS 1.2")
	assert.Equal(t, "dojo.local", tlsConfig.ServerName)
	assert.True(t, tlsConfig.InsecureSkipVerify)
	assert.NotSame(t, custom, tlsConfig)
	assert.False(t, custom.InsecureSkipVerify, "original config must not be modified")
}

// -- Test Cases: Transport Creation (NewHTTPTransport) --

func TestNewHTTPTransport_ProxyConfiguration(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.example.com:8080")
	cfg := NewDefaultClientConfig()
	cfg.ProxyURL = proxyURL

	transport := NewHTTPTransport(cfg)
	require.NotNil(t, transport.Proxy)

	req, _ := http.NewRequest(http.MethodGet, "http://target.com", nil)
	resultURL, err := transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, proxyURL, resultURL)
}

func TestNewHTTPTransport_HTTP2(t *testing.T) {
	cfg := NewDefaultClientConfig()
	cfg.ForceHTTP2 = true
	transport := NewHTTPTransport(cfg)
	assert.True(t, transport.ForceAttemptHTTP2)
	assert.Contains(t, transport.TLSClientConfig.NextProtos, "h2")

	cfg = NewDefaultClientConfig()
	cfg.ForceHTTP2 = false
	transport = NewHTTPTransport(cfg)
	assert.False(t, transport.ForceAttemptHTTP2)
	assert.Equal(t, []string{"http/1.1"}, transport.TLSClientConfig.NextProtos)
}

// -- Test Cases: Client Behavior (NewClient and Integration) --

func TestNewClient_RetriesSessionCalls(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer server.Close()

	cfg := NewDefaultClientConfig()
	cfg.Logger = zaptest.NewLogger(t)
	cfg.RetryPolicy = &RetryPolicy{
		MaxRetries:           3,
		InitialBackoff:       time.Millisecond,
		MaxBackoff:           5 * time.Millisecond,
		BackoffFactor:        2,
		RetryableStatusCodes: map[int]bool{http.StatusBadGateway: true},
	}
	client := NewClient(cfg)
	assert.Zero(t, client.Timeout, "per-attempt timeout lives in the retry layer")

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), hits.Load())
}

func TestNewClient_WithoutRetryPolicy(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := NewDefaultClientConfig()
	cfg.RequestTimeout = 3 * time.Second
	client := NewClient(cfg)
	assert.Equal(t, 3*time.Second, client.Timeout)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load(), "a client without a policy sends exactly once")
}

func TestClient_InsecureSkipVerify_Integration(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK Insecure"))
	}))
	defer server.Close()

	_, err := NewClient(nil).Get(server.URL)
	assert.Error(t, err, "Default client should fail on untrusted certificate")

	cfg := NewDefaultClientConfig()
	cfg.IgnoreTLSErrors = true
	resp, err := NewClient(cfg).Get(server.URL)
	require.NoError(t, err, "Client with IgnoreTLSErrors should succeed")
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK Insecure", string(body))
}

func TestClient_ForwardProxy_Integration(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "from target")
	}))
	defer target.Close()

	var proxied atomic.Int32
	proxy := goproxy.NewProxyHttpServer()
	proxy.OnRequest().DoFunc(func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		proxied.Add(1)
		return r, nil
	})
	proxyServer := httptest.NewServer(proxy)
	defer proxyServer.Close()

	nc := config.NewDefaultConfig().Network
	nc.ProxyURL = proxyServer.URL
	cfg, err := NewSessionClientConfig(nc, zaptest.NewLogger(t))
	require.NoError(t, err)

	resp, err := NewClient(cfg).Get(target.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, "from target", string(body))
	assert.Equal(t, int32(1), proxied.Load(), "request should traverse the configured proxy")
}

func TestRateLimitTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := NewDefaultClientConfig()
	cfg.RateLimit = 20 // one token every 50ms
	client := NewClient(cfg)

	start := time.Now()
	for i := 0; i < 3; i++ {
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond, "third request should wait for two refills")
}
