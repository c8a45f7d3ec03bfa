package provider

import (
	"net"
	"net/http"
	"time"
)

type TransportFunc func(http.RoundTripper) http.RoundTripper

type httpConfig struct {
	connClientTimeout   time.Duration
	requestTimeout      time.Duration
	clientKeepAlive     time.Duration
	tlsHandshakeTimeout time.Duration
	idleConnTimeout     time.Duration
	maxIdleConns        int
	maxIdleConnsPerHost int
	transports          []TransportFunc
}

func defaultHTTPConfig() *httpConfig {
	return &httpConfig{
		connClientTimeout:   30 * time.Second,
		requestTimeout:      120 * time.Second,
		clientKeepAlive:     90 * time.Second,
		tlsHandshakeTimeout: 10 * time.Second,
		idleConnTimeout:     90 * time.Second,
		maxIdleConns:        100,
		maxIdleConnsPerHost: 10,
	}
}

func newClient(opts ...HttpOpts) *http.Client {
	cfg := defaultHTTPConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	dialer := net.Dialer{
		Timeout:   cfg.connClientTimeout,
		KeepAlive: cfg.clientKeepAlive,
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        cfg.maxIdleConns,
		MaxIdleConnsPerHost: cfg.maxIdleConnsPerHost,
		TLSHandshakeTimeout: cfg.tlsHandshakeTimeout,
		IdleConnTimeout:     cfg.idleConnTimeout,
	}
	for _, wrap := range cfg.transports {
		transport = wrap(transport)
	}

	return &http.Client{
		Timeout:   cfg.requestTimeout,
		Transport: transport,
	}
}

type HttpOpts func(*httpConfig)

// WithRequestTimeout bounds a whole request; zero disables the limit.
func WithRequestTimeout(timeout time.Duration) HttpOpts {
	return func(c *httpConfig) {
		c.requestTimeout = timeout
	}
}

func WithConnClientTimeout(timeout time.Duration) HttpOpts {
	return func(c *httpConfig) {
		c.connClientTimeout = timeout
	}
}

func WithTransport(transport TransportFunc) HttpOpts {
	return func(c *httpConfig) {
		c.transports = append(c.transports, transport)
	}
}
