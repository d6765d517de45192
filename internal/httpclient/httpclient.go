package httpclient

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"fashion-script-studio/internal/metrics"
)

type Options struct {
	PreferIPv4 bool
	Timeout    time.Duration
	// Logger, when set, receives one debug line per outbound request.
	Logger *slog.Logger
}

func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}

	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if opts.PreferIPv4 {
				return dialer.DialContext(ctx, "tcp4", addr)
			}
			return dialer.DialContext(ctx, network, addr)
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &instrumented{next: transport, logger: opts.Logger},
	}
}

type instrumented struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *instrumented) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	metrics.OutboundRequestsTotal.WithLabelValues(req.URL.Host, status).Inc()
	if t.logger != nil {
		t.logger.Debug("outbound http", "host", req.URL.Host, "status", status, "dur_ms", time.Since(start).Milliseconds())
	}
	return resp, err
}
