// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/coi-devserver/pkg/config"
	"github.com/go-core-stack/coi-devserver/pkg/isolation"
)

// hopHeaders lists standard hop-by-hop headers, in header-case, that never
// travel from the upstream response to the client.
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// Proxy forwards GET requests to the upstream origin and relays the response.
type Proxy struct {
	// client performs outbound HTTP requests; no timeout unless configured.
	client *http.Client
	// policy decides which upstream headers survive and which are injected.
	policy *isolation.Policy
	// baseURL is the upstream origin the request path is appended to.
	baseURL *url.URL
	// onError is config.OnErrorAbort or config.OnErrorBadGateway.
	onError string
	// passStatus relays the upstream status instead of a fixed 200.
	passStatus bool
	logger     zerolog.Logger
}

// New constructs a Proxy for cfg.Upstream backed by an http.Client with
// connection pooling defaults.
func New(cfg config.Config, policy *isolation.Policy) (*Proxy, error) {
	if cfg.Upstream == nil {
		return nil, errors.New("proxy requires an upstream url")
	}
	if policy == nil {
		return nil, errors.New("proxy requires a header policy")
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Relay the upstream bytes as sent rather than transparently decoded.
		DisableCompression: true,
	}

	return &Proxy{
		client: &http.Client{
			Timeout:   cfg.ProxyTimeout,
			Transport: transport,
		},
		policy:     policy,
		baseURL:    cloneURL(cfg.Upstream),
		onError:    cfg.ProxyOnError,
		passStatus: cfg.ProxyStatus == config.StatusUpstream,
		logger:     log.With().Str("component", "proxy").Logger(),
	}, nil
}

// ServeHTTP fetches the same path from the upstream and streams it back.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	event := p.logger.With().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Logger()

	resp, err := p.forwardRequest(r)
	if err != nil {
		p.fail(w, err, event, start)
		return
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			event.Error().
				Err(closeErr).
				Msg("close upstream response body failed")
		}
	}()

	var bodyReader io.Reader = resp.Body
	if resp.StatusCode >= http.StatusBadRequest {
		const maxLogBody = 64 * 1024 // limit to a manageable payload for logs.
		payload, readErr := io.ReadAll(io.LimitReader(resp.Body, maxLogBody))
		if readErr != nil {
			event.Error().
				Err(readErr).
				Int("status", resp.StatusCode).
				Msg("failed to read upstream error body")
		} else {
			event.Warn().
				Int("status", resp.StatusCode).
				Bytes("upstream_body", payload).
				Msg("upstream returned error")
		}
		bodyReader = io.MultiReader(bytes.NewReader(payload), resp.Body)
	}

	p.copyResponseHeaders(w.Header(), resp.Header)
	p.policy.Apply(w.Header())

	status := http.StatusOK
	if p.passStatus {
		status = resp.StatusCode
	}
	w.WriteHeader(status)

	n, copyErr := io.Copy(w, bodyReader)
	if copyErr != nil {
		event.Error().
			Err(copyErr).
			Int64("bytes", n).
			Dur("duration", time.Since(start)).
			Msg("stream response failed")
		return
	}

	event.Debug().
		Int("upstream_status", resp.StatusCode).
		Int64("bytes", n).
		Dur("duration", time.Since(start)).
		Msg("request proxied")
}

// fail reports an upstream failure according to the configured mode.
func (p *Proxy) fail(w http.ResponseWriter, err error, event zerolog.Logger, start time.Time) {
	event.Error().
		Err(err).
		Dur("duration", time.Since(start)).
		Msg("upstream request failed")

	if p.onError != config.OnErrorBadGateway {
		// Closes the client connection without writing a response.
		panic(http.ErrAbortHandler)
	}

	status := http.StatusBadGateway
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		status = httpErr.Status
	}
	p.policy.Apply(w.Header())
	http.Error(w, http.StatusText(status), status)
}

// forwardRequest issues the upstream GET for r and returns the response for
// the caller to stream back.
func (p *Proxy) forwardRequest(r *http.Request) (*http.Response, error) {
	targetURL := p.upstreamURL(r.URL)

	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, targetURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	augmentForwardHeaders(upstreamReq.Header, r)

	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, &httpError{Status: http.StatusGatewayTimeout, Err: err}
		default:
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, &httpError{Status: http.StatusGatewayTimeout, Err: err}
			}
		}
		return nil, fmt.Errorf("perform upstream request: %w", err)
	}

	return resp, nil
}

// upstreamURL appends the request path and query to the upstream origin.
func (p *Proxy) upstreamURL(requestURL *url.URL) *url.URL {
	target := cloneURL(p.baseURL)
	target.Path = strings.TrimSuffix(p.baseURL.Path, "/") + requestURL.Path
	target.RawPath = ""
	if requestURL.RawPath != "" {
		target.RawPath = strings.TrimSuffix(p.baseURL.EscapedPath(), "/") + requestURL.RawPath
	}
	target.RawQuery = requestURL.RawQuery
	target.Fragment = ""
	return target
}

// copyResponseHeaders mirrors upstream headers under their header-case name,
// skipping hop-by-hop and excluded headers.
func (p *Proxy) copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		name := isolation.HeaderCase(k)
		if _, hop := hopHeaders[name]; hop {
			continue
		}
		if p.policy.Excluded(name) {
			continue
		}
		dst[name] = append(dst[name], vv...)
	}
}

// cloneURL makes a shallow copy of the provided URL pointer.
func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// augmentForwardHeaders ensures X-Forwarded-* headers capture client metadata.
func augmentForwardHeaders(h http.Header, r *http.Request) {
	if clientIP, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		prior := r.Header.Get("X-Forwarded-For")
		if prior != "" {
			clientIP = prior + ", " + clientIP
		}
		h.Set("X-Forwarded-For", clientIP)
	}
	if r.TLS != nil {
		h.Set("X-Forwarded-Proto", "https")
	} else {
		h.Set("X-Forwarded-Proto", "http")
	}
	h.Set("X-Forwarded-Host", r.Host)
}

// httpError wraps a status code with the underlying error from the upstream round trip.
type httpError struct {
	Status int   // Status preserves the HTTP status to emit downstream.
	Err    error // Err retains the original cause for logging.
}

// Error implements the error interface for httpError.
func (e *httpError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Status, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As checks.
func (e *httpError) Unwrap() error {
	return e.Err
}
