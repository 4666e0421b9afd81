package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/the-anweddol-project/anwdl-client-go/sanitize"
)

// Default ports and timeout for the HTTP transport.
const (
	DefaultHTTPPort    = 8080
	DefaultHTTPSPort   = 4443
	DefaultHTTPTimeout = 10 * time.Second
)

// HTTPSession carries the same request/response schema as Session over a
// stateless HTTP POST instead of a keyed TCP connection. It holds no
// handshake state; every SendRequest is independent.
type HTTPSession struct {
	client  *http.Client
	scheme  string
	host    string
	port    int
	metrics *Metrics
}

// HTTPOption configures an HTTPSession at construction time.
type HTTPOption func(*HTTPSession)

// WithTLS switches the transport to https and sets the port to 4443 (or back
// to http on 8080 when enabled is false); a WithHTTPPort passed after it
// overrides the port. Certificate verification stays on unless
// WithInsecureSkipVerify is also passed.
func WithTLS(enabled bool) HTTPOption {
	return func(s *HTTPSession) {
		if enabled {
			s.scheme = "https"
			s.port = DefaultHTTPSPort
		} else {
			s.scheme = "http"
			s.port = DefaultHTTPPort
		}
	}
}

// WithInsecureSkipVerify disables TLS certificate verification. This is an
// explicit opt-in only — without it the client uses Go's default HTTP
// transport, which always verifies, matching the original spec's
// verify_tls=true default.
func WithInsecureSkipVerify() HTTPOption {
	return func(s *HTTPSession) {
		transport, ok := s.client.Transport.(*http.Transport)
		if !ok {
			transport = http.DefaultTransport.(*http.Transport).Clone()
		}
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{}
		}
		transport.TLSClientConfig.InsecureSkipVerify = true
		s.client.Transport = transport
	}
}

// WithHTTPPort overrides the default port for the selected scheme.
func WithHTTPPort(port int) HTTPOption {
	return func(s *HTTPSession) { s.port = port }
}

// WithHTTPTimeout overrides the client's request timeout.
func WithHTTPTimeout(timeout time.Duration) HTTPOption {
	return func(s *HTTPSession) { s.client.Timeout = timeout }
}

// WithHTTPMetrics attaches a Metrics sink.
func WithHTTPMetrics(m *Metrics) HTTPOption {
	return func(s *HTTPSession) { s.metrics = m }
}

// NewHTTPSession builds an HTTPSession targeting host, defaulting to plain
// HTTP on port 8080.
func NewHTTPSession(host string, opts ...HTTPOption) *HTTPSession {
	s := &HTTPSession{
		client: &http.Client{Timeout: DefaultHTTPTimeout},
		scheme: "http",
		host:   host,
		port:   DefaultHTTPPort,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do is an alias for SendRequest, matching Session.Do's signature so the
// orchestration layer can address either transport through one interface.
func (s *HTTPSession) Do(ctx context.Context, verb string, parameters map[string]any) (sanitize.Response, error) {
	return s.SendRequest(ctx, verb, parameters)
}

// SendRequest validates verb/parameters, POSTs the JSON-encoded parameters
// to scheme://host:port/<verb-lowercased>, and validates the decoded
// response body.
func (s *HTTPSession) SendRequest(ctx context.Context, verb string, parameters map[string]any) (sanitize.Response, error) {
	ok, doc, errs := sanitize.MakeRequest(verb, parameters)
	if !ok {
		return sanitize.Response{}, &ValidationFailure{Stage: "request", Errs: errs}
	}

	body, err := json.Marshal(doc.Parameters)
	if err != nil {
		return sanitize.Response{}, fmt.Errorf("transport: encode request body: %w", err)
	}

	url := fmt.Sprintf("%s://%s:%d/%s", s.scheme, s.host, s.port, strings.ToLower(verb))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return sanitize.Response{}, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.observeFailure("http")
		return sanitize.Response{}, fmt.Errorf("transport: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.metrics.observeFailure("http")
		return sanitize.Response{}, fmt.Errorf("transport: http response status %s", resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		s.metrics.observeFailure("http")
		return sanitize.Response{}, fmt.Errorf("transport: read http response body: %w", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		s.metrics.observeFailure("http")
		return sanitize.Response{}, fmt.Errorf("transport: decode http response json: %w", err)
	}

	verified, response, verifyErrs := sanitize.VerifyResponse(decoded)
	if !verified {
		s.metrics.observeFailure("http")
		return sanitize.Response{}, &ValidationFailure{Stage: "response", Errs: verifyErrs}
	}

	s.metrics.observeRequest("http", verb)
	return response, nil
}
