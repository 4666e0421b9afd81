package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
)

func newTestHTTPSession(t *testing.T, srv *httptest.Server) *HTTPSession {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse httptest server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse httptest server port: %v", err)
	}
	return NewHTTPSession(u.Hostname(), WithHTTPPort(port))
}

func TestHTTPSessionSendRequestPostsToLowercasedVerbPath(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"message": "ok",
			"data":    map[string]any{},
		})
	}))
	defer srv.Close()

	sess := newTestHTTPSession(t, srv)
	resp, err := sess.SendRequest(context.Background(), "STAT", map[string]any{"foo": "bar"})
	if err != nil {
		t.Fatalf("SendRequest returned error: %v", err)
	}
	if gotPath != "/stat" {
		t.Fatalf("expected path /stat, got %q", gotPath)
	}
	if gotBody["foo"] != "bar" {
		t.Fatalf("expected request body to carry parameters, got %v", gotBody)
	}
	if !resp.Success || resp.Message != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHTTPSessionRejectsNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sess := newTestHTTPSession(t, srv)
	if _, err := sess.SendRequest(context.Background(), "STAT", nil); err == nil {
		t.Fatalf("expected SendRequest to reject a 500 response")
	}
}

func TestHTTPSessionRejectsMalformedResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	sess := newTestHTTPSession(t, srv)
	if _, err := sess.SendRequest(context.Background(), "STAT", nil); err == nil {
		t.Fatalf("expected SendRequest to reject a response missing required fields")
	}
}

func TestHTTPSessionRejectsInvalidVerb(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("server should not be reached for an invalid verb")
	}))
	defer srv.Close()

	sess := newTestHTTPSession(t, srv)
	if _, err := sess.SendRequest(context.Background(), "stat", nil); err == nil {
		t.Fatalf("expected SendRequest to reject a lowercase verb before sending")
	}
}

func TestHTTPSessionDefaultsToPlainHTTP(t *testing.T) {
	sess := NewHTTPSession("example.invalid")
	if sess.scheme != "http" || sess.port != DefaultHTTPPort {
		t.Fatalf("expected default scheme http and port %d, got %s:%d", DefaultHTTPPort, sess.scheme, sess.port)
	}
}

func TestHTTPSessionWithTLSDefaultsPort(t *testing.T) {
	sess := NewHTTPSession("example.invalid", WithTLS(true))
	if sess.scheme != "https" || sess.port != DefaultHTTPSPort {
		t.Fatalf("expected scheme https and port %d, got %s:%d", DefaultHTTPSPort, sess.scheme, sess.port)
	}
}

func TestHTTPSessionInsecureSkipVerifyIsOptIn(t *testing.T) {
	sess := NewHTTPSession("example.invalid", WithTLS(true))
	transport, ok := sess.client.Transport.(*http.Transport)
	if ok && transport.TLSClientConfig != nil && transport.TLSClientConfig.InsecureSkipVerify {
		t.Fatalf("expected certificate verification to stay on by default")
	}

	sess = NewHTTPSession("example.invalid", WithTLS(true), WithInsecureSkipVerify())
	transport, ok = sess.client.Transport.(*http.Transport)
	if !ok || transport.TLSClientConfig == nil || !transport.TLSClientConfig.InsecureSkipVerify {
		t.Fatalf("expected WithInsecureSkipVerify to disable certificate verification")
	}
}

func TestHTTPSessionURLUsesConfiguredScheme(t *testing.T) {
	sess := NewHTTPSession("10.0.0.5", WithHTTPPort(9000))
	if !strings.HasPrefix(sess.scheme+"://", "http://") {
		t.Fatalf("expected http scheme by default")
	}
}
