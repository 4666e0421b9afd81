// Package transport implements the two wire transports the client speaks:
// a length-prefixed, hybrid-encrypted TCP session protocol, and a stateless
// HTTP alternative carrying the same request/response schema.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/the-anweddol-project/anwdl-client-go/crypto"
	"github.com/the-anweddol-project/anwdl-client-go/sanitize"
)

// State is one node of the session handshake state machine:
// Closed -> Connected -> HalfKeyed -> Keyed, looping on Keyed thereafter.
type State int

const (
	StateClosed State = iota
	StateConnected
	StateHalfKeyed
	StateKeyed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateConnected:
		return "Connected"
	case StateHalfKeyed:
		return "HalfKeyed"
	case StateKeyed:
		return "Keyed"
	default:
		return "Unknown"
	}
}

// Default TCP transport parameters, matching the original spec.
const (
	DefaultServerListenPort = 6150
	DefaultTimeout          = 10 * time.Second
)

// Session is a single TCP connection carrying the Anweddol session
// protocol. It is not safe for concurrent use.
type Session struct {
	conn         net.Conn
	rw           *deadlineReadWriter
	state        State
	rsa          *crypto.RSAWrapper
	aes          *crypto.AESWrapper
	receiveFirst bool
	timeout      time.Duration
	metrics      *Metrics
}

// SessionOption configures a Session before Connect is called.
type SessionOption func(*Session)

// WithReceiveFirst sets the handshake order. The default is send-first.
func WithReceiveFirst(receiveFirst bool) SessionOption {
	return func(s *Session) { s.receiveFirst = receiveFirst }
}

// WithTimeout sets the per-operation socket deadline. Zero means no
// deadline is applied (blocking reads/writes).
func WithTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) { s.timeout = timeout }
}

// WithRSAWrapper supplies a pre-populated RSA wrapper (e.g. one loaded from
// disk via anwdlclient.LoadOrGenerateKeyPair) instead of a fresh one.
func WithRSAWrapper(w *crypto.RSAWrapper) SessionOption {
	return func(s *Session) { s.rsa = w }
}

// WithMetrics attaches a Metrics sink. A nil Metrics (the zero value of
// *Metrics) is always a legal no-op receiver.
func WithMetrics(m *Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// NewSession builds an unconnected Session, generating a fresh RSA key pair
// and AES key/IV unless overridden by options.
func NewSession(opts ...SessionOption) (*Session, error) {
	rsaWrapper, err := crypto.NewRSAWrapper()
	if err != nil {
		return nil, &CryptoFailure{Op: "generate session rsa key pair", Cause: err}
	}
	aesWrapper, err := crypto.NewAESWrapper()
	if err != nil {
		return nil, &CryptoFailure{Op: "generate session aes key", Cause: err}
	}

	s := &Session{
		state:   StateClosed,
		rsa:     rsaWrapper,
		aes:     aesWrapper,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the session's current handshake state.
func (s *Session) State() State {
	return s.state
}

// RSAWrapper returns the session's RSA wrapper.
func (s *Session) RSAWrapper() *crypto.RSAWrapper {
	return s.rsa
}

// AESWrapper returns the session's AES wrapper.
func (s *Session) AESWrapper() *crypto.AESWrapper {
	return s.aes
}

// Connect dials serverIP:serverPort and performs the full handshake,
// leaving the session in StateKeyed on success. Any handshake failure
// closes the underlying socket before returning.
func (s *Session) Connect(ctx context.Context, serverIP string, serverPort int) error {
	if s.state != StateClosed {
		return &StateError{Op: "Connect", Want: StateClosed, Got: s.state}
	}

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", serverIP, serverPort))
	if err != nil {
		return fmt.Errorf("transport: dial %s:%d: %w", serverIP, serverPort, err)
	}

	s.conn = conn
	s.rw = &deadlineReadWriter{conn: conn, timeout: s.timeout}
	s.state = StateConnected

	start := time.Now()
	if err := s.handshake(); err != nil {
		s.closeLocked()
		return err
	}
	s.metrics.observeHandshake(time.Since(start))

	s.state = StateKeyed
	return nil
}

func (s *Session) handshake() error {
	if s.receiveFirst {
		if err := s.recvPublicRSAKey(); err != nil {
			return err
		}
		if err := s.sendPublicRSAKey(); err != nil {
			return err
		}
		s.state = StateHalfKeyed
		if err := s.recvAESKey(); err != nil {
			return err
		}
		return s.sendAESKey()
	}

	if err := s.sendPublicRSAKey(); err != nil {
		return err
	}
	if err := s.recvPublicRSAKey(); err != nil {
		return err
	}
	s.state = StateHalfKeyed
	if err := s.sendAESKey(); err != nil {
		return err
	}
	return s.recvAESKey()
}

func (s *Session) sendPublicRSAKey() error {
	pub, err := s.rsa.PublicKey()
	if err != nil {
		return &CryptoFailure{Op: "read local rsa public key", Cause: err}
	}
	if err := sendFrame(s.rw, pub); err != nil {
		return fmt.Errorf("transport: send rsa public key frame: %w", err)
	}
	ok, err := recvBodyAck(s.rw)
	if err != nil {
		return fmt.Errorf("transport: read rsa public key body ack: %w", err)
	}
	if !ok {
		return fmt.Errorf("transport: peer rejected the rsa public key")
	}
	return nil
}

func (s *Session) recvPublicRSAKey() error {
	body, err := recvFrame(s.rw)
	if err != nil {
		return fmt.Errorf("transport: receive rsa public key frame: %w", err)
	}
	if err := s.rsa.SetRemotePublicKey(body); err != nil {
		sendBodyAck(s.rw, false)
		return &CryptoFailure{Op: "set remote rsa public key", Cause: err}
	}
	if err := sendBodyAck(s.rw, true); err != nil {
		return fmt.Errorf("transport: ack rsa public key body: %w", err)
	}
	return nil
}

func (s *Session) sendAESKey() error {
	key, iv := s.aes.Key()
	plaintext := append(append([]byte{}, key...), iv...)

	ciphertext, err := s.rsa.Encrypt(plaintext, false)
	if err != nil {
		return &CryptoFailure{Op: "encrypt aes key for peer", Cause: err}
	}
	if err := sendFrame(s.rw, ciphertext); err != nil {
		return fmt.Errorf("transport: send aes key frame: %w", err)
	}
	ok, err := recvBodyAck(s.rw)
	if err != nil {
		return fmt.Errorf("transport: read aes key body ack: %w", err)
	}
	if !ok {
		return fmt.Errorf("transport: peer rejected the aes key")
	}
	return nil
}

func (s *Session) recvAESKey() error {
	body, err := recvFrame(s.rw)
	if err != nil {
		return fmt.Errorf("transport: receive aes key frame: %w", err)
	}
	plaintext, err := s.rsa.Decrypt(body)
	if err != nil {
		sendBodyAck(s.rw, false)
		return &CryptoFailure{Op: "decrypt peer aes key", Cause: err}
	}
	if len(plaintext) != 48 {
		sendBodyAck(s.rw, false)
		return fmt.Errorf("transport: decrypted aes key material has length %d, want 48", len(plaintext))
	}
	// The peer's IV must be used verbatim: SetKey's nil-IV-regenerates
	// escape hatch is for local key rotation only, never for a
	// handshake-supplied key.
	if err := s.aes.SetKey(plaintext[:32], plaintext[32:48]); err != nil {
		sendBodyAck(s.rw, false)
		return &CryptoFailure{Op: "install peer aes key", Cause: err}
	}
	return sendBodyAck(s.rw, true)
}

// SendRequest validates verb/parameters, encrypts the request document, and
// sends it framed. The session must be in StateKeyed.
func (s *Session) SendRequest(verb string, parameters map[string]any) error {
	if s.state != StateKeyed {
		return &StateError{Op: "SendRequest", Want: StateKeyed, Got: s.state}
	}

	ok, doc, errs := sanitize.MakeRequest(verb, parameters)
	if !ok {
		return &ValidationFailure{Stage: "request", Errs: errs}
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("transport: encode request document: %w", err)
	}

	ciphertext, err := s.aes.Encrypt(payload)
	if err != nil {
		return &CryptoFailure{Op: "encrypt request", Cause: err}
	}

	if err := sendFrame(s.rw, ciphertext); err != nil {
		s.recordFailure()
		return fmt.Errorf("transport: send request frame: %w", err)
	}
	s.recordRequest(verb)
	return nil
}

// RecvResponse reads and decrypts the next framed response and validates it
// against the response schema. The session must be in StateKeyed.
func (s *Session) RecvResponse() (sanitize.Response, error) {
	if s.state != StateKeyed {
		return sanitize.Response{}, &StateError{Op: "RecvResponse", Want: StateKeyed, Got: s.state}
	}

	body, err := recvFrame(s.rw)
	if err != nil {
		s.recordFailure()
		return sanitize.Response{}, fmt.Errorf("transport: receive response frame: %w", err)
	}

	plaintext, err := s.aes.Decrypt(body)
	if err != nil {
		s.recordFailure()
		return sanitize.Response{}, &CryptoFailure{Op: "decrypt response", Cause: err}
	}

	var raw map[string]any
	if err := json.Unmarshal(plaintext, &raw); err != nil {
		s.recordFailure()
		return sanitize.Response{}, fmt.Errorf("transport: decode response json: %w", err)
	}

	ok, doc, errs := sanitize.VerifyResponse(raw)
	if !ok {
		s.recordFailure()
		return sanitize.Response{}, &ValidationFailure{Stage: "response", Errs: errs}
	}

	return doc, nil
}

// Do sends one request and waits for its response, matching HTTPSession's
// single-call shape so the orchestration layer can address either transport
// through one interface. A failure of either step closes the session before
// the error is returned. ctx is accepted for interface symmetry with
// HTTPSession.SendRequest; the TCP path has no per-call context plumbing
// below the deadline already set on the connection.
func (s *Session) Do(ctx context.Context, verb string, parameters map[string]any) (sanitize.Response, error) {
	if err := s.SendRequest(verb, parameters); err != nil {
		s.closeLocked()
		return sanitize.Response{}, err
	}
	resp, err := s.RecvResponse()
	if err != nil {
		s.closeLocked()
		return sanitize.Response{}, err
	}
	return resp, nil
}

// Close closes the underlying socket and returns the session to
// StateClosed. Idempotent.
func (s *Session) Close() error {
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.conn == nil {
		s.state = StateClosed
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.rw = nil
	s.state = StateClosed
	return err
}

func (s *Session) recordRequest(verb string) {
	s.metrics.observeRequest("tcp", verb)
}

func (s *Session) recordFailure() {
	s.metrics.observeFailure("tcp")
}

// deadlineReadWriter applies a fixed deadline to the underlying net.Conn
// before every Read/Write, so a single blocking peer cannot hang a call
// indefinitely. A zero timeout leaves the connection blocking.
type deadlineReadWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineReadWriter) Read(p []byte) (int, error) {
	if d.timeout > 0 {
		d.conn.SetReadDeadline(time.Now().Add(d.timeout))
	}
	return d.conn.Read(p)
}

func (d *deadlineReadWriter) Write(p []byte) (int, error) {
	if d.timeout > 0 {
		d.conn.SetWriteDeadline(time.Now().Add(d.timeout))
	}
	return d.conn.Write(p)
}
