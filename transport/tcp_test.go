package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestSessionHandshakeCompletesWithOppositeReceiveFirst(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client, err := NewSession(WithReceiveFirst(false), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("NewSession(client) returned error: %v", err)
	}
	server, err := NewSession(WithReceiveFirst(true), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("NewSession(server) returned error: %v", err)
	}

	client.conn = clientConn
	client.rw = &deadlineReadWriter{conn: clientConn, timeout: client.timeout}
	client.state = StateConnected

	server.conn = serverConn
	server.rw = &deadlineReadWriter{conn: serverConn, timeout: server.timeout}
	server.state = StateConnected

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.handshake()
	}()

	if err := client.handshake(); err != nil {
		t.Fatalf("client handshake returned error: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("server handshake returned error: %v", err)
	}

	clientKey, clientIV := client.aes.Key()
	serverKey, serverIV := server.aes.Key()
	if string(clientKey) != string(serverKey) {
		t.Fatalf("client and server disagree on the negotiated aes key")
	}
	if string(clientIV) != string(serverIV) {
		t.Fatalf("client and server disagree on the negotiated aes iv")
	}
}

func TestSessionRequestResponseRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client, _ := NewSession(WithReceiveFirst(false), WithTimeout(2*time.Second))
	server, _ := NewSession(WithReceiveFirst(true), WithTimeout(2*time.Second))

	client.conn = clientConn
	client.rw = &deadlineReadWriter{conn: clientConn, timeout: client.timeout}
	client.state = StateConnected
	server.conn = serverConn
	server.rw = &deadlineReadWriter{conn: serverConn, timeout: server.timeout}
	server.state = StateConnected

	errCh := make(chan error, 1)
	go func() { errCh <- server.handshake() }()
	if err := client.handshake(); err != nil {
		t.Fatalf("client handshake returned error: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("server handshake returned error: %v", err)
	}
	client.state = StateKeyed
	server.state = StateKeyed

	sendErrCh := make(chan error, 1)
	go func() {
		sendErrCh <- client.SendRequest("STAT", map[string]any{})
	}()

	body, err := recvFrame(server.rw)
	if err != nil {
		t.Fatalf("server recvFrame returned error: %v", err)
	}
	if err := <-sendErrCh; err != nil {
		t.Fatalf("SendRequest returned error: %v", err)
	}
	plaintext, err := server.aes.Decrypt(body)
	if err != nil {
		t.Fatalf("server failed to decrypt the request frame: %v", err)
	}
	if string(plaintext) != `{"verb":"STAT","parameters":{}}` {
		t.Fatalf("unexpected decrypted request body: %s", plaintext)
	}

	responsePayload := []byte(`{"success":true,"message":"ok","data":{"uptime":42,"version":"1.0"}}`)
	ciphertext, err := server.aes.Encrypt(responsePayload)
	if err != nil {
		t.Fatalf("server failed to encrypt the response: %v", err)
	}

	recvErrCh := make(chan error, 1)
	go func() {
		if err := sendFrame(server.rw, ciphertext); err != nil {
			recvErrCh <- err
			return
		}
		recvErrCh <- nil
	}()

	got, err := client.RecvResponse()
	if err != nil {
		t.Fatalf("RecvResponse returned error: %v", err)
	}
	if err := <-recvErrCh; err != nil {
		t.Fatalf("server sendFrame returned error: %v", err)
	}
	if !got.Success || got.Message != "ok" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestSessionSendRequestRejectsWrongState(t *testing.T) {
	client, _ := NewSession()
	if err := client.SendRequest("STAT", nil); err == nil {
		t.Fatalf("expected SendRequest to reject a session that never completed the handshake")
	}
}

func TestSessionConnectRejectsNonClosedState(t *testing.T) {
	client, _ := NewSession()
	client.state = StateKeyed

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Connect(ctx, "127.0.0.1", 1); err == nil {
		t.Fatalf("expected Connect to reject a session that is not Closed")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	client, _ := NewSession()
	if err := client.Close(); err != nil {
		t.Fatalf("Close on an unconnected session returned error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close call returned error: %v", err)
	}
	if client.State() != StateClosed {
		t.Fatalf("expected StateClosed after Close, got %s", client.State())
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateClosed:    "Closed",
		StateConnected: "Connected",
		StateHalfKeyed: "HalfKeyed",
		StateKeyed:     "Keyed",
		State(99):      "Unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
