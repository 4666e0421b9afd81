package crypto_test

import (
	"bytes"
	"testing"

	"github.com/the-anweddol-project/anwdl-client-go/crypto"
)

func TestRSAWrapperEncryptDecryptRoundTrip(t *testing.T) {
	w, err := crypto.NewRSAWrapper()
	if err != nil {
		t.Fatalf("NewRSAWrapper returned error: %v", err)
	}

	plaintext := []byte("container_uuid=4f6a1e2c-...")
	ct, err := w.Encrypt(plaintext, true)
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if bytes.Equal(ct, plaintext) {
		t.Fatalf("ciphertext must not equal plaintext")
	}

	pt, err := w.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", pt, plaintext)
	}
}

func TestRSAWrapperEncryptWithoutKeyFails(t *testing.T) {
	w := crypto.NewEmptyRSAWrapper()
	if _, err := w.Encrypt([]byte("data"), false); err == nil {
		t.Fatalf("expected error encrypting without a remote public key")
	}
}

func TestRSAWrapperSignVerifyRoundTrip(t *testing.T) {
	w, err := crypto.NewRSAWrapper()
	if err != nil {
		t.Fatalf("NewRSAWrapper returned error: %v", err)
	}

	data := []byte("STAT")
	sig, err := w.Sign(data)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	ok, err := w.Verify(sig, data)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected signature to verify")
	}
}

func TestRSAWrapperVerifyRejectsTamperedData(t *testing.T) {
	w, err := crypto.NewRSAWrapper()
	if err != nil {
		t.Fatalf("NewRSAWrapper returned error: %v", err)
	}

	sig, err := w.Sign([]byte("STAT"))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	ok, err := w.Verify(sig, []byte("DESTROY"))
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected signature verification to fail on tampered data")
	}
}

func TestRSAWrapperVerifyRejectsTamperedSignature(t *testing.T) {
	w, err := crypto.NewRSAWrapper()
	if err != nil {
		t.Fatalf("NewRSAWrapper returned error: %v", err)
	}

	data := []byte("STAT")
	sig, err := w.Sign(data)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	sig[0] ^= 0xFF

	ok, err := w.Verify(sig, data)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected signature verification to fail on tampered signature")
	}
}

func TestRSAWrapperPublicKeyPEMRoundTrip(t *testing.T) {
	w, err := crypto.NewRSAWrapper()
	if err != nil {
		t.Fatalf("NewRSAWrapper returned error: %v", err)
	}

	pemBytes, err := w.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey returned error: %v", err)
	}

	other := crypto.NewEmptyRSAWrapper()
	if err := other.SetRemotePublicKey(pemBytes); err != nil {
		t.Fatalf("SetRemotePublicKey returned error: %v", err)
	}

	plaintext := []byte("hello")
	ct, err := other.Encrypt(plaintext, false)
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}

	pt, err := w.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", pt, plaintext)
	}
}

func TestRSAWrapperSetPrivateKeyDerivesPublicKey(t *testing.T) {
	w, err := crypto.NewRSAWrapper()
	if err != nil {
		t.Fatalf("NewRSAWrapper returned error: %v", err)
	}
	privPEM, err := w.PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey returned error: %v", err)
	}

	loaded := crypto.NewEmptyRSAWrapper()
	if err := loaded.SetPrivateKey(privPEM, true); err != nil {
		t.Fatalf("SetPrivateKey returned error: %v", err)
	}
	if _, ok := loaded.KeySize(); !ok {
		t.Fatalf("expected public key to be derived")
	}
}

func TestRSAWrapperKeySizeDefault(t *testing.T) {
	w, err := crypto.NewRSAWrapper()
	if err != nil {
		t.Fatalf("NewRSAWrapper returned error: %v", err)
	}
	bits, ok := w.KeySize()
	if !ok {
		t.Fatalf("expected a public key to be set")
	}
	if bits != crypto.DefaultKeySizeBits {
		t.Fatalf("expected %d bit key, got %d", crypto.DefaultKeySizeBits, bits)
	}
}
