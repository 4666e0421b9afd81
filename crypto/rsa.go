// Package crypto provides the RSA and AES primitives the session transport
// uses to negotiate and carry an encrypted connection.
package crypto

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// Default parameters for key generation.
const (
	DefaultPublicExponent = 65537
	DefaultKeySizeBits    = 4096
)

// RSAWrapper holds an optional local key pair and an optional remote public
// key, and exposes OAEP encrypt/decrypt and PSS sign/verify over them.
//
// It is not safe for concurrent use; a Session owns exactly one instance for
// the lifetime of a connection.
type RSAWrapper struct {
	private      *rsa.PrivateKey
	public       *rsa.PublicKey
	remotePublic *rsa.PublicKey
}

// NewRSAWrapper returns a wrapper with a freshly generated key pair.
func NewRSAWrapper() (*RSAWrapper, error) {
	w := &RSAWrapper{}
	if err := w.GenerateKeyPair(DefaultPublicExponent, DefaultKeySizeBits); err != nil {
		return nil, err
	}
	return w, nil
}

// NewEmptyRSAWrapper returns a wrapper holding no key material, for callers
// that will populate it via SetPrivateKey/SetPublicKey themselves.
func NewEmptyRSAWrapper() *RSAWrapper {
	return &RSAWrapper{}
}

// GenerateKeyPair replaces the local key pair. exponent is currently only
// honored through the standard library's implicit choice of 65537; any
// other exponent is rejected since crypto/rsa.GenerateKey does not support
// custom public exponents.
func (w *RSAWrapper) GenerateKeyPair(exponent, bits int) error {
	if exponent != DefaultPublicExponent {
		return fmt.Errorf("crypto: unsupported public exponent %d", exponent)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("crypto: generate rsa key pair: %w", err)
	}
	w.private = priv
	w.public = &priv.PublicKey
	return nil
}

// KeySize returns the modulus size in bits of the local public key, and
// false if no local public key is set.
func (w *RSAWrapper) KeySize() (int, bool) {
	if w.public == nil {
		return 0, false
	}
	return w.public.Size() * 8, true
}

// PublicKey returns the local public key PEM-encoded (SubjectPublicKeyInfo).
func (w *RSAWrapper) PublicKey() ([]byte, error) {
	if w.public == nil {
		return nil, errors.New("crypto: local public key is not set")
	}
	return encodePublicPEM(w.public)
}

// PublicKeyRaw returns the local *rsa.PublicKey, or nil if unset.
func (w *RSAWrapper) PublicKeyRaw() *rsa.PublicKey {
	return w.public
}

// SetPublicKey loads a PEM-encoded SubjectPublicKeyInfo as the local public
// key.
func (w *RSAWrapper) SetPublicKey(pemBytes []byte) error {
	pub, err := decodePublicPEM(pemBytes)
	if err != nil {
		return err
	}
	w.public = pub
	return nil
}

// PrivateKey returns the local private key PEM-encoded (unencrypted PKCS#8).
func (w *RSAWrapper) PrivateKey() ([]byte, error) {
	if w.private == nil {
		return nil, errors.New("crypto: local private key is not set")
	}
	der, err := x509.MarshalPKCS8PrivateKey(w.private)
	if err != nil {
		return nil, fmt.Errorf("crypto: marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// PrivateKeyRaw returns the local *rsa.PrivateKey, or nil if unset.
func (w *RSAWrapper) PrivateKeyRaw() *rsa.PrivateKey {
	return w.private
}

// SetPrivateKey loads a PEM-encoded PKCS#8 private key. When derivePublic is
// true, the local public key is recomputed from the parsed private key,
// overwriting whatever public key was previously set.
func (w *RSAWrapper) SetPrivateKey(pemBytes []byte, derivePublic bool) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return errors.New("crypto: no PEM block found in private key data")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("crypto: parse pkcs8 private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return errors.New("crypto: private key is not an RSA key")
	}
	w.private = rsaKey
	if derivePublic {
		w.public = &rsaKey.PublicKey
	}
	return nil
}

// RemotePublicKey returns the remote peer's public key PEM-encoded.
func (w *RSAWrapper) RemotePublicKey() ([]byte, error) {
	if w.remotePublic == nil {
		return nil, errors.New("crypto: remote public key is not set")
	}
	return encodePublicPEM(w.remotePublic)
}

// RemotePublicKeyRaw returns the remote peer's *rsa.PublicKey, or nil if unset.
func (w *RSAWrapper) RemotePublicKeyRaw() *rsa.PublicKey {
	return w.remotePublic
}

// SetRemotePublicKey loads a PEM-encoded SubjectPublicKeyInfo as the remote
// peer's public key.
func (w *RSAWrapper) SetRemotePublicKey(pemBytes []byte) error {
	pub, err := decodePublicPEM(pemBytes)
	if err != nil {
		return err
	}
	w.remotePublic = pub
	return nil
}

// Encrypt OAEP-SHA256 encrypts data under the remote public key, or the
// local public key when useLocal is true.
func (w *RSAWrapper) Encrypt(data []byte, useLocal bool) ([]byte, error) {
	key := w.remotePublic
	if useLocal {
		key = w.public
	}
	if key == nil {
		if useLocal {
			return nil, errors.New("crypto: local public key is not set")
		}
		return nil, errors.New("crypto: remote public key is not set")
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, key, data, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: rsa oaep encrypt: %w", err)
	}
	return ct, nil
}

// Decrypt OAEP-SHA256 decrypts ciphertext under the local private key.
// Callers that need text rather than raw bytes convert with string(...).
func (w *RSAWrapper) Decrypt(cipher []byte) ([]byte, error) {
	if w.private == nil {
		return nil, errors.New("crypto: local private key is not set")
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, w.private, cipher, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: rsa oaep decrypt: %w", err)
	}
	return pt, nil
}

// Sign PSS-SHA256 signs data under the local private key. The salt length is
// rsa.PSSSaltLengthAuto, which on sign uses the largest salt the key size
// allows, matching the original's PSS.MAX_LENGTH.
func (w *RSAWrapper) Sign(data []byte) ([]byte, error) {
	if w.private == nil {
		return nil, errors.New("crypto: local private key is not set")
	}
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, w.private, stdcrypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("crypto: rsa pss sign: %w", err)
	}
	return sig, nil
}

// Verify checks a PSS-SHA256 signature against data under the local public
// key.
func (w *RSAWrapper) Verify(signature, data []byte) (bool, error) {
	if w.public == nil {
		return false, errors.New("crypto: local public key is not set")
	}
	digest := sha256.Sum256(data)
	err := rsa.VerifyPSS(w.public, stdcrypto.SHA256, digest[:], signature, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
	return err == nil, nil
}

func encodePublicPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("crypto: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

func decodePublicPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("crypto: no PEM block found in public key data")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse pkix public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("crypto: public key is not an RSA key")
	}
	return rsaKey, nil
}
