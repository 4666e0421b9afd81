package anwdlclient

import (
	"errors"
	"fmt"
)

// Kind tags an Error with the taxonomy category it belongs to.
type Kind int

const (
	// KindConfig: missing config file, invalid config schema.
	KindConfig Kind = iota
	// KindValidation: MakeRequest/VerifyResponse rejected a document, or a
	// locally supplied IP/port is malformed.
	KindValidation
	// KindTransport: socket connect/send/recv failure, bad length header,
	// negative ack from peer, TLS failure, HTTP status >= 300.
	KindTransport
	// KindCrypto: padding mismatch, signature invalid, RSA decrypt failure.
	KindCrypto
	// KindProtocol: handshake state violated.
	KindProtocol
	// KindStore: SQLite cannot open/write the database file.
	KindStore
	// KindLookup: caller referenced an absent entry id, or tried to add a
	// duplicate IP to the token store.
	KindLookup
	// KindResponseFailure: transport succeeded but success was false.
	KindResponseFailure
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindValidation:
		return "ValidationError"
	case KindTransport:
		return "TransportError"
	case KindCrypto:
		return "CryptoError"
	case KindProtocol:
		return "ProtocolError"
	case KindStore:
		return "StoreError"
	case KindLookup:
		return "LookupError"
	case KindResponseFailure:
		return "ResponseFailure"
	default:
		return "UnknownError"
	}
}

// Error is the single error type surfaced across the module. Every returned
// error outside of argument-validation panics is an *Error, so callers can
// always type-assert or use errors.As to inspect Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, letting callers
// write errors.Is(err, anwdlclient.KindStore) style checks via KindError.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// newErr builds an *Error, wrapping cause with %w semantics through Unwrap.
func newErr(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindError returns a sentinel *Error of the given kind with no message or
// cause, suitable as the target of errors.Is(err, anwdlclient.KindError(k)).
func KindError(k Kind) *Error {
	return &Error{Kind: k}
}

// AsKind extracts the Kind from err if it is (or wraps) an *Error.
func AsKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
