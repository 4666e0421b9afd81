package transport

import (
	"fmt"

	"github.com/the-anweddol-project/anwdl-client-go/sanitize"
)

// StateError reports a handshake/protocol operation attempted from the
// wrong Session state (e.g. SendRequest before the handshake completes).
type StateError struct {
	Op   string
	Want State
	Got  State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("transport: %s requires state %s, session is %s", e.Op, e.Want, e.Got)
}

// ValidationFailure wraps a rejected request or response document. The
// orchestration layer (anwdlclient.Client) maps this to KindValidation.
type ValidationFailure struct {
	Stage string // "request" or "response"
	Errs  sanitize.FieldErrors
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("transport: %s document rejected: %v", e.Stage, e.Errs)
}

// CryptoFailure wraps an error surfaced by the crypto package during the
// handshake or payload decrypt/encrypt. The orchestration layer maps this
// to KindCrypto.
type CryptoFailure struct {
	Op    string
	Cause error
}

func (e *CryptoFailure) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Cause)
}

func (e *CryptoFailure) Unwrap() error {
	return e.Cause
}
