package core

import (
	"errors"
	"fmt"
)

var (
	ErrCallbackMismatch    = errors.New("invalid request callback")
	ErrInvalidRequestFlags = errors.New("invalid request flags")
	ErrMissingChainID      = errors.New("multi chain response payload must specify resolved chain id (cid)")
	ErrChainIDMismatch     = errors.New("got response for wrong chain id")
	ErrUnknownChain        = errors.New("unknown chain")
	ErrInvalidChainID      = errors.New("invalid chain id")
	ErrInvalidTransactArgs = errors.New("exactly one of action, actions or transaction must be set")
	ErrNoStorage           = errors.New("no storage adapter configured")
	ErrInvalidSessionData  = errors.New("session data invalid")
	ErrUnknownSessionType  = errors.New("unknown session type")
	ErrSessionNotFound     = errors.New("session not found")
	ErrMissingSignature    = errors.New("response payload has no signatures")
	ErrInvalidOptions      = errors.New("invalid link options")
)

// Code is a stable, machine checkable error kind
type Code string

const (
	CodeCancel   Code = "E_CANCEL"
	CodeIdentity Code = "E_IDENTITY"
	CodeDelivery Code = "E_DELIVERY"
	CodeTimeout  Code = "E_TIMEOUT"
)

// CancelError is returned when the transport, the user or the signer aborts a request
type CancelError struct {
	Reason string
}

// NewCancelError creates a cancel error with an optional reason
func NewCancelError(reason string) *CancelError {
	return &CancelError{Reason: reason}
}

func (e *CancelError) Error() string {
	if e.Reason == "" {
		return "User canceled request"
	}
	return fmt.Sprintf("User canceled request (%s)", e.Reason)
}

// Code returns CodeCancel
func (e *CancelError) Code() Code { return CodeCancel }

// IdentityError is returned when an identity proof is missing, invalid or mismatched
type IdentityError struct {
	Reason string
}

// NewIdentityError creates an identity error
func NewIdentityError(format string, args ...any) *IdentityError {
	return &IdentityError{Reason: fmt.Sprintf(format, args...)}
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("Unable to verify identity (%s)", e.Reason)
}

// Code returns CodeIdentity
func (e *IdentityError) Code() Code { return CodeIdentity }

// SessionError is returned by session delivery.
//   - CodeDelivery: the request could not be pushed to the wallet channel
//   - CodeTimeout: the request was delivered but the wallet did not respond in time
type SessionError struct {
	Reason string
	Kind   Code
	// Session is the identifier of the session the request went through
	Session string
}

func (e *SessionError) Error() string {
	return e.Reason
}

// Code returns the delivery or timeout code
func (e *SessionError) Code() Code { return e.Kind }

// ErrorCode returns the stable code of err or of any error it wraps, or an
// empty code for errors outside the taxonomy.
func ErrorCode(err error) Code {
	var coded interface{ Code() Code }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}
