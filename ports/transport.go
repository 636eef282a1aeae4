package ports

import (
	"context"

	"github.com/layer-3/esrlink/core"
	"github.com/layer-3/esrlink/internal/ecc"
)

// CancelFunc aborts a pending request with reason
type CancelFunc func(reason error)

// Transport presents signing requests to the user, e.g. by opening request
// URIs or displaying QR codes. Optional behaviour is added by implementing
// the capability interfaces below.
type Transport interface {
	// OnRequest presents request to the user. cancel may be called at any
	// time to abort the request; ctx ends once the request has settled.
	OnRequest(ctx context.Context, request core.SigningRequest, cancel CancelFunc)
}

// SessionDescriptor is the view of a session handed to transports
type SessionDescriptor interface {
	Identifier() string
	ChainID() core.ChainID
	Auth() core.PermissionLevel
	PublicKey() ecc.PublicKey
	Type() core.SessionType
	Metadata() map[string]any
}

// SuccessObserver is called when a request succeeded
type SuccessObserver interface {
	OnSuccess(request core.SigningRequest, result *core.TransactResult)
}

// FailureObserver is called when a request failed
type FailureObserver interface {
	OnFailure(request core.SigningRequest, err error)
}

// SessionRequestHandler is called when a request is sent through a session
type SessionRequestHandler interface {
	OnSessionRequest(ctx context.Context, session SessionDescriptor, request core.SigningRequest, cancel CancelFunc)
}

// StorageProvider is implemented by transports that also provide storage
type StorageProvider interface {
	Storage() Storage
}

// Preparer can modify a request right after it has been created, e.g. to add a cosigner.
// session is nil for requests that do not go through a session.
type Preparer interface {
	Prepare(ctx context.Context, request core.SigningRequest, session SessionDescriptor) (core.SigningRequest, error)
}

// LoadingIndicator is called when a transaction starts
type LoadingIndicator interface {
	ShowLoading()
}

// UserAgentProvider reports the transport user agent to the signer
type UserAgentProvider interface {
	UserAgent() string
}

// SessionPayloadSender can deliver sealed session payloads itself.
// Returning false makes the session push the payload over its channel.
type SessionPayloadSender interface {
	SendSessionPayload(payload []byte, session SessionDescriptor) bool
}

// ErrorRecoverer can recover from cancellations. Returning true keeps the
// link waiting for the callback instead of failing the request.
type ErrorRecoverer interface {
	RecoverError(err error, request core.SigningRequest) bool
}
