package core

import (
	"time"
)

// Info keys the engine sets on signing requests
const (
	InfoLink       = "link"
	InfoScope      = "scope"
	InfoNoModify   = "no_modify"
	InfoReturnPath = "return_path"
	InfoCosigner   = "cosig"
)

// SigningRequest is an encoded request as produced by a request codec
type SigningRequest interface {
	// ChainID returns the chain the request is bound to, false for multi chain requests
	ChainID() (ChainID, bool)
	// ChainIDs returns the candidate chains of a multi chain request
	ChainIDs() []ChainID

	Callback() (url string, background bool)
	SetCallback(url string, background bool)
	Broadcast() bool
	SetBroadcast(broadcast bool)

	IsIdentity() bool

	// SetInfoKey attaches metadata, the codec decides how value is encoded
	SetInfoKey(key string, value any) error
	HasInfoKey(key string) bool
	// CosignerSignatures returns signatures embedded by a cosigner, if any
	CosignerSignatures() ([]string, error)

	// Encode returns the compact string form of the request, without scheme
	Encode() (string, error)
}

// ResolvedRequest is a signing request resolved from a callback payload
type ResolvedRequest interface {
	Request() SigningRequest
	ChainID() ChainID
	Signer() PermissionLevel
	Transaction() Transaction
	// ResolvedTransaction has action data decoded with the contract ABIs
	ResolvedTransaction() Transaction
	SerializedTransaction() []byte
	// IdentityProof builds the proof of an identity request from its signature
	IdentityProof(signature string) (IdentityProof, error)
}

// IdentityProof binds a signature to the signing digest of an identity request
type IdentityProof struct {
	ChainID    ChainID
	Scope      string
	Expiration time.Time
	Signer     PermissionLevel
	Signature  string
	// Digest is the signing digest the signature was made over
	Digest []byte
}

// LinkCreate is attached to login requests so the wallet can open a channel
type LinkCreate struct {
	SessionName string `json:"session_name"`
	RequestKey  string `json:"request_key"`
	UserAgent   string `json:"user_agent,omitempty"`
}

// LinkInfo is attached to requests pushed over a channel
type LinkInfo struct {
	Expiration time.Time `json:"expiration"`
}

// TransactResult is the outcome of a signed request
type TransactResult struct {
	Resolved            ResolvedRequest
	Chain               ChainID
	Signatures          []string
	Payload             CallbackPayload
	Signer              PermissionLevel
	Transaction         Transaction
	ResolvedTransaction Transaction
	// Processed is set only when the transaction was broadcast
	Processed map[string]any
}

// IdentifyResult is the outcome of an identity request
type IdentifyResult struct {
	TransactResult
	// Account is set only when proofs are verified
	Account   *Account
	Proof     IdentityProof
	SignerKey string
}
