package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/layer-3/esrlink/core"
	"github.com/layer-3/esrlink/ports"
	"github.com/rs/zerolog"
)

// Version is reported in the link user agent
const Version = "1.0.0"

// DefaultChannelTimeout is how long a channel session waits for the wallet
const DefaultChannelTimeout = 120 * time.Second

// ProofPolicy selects whether identity proofs are verified against the chain.
// The zero value is invalid, callers have to choose.
type ProofPolicy int

const (
	proofsUnset ProofPolicy = iota
	// ProofsVerify fetches the signer account and checks the proof against its permission
	ProofsVerify
	// ProofsSkip trusts the signer reported in the callback payload
	ProofsSkip
)

// ChainConfig is a chain the link can transact on
type ChainConfig struct {
	ChainID core.ChainID
	Client  ports.ChainClient
}

// Options configure a Link. They are copied by NewLink and not read afterwards.
type Options struct {
	Transport ports.Transport
	Chains    []ChainConfig
	Codec     ports.RequestCodec
	Callbacks ports.CallbackService

	// Storage persists sessions. When nil the transport storage is used, if any.
	Storage        ports.Storage
	DisableStorage bool

	Proofs ProofPolicy

	// OmitChainIDs leaves the candidate chain ids out of multi chain requests
	OmitChainIDs bool

	// ChannelTimeout defaults to DefaultChannelTimeout
	ChannelTimeout time.Duration

	// Publisher receives session lifecycle events, optional
	Publisher ports.EventPublisher

	// HTTPClient pushes channel payloads, defaults to http.DefaultClient
	HTTPClient *http.Client

	Logger *zerolog.Logger
}

func (o Options) validate() error {
	if o.Transport == nil {
		return fmt.Errorf("%w: transport is required", core.ErrInvalidOptions)
	}
	if o.Codec == nil {
		return fmt.Errorf("%w: request codec is required", core.ErrInvalidOptions)
	}
	if o.Callbacks == nil {
		return fmt.Errorf("%w: callback service is required", core.ErrInvalidOptions)
	}
	if len(o.Chains) == 0 {
		return fmt.Errorf("%w: at least one chain is required", core.ErrInvalidOptions)
	}
	seen := make(map[core.ChainID]struct{}, len(o.Chains))
	for _, c := range o.Chains {
		if c.Client == nil {
			return fmt.Errorf("%w: chain %s has no client", core.ErrInvalidOptions, c.ChainID)
		}
		if _, ok := seen[c.ChainID]; ok {
			return fmt.Errorf("%w: chain %s configured twice", core.ErrInvalidOptions, c.ChainID)
		}
		seen[c.ChainID] = struct{}{}
	}
	if o.Proofs != ProofsVerify && o.Proofs != ProofsSkip {
		return fmt.Errorf("%w: proof policy must be set", core.ErrInvalidOptions)
	}
	if o.ChannelTimeout < 0 {
		return fmt.Errorf("%w: negative channel timeout", core.ErrInvalidOptions)
	}
	return nil
}
