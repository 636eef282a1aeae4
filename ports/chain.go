package ports

import (
	"context"
	"encoding/json"

	"github.com/layer-3/esrlink/core"
)

// ChainClient is the chain RPC used by the engine
type ChainClient interface {
	GetInfo(ctx context.Context) (*core.ChainInfo, error)
	// GetAccount returns nil without error when the account does not exist
	GetAccount(ctx context.Context, name string) (*core.Account, error)
	GetAbi(ctx context.Context, account string) (json.RawMessage, error)
	PushTransaction(ctx context.Context, tx core.SignedTransaction) (*core.PushTransactionResponse, error)
}

// AbiProvider resolves contract ABIs for the request codec
type AbiProvider interface {
	GetAbi(ctx context.Context, account string) (json.RawMessage, error)
}

// RequestCodec builds signing requests and resolves callback payloads
type RequestCodec interface {
	CreateRequest(ctx context.Context, args core.RequestArgs, abis AbiProvider) (core.SigningRequest, error)
	ResolvePayload(ctx context.Context, payload core.CallbackPayload, abis AbiProvider, chainID core.ChainID) (core.ResolvedRequest, error)
}
