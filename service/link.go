package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/layer-3/esrlink/core"
	"github.com/layer-3/esrlink/ports"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Link sends signing requests to wallets and collects the signed responses
type Link struct {
	transport ports.Transport
	hooks     transportHooks
	chains    []*Chain
	codec     ports.RequestCodec
	callbacks ports.CallbackService
	storage   ports.Storage
	publisher ports.EventPublisher
	client    *http.Client
	logger    zerolog.Logger

	verifyProofs   bool
	omitChainIDs   bool
	channelTimeout time.Duration
}

// NewLink creates a new link
func NewLink(opts Options) (*Link, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	l := &Link{
		transport:      opts.Transport,
		hooks:          resolveHooks(opts.Transport),
		codec:          opts.Codec,
		callbacks:      opts.Callbacks,
		publisher:      opts.Publisher,
		client:         opts.HTTPClient,
		logger:         log.Logger,
		verifyProofs:   opts.Proofs == ProofsVerify,
		omitChainIDs:   opts.OmitChainIDs,
		channelTimeout: opts.ChannelTimeout,
	}
	if opts.Logger != nil {
		l.logger = *opts.Logger
	}
	if l.client == nil {
		l.client = http.DefaultClient
	}
	if l.channelTimeout == 0 {
		l.channelTimeout = DefaultChannelTimeout
	}
	for _, c := range opts.Chains {
		l.chains = append(l.chains, newChain(c))
	}
	if !opts.DisableStorage {
		l.storage = opts.Storage
		if l.storage == nil && l.hooks.storage != nil {
			l.storage = l.hooks.storage()
		}
	}

	return l, nil
}

// Chains returns the configured chains in configuration order
func (l *Link) Chains() []*Chain {
	return append([]*Chain(nil), l.chains...)
}

// GetChain returns the configured chain with id
func (l *Link) GetChain(id core.ChainID) (*Chain, error) {
	for _, c := range l.chains {
		if c.ChainID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", core.ErrUnknownChain, id)
}

// UserAgent identifies the link and its transport to wallets
func (l *Link) UserAgent() string {
	ua := "EsrLink/" + Version
	if l.hooks.userAgent != nil {
		if t := l.hooks.userAgent(); t != "" {
			ua += " " + t
		}
	}
	return ua
}

// CreateRequest builds a signing request for chain, or for every configured
// chain when chain is nil and more than one is configured. The request gets a
// fresh background callback. transport defaults to the link transport.
func (l *Link) CreateRequest(ctx context.Context, args core.RequestArgs, chain *Chain, transport ports.Transport) (core.SigningRequest, ports.Callback, error) {
	hooks := l.hooksFor(transport)

	args.Broadcast = false
	var abis ports.AbiProvider
	if chain == nil && len(l.chains) == 1 {
		chain = l.chains[0]
	}
	if chain != nil {
		id := chain.ChainID
		args.ChainID = &id
		args.ChainIDs = nil
		abis = chain
	} else {
		args.ChainID = nil
		args.ChainIDs = nil
		if !l.omitChainIDs {
			for _, c := range l.chains {
				args.ChainIDs = append(args.ChainIDs, c.ChainID)
			}
		}
		abis = chainSet(l.chains)
	}

	request, err := l.codec.CreateRequest(ctx, args, abis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if hooks.prepare != nil {
		request, err = hooks.prepare(ctx, request, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to prepare request: %w", err)
		}
	}

	callback := l.callbacks.Create()
	request.SetCallback(callback.URL(), true)
	return request, callback, nil
}

// outcome is what settles a pending request, either a payload or an error
type outcome struct {
	payload core.CallbackPayload
	err     error
}

// SendRequest hands request to the transport and waits for the wallet response
// on callback. The transport may cancel while waiting, whichever settles first
// wins. With broadcast the signed transaction is pushed to the resolved chain.
func (l *Link) SendRequest(ctx context.Context, request core.SigningRequest, callback ports.Callback, chain *Chain, transport ports.Transport, broadcast bool) (*core.TransactResult, error) {
	hooks := l.hooksFor(transport)

	result, err := l.sendRequest(ctx, request, callback, chain, hooks, broadcast)
	if err != nil {
		l.notifyFailure(hooks, request, err)
		return nil, err
	}
	l.notifySuccess(hooks, request, result)
	return result, nil
}

func (l *Link) sendRequest(ctx context.Context, request core.SigningRequest, callback ports.Callback, chain *Chain, hooks transportHooks, broadcast bool) (*core.TransactResult, error) {
	url, background := request.Callback()
	if url != callback.URL() {
		return nil, core.ErrCallbackMismatch
	}
	if request.Broadcast() || !background {
		return nil, core.ErrInvalidRequestFlags
	}

	payload, err := l.waitForResponse(ctx, request, callback, hooks)
	if err != nil {
		return nil, err
	}
	if reason, ok := payload.Rejected(); ok {
		return nil, core.NewCancelError(reason)
	}

	signer := payload.Signer()
	signatures := payload.Signatures()

	cid, hasCid, err := payload.ChainID()
	if err != nil {
		return nil, err
	}
	if chain == nil && len(l.chains) > 1 {
		if !hasCid {
			return nil, core.ErrMissingChainID
		}
		if chain, err = l.GetChain(cid); err != nil {
			return nil, err
		}
	} else {
		if chain == nil {
			chain = l.chains[0]
		}
		if hasCid && cid != chain.ChainID {
			return nil, fmt.Errorf("%w: expected %s, got %s", core.ErrChainIDMismatch, chain.ChainID, cid)
		}
	}

	resolved, err := l.codec.ResolvePayload(ctx, payload, chain, chain.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve payload: %w", err)
	}
	cosigs, err := resolved.Request().CosignerSignatures()
	if err != nil {
		return nil, fmt.Errorf("invalid cosigner signatures: %w", err)
	}
	if len(cosigs) > 0 {
		signatures = append(append([]string(nil), cosigs...), signatures...)
	}

	result := &core.TransactResult{
		Resolved:            resolved,
		Chain:               chain.ChainID,
		Signatures:          signatures,
		Payload:             payload,
		Signer:              signer,
		Transaction:         resolved.Transaction(),
		ResolvedTransaction: resolved.ResolvedTransaction(),
	}

	if broadcast {
		res, err := chain.Client.PushTransaction(ctx, core.SignedTransaction{
			Transaction: result.Transaction,
			Signatures:  signatures,
			Packed:      resolved.SerializedTransaction(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to push transaction: %w", err)
		}
		result.Processed = res.Processed
	}

	return result, nil
}

// waitForResponse races the callback against transport cancellation. The
// first to settle wins; later cancels are ignored.
func (l *Link) waitForResponse(ctx context.Context, request core.SigningRequest, callback ports.Callback, hooks transportHooks) (core.CallbackPayload, error) {
	reqCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		mu      sync.Mutex
		settled bool
	)
	done := make(chan outcome, 1)
	settle := func(o outcome) {
		mu.Lock()
		defer mu.Unlock()
		if !settled {
			settled = true
			done <- o
		}
	}
	isSettled := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return settled
	}

	cancel := func(reason error) {
		if isSettled() {
			return
		}
		if reason == nil {
			reason = core.NewCancelError("")
		}
		if hooks.recoverError != nil && hooks.recoverError(reason, request) {
			return
		}
		settle(outcome{err: reason})
	}

	go func() {
		payload, err := callback.Wait(reqCtx)
		settle(outcome{payload: payload, err: err})
	}()
	go hooks.transport.OnRequest(reqCtx, request, cancel)

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		settle(outcome{err: ctx.Err()})
		o = <-done
	}
	if o.err != nil {
		callback.Cancel()
	}
	return o.payload, o.err
}

// Transact signs args, and broadcasts them unless opts disable it
func (l *Link) Transact(ctx context.Context, args core.TransactArgs, opts core.TransactOptions, transport ports.Transport) (*core.TransactResult, error) {
	hooks := l.hooksFor(transport)

	var chain *Chain
	if opts.Chain != nil {
		c, err := l.GetChain(*opts.Chain)
		if err != nil {
			return nil, err
		}
		chain = c
	}
	broadcast := opts.ShouldBroadcast()

	if hooks.showLoading != nil {
		hooks.showLoading()
	}

	args, err := args.Normalize()
	if err != nil {
		return nil, err
	}
	request, callback, err := l.CreateRequest(ctx, core.RequestArgs{
		Action:      args.Action,
		Actions:     args.Actions,
		Transaction: args.Transaction,
	}, chain, hooks.transport)
	if err != nil {
		return nil, err
	}
	if opts.ShouldNotModify() {
		if err := request.SetInfoKey(core.InfoNoModify, true); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", core.InfoNoModify, err)
		}
	}

	return l.SendRequest(ctx, request, callback, chain, hooks.transport, broadcast)
}

// SignTransaction asks the wallet to sign a transaction serialized by the caller
// for chainID. Only the signatures are returned, nothing is broadcast.
func (l *Link) SignTransaction(ctx context.Context, chainID core.ChainID, packed []byte, transport ports.Transport) ([]string, error) {
	if len(packed) == 0 {
		return nil, fmt.Errorf("%w: empty serialized transaction", core.ErrInvalidTransactArgs)
	}
	chain, err := l.GetChain(chainID)
	if err != nil {
		return nil, err
	}
	hooks := l.hooksFor(transport)

	request, callback, err := l.CreateRequest(ctx, core.RequestArgs{PackedTransaction: packed}, chain, hooks.transport)
	if err != nil {
		return nil, err
	}
	res, err := l.SendRequest(ctx, request, callback, chain, hooks.transport, false)
	if err != nil {
		return nil, err
	}
	return res.Signatures, nil
}

func (l *Link) hooksFor(transport ports.Transport) transportHooks {
	if transport == nil {
		return l.hooks
	}
	return resolveHooks(transport)
}

func (l *Link) publish(ctx context.Context, topic string, event any) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, topic, event); err != nil {
		l.logger.Warn().Err(err).Str("topic", topic).Msg("failed to publish event")
	}
}
