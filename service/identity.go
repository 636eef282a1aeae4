package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/layer-3/esrlink/core"
	"github.com/layer-3/esrlink/internal/ecc"
)

// IdentifyArgs describes an identity request
type IdentifyArgs struct {
	// Scope is the name the proof is bound to, usually the app identifier
	Scope string
	// RequestPermission restricts the accepted signer, placeholders match anything
	RequestPermission *core.PermissionLevel
	// Info is attached to the request as is
	Info map[string]any
}

// LoginResult is an identify result together with the session it created
type LoginResult struct {
	core.IdentifyResult
	Session *Session
}

// Identify asks the wallet to prove control of an account
func (l *Link) Identify(ctx context.Context, args IdentifyArgs) (*core.IdentifyResult, error) {
	request, callback, err := l.CreateRequest(ctx, core.RequestArgs{
		Identity: &core.IdentityArgs{Scope: args.Scope, Permission: args.RequestPermission},
		Info:     args.Info,
	}, nil, nil)
	if err != nil {
		return nil, err
	}
	res, err := l.SendRequest(ctx, request, callback, nil, nil, false)
	if err != nil {
		return nil, err
	}
	if !res.Resolved.Request().IsIdentity() {
		return nil, core.NewIdentityError("Unexpected response")
	}
	if len(res.Signatures) == 0 {
		return nil, core.ErrMissingSignature
	}

	proof, err := res.Resolved.IdentityProof(res.Signatures[0])
	if err != nil {
		return nil, core.NewIdentityError("invalid proof: %v", err)
	}
	signature, err := ecc.ParseSignature(proof.Signature)
	if err != nil {
		return nil, core.NewIdentityError("invalid proof signature: %v", err)
	}
	signerKey, err := signature.RecoverDigest(proof.Digest)
	if err != nil {
		return nil, core.NewIdentityError("unable to recover proof key: %v", err)
	}

	result := &core.IdentifyResult{
		TransactResult: *res,
		Proof:          proof,
		SignerKey:      signerKey.String(),
	}

	if l.verifyProofs {
		account, err := l.verifyProof(ctx, res.Chain, proof, signerKey)
		if err != nil {
			return nil, err
		}
		result.Account = account
	}

	if args.RequestPermission != nil && !args.RequestPermission.Matches(proof.Signer) {
		return nil, core.NewIdentityError("Identity proof signed by %s, expected: %s", proof.Signer, args.RequestPermission.Format())
	}

	return result, nil
}

// verifyProof checks the proof against the on-chain permission of its signer
func (l *Link) verifyProof(ctx context.Context, chainID core.ChainID, proof core.IdentityProof, key ecc.PublicKey) (*core.Account, error) {
	chain, err := l.GetChain(chainID)
	if err != nil {
		return nil, err
	}
	account, err := chain.Client.GetAccount(ctx, proof.Signer.Actor)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", proof.Signer.Actor, err)
	}
	if account == nil {
		return nil, core.NewIdentityError("Signature from unknown account: %s", proof.Signer.Actor)
	}
	permission, ok := account.Permission(proof.Signer.Permission)
	if !ok {
		return nil, core.NewIdentityError("%s signed for unknown permission: %s", proof.Signer, proof.Signer.Permission)
	}
	if !proof.Expiration.IsZero() && account.HeadBlockTime.After(proof.Expiration) {
		return nil, core.NewIdentityError("Identity proof for %s expired at %s", proof.Signer, proof.Expiration.UTC().Format(core.TimePointLayout))
	}
	weight, ok := permission.RequiredAuth.KeyWeight(key)
	if !ok {
		return nil, core.NewIdentityError("Invalid identify proof for: %s", proof.Signer)
	}
	if weight < permission.RequiredAuth.Threshold {
		return nil, core.NewIdentityError("Identity proof for %s does not meet threshold %d", proof.Signer, permission.RequiredAuth.Threshold)
	}
	return account, nil
}

// Login creates a session with the wallet. The wallet may assign a channel,
// otherwise later requests fall back to the link transport.
func (l *Link) Login(ctx context.Context, identifier string) (*LoginResult, error) {
	requestKey, err := ecc.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate request key: %w", err)
	}
	create := core.LinkCreate{
		SessionName: identifier,
		RequestKey:  requestKey.PublicKey().String(),
		UserAgent:   l.UserAgent(),
	}
	res, err := l.Identify(ctx, IdentifyArgs{
		Scope: identifier,
		Info: map[string]any{
			core.InfoLink:  create,
			core.InfoScope: identifier,
		},
	})
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"sameDevice": res.Resolved.Request().HasInfoKey(core.InfoReturnPath),
	}
	l.mergeLinkMeta(metadata, res.Payload)

	signerKey, err := ecc.ParsePublicKey(res.SignerKey)
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}
	base := sessionBase{
		identifier: identifier,
		chainID:    res.Chain,
		auth:       res.Signer,
		publicKey:  signerKey,
		metadata:   metadata,
	}

	var session *Session
	if info, ok := res.Payload.Channel(); ok {
		session, err = l.newChannelSession(base, info, requestKey)
		if err != nil {
			return nil, err
		}
	} else {
		session = l.newFallbackSession(base)
	}

	if l.storage != nil {
		if err := l.storeSession(ctx, session); err != nil {
			return nil, err
		}
	}
	l.publish(ctx, core.TopicSessionCreated, session.event())

	return &LoginResult{IdentifyResult: *res, Session: session}, nil
}

// mergeLinkMeta copies the wallet supplied link_meta into metadata with camelCase keys
func (l *Link) mergeLinkMeta(metadata map[string]any, payload core.CallbackPayload) {
	raw, ok := payload[core.PayloadMeta]
	if !ok || raw == "" {
		return
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		l.logger.Warn().Err(err).Str("link_meta", raw).Msg("unable to parse link metadata")
		return
	}
	for key, value := range meta {
		metadata[snakeToCamel(key)] = value
	}
}

func snakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}
