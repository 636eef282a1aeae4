package service

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/layer-3/esrlink/core"
	"github.com/layer-3/esrlink/internal/ecc"
	"github.com/layer-3/esrlink/internal/seal"
	"github.com/layer-3/esrlink/ports"
)

// HeaderSoftWait asks the channel service to hold the push until the wallet acks it
const HeaderSoftWait = "X-Buoy-Soft-Wait"

type sessionBase struct {
	identifier string
	chainID    core.ChainID
	auth       core.PermissionLevel
	publicKey  ecc.PublicKey
	metadata   map[string]any
}

// channel is the state of a channel session, rotated when the wallet moves
type channel struct {
	url        string
	key        ecc.PublicKey
	name       string
	requestKey ecc.PrivateKey
	timeout    time.Duration
}

// Session is an authenticated link to a wallet account. Channel sessions push
// requests to the wallet directly, fallback sessions go through the link transport.
type Session struct {
	link *Link
	kind core.SessionType

	mu sync.RWMutex
	sessionBase
	channel *channel
}

var (
	_ ports.Transport         = (*Session)(nil)
	_ ports.SessionDescriptor = (*Session)(nil)
	_ ports.SuccessObserver   = (*Session)(nil)
	_ ports.FailureObserver   = (*Session)(nil)
	_ ports.Preparer          = (*Session)(nil)
	_ ports.LoadingIndicator  = (*Session)(nil)
	_ ports.ErrorRecoverer    = (*Session)(nil)
)

func (l *Link) newFallbackSession(base sessionBase) *Session {
	return &Session{link: l, kind: core.SessionTypeFallback, sessionBase: base}
}

func (l *Link) newChannelSession(base sessionBase, info core.ChannelInfo, requestKey ecc.PrivateKey) (*Session, error) {
	key, err := ecc.ParsePublicKey(info.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid channel key: %w", err)
	}
	if base.metadata == nil {
		base.metadata = make(map[string]any)
	}
	base.metadata["name"] = info.Name
	base.metadata["requestKey"] = requestKey.PublicKey().String()

	return &Session{
		link:        l,
		kind:        core.SessionTypeChannel,
		sessionBase: base,
		channel: &channel{
			url:        info.URL,
			key:        key,
			name:       info.Name,
			requestKey: requestKey,
			timeout:    l.channelTimeout,
		},
	}, nil
}

// restoreSession rebuilds a session from its persisted form
func (l *Link) restoreSession(data core.SerializedSession) (*Session, error) {
	publicKey, err := ecc.ParsePublicKey(data.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidSessionData, err)
	}
	base := sessionBase{
		identifier: data.Identifier,
		chainID:    data.ChainID,
		auth:       data.Auth,
		publicKey:  publicKey,
		metadata:   data.Metadata,
	}
	if base.metadata == nil {
		base.metadata = make(map[string]any)
	}

	switch data.Type {
	case core.SessionTypeFallback:
		return l.newFallbackSession(base), nil
	case core.SessionTypeChannel:
		if data.Channel == nil {
			return nil, fmt.Errorf("%w: channel session without channel", core.ErrInvalidSessionData)
		}
		requestKey, err := ecc.ParsePrivateKey(data.RequestKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidSessionData, err)
		}
		return l.newChannelSession(base, *data.Channel, requestKey)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownSessionType, data.Type)
	}
}

// Identifier is the app identifier the session was created for
func (s *Session) Identifier() string { return s.identifier }

// ChainID is the chain the session is valid on
func (s *Session) ChainID() core.ChainID { return s.chainID }

// Auth is the account permission that logged in
func (s *Session) Auth() core.PermissionLevel { return s.auth }

// PublicKey is the key that signed the login proof
func (s *Session) PublicKey() ecc.PublicKey { return s.publicKey }

// Type tells channel and fallback sessions apart
func (s *Session) Type() core.SessionType { return s.kind }

// Metadata returns a copy of the session metadata
func (s *Session) Metadata() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.metadata)
}

// Channel returns the current channel of a channel session
func (s *Session) Channel() (core.ChannelInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.channel == nil {
		return core.ChannelInfo{}, false
	}
	return core.ChannelInfo{URL: s.channel.url, Key: s.channel.key.String(), Name: s.channel.name}, true
}

// Serialize returns the persisted form of the session
func (s *Session) Serialize() core.SerializedSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := core.SerializedSession{
		Type:       s.kind,
		Identifier: s.identifier,
		Auth:       s.auth,
		ChainID:    s.chainID,
		PublicKey:  s.publicKey.String(),
		Metadata:   maps.Clone(s.metadata),
	}
	if s.channel != nil {
		data.Channel = &core.ChannelInfo{URL: s.channel.url, Key: s.channel.key.String(), Name: s.channel.name}
		data.RequestKey = s.channel.requestKey.String()
	}
	return data
}

// Transact signs args through this session on the session chain
func (s *Session) Transact(ctx context.Context, args core.TransactArgs, opts core.TransactOptions) (*core.TransactResult, error) {
	chainID := s.chainID
	opts.Chain = &chainID

	res, err := s.link.Transact(ctx, args, opts, s)
	if err != nil {
		return nil, err
	}

	if s.kind == core.SessionTypeChannel {
		if info, ok := res.Payload.Channel(); ok {
			s.rotate(ctx, info, res.Payload)
		}
	}
	return res, nil
}

// rotate moves the session to a new channel assigned by the wallet
func (s *Session) rotate(ctx context.Context, info core.ChannelInfo, payload core.CallbackPayload) {
	key, err := ecc.ParsePublicKey(info.Key)
	if err != nil {
		s.link.logger.Warn().Err(err).Str("session", s.identifier).Msg("ignoring channel with invalid key")
		return
	}

	s.mu.Lock()
	s.channel.url = info.URL
	s.channel.key = key
	s.channel.name = info.Name
	s.metadata["name"] = info.Name
	s.link.mergeLinkMeta(s.metadata, payload)
	s.mu.Unlock()

	if s.link.storage == nil {
		return
	}
	if err := s.link.storeSession(ctx, s); err != nil {
		s.link.logger.Warn().Err(err).Str("session", s.identifier).Msg("failed to persist rotated channel")
	}
}

// SignTransaction signs a serialized transaction through this session on the
// session chain and returns the signatures
func (s *Session) SignTransaction(ctx context.Context, packed []byte) ([]string, error) {
	return s.link.SignTransaction(ctx, s.chainID, packed, s)
}

// Remove deletes the persisted session, the session stays usable.
// Without link storage there is nothing to remove.
func (s *Session) Remove(ctx context.Context) error {
	if s.link.storage == nil {
		return nil
	}
	return s.link.RemoveSession(ctx, s.identifier, s.auth, s.chainID)
}

// OnRequest delivers request to the wallet
func (s *Session) OnRequest(ctx context.Context, request core.SigningRequest, cancel ports.CancelFunc) {
	switch s.kind {
	case core.SessionTypeChannel:
		s.deliverChannel(ctx, request, cancel)
	default:
		if h := s.link.hooks.onSessionRequest; h != nil {
			h(ctx, s, request, cancel)
			return
		}
		s.link.transport.OnRequest(ctx, request, cancel)
	}
}

func (s *Session) deliverChannel(ctx context.Context, request core.SigningRequest, cancel ports.CancelFunc) {
	s.mu.RLock()
	ch := *s.channel
	s.mu.RUnlock()

	if h := s.link.hooks.onSessionRequest; h != nil {
		h(ctx, s, request, cancel)
	}

	timer := time.AfterFunc(ch.timeout, func() {
		cancel(s.sessionError("Wallet did not respond in time", core.CodeTimeout))
	})
	context.AfterFunc(ctx, func() { timer.Stop() })
	fail := func(reason string) {
		timer.Stop()
		cancel(s.sessionError(reason, core.CodeDelivery))
	}

	info := core.LinkInfo{Expiration: time.Now().Add(ch.timeout).UTC()}
	if err := request.SetInfoKey(core.InfoLink, info); err != nil {
		fail(fmt.Sprintf("Unable to set link info (%v)", err))
		return
	}
	encoded, err := request.Encode()
	if err != nil {
		fail(fmt.Sprintf("Unable to encode request (%v)", err))
		return
	}
	msg, err := seal.Seal([]byte(encoded), ch.requestKey, ch.key, nil)
	if err != nil {
		fail(fmt.Sprintf("Unable to seal request (%v)", err))
		return
	}
	payload, err := msg.MarshalBinary()
	if err != nil {
		fail(fmt.Sprintf("Unable to encode sealed message (%v)", err))
		return
	}

	if s.sendSessionPayload(payload) {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.url, bytes.NewReader(payload))
	if err != nil {
		fail(fmt.Sprintf("Unable to reach link service (%v)", err))
		return
	}
	req.Header.Set(HeaderSoftWait, "10")

	resp, err := s.link.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		fail(fmt.Sprintf("Unable to reach link service (%v)", err))
		return
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		s.link.logger.Warn().Str("session", s.identifier).Str("channel", ch.url).Msg("missing delivery ack from session channel")
		fail("Unable to push message")
	case resp.StatusCode/100 != 2:
		fail("Unable to push message")
	}
}

// sendSessionPayload offers payload to the transport, false when the transport did not send it
func (s *Session) sendSessionPayload(payload []byte) (sent bool) {
	send := s.link.hooks.sendSessionPayload
	if send == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			s.link.logger.Warn().Interface("panic", r).Str("session", s.identifier).Msg("transport failed to send session payload")
			sent = false
		}
	}()
	return send(payload, s)
}

func (s *Session) sessionError(reason string, code core.Code) *core.SessionError {
	return &core.SessionError{Reason: reason, Kind: code, Session: s.identifier}
}

// OnSuccess forwards to the link transport
func (s *Session) OnSuccess(request core.SigningRequest, result *core.TransactResult) {
	s.link.notifySuccess(s.link.hooks, request, result)
}

// OnFailure forwards to the link transport
func (s *Session) OnFailure(request core.SigningRequest, err error) {
	s.link.notifyFailure(s.link.hooks, request, err)
}

// Prepare lets the link transport prepare requests sent through this session
func (s *Session) Prepare(ctx context.Context, request core.SigningRequest, _ ports.SessionDescriptor) (core.SigningRequest, error) {
	if s.link.hooks.prepare == nil {
		return request, nil
	}
	return s.link.hooks.prepare(ctx, request, s)
}

// ShowLoading forwards to the link transport
func (s *Session) ShowLoading() {
	if s.link.hooks.showLoading != nil {
		s.link.hooks.showLoading()
	}
}

// RecoverError forwards to the link transport
func (s *Session) RecoverError(err error, request core.SigningRequest) bool {
	if s.link.hooks.recoverError == nil {
		return false
	}
	return s.link.hooks.recoverError(err, request)
}

func (s *Session) event() core.SessionEvent {
	return core.SessionEvent{
		Identifier: s.identifier,
		Auth:       s.auth,
		ChainID:    s.chainID,
		Type:       s.kind,
	}
}
