package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/esrlink/core"
	"github.com/layer-3/esrlink/internal/ecc"
	"github.com/layer-3/esrlink/ports"
)

var (
	testChainA = core.MustParseChainID("aca376f206b8fc25a6ed44dbdc66547c36c6c33e3a119ffbeaef943642f0e906")
	testChainB = core.MustParseChainID("e70aaab8997e1dfce58fbfac80cbbb8fecec7b99cf982a9444273cbc64c41473")

	testKey        = ecc.MustParsePrivateKey("PVT_K1_2T69G1TYkwVvbm99zaEcpxzgETMGjrg4LD5uNfxuAotSCUYCwq")
	testLegacyPub  = "EOS7Wp9pzhtTfN3jSyQDCktKLqxdTAcAfgT2RrVpE6KThZrXMnt7P"
	testChannelKey = ecc.MustParsePrivateKey("PVT_K1_2uTUD9FNKT5BbtyqXeNrJ1ZQQT9JWkt3BpEGM4dwJZaEs58whZ")

	errCallbackCanceled = errors.New("callback canceled")
)

// fakeRequest is a signing request encoded as base64 JSON
type fakeRequest struct {
	mu   sync.Mutex
	data fakeRequestData
}

type fakeRequestData struct {
	ChainID     *core.ChainID              `json:"chain_id,omitempty"`
	ChainIDs    []core.ChainID             `json:"chain_ids,omitempty"`
	Callback    string                     `json:"callback"`
	Background  bool                       `json:"background"`
	Broadcast   bool                       `json:"broadcast"`
	Identity    *fakeIdentity              `json:"identity,omitempty"`
	Transaction core.Transaction           `json:"transaction"`
	Info        map[string]json.RawMessage `json:"info,omitempty"`
}

type fakeIdentity struct {
	Scope      string                `json:"scope"`
	Permission *core.PermissionLevel `json:"permission,omitempty"`
}

func decodeFakeRequest(s string) (*fakeRequest, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var data fakeRequestData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return &fakeRequest{data: data}, nil
}

func (r *fakeRequest) ChainID() (core.ChainID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data.ChainID == nil {
		return core.ChainID{}, false
	}
	return *r.data.ChainID, true
}

func (r *fakeRequest) ChainIDs() []core.ChainID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.ChainIDs
}

func (r *fakeRequest) Callback() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.Callback, r.data.Background
}

func (r *fakeRequest) SetCallback(url string, background bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.Callback, r.data.Background = url, background
}

func (r *fakeRequest) Broadcast() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.Broadcast
}

func (r *fakeRequest) SetBroadcast(broadcast bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.Broadcast = broadcast
}

func (r *fakeRequest) IsIdentity() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.Identity != nil
}

func (r *fakeRequest) SetInfoKey(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data.Info == nil {
		r.data.Info = make(map[string]json.RawMessage)
	}
	r.data.Info[key] = raw
	return nil
}

func (r *fakeRequest) HasInfoKey(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.data.Info[key]
	return ok
}

func (r *fakeRequest) infoKey(key string, v any) bool {
	r.mu.Lock()
	raw, ok := r.data.Info[key]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func (r *fakeRequest) CosignerSignatures() ([]string, error) {
	var sigs []string
	r.mu.Lock()
	raw, ok := r.data.Info[core.InfoCosigner]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &sigs); err != nil {
		return nil, err
	}
	return sigs, nil
}

func (r *fakeRequest) Encode() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, err := json.Marshal(r.data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// fakeCodec builds fakeRequests and resolves them by substituting the signer
type fakeCodec struct{}

func (fakeCodec) CreateRequest(ctx context.Context, args core.RequestArgs, abis ports.AbiProvider) (core.SigningRequest, error) {
	data := fakeRequestData{ChainID: args.ChainID, ChainIDs: args.ChainIDs, Broadcast: args.Broadcast}
	switch {
	case args.Identity != nil:
		perm := core.PermissionLevel{Actor: core.PlaceholderName, Permission: core.PlaceholderPermission}
		if args.Identity.Permission != nil {
			perm = *args.Identity.Permission
		}
		data.Identity = &fakeIdentity{Scope: args.Identity.Scope, Permission: args.Identity.Permission}
		data.Transaction.Actions = []core.Action{{
			Name:          "identity",
			Authorization: []core.PermissionLevel{perm},
			Data:          map[string]any{"scope": args.Identity.Scope},
		}}
	case len(args.PackedTransaction) > 0:
		if err := json.Unmarshal(args.PackedTransaction, &data.Transaction); err != nil {
			return nil, fmt.Errorf("invalid packed transaction: %w", err)
		}
	case args.Transaction != nil:
		data.Transaction = *args.Transaction
	case args.Action != nil:
		data.Transaction.Actions = []core.Action{*args.Action}
	default:
		data.Transaction.Actions = args.Actions
	}
	for _, a := range data.Transaction.Actions {
		if a.Account == "" {
			continue
		}
		if _, err := abis.GetAbi(ctx, a.Account); err != nil {
			return nil, err
		}
	}

	r := &fakeRequest{data: data}
	for key, value := range args.Info {
		if err := r.SetInfoKey(key, value); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (fakeCodec) ResolvePayload(ctx context.Context, payload core.CallbackPayload, abis ports.AbiProvider, chainID core.ChainID) (core.ResolvedRequest, error) {
	r, err := decodeFakeRequest(payload[core.PayloadRequest])
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return resolveFake(r, payload.Signer(), chainID, payload[core.PayloadExpiration]), nil
}

type fakeResolved struct {
	request *fakeRequest
	chainID core.ChainID
	signer  core.PermissionLevel
	tx      core.Transaction
}

func resolveFake(r *fakeRequest, signer core.PermissionLevel, chainID core.ChainID, expiration string) *fakeResolved {
	tx := r.data.Transaction
	tx.Expiration = expiration
	tx.Actions = nil
	for _, a := range r.data.Transaction.Actions {
		auths := make([]core.PermissionLevel, 0, len(a.Authorization))
		for _, auth := range a.Authorization {
			if auth.Actor == core.PlaceholderName {
				auth.Actor = signer.Actor
			}
			if auth.Permission == core.PlaceholderName || auth.Permission == core.PlaceholderPermission {
				auth.Permission = signer.Permission
			}
			auths = append(auths, auth)
		}
		a.Authorization = auths
		tx.Actions = append(tx.Actions, a)
	}
	return &fakeResolved{request: r, chainID: chainID, signer: signer, tx: tx}
}

func (r *fakeResolved) Request() core.SigningRequest          { return r.request }
func (r *fakeResolved) ChainID() core.ChainID                 { return r.chainID }
func (r *fakeResolved) Signer() core.PermissionLevel          { return r.signer }
func (r *fakeResolved) Transaction() core.Transaction         { return r.tx }
func (r *fakeResolved) ResolvedTransaction() core.Transaction { return r.tx }

func (r *fakeResolved) SerializedTransaction() []byte {
	data, err := json.Marshal(r.tx)
	if err != nil {
		panic(err)
	}
	return data
}

func (r *fakeResolved) digest() []byte {
	h := sha256.New()
	h.Write(r.chainID[:])
	h.Write(r.SerializedTransaction())
	return h.Sum(nil)
}

func (r *fakeResolved) IdentityProof(signature string) (core.IdentityProof, error) {
	if r.request.data.Identity == nil {
		return core.IdentityProof{}, errors.New("not an identity request")
	}
	var expiration core.TimePoint
	if err := expiration.UnmarshalText([]byte(r.tx.Expiration)); err != nil {
		return core.IdentityProof{}, err
	}
	return core.IdentityProof{
		ChainID:    r.chainID,
		Scope:      r.request.data.Identity.Scope,
		Expiration: expiration.Time,
		Signer:     r.signer,
		Signature:  signature,
		Digest:     r.digest(),
	}, nil
}

// fakeCallbacks hands out in-memory callbacks the test wallet delivers to
type fakeCallbacks struct {
	mu      sync.Mutex
	n       int
	pending map[string]*fakeCallback
}

func newFakeCallbacks() *fakeCallbacks {
	return &fakeCallbacks{pending: make(map[string]*fakeCallback)}
}

func (s *fakeCallbacks) Create() ports.Callback {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	cb := &fakeCallback{
		url:      fmt.Sprintf("https://cb.test/%d", s.n),
		payload:  make(chan core.CallbackPayload, 1),
		canceled: make(chan struct{}),
	}
	s.pending[cb.url] = cb
	return cb
}

func (s *fakeCallbacks) get(url string) *fakeCallback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[url]
}

func (s *fakeCallbacks) deliver(url string, payload core.CallbackPayload) {
	cb := s.get(url)
	if cb == nil {
		return
	}
	select {
	case cb.payload <- payload:
	default:
	}
}

type fakeCallback struct {
	url      string
	payload  chan core.CallbackPayload
	once     sync.Once
	canceled chan struct{}
}

func (c *fakeCallback) URL() string { return c.url }

func (c *fakeCallback) Wait(ctx context.Context) (core.CallbackPayload, error) {
	select {
	case p := <-c.payload:
		return p, nil
	case <-c.canceled:
		return nil, errCallbackCanceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeCallback) Cancel() {
	c.once.Do(func() { close(c.canceled) })
}

func (c *fakeCallback) isCanceled() bool {
	select {
	case <-c.canceled:
		return true
	default:
		return false
	}
}

// testWallet is a transport that signs every request it is shown
type testWallet struct {
	key       ecc.PrivateKey
	callbacks *fakeCallbacks
	requests  chan *fakeRequest

	mu        sync.Mutex
	signer    core.PermissionLevel
	chainID   core.ChainID
	omitCid   bool
	extra     map[string]string
	onRequest func(ctx context.Context, w *testWallet, r *fakeRequest, cancel ports.CancelFunc)
}

func newTestWallet(callbacks *fakeCallbacks) *testWallet {
	return &testWallet{
		key:       testKey,
		callbacks: callbacks,
		requests:  make(chan *fakeRequest, 32),
		signer:    core.PermissionLevel{Actor: "foobar", Permission: "active"},
		chainID:   testChainA,
	}
}

func (w *testWallet) setExtra(extra map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.extra = extra
}

func (w *testWallet) setSigner(signer core.PermissionLevel) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signer = signer
}

func (w *testWallet) OnRequest(ctx context.Context, request core.SigningRequest, cancel ports.CancelFunc) {
	r := request.(*fakeRequest)
	select {
	case w.requests <- r:
	default:
	}
	w.mu.Lock()
	handler := w.onRequest
	w.mu.Unlock()
	if handler != nil {
		handler(ctx, w, r, cancel)
		return
	}
	w.respond(r)
}

func (w *testWallet) respond(r *fakeRequest) {
	payload := w.sign(r)
	url, _ := r.Callback()
	w.callbacks.deliver(url, payload)
}

func (w *testWallet) sign(r *fakeRequest) core.CallbackPayload {
	encoded, err := r.Encode()
	if err != nil {
		panic(err)
	}
	decoded, err := decodeFakeRequest(encoded)
	if err != nil {
		panic(err)
	}

	w.mu.Lock()
	signer, chainID, omitCid := w.signer, w.chainID, w.omitCid
	extra := w.extra
	w.mu.Unlock()

	multi := decoded.data.ChainID == nil
	if !multi {
		chainID = *decoded.data.ChainID
	}
	ex := time.Now().Add(time.Minute).UTC().Format("2006-01-02T15:04:05")
	resolved := resolveFake(decoded, signer, chainID, ex)
	sig, err := w.key.SignDigest(resolved.digest())
	if err != nil {
		panic(err)
	}

	payload := core.CallbackPayload{
		core.PayloadSignerActor:      signer.Actor,
		core.PayloadSignerPermission: signer.Permission,
		core.PayloadSignature:        sig.String(),
		core.PayloadRequest:          encoded,
		core.PayloadExpiration:       ex,
	}
	if multi && !omitCid {
		payload[core.PayloadChainID] = chainID.String()
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

// fakeChainClient is an in-memory chain
type fakeChainClient struct {
	mu       sync.Mutex
	info     core.ChainInfo
	accounts map[string]*core.Account
	abiCalls map[string]int
	abiGate  chan struct{}
	pushed   []core.SignedTransaction
}

func newFakeChainClient() *fakeChainClient {
	return &fakeChainClient{
		accounts: make(map[string]*core.Account),
		abiCalls: make(map[string]int),
	}
}

func (c *fakeChainClient) addAccount(name, permission, key string, threshold uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[name] = &core.Account{
		AccountName:   name,
		HeadBlockTime: core.TimePoint{Time: time.Now().UTC()},
		Permissions: []core.Permission{{
			PermName: permission,
			Parent:   "owner",
			RequiredAuth: core.Authority{
				Threshold: threshold,
				Keys:      []core.KeyWeight{{Key: key, Weight: 1}},
			},
		}},
	}
}

func (c *fakeChainClient) GetInfo(ctx context.Context) (*core.ChainInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := c.info
	return &info, nil
}

func (c *fakeChainClient) GetAccount(ctx context.Context, name string) (*core.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accounts[name], nil
}

func (c *fakeChainClient) GetAbi(ctx context.Context, account string) (json.RawMessage, error) {
	c.mu.Lock()
	c.abiCalls[account]++
	gate := c.abiGate
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if account == "missing" {
		return nil, errors.New("unknown account")
	}
	return json.RawMessage(fmt.Sprintf(`{"account":%q}`, account)), nil
}

func (c *fakeChainClient) PushTransaction(ctx context.Context, tx core.SignedTransaction) (*core.PushTransactionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushed = append(c.pushed, tx)
	return &core.PushTransactionResponse{
		TransactionID: fmt.Sprintf("%064x", len(c.pushed)),
		Processed:     map[string]any{"receipt": map[string]any{"status": "executed"}},
	}, nil
}

func (c *fakeChainClient) pushCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pushed)
}

func (c *fakeChainClient) abiCallCount(account string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.abiCalls[account]
}

// fakePublisher records published topics
type fakePublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}
