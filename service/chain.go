package service

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/esrlink/core"
	"github.com/layer-3/esrlink/ports"
	"golang.org/x/sync/singleflight"
)

// Chain is a chain the link can talk to. It provides ABIs to the request codec
// and caches them, concurrent fetches for the same account share one request.
type Chain struct {
	ChainID core.ChainID
	Client  ports.ChainClient

	mu    sync.RWMutex
	abis  map[string]json.RawMessage
	group singleflight.Group
}

func newChain(cfg ChainConfig) *Chain {
	return &Chain{
		ChainID: cfg.ChainID,
		Client:  cfg.Client,
		abis:    make(map[string]json.RawMessage),
	}
}

var _ ports.AbiProvider = (*Chain)(nil)

// GetAbi returns the ABI of account, fetching it once
func (c *Chain) GetAbi(ctx context.Context, account string) (json.RawMessage, error) {
	c.mu.RLock()
	abi, ok := c.abis[account]
	c.mu.RUnlock()
	if ok {
		return abi, nil
	}

	v, err, _ := c.group.Do(account, func() (any, error) {
		abi, err := c.Client.GetAbi(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch abi for %s: %w", account, err)
		}
		c.mu.Lock()
		c.abis[account] = abi
		c.mu.Unlock()
		return abi, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// Tapos builds a transaction header referencing the last irreversible block,
// expiring expireIn after the head block time.
func (c *Chain) Tapos(ctx context.Context, expireIn time.Duration) (core.TransactionHeader, error) {
	info, err := c.Client.GetInfo(ctx)
	if err != nil {
		return core.TransactionHeader{}, fmt.Errorf("failed to get chain info: %w", err)
	}
	blockID, err := hex.DecodeString(info.LastIrreversibleBlockID)
	if err != nil || len(blockID) < 12 {
		return core.TransactionHeader{}, fmt.Errorf("invalid block id %q", info.LastIrreversibleBlockID)
	}
	return core.TransactionHeader{
		Expiration:     info.HeadBlockTime.Add(expireIn).UTC().Format("2006-01-02T15:04:05"),
		RefBlockNum:    uint16(info.LastIrreversibleBlockNum & 0xffff),
		RefBlockPrefix: binary.LittleEndian.Uint32(blockID[8:12]),
	}, nil
}

// chainSet provides ABIs for multi chain requests, trying each chain in order
type chainSet []*Chain

func (s chainSet) GetAbi(ctx context.Context, account string) (json.RawMessage, error) {
	var errs []error
	for _, c := range s {
		abi, err := c.GetAbi(ctx, account)
		if err == nil {
			return abi, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("no abi for %s: %w", account, errors.Join(errs...))
}
