package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/layer-3/esrlink/core"
	"github.com/layer-3/esrlink/ports"
	"github.com/rs/zerolog"
)

// ErrNoAbi is returned when the account has no contract deployed
var ErrNoAbi = errors.New("account has no abi")

// RPCError is an error response from a chain API node
type RPCError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Detail     struct {
		Code    int    `json:"code"`
		Name    string `json:"name"`
		What    string `json:"what"`
		Details []struct {
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
}

func (e *RPCError) Error() string {
	msg := e.Detail.What
	if len(e.Detail.Details) > 0 {
		msg = e.Detail.Details[0].Message
	}
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("chain api error %d: %s", e.StatusCode, msg)
}

// unknownAccount reports whether the node said the account does not exist
func (e *RPCError) unknownAccount() bool {
	if e.Detail.Name == "unknown_key" || e.Detail.Name == "account_query_exception" {
		return true
	}
	return strings.Contains(e.Detail.What, "unknown key") || strings.Contains(e.Error(), "unknown key")
}

// RPCClient talks to the chain HTTP API of a node
type RPCClient struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewRPCClient creates a client for the node at url. client may be nil.
func NewRPCClient(url string, client *http.Client, logger zerolog.Logger) *RPCClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &RPCClient{
		url:    strings.TrimSuffix(url, "/"),
		client: client,
		logger: logger,
	}
}

var _ ports.ChainClient = (*RPCClient)(nil)

// GetInfo returns the current chain state
func (c *RPCClient) GetInfo(ctx context.Context) (*core.ChainInfo, error) {
	var info core.ChainInfo
	if err := c.call(ctx, "get_info", struct{}{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetAccount returns the account, nil when it does not exist
func (c *RPCClient) GetAccount(ctx context.Context, name string) (*core.Account, error) {
	var account core.Account
	err := c.call(ctx, "get_account", map[string]string{"account_name": name}, &account)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.unknownAccount() {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetAbi returns the raw abi of the contract deployed on account
func (c *RPCClient) GetAbi(ctx context.Context, account string) (json.RawMessage, error) {
	var res struct {
		AccountName string          `json:"account_name"`
		Abi         json.RawMessage `json:"abi"`
	}
	if err := c.call(ctx, "get_abi", map[string]string{"account_name": account}, &res); err != nil {
		return nil, err
	}
	if len(res.Abi) == 0 || string(res.Abi) == "null" {
		return nil, fmt.Errorf("%w: %s", ErrNoAbi, account)
	}
	return res.Abi, nil
}

// PushTransaction broadcasts a signed transaction
func (c *RPCClient) PushTransaction(ctx context.Context, tx core.SignedTransaction) (*core.PushTransactionResponse, error) {
	if len(tx.Packed) == 0 {
		return nil, errors.New("transaction is not serialized")
	}
	body := struct {
		Signatures            []string `json:"signatures"`
		Compression           int      `json:"compression"`
		PackedContextFreeData string   `json:"packed_context_free_data"`
		PackedTrx             string   `json:"packed_trx"`
	}{
		Signatures: tx.Signatures,
		PackedTrx:  hex.EncodeToString(tx.Packed),
	}

	var res core.PushTransactionResponse
	if err := c.call(ctx, "push_transaction", body, &res); err != nil {
		return nil, err
	}
	c.logger.Debug().Str("tx", res.TransactionID).Msg("transaction pushed")
	return &res, nil
}

func (c *RPCClient) call(ctx context.Context, method string, params, out any) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode %s params: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/v1/chain/"+method, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}
	if resp.StatusCode/100 != 2 {
		rpcErr := &RPCError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, rpcErr); err != nil {
			c.logger.Debug().Err(err).Str("method", method).Msg("non json error response")
		}
		return rpcErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return nil
}
