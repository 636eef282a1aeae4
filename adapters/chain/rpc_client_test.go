package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/layer-3/esrlink/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testChainID = "aca376f206b8fc25a6ed44dbdc66547c36c6c33e3a119ffbeaef943642f0e906"

func newTestNode(t *testing.T, handlers map[string]http.HandlerFunc) *RPCClient {
	t.Helper()
	mux := http.NewServeMux()
	for method, h := range handlers {
		mux.HandleFunc("/v1/chain/"+method, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewRPCClient(srv.URL+"/", nil, zerolog.Nop())
}

func unknownKey(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"code":500,"message":"Internal Service Error","error":{"code":0,"name":"exception","what":"unspecified","details":[{"message":"unknown key (boost::tuples::tuple<bool, eosio::chain::name>): (0 nobody)"}]}}`))
}

func TestGetInfo(t *testing.T) {
	client := newTestNode(t, map[string]http.HandlerFunc{
		"get_info": func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			w.Write([]byte(`{"chain_id":"` + testChainID + `","head_block_num":100,"head_block_time":"2024-01-02T03:04:05.500","last_irreversible_block_num":90,"last_irreversible_block_id":"0000005a"}`))
		},
	})

	info, err := client.GetInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, core.MustParseChainID(testChainID), info.ChainID)
	require.Equal(t, uint32(100), info.HeadBlockNum)
	require.Equal(t, uint32(90), info.LastIrreversibleBlockNum)
	require.Equal(t, 500_000_000, info.HeadBlockTime.Nanosecond())
}

func TestGetAccount(t *testing.T) {
	client := newTestNode(t, map[string]http.HandlerFunc{
		"get_account": func(w http.ResponseWriter, r *http.Request) {
			var params map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
			if params["account_name"] != "foobar" {
				unknownKey(w, r)
				return
			}
			w.Write([]byte(`{"account_name":"foobar","head_block_time":"2024-01-02T03:04:05.500","created":"2018-06-01T12:00:00.000","core_liquid_balance":"1.5000 EOS","permissions":[{"perm_name":"active","parent":"owner","required_auth":{"threshold":1,"keys":[{"key":"PUB_K1_x","weight":1}],"accounts":[],"waits":[]}}]}`))
		},
	})

	account, err := client.GetAccount(context.Background(), "foobar")
	require.NoError(t, err)
	require.Equal(t, "foobar", account.AccountName)
	require.Equal(t, "1.5000 EOS", account.CoreLiquidBalance.String())
	require.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 500_000_000, time.UTC), account.HeadBlockTime.Time)
	require.Equal(t, time.Date(2018, 6, 1, 12, 0, 0, 0, time.UTC), account.Created.Time)
	perm, ok := account.Permission("active")
	require.True(t, ok)
	require.Equal(t, uint32(1), perm.RequiredAuth.Threshold)

	missing, err := client.GetAccount(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestGetAccountServerError(t *testing.T) {
	client := newTestNode(t, map[string]http.HandlerFunc{
		"get_account": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	})

	_, err := client.GetAccount(context.Background(), "foobar")
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, http.StatusBadGateway, rpcErr.StatusCode)
	require.Contains(t, err.Error(), "Bad Gateway")
}

func TestGetAbi(t *testing.T) {
	client := newTestNode(t, map[string]http.HandlerFunc{
		"get_abi": func(w http.ResponseWriter, r *http.Request) {
			var params map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
			if params["account_name"] == "eosio.token" {
				w.Write([]byte(`{"account_name":"eosio.token","abi":{"version":"eosio::abi/1.1"}}`))
				return
			}
			w.Write([]byte(`{"account_name":"foobar"}`))
		},
	})

	abi, err := client.GetAbi(context.Background(), "eosio.token")
	require.NoError(t, err)
	require.JSONEq(t, `{"version":"eosio::abi/1.1"}`, string(abi))

	_, err = client.GetAbi(context.Background(), "foobar")
	require.ErrorIs(t, err, ErrNoAbi)
}

func TestPushTransaction(t *testing.T) {
	client := newTestNode(t, map[string]http.HandlerFunc{
		"push_transaction": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "beef", body["packed_trx"])
			require.Equal(t, float64(0), body["compression"])
			require.Equal(t, "", body["packed_context_free_data"])
			require.Equal(t, []any{"SIG_K1_a", "SIG_K1_b"}, body["signatures"])
			w.Write([]byte(`{"transaction_id":"abc","processed":{"block_num":7}}`))
		},
	})

	res, err := client.PushTransaction(context.Background(), core.SignedTransaction{
		Signatures: []string{"SIG_K1_a", "SIG_K1_b"},
		Packed:     []byte{0xbe, 0xef},
	})
	require.NoError(t, err)
	require.Equal(t, "abc", res.TransactionID)
	require.Equal(t, float64(7), res.Processed["block_num"])

	_, err = client.PushTransaction(context.Background(), core.SignedTransaction{})
	require.Error(t, err)
}

func TestRPCErrorMessage(t *testing.T) {
	client := newTestNode(t, map[string]http.HandlerFunc{
		"push_transaction": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"code":500,"message":"Internal Service Error","error":{"code":3040005,"name":"expired_tx_exception","what":"Expired Transaction","details":[]}}`))
		},
	})

	_, err := client.PushTransaction(context.Background(), core.SignedTransaction{Packed: []byte{1}})
	require.EqualError(t, err, "chain api error 500: Expired Transaction")
}
