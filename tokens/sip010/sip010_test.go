package sip010_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"anarchy.ttfm/sbtcpay/internal/tokenrpc/rpc"
	"anarchy.ttfm/sbtcpay/tokens"
	"anarchy.ttfm/sbtcpay/tokens/mock"
	"anarchy.ttfm/sbtcpay/tokens/sip010"
	"anarchy.ttfm/sbtcpay/tokens/testsuite"
	"github.com/stretchr/testify/assert"
)

type rpcRequest struct {
	Id     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// node serves the JSON-RPC methods the client expects backed by a mock token
func node(t *testing.T, backend *mock.Mock, height uint64) (server *httptest.Server) {
	reply := func(w http.ResponseWriter, id string, result any, err error) {
		res := map[string]any{"jsonrpc": "2.0", "id": id}
		if err != nil {
			res["error"] = rpc.Error{Code: -32000, Message: err.Error()}
		} else {
			res["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}

	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		switch req.Method {
		case "transfer":
			var params rpc.TransferRequest
			json.Unmarshal(req.Params, &params)
			memo, err := hex.DecodeString(params.Memo)
			if err != nil {
				reply(w, req.Id, nil, err)
				return
			}
			transfer, err := backend.Transfer(r.Context(), tokens.TransferRequest{
				Contract:  params.Contract,
				Amount:    params.Amount,
				Sender:    params.Sender,
				Recipient: params.Recipient,
				Memo:      memo,
			})
			reply(w, req.Id, rpc.TransferResponse{TxId: transfer.TxId, Amount: transfer.Amount}, err)
		case "get_balance":
			var params rpc.GetBalanceRequest
			json.Unmarshal(req.Params, &params)
			balance, err := backend.Balance(r.Context(), tokens.BalanceRequest{Contract: params.Contract, Owner: params.Owner})
			reply(w, req.Id, rpc.GetBalanceResponse{Balance: balance.Amount}, err)
		case "get_block_height":
			reply(w, req.Id, rpc.GetBlockHeightResponse{Height: height}, nil)
		default:
			http.Error(w, "unknown method", http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func Test_SIP010(t *testing.T) {
	backend := mock.New(mock.Config{})
	server := node(t, backend, 4242)

	token := sip010.New(sip010.Config{Client: rpc.New(rpc.Config{Url: server.URL})})
	testsuite.Test(t, token, &testsuite.MockGenerator{Token: backend})

	t.Run("Height", func(t *testing.T) {
		assertions := assert.New(t)

		height, err := token.Height(context.TODO())
		assertions.Nil(err, "failed to get height")
		assertions.Equal(uint64(4242), height)
	})

	t.Run("Node Error", func(t *testing.T) {
		assertions := assert.New(t)

		backend.Reject(true)
		defer backend.Reject(false)

		_, err := token.Transfer(context.TODO(), tokens.TransferRequest{Amount: 1, Sender: "ST1", Recipient: "ST2"})
		var rpcErr *rpc.Error
		assertions.ErrorAs(err, &rpcErr, "node errors should surface")
		assertions.True(tokens.Rejected(err), "a node error means nothing moved")
	})

	t.Run("Unreachable Node", func(t *testing.T) {
		assertions := assert.New(t)

		down := node(t, backend, 0)
		down.Close()

		token := sip010.New(sip010.Config{Client: rpc.New(rpc.Config{Url: down.URL})})
		_, err := token.Transfer(context.TODO(), tokens.TransferRequest{Amount: 1, Sender: "ST1", Recipient: "ST2"})
		assertions.NotNil(err, "transfer should fail")
		assertions.False(tokens.Rejected(err), "a transport failure leaves the outcome unknown")
	})
}
