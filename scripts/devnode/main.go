// Local SIP-010 node speaking the JSON-RPC dialect of tokens/sip010, backed by an in-memory ledger.
// Useful to run the server with `token: sip010` without a Stacks devnet.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"anarchy.ttfm/sbtcpay/internal/tokenrpc/rpc"
	"anarchy.ttfm/sbtcpay/tokens"
	"anarchy.ttfm/sbtcpay/tokens/mock"
	"github.com/gin-gonic/gin"
)

type funding map[string]uint64

func (f funding) String() string { return fmt.Sprint(map[string]uint64(f)) }

func (f funding) Set(value string) error {
	owner, rawAmount, found := strings.Cut(value, "=")
	if !found {
		return fmt.Errorf("expecting principal=amount: %s", value)
	}
	amount, err := strconv.ParseUint(rawAmount, 10, 64)
	if err != nil {
		return err
	}
	f[owner] += amount
	return nil
}

type request struct {
	Version string          `json:"jsonrpc"`
	Id      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

func main() {
	balances := funding{}
	listen := flag.String("listen", "127.0.0.1:20443", "Listen address")
	blockTime := flag.Duration("block-time", 10*time.Second, "Time between blocks")
	flag.Var(balances, "fund", "Initial balance as principal=amount, repeatable")
	flag.Parse()

	ledger := mock.New(mock.Config{Balances: balances})
	var height atomic.Uint64
	go func() {
		for range time.Tick(*blockTime) {
			height.Add(1)
		}
	}()

	reply := func(ctx *gin.Context, id string, result any, err error) {
		res := gin.H{"jsonrpc": "2.0", "id": id}
		if err != nil {
			res["error"] = rpc.Error{Code: -32000, Message: err.Error()}
		} else {
			res["result"] = result
		}
		ctx.JSON(http.StatusOK, res)
	}

	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.POST("/json_rpc", func(ctx *gin.Context) {
		var req request
		err := ctx.ShouldBindJSON(&req)
		if err != nil {
			ctx.String(http.StatusBadRequest, err.Error())
			return
		}

		switch req.Method {
		case "transfer":
			var params rpc.TransferRequest
			err = json.Unmarshal(req.Params, &params)
			if err != nil {
				reply(ctx, req.Id, nil, err)
				return
			}
			memo, err := hex.DecodeString(params.Memo)
			if err != nil {
				reply(ctx, req.Id, nil, err)
				return
			}
			transfer, err := ledger.Transfer(ctx, tokens.TransferRequest{
				Contract:  params.Contract,
				Amount:    params.Amount,
				Sender:    params.Sender,
				Recipient: params.Recipient,
				Memo:      memo,
			})
			if err == nil {
				log.Println("Transfer:", transfer.String())
			}
			reply(ctx, req.Id, rpc.TransferResponse{TxId: transfer.TxId, Amount: transfer.Amount}, err)
		case "get_balance":
			var params rpc.GetBalanceRequest
			err = json.Unmarshal(req.Params, &params)
			if err != nil {
				reply(ctx, req.Id, nil, err)
				return
			}
			balance, err := ledger.Balance(ctx, tokens.BalanceRequest{Contract: params.Contract, Owner: params.Owner})
			reply(ctx, req.Id, rpc.GetBalanceResponse{Balance: balance.Amount}, err)
		case "get_block_height":
			reply(ctx, req.Id, rpc.GetBlockHeightResponse{Height: height.Load()}, nil)
		default:
			ctx.JSON(http.StatusOK, gin.H{"jsonrpc": "2.0", "id": req.Id, "error": rpc.Error{Code: -32601, Message: "method not found"}})
		}
	})

	go func() {
		fmt.Printf("Dev node listening on %s/json_rpc, one block every %s\n", *listen, *blockTime)
		err := e.Run(*listen)
		if err != nil {
			log.Fatalf("Error serving: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\nReceived termination signal. Shutting down...")
}
