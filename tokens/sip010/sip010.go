// Package sip010 moves tokens through a node exposing SIP-010 transfers over JSON-RPC.
package sip010

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"anarchy.ttfm/sbtcpay/internal/tokenrpc/rpc"
	"anarchy.ttfm/sbtcpay/tokens"
)

type Config struct {
	Client *rpc.Client
}

type Token struct {
	client *rpc.Client
}

var _ tokens.Token = (*Token)(nil)

func New(config Config) (t *Token) {
	t = &Token{
		client: config.Client,
	}
	return t
}

func (t *Token) Transfer(ctx context.Context, req tokens.TransferRequest) (transfer tokens.Transfer, err error) {
	err = req.Validate()
	if err != nil {
		return transfer, fmt.Errorf("invalid transfer: %w", err)
	}

	res, err := t.client.Transfer(ctx, &rpc.TransferRequest{
		Contract:  req.Contract,
		Amount:    req.Amount,
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Memo:      hex.EncodeToString(req.Memo),
	})
	var nodeErr *rpc.Error
	if errors.As(err, &nodeErr) {
		return transfer, fmt.Errorf("%w: %w", tokens.ErrRejected, err)
	}
	if err != nil {
		return transfer, fmt.Errorf("failed to transfer tokens: %w", err)
	}

	if res.Amount != req.Amount {
		return transfer, fmt.Errorf("node transfered %d instead of %d", res.Amount, req.Amount)
	}

	transfer = tokens.Transfer{
		TxId:      res.TxId,
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Amount:    res.Amount,
	}
	return transfer, nil
}

func (t *Token) Balance(ctx context.Context, req tokens.BalanceRequest) (balance tokens.Balance, err error) {
	res, err := t.client.GetBalance(ctx, &rpc.GetBalanceRequest{
		Contract: req.Contract,
		Owner:    req.Owner,
	})
	if err != nil {
		return balance, fmt.Errorf("failed to get balance: %w", err)
	}

	balance = tokens.Balance{
		Owner:  req.Owner,
		Amount: res.Balance,
	}
	return balance, nil
}

// Height returns the tip height of the node
func (t *Token) Height(ctx context.Context) (height uint64, err error) {
	res, err := t.client.GetBlockHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block height: %w", err)
	}
	return res.Height, nil
}
