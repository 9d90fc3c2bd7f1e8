// Package noop implements a ledger-only token: transfers succeed without moving anything.
package noop

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"anarchy.ttfm/sbtcpay/tokens"
)

// Token accepts every valid transfer and reports zero balances
type Token struct {
	seq atomic.Uint64
}

var _ tokens.Token = (*Token)(nil)

func New() (t *Token) {
	return &Token{}
}

func (t *Token) Transfer(ctx context.Context, req tokens.TransferRequest) (transfer tokens.Transfer, err error) {
	err = req.Validate()
	if err != nil {
		return transfer, fmt.Errorf("invalid transfer: %w", err)
	}

	transfer = tokens.Transfer{
		TxId:      fmt.Sprintf("noop_tx_%d", t.seq.Add(1)),
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Amount:    req.Amount,
	}
	log.Println("Simulated transfer:", transfer.String())
	return transfer, nil
}

func (t *Token) Balance(ctx context.Context, req tokens.BalanceRequest) (balance tokens.Balance, err error) {
	return tokens.Balance{Owner: req.Owner}, nil
}
