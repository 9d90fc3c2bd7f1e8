package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"anarchy.ttfm/sbtcpay/tokens"
)

var (
	ErrTransferRejected    = tokens.ErrRejected
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Mock implements the tokens.Token interface for testing purposes.
type Mock struct {
	mu           sync.Mutex
	balances     map[string]uint64         // owner -> amount
	transactions map[string]tokens.Transfer // txId -> transfer
	nextTx       uint64
	reject       bool
}

var _ tokens.Token = (*Mock)(nil)

type Config struct {
	// Initial balances
	Balances map[string]uint64
}

// New creates a new Mock token.
func New(config Config) *Mock {
	m := &Mock{
		balances:     make(map[string]uint64, len(config.Balances)),
		transactions: make(map[string]tokens.Transfer),
	}
	for owner, amount := range config.Balances {
		m.balances[owner] = amount
	}
	return m
}

// Mint credits amount to owner out of thin air
func (m *Mock) Mint(owner string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[owner] += amount
}

// Reject makes every following transfer fail until called with false
func (m *Mock) Reject(reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reject = reject
}

// Transfer moves a specified amount between two accounts.
func (m *Mock) Transfer(ctx context.Context, req tokens.TransferRequest) (transfer tokens.Transfer, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err = req.Validate()
	if err != nil {
		return transfer, err
	}

	if m.reject {
		return transfer, ErrTransferRejected
	}

	if m.balances[req.Sender] < req.Amount {
		return transfer, tokens.ErrInsufficientBalance
	}

	m.balances[req.Sender] -= req.Amount
	m.balances[req.Recipient] += req.Amount

	m.nextTx++
	transfer = tokens.Transfer{
		TxId:      fmt.Sprintf("mock_transfer_tx_%d", m.nextTx),
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Amount:    req.Amount,
	}
	m.transactions[transfer.TxId] = transfer
	return transfer, nil
}

// Balance returns the balance of the specified account.
func (m *Mock) Balance(ctx context.Context, req tokens.BalanceRequest) (balance tokens.Balance, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return tokens.Balance{Owner: req.Owner, Amount: m.balances[req.Owner]}, nil
}

// Transaction returns a previously executed transfer
func (m *Mock) Transaction(txId string) (transfer tokens.Transfer, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transfer, found := m.transactions[txId]
	if !found {
		return transfer, ErrTransactionNotFound
	}
	return transfer, nil
}
