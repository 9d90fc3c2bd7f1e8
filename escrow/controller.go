// Package escrow is the sBTC escrow ledger. It locks funds against payment ids, releases them to
// merchants on behalf of the payment processor, refunds payers and queues merchant withdrawals.
package escrow

import (
	"context"
	"errors"
	"fmt"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/tokens"
)

var (
	ErrUnauthorized          = chain.NewError(300, "unauthorized")
	ErrInvalidAmount         = chain.NewError(301, "invalid amount")
	ErrInsufficientBalance   = chain.NewError(302, "insufficient balance")
	ErrTransferFailed        = chain.NewError(303, "transfer failed")
	ErrInvalidRecipient      = chain.NewError(304, "invalid recipient")
	ErrEscrowNotFound        = chain.NewError(305, "escrow not found")
	ErrEscrowAlreadyReleased = chain.NewError(306, "escrow already released")
	ErrPaymentProcessorOnly  = chain.NewError(307, "payment processor only")
	ErrInvalidConversionRate = chain.NewError(308, "invalid conversion rate")
	ErrSlippageExceeded      = chain.NewError(309, "slippage exceeded")

	ErrOperatorSetFull        = chain.NewError(301, "authorized operator set is full")
	ErrWithdrawalNotFound     = chain.NewError(305, "withdrawal request not found")
	ErrWithdrawalProcessed    = chain.NewError(306, "withdrawal already processed")
	ErrWithdrawalClaimed      = chain.NewError(306, "withdrawal payout already claimed")
	ErrConversionNotFound     = chain.NewError(305, "conversion record not found")
	ErrInvalidSettlementProof = chain.NewError(301, "invalid settlement proof")
)

var (
	ErrNotDeployed     = errors.New("escrow ledger not deployed")
	ErrAlreadyDeployed = errors.New("escrow ledger already deployed")
)

const (
	// Capacity of the authorized operator set
	MaxOperators = 10
	// Longest accepted external recipient address
	MaxRecipientLength = 128
	// Longest accepted settlement proof
	MaxTxHashLength = 128
	// Upper bound of the slippage tolerance
	MaxSlippageLimit = 10_000

	DefaultConversionRate = 100_000_000
	DefaultDepositFee     = 1_000
	DefaultWithdrawalFee  = 2_000
	DefaultMaxSlippage    = 100
)

// Controller exposes the escrow ledger contract
type Controller struct {
	chain    *chain.Chain
	contract chain.Principal
	token    tokens.Token
}

type Config struct {
	// Host the ledger runs on
	Chain *chain.Chain
	// Principal of the ledger contract. Holds the escrowed tokens.
	Contract chain.Principal
	// Token capability used while the sBTC integration is enabled
	Token tokens.Token
}

func New(config Config) (c *Controller) {
	c = &Controller{
		chain:    config.Chain,
		contract: config.Contract,
		token:    config.Token,
	}
	return c
}

// Contract returns the principal of the ledger contract
func (c *Controller) Contract() (p chain.Principal) { return c.contract }

// Deploy initializes the ledger settings. The sender becomes the immutable owner.
func (c *Controller) Deploy(ctx context.Context, owner chain.Principal) (err error) {
	return c.chain.Execute(ctx, owner, func(tx *chain.Tx) (err error) {
		found, err := tx.Has(settingsKey)
		if err != nil {
			return err
		}
		if found {
			return ErrAlreadyDeployed
		}

		settings := Settings{
			Owner:          tx.Caller(),
			ConversionRate: DefaultConversionRate,
			DepositFee:     DefaultDepositFee,
			WithdrawalFee:  DefaultWithdrawalFee,
			MaxSlippage:    DefaultMaxSlippage,
		}
		err = tx.Set(settingsKey, &settings)
		if err != nil {
			return fmt.Errorf("failed to store settings: %w", err)
		}
		return tx.Emit(c.contract, "escrow-deployed", map[string]any{"owner": settings.Owner})
	})
}

func (c *Controller) settings(tx *chain.Tx) (settings Settings, err error) {
	found, err := tx.Get(settingsKey, &settings)
	if err != nil {
		return settings, err
	}
	if !found {
		return settings, ErrNotDeployed
	}
	return settings, nil
}

// owned loads the settings and fails unless the caller is the owner
func (c *Controller) owned(tx *chain.Tx) (settings Settings, err error) {
	settings, err = c.settings(tx)
	if err != nil {
		return settings, err
	}
	if tx.Caller() != settings.Owner {
		return settings, ErrUnauthorized
	}
	return settings, nil
}
