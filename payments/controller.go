// Package payments is the payment processor contract. It drives payments from creation to
// settlement or expiry and asks the escrow ledger to release funds when a payment settles.
//
// A settlement credits two independent books: the merchant balance kept here, net of the platform
// fee, and the ledger balance that receives the released escrow. Only the ledger book pays out,
// through request-withdrawal; withdrawing from this book moves no tokens.
package payments

import (
	"context"
	"errors"
	"fmt"

	"anarchy.ttfm/sbtcpay/chain"
)

var (
	ErrUnauthorized            = chain.NewError(100, "unauthorized")
	ErrInvalidPayment          = chain.NewError(101, "invalid payment")
	ErrPaymentNotFound         = chain.NewError(102, "payment not found")
	ErrPaymentAlreadyProcessed = chain.NewError(103, "payment already processed")
	ErrInsufficientBalance     = chain.NewError(104, "insufficient balance")
	ErrPaymentExpired          = chain.NewError(106, "payment expired")
	ErrInvalidAmount           = chain.NewError(107, "invalid amount")

	ErrSettlementNotFound = chain.NewError(102, "settlement not found")
)

var (
	ErrNotDeployed     = errors.New("payment processor not deployed")
	ErrAlreadyDeployed = errors.New("payment processor already deployed")
)

const (
	DefaultPlatformFeeRate = 250
	MaxReferenceLength     = 64
	MaxMetadataLength      = 256
)

// EscrowLedger is the part of the escrow ledger settlement depends on. Both methods run inside
// the settling call.
type EscrowLedger interface {
	// Reports whether an unreleased escrow exists for the payment
	HasOpenEscrow(tx *chain.Tx, paymentId uint64) (open bool, err error)
	// Releases the escrow to the merchant. tx.Caller() is the payment processor.
	Release(tx *chain.Tx, paymentId uint64) (amount uint64, err error)
}

type Controller struct {
	chain         *chain.Chain
	contract      chain.Principal
	ledger        EscrowLedger
	requireEscrow bool
}

type Config struct {
	// Host the processor runs on
	Chain *chain.Chain
	// Principal of the processor contract. The ledger must trust it as its payment processor.
	Contract chain.Principal
	// Ledger released on settlement. Optional.
	Ledger EscrowLedger
	// Refuse to settle payments without an unreleased escrow
	RequireEscrow bool
}

func New(config Config) (c *Controller) {
	c = &Controller{
		chain:         config.Chain,
		contract:      config.Contract,
		ledger:        config.Ledger,
		requireEscrow: config.RequireEscrow,
	}
	return c
}

// Contract returns the principal of the processor contract
func (c *Controller) Contract() (p chain.Principal) { return c.contract }

// Deploy stores the initial settings. The sender becomes the owner.
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
			Owner:           tx.Caller(),
			PlatformFeeRate: DefaultPlatformFeeRate,
		}
		err = tx.Set(settingsKey, &settings)
		if err != nil {
			return fmt.Errorf("failed to store settings: %w", err)
		}
		return tx.Emit(c.contract, "payments-deployed", map[string]any{"owner": settings.Owner})
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

func (c *Controller) payment(tx *chain.Tx, id uint64) (payment Payment, err error) {
	found, err := tx.Get(PaymentKey(id), &payment)
	if err != nil {
		return payment, err
	}
	if !found {
		return payment, ErrPaymentNotFound
	}
	return payment, nil
}
