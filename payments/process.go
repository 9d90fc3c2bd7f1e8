package payments

import (
	"context"
	"fmt"
	"log"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/fees"
)

// finalize stores a payment that reached a terminal status
func (c *Controller) finalize(tx *chain.Tx, payment Payment) (err error) {
	err = tx.Set(PaymentKey(payment.Id), &payment)
	if err != nil {
		return fmt.Errorf("failed to store payment: %w", err)
	}
	err = tx.Delete(OpenKey(payment.Id))
	if err != nil {
		return fmt.Errorf("failed to delete open key: %w", err)
	}
	return nil
}

// ProcessPayment confirms a created payment. The sender is recorded as the payer.
func (c *Controller) ProcessPayment(ctx context.Context, sender chain.Principal, id uint64) (payment Payment, err error) {
	err = c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		payment, err = c.payment(tx, id)
		if err != nil {
			return err
		}
		if payment.Status != StatusCreated {
			return ErrPaymentAlreadyProcessed
		}
		if payment.Expired(tx.Height()) {
			return ErrPaymentExpired
		}

		payment.Payer = tx.Caller()
		payment.Status = StatusConfirmed
		err = tx.Set(PaymentKey(id), &payment)
		if err != nil {
			return fmt.Errorf("failed to store payment: %w", err)
		}

		return tx.Emit(c.contract, "payment-processed", map[string]any{
			"payment-id": id,
			"payer":      payment.Payer,
		})
	})
	return payment, err
}

// SettlePayment settles a confirmed payment. The platform fee is retained and the rest is credited
// to the merchant. An unreleased escrow for the payment is released in the same call.
func (c *Controller) SettlePayment(ctx context.Context, sender chain.Principal, id uint64) (settlement Settlement, err error) {
	err = c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		settings, err := c.settings(tx)
		if err != nil {
			return err
		}

		payment, err := c.payment(tx, id)
		if err != nil {
			return err
		}
		if payment.Status != StatusConfirmed {
			return ErrInvalidPayment
		}

		fee := fees.PlatformFee(payment.SbtcAmount, settings.PlatformFeeRate)
		settlement = Settlement{
			PaymentId:      id,
			SbtcAmount:     payment.SbtcAmount,
			PlatformFee:    fee,
			MerchantAmount: payment.SbtcAmount - fee,
			SettledAt:      tx.Height(),
		}

		settlement.EscrowReleased, settlement.EscrowAmount, err = c.release(tx, id)
		if err != nil {
			return err
		}

		var balance Balance
		_, err = tx.Get(BalanceKey(payment.Merchant), &balance)
		if err != nil {
			return fmt.Errorf("failed to load balance: %w", err)
		}
		balance.Available += settlement.MerchantAmount
		balance.TotalEarned += settlement.MerchantAmount
		err = tx.Set(BalanceKey(payment.Merchant), &balance)
		if err != nil {
			return fmt.Errorf("failed to store balance: %w", err)
		}

		collected, err := tx.Uint64(platformFeesKey)
		if err != nil {
			return err
		}
		err = tx.SetUint64(platformFeesKey, collected+fee)
		if err != nil {
			return fmt.Errorf("failed to accrue platform fee: %w", err)
		}

		err = tx.Set(SettlementKey(id), &settlement)
		if err != nil {
			return fmt.Errorf("failed to store settlement: %w", err)
		}

		payment.Status = StatusSettled
		err = c.finalize(tx, payment)
		if err != nil {
			return err
		}

		return tx.Emit(c.contract, "payment-settled", settlement)
	})
	return settlement, err
}

// release hands the escrow of id to the merchant when one is open
func (c *Controller) release(tx *chain.Tx, id uint64) (released bool, amount uint64, err error) {
	var open bool
	if c.ledger != nil {
		open, err = c.ledger.HasOpenEscrow(tx, id)
		if err != nil {
			return false, 0, fmt.Errorf("failed to query escrow: %w", err)
		}
	}

	if !open {
		if c.requireEscrow {
			return false, 0, ErrInvalidPayment
		}
		log.Println("WARNING|SETTLING|PAYMENTS", "settling without escrow:", id)
		return false, 0, nil
	}

	err = tx.As(c.contract, func(tx *chain.Tx) (err error) {
		amount, err = c.ledger.Release(tx, id)
		return err
	})
	if err != nil {
		return false, 0, err
	}
	return true, amount, nil
}

// ExpirePayment marks a payment past its expiry height as expired. Anyone may call it.
func (c *Controller) ExpirePayment(ctx context.Context, sender chain.Principal, id uint64) (payment Payment, err error) {
	err = c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		payment, err = c.payment(tx, id)
		if err != nil {
			return err
		}
		if payment.Status.Terminal() {
			return ErrPaymentAlreadyProcessed
		}
		if !payment.Expired(tx.Height()) {
			return ErrInvalidPayment
		}

		payment.Status = StatusExpired
		err = c.finalize(tx, payment)
		if err != nil {
			return err
		}

		return tx.Emit(c.contract, "payment-expired", map[string]any{
			"payment-id": id,
			"expires-at": payment.ExpiresAt,
		})
	})
	return payment, err
}
