package payments

import (
	"context"
	"fmt"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/fees"
)

// WithdrawBalance debits amount from the sender's settled balance
func (c *Controller) WithdrawBalance(ctx context.Context, sender chain.Principal, amount uint64) (balance Balance, err error) {
	err = c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		_, err = c.settings(tx)
		if err != nil {
			return err
		}

		if amount == 0 {
			return ErrInvalidAmount
		}

		merchant := tx.Caller()
		_, err = tx.Get(BalanceKey(merchant), &balance)
		if err != nil {
			return fmt.Errorf("failed to load balance: %w", err)
		}
		if balance.Available < amount {
			return ErrInsufficientBalance
		}

		balance.Available -= amount
		balance.TotalWithdrawn += amount
		err = tx.Set(BalanceKey(merchant), &balance)
		if err != nil {
			return fmt.Errorf("failed to store balance: %w", err)
		}

		return tx.Emit(c.contract, "balance-withdrawn", map[string]any{
			"merchant": merchant,
			"amount":   amount,
		})
	})
	return balance, err
}

func (c *Controller) SetPlatformFeeRate(ctx context.Context, sender chain.Principal, rate uint64) (err error) {
	return c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		settings, err := c.settings(tx)
		if err != nil {
			return err
		}
		if tx.Caller() != settings.Owner {
			return ErrUnauthorized
		}
		if fees.ValidatePlatformFeeRate(rate) != nil {
			return ErrInvalidPayment
		}

		settings.PlatformFeeRate = rate
		err = tx.Set(settingsKey, &settings)
		if err != nil {
			return fmt.Errorf("failed to store settings: %w", err)
		}
		return tx.Emit(c.contract, "platform-fee-rate-updated", map[string]any{"rate": rate})
	})
}
