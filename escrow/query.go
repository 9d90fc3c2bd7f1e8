package escrow

import (
	"context"
	"fmt"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/fees"
)

func (c *Controller) view(ctx context.Context, fn func(tx *chain.Tx, settings Settings) error) (err error) {
	return c.chain.View(ctx, func(tx *chain.Tx) (err error) {
		settings, err := c.settings(tx)
		if err != nil {
			return err
		}
		return fn(tx, settings)
	})
}

func (c *Controller) Settings(ctx context.Context) (settings Settings, err error) {
	err = c.view(ctx, func(_ *chain.Tx, s Settings) error {
		settings = s
		return nil
	})
	return settings, err
}

// EscrowDeposit returns the escrow recorded for paymentId, released or not
func (c *Controller) EscrowDeposit(ctx context.Context, paymentId uint64) (deposit Deposit, err error) {
	err = c.view(ctx, func(tx *chain.Tx, _ Settings) (err error) {
		found, err := tx.Get(DepositKey(paymentId), &deposit)
		if err != nil {
			return err
		}
		if !found {
			return ErrEscrowNotFound
		}
		return nil
	})
	return deposit, err
}

// MerchantBalance returns the ledger balance of merchant. Unknown merchants hold a zero balance.
func (c *Controller) MerchantBalance(ctx context.Context, merchant chain.Principal) (balance Balance, err error) {
	err = c.view(ctx, func(tx *chain.Tx, _ Settings) (err error) {
		balance, err = c.balance(tx, merchant)
		return err
	})
	return balance, err
}

func (c *Controller) WithdrawalRequest(ctx context.Context, requestId uint64) (request WithdrawalRequest, err error) {
	err = c.view(ctx, func(tx *chain.Tx, _ Settings) (err error) {
		found, err := tx.Get(WithdrawalKey(requestId), &request)
		if err != nil {
			return err
		}
		if !found {
			return ErrWithdrawalNotFound
		}
		return nil
	})
	return request, err
}

func (c *Controller) ConversionRecord(ctx context.Context, id uint64) (record ConversionRecord, err error) {
	err = c.view(ctx, func(tx *chain.Tx, _ Settings) (err error) {
		found, err := tx.Get(ConversionKey(id), &record)
		if err != nil {
			return err
		}
		if !found {
			return ErrConversionNotFound
		}
		return nil
	})
	return record, err
}

func (c *Controller) ConversionRate(ctx context.Context) (rate uint64, err error) {
	settings, err := c.Settings(ctx)
	return settings.ConversionRate, err
}

// CalculateWithdrawalAmount returns what a withdrawal of gross pays out
func (c *Controller) CalculateWithdrawalAmount(ctx context.Context, gross uint64) (net uint64, err error) {
	settings, err := c.Settings(ctx)
	if err != nil {
		return 0, err
	}
	net, err = fees.NetOfFixedFee(gross, settings.WithdrawalFee)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return net, nil
}

// CalculateDepositAmount returns what a deposit of gross locks in escrow
func (c *Controller) CalculateDepositAmount(ctx context.Context, gross uint64) (net uint64, err error) {
	settings, err := c.Settings(ctx)
	if err != nil {
		return 0, err
	}
	net, err = fees.NetOfFixedFee(gross, settings.DepositFee)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return net, nil
}

func (c *Controller) IsAuthorizedOperator(ctx context.Context, p chain.Principal) (ok bool, err error) {
	settings, err := c.Settings(ctx)
	return settings.IsOperator(p), err
}

// TotalLocked is the sum of every open escrow
func (c *Controller) TotalLocked(ctx context.Context) (total uint64, err error) {
	err = c.view(ctx, func(tx *chain.Tx, _ Settings) (err error) {
		total, err = tx.Uint64(totalLockedKey)
		if err != nil {
			return fmt.Errorf("failed to query total locked: %w", err)
		}
		return nil
	})
	return total, err
}

// OpenEscrowSum adds up the amounts of every unreleased escrow by walking the deposits
func (c *Controller) OpenEscrowSum(ctx context.Context) (sum uint64, err error) {
	err = c.view(ctx, func(tx *chain.Tx, _ Settings) (err error) {
		return tx.Iterate(depositsPrefix, func(key, value []byte) (err error) {
			var deposit Deposit
			err = deposit.FromBytes(value)
			if err != nil {
				return fmt.Errorf("failed to unmarshal %s: %w", key, err)
			}
			if !deposit.Released {
				sum += deposit.Amount
			}
			return nil
		})
	})
	return sum, err
}

// Withdrawals lists the requests issued by merchant
func (c *Controller) Withdrawals(ctx context.Context, merchant chain.Principal) (requests []WithdrawalRequest, err error) {
	err = c.view(ctx, func(tx *chain.Tx, _ Settings) (err error) {
		return tx.Iterate(withdrawalsPrefix, func(key, value []byte) (err error) {
			var request WithdrawalRequest
			err = request.FromBytes(value)
			if err != nil {
				return fmt.Errorf("failed to unmarshal %s: %w", key, err)
			}
			if request.Merchant == merchant {
				requests = append(requests, request)
			}
			return nil
		})
	})
	return requests, err
}
