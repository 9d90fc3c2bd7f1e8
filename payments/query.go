package payments

import (
	"context"
	"fmt"
	"log"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/fees"
)

// Payment queries a payment by its id
func (c *Controller) Payment(ctx context.Context, id uint64) (payment Payment, err error) {
	err = c.chain.View(ctx, func(tx *chain.Tx) (err error) {
		payment, err = c.payment(tx, id)
		return err
	})
	return payment, err
}

// PaymentCounter returns the last issued payment id
func (c *Controller) PaymentCounter(ctx context.Context) (counter uint64, err error) {
	err = c.chain.View(ctx, func(tx *chain.Tx) (err error) {
		counter, err = tx.Uint64(counterKey)
		return err
	})
	return counter, err
}

func (c *Controller) Settlement(ctx context.Context, id uint64) (settlement Settlement, err error) {
	err = c.chain.View(ctx, func(tx *chain.Tx) (err error) {
		found, err := tx.Get(SettlementKey(id), &settlement)
		if err != nil {
			return err
		}
		if !found {
			return ErrSettlementNotFound
		}
		return nil
	})
	return settlement, err
}

// MerchantBalance returns the settled balance of merchant. Unknown merchants hold a zero balance.
func (c *Controller) MerchantBalance(ctx context.Context, merchant chain.Principal) (balance Balance, err error) {
	err = c.chain.View(ctx, func(tx *chain.Tx) (err error) {
		_, err = tx.Get(BalanceKey(merchant), &balance)
		return err
	})
	return balance, err
}

func (c *Controller) Settings(ctx context.Context) (settings Settings, err error) {
	err = c.chain.View(ctx, func(tx *chain.Tx) (err error) {
		settings, err = c.settings(tx)
		return err
	})
	return settings, err
}

// CalculatePlatformFee applies the current platform fee rate to amount
func (c *Controller) CalculatePlatformFee(ctx context.Context, amount uint64) (fee uint64, err error) {
	settings, err := c.Settings(ctx)
	if err != nil {
		return 0, err
	}
	return fees.PlatformFee(amount, settings.PlatformFeeRate), nil
}

// PlatformFeesCollected is the sum of the fees retained by every settlement
func (c *Controller) PlatformFeesCollected(ctx context.Context) (collected uint64, err error) {
	err = c.chain.View(ctx, func(tx *chain.Tx) (err error) {
		collected, err = tx.Uint64(platformFeesKey)
		return err
	})
	return collected, err
}

// StreamOpenPayments streams the payments that did not reach a terminal status yet.
// payments channel must be consumed entirely.
func (c *Controller) StreamOpenPayments(ctx context.Context) (payments chan Payment, err chan error) {
	payments = make(chan Payment, 1_000)
	err = make(chan error, 1)
	go func() {
		defer close(payments)
		defer close(err)

		err <- c.chain.View(ctx, func(tx *chain.Tx) (err error) {
			var ids []uint64
			err = tx.Iterate(openPrefix, func(key, _ []byte) (err error) {
				var id uint64
				_, err = fmt.Sscanf(string(key[len(openPrefix):]), "%d", &id)
				if err != nil {
					log.Println("ERROR|STREAMING|PAYMENTS", string(key), err) // Keep going with the others
					return nil
				}
				ids = append(ids, id)
				return nil
			})
			if err != nil {
				return err
			}

			for _, id := range ids {
				payment, err := c.payment(tx, id)
				if err != nil {
					log.Println("ERROR|STREAMING|PAYMENTS", id, err)
					continue
				}
				payments <- payment
			}
			return nil
		})
	}()
	return payments, err
}
