package payments

import (
	"context"
	"fmt"

	"anarchy.ttfm/sbtcpay/chain"
)

type Create struct {
	Merchant      chain.Principal
	PaymentAmount uint64
	SbtcAmount    uint64
	// Blocks until the payment can no longer be processed
	ExpiresIn uint64
	// Printable ASCII, at most MaxReferenceLength bytes
	Reference string
	// Printable ASCII, at most MaxMetadataLength bytes
	Metadata string
}

func printableASCII(s string, limit int) (ok bool) {
	if len(s) > limit {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// Validate checks the arguments that do not depend on chain state
func (r *Create) Validate() (err error) {
	if r.PaymentAmount == 0 || r.SbtcAmount == 0 {
		return ErrInvalidAmount
	}
	if r.Merchant.Validate() != nil {
		return ErrInvalidPayment
	}
	if !printableASCII(r.Reference, MaxReferenceLength) || !printableASCII(r.Metadata, MaxMetadataLength) {
		return ErrInvalidPayment
	}
	return nil
}

// CreatePayment registers a new payment expiring ExpiresIn blocks from now
func (c *Controller) CreatePayment(ctx context.Context, sender chain.Principal, req Create) (payment Payment, err error) {
	err = c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		_, err = c.settings(tx)
		if err != nil {
			return err
		}

		err = req.Validate()
		if err != nil {
			return err
		}

		height := tx.Height()
		if height+req.ExpiresIn < height {
			return ErrInvalidPayment
		}

		id, err := tx.Next(counterKey)
		if err != nil {
			return fmt.Errorf("failed to issue payment id: %w", err)
		}

		payment = Payment{
			Id:            id,
			Merchant:      req.Merchant,
			PaymentAmount: req.PaymentAmount,
			SbtcAmount:    req.SbtcAmount,
			CreatedAt:     height,
			ExpiresAt:     height + req.ExpiresIn,
			Reference:     req.Reference,
			Metadata:      req.Metadata,
			Status:        StatusCreated,
		}

		err = tx.Set(PaymentKey(id), &payment)
		if err != nil {
			return fmt.Errorf("failed to store payment: %w", err)
		}
		err = tx.SetRaw(OpenKey(id), nil)
		if err != nil {
			return fmt.Errorf("failed to add open key: %w", err)
		}

		return tx.Emit(c.contract, "payment-created", map[string]any{
			"payment-id":     id,
			"merchant":       payment.Merchant,
			"payment-amount": payment.PaymentAmount,
			"sbtc-amount":    payment.SbtcAmount,
			"expires-at":     payment.ExpiresAt,
			"reference":      payment.Reference,
		})
	})
	return payment, err
}
