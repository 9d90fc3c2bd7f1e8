package escrow

import (
	"context"
	"fmt"
	"slices"

	"anarchy.ttfm/sbtcpay/chain"
)

// configure runs fn against the settings as the owner and stores the result
func (c *Controller) configure(ctx context.Context, sender chain.Principal, event string, fn func(settings *Settings) (data any, err error)) (err error) {
	return c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		settings, err := c.owned(tx)
		if err != nil {
			return err
		}

		data, err := fn(&settings)
		if err != nil {
			return err
		}

		err = tx.Set(settingsKey, &settings)
		if err != nil {
			return fmt.Errorf("failed to store settings: %w", err)
		}
		return tx.Emit(c.contract, event, data)
	})
}

// ConfigureSbtcContract points the ledger at the sBTC token contract and enables the integration
func (c *Controller) ConfigureSbtcContract(ctx context.Context, sender chain.Principal, contract string) (err error) {
	return c.configure(ctx, sender, "sbtc-contract-configured", func(settings *Settings) (data any, err error) {
		if chain.Principal(contract).Validate() != nil {
			return nil, ErrInvalidRecipient
		}
		settings.SbtcContract = contract
		settings.IntegrationEnabled = true
		return map[string]any{"contract": contract}, nil
	})
}

// DisableSbtcIntegration turns the ledger into a bookkeeping-only ledger
func (c *Controller) DisableSbtcIntegration(ctx context.Context, sender chain.Principal) (err error) {
	return c.configure(ctx, sender, "sbtc-integration-disabled", func(settings *Settings) (data any, err error) {
		settings.IntegrationEnabled = false
		return map[string]any{"contract": settings.SbtcContract}, nil
	})
}

func (c *Controller) SetPaymentProcessor(ctx context.Context, sender chain.Principal, processor chain.Principal) (err error) {
	return c.configure(ctx, sender, "payment-processor-set", func(settings *Settings) (data any, err error) {
		if processor.Validate() != nil {
			return nil, ErrInvalidRecipient
		}
		settings.PaymentProcessor = processor
		return map[string]any{"payment-processor": processor}, nil
	})
}

func (c *Controller) UpdateConversionRate(ctx context.Context, sender chain.Principal, rate uint64) (err error) {
	return c.configure(ctx, sender, "conversion-rate-updated", func(settings *Settings) (data any, err error) {
		if rate == 0 {
			return nil, ErrInvalidConversionRate
		}
		settings.ConversionRate = rate
		return map[string]any{"rate": rate}, nil
	})
}

func (c *Controller) UpdateFees(ctx context.Context, sender chain.Principal, withdrawalFee, depositFee uint64) (err error) {
	return c.configure(ctx, sender, "fees-updated", func(settings *Settings) (data any, err error) {
		settings.WithdrawalFee = withdrawalFee
		settings.DepositFee = depositFee
		return map[string]any{"withdrawal-fee": withdrawalFee, "deposit-fee": depositFee}, nil
	})
}

func (c *Controller) UpdateMaxSlippage(ctx context.Context, sender chain.Principal, slippage uint64) (err error) {
	return c.configure(ctx, sender, "max-slippage-updated", func(settings *Settings) (data any, err error) {
		if slippage > MaxSlippageLimit {
			return nil, ErrInvalidAmount
		}
		settings.MaxSlippage = slippage
		return map[string]any{"max-slippage": slippage}, nil
	})
}

// AddAuthorizedOperator inserts operator in the bounded operator set. Adding a member is a no-op.
func (c *Controller) AddAuthorizedOperator(ctx context.Context, sender chain.Principal, operator chain.Principal) (err error) {
	return c.configure(ctx, sender, "operator-added", func(settings *Settings) (data any, err error) {
		if operator.Validate() != nil {
			return nil, ErrInvalidRecipient
		}
		if !slices.Contains(settings.Operators, operator) {
			if len(settings.Operators) >= MaxOperators {
				return nil, ErrOperatorSetFull
			}
			settings.Operators = append(settings.Operators, operator)
		}
		return map[string]any{"operator": operator}, nil
	})
}

func (c *Controller) RemoveAuthorizedOperator(ctx context.Context, sender chain.Principal, operator chain.Principal) (err error) {
	return c.configure(ctx, sender, "operator-removed", func(settings *Settings) (data any, err error) {
		settings.Operators = slices.DeleteFunc(settings.Operators, func(p chain.Principal) bool { return p == operator })
		return map[string]any{"operator": operator}, nil
	})
}
