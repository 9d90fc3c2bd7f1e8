package escrow

import (
	"context"
	"errors"
	"fmt"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/fees"
)

// ConvertPaymentAmount converts fromAmount at the configured rate, discounts the deposit fee and
// checks the result against expectedToAmount within the configured slippage. The conversion is
// recorded for auditing.
func (c *Controller) ConvertPaymentAmount(ctx context.Context, sender chain.Principal, fromAmount, expectedToAmount uint64) (record ConversionRecord, err error) {
	err = c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		settings, err := c.settings(tx)
		if err != nil {
			return err
		}

		if fromAmount == 0 {
			return ErrInvalidAmount
		}

		toAmount, err := fees.Convert(fromAmount, settings.ConversionRate, settings.DepositFee)
		if err != nil {
			return ErrInvalidAmount
		}

		err = fees.CheckSlippage(expectedToAmount, toAmount, settings.MaxSlippage)
		switch {
		case errors.Is(err, fees.ErrSlippageExceeded):
			return ErrSlippageExceeded
		case err != nil:
			return ErrInvalidAmount
		}

		id, err := tx.Next(conversionSeqKey)
		if err != nil {
			return fmt.Errorf("failed to issue conversion id: %w", err)
		}

		record = ConversionRecord{
			Id:         id,
			FromAmount: fromAmount,
			ToAmount:   toAmount,
			Rate:       settings.ConversionRate,
			Fee:        settings.DepositFee,
			Timestamp:  tx.Height(),
			User:       tx.Caller(),
		}
		err = tx.Set(ConversionKey(id), &record)
		if err != nil {
			return fmt.Errorf("failed to store conversion: %w", err)
		}

		return tx.Emit(c.contract, "amount-converted", record)
	})
	return record, err
}
