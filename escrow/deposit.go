package escrow

import (
	"context"
	"errors"
	"fmt"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/fees"
	"anarchy.ttfm/sbtcpay/tokens"
)

func paymentMemo(paymentId uint64) (memo []byte) {
	return []byte(fmt.Sprintf("payment-%d", paymentId))
}

// transfer moves tokens while the integration is enabled. It cannot be rolled back with tx, so
// callers run it after every check and balance update of the call.
func (c *Controller) transfer(tx *chain.Tx, settings Settings, amount uint64, sender, recipient chain.Principal, memo []byte) (txId string, err error) {
	if !settings.IntegrationEnabled {
		return "", nil
	}

	transfer, err := c.token.Transfer(tx.Context(), tokens.TransferRequest{
		Contract:  settings.SbtcContract,
		Amount:    amount,
		Sender:    sender.String(),
		Recipient: recipient.String(),
		Memo:      memo,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return transfer.TxId, nil
}

// DepositForPayment locks amount, net of the deposit fee, against paymentId. The sender is the payer.
func (c *Controller) DepositForPayment(ctx context.Context, sender chain.Principal, paymentId uint64, merchant chain.Principal, amount uint64) (deposit Deposit, err error) {
	err = c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		deposit, err = c.deposit(tx, paymentId, merchant, amount)
		return err
	})
	return deposit, err
}

func (c *Controller) deposit(tx *chain.Tx, paymentId uint64, merchant chain.Principal, amount uint64) (deposit Deposit, err error) {
	settings, err := c.settings(tx)
	if err != nil {
		return deposit, err
	}

	if amount == 0 {
		return deposit, ErrInvalidAmount
	}
	if merchant.Validate() != nil {
		return deposit, ErrInvalidRecipient
	}

	found, err := tx.Has(DepositKey(paymentId))
	if err != nil {
		return deposit, err
	}
	if found {
		return deposit, ErrEscrowAlreadyReleased
	}

	net, err := fees.NetOfFixedFee(amount, settings.DepositFee)
	if err != nil {
		return deposit, ErrInvalidAmount
	}

	balance, err := c.balance(tx, merchant)
	if err != nil {
		return deposit, err
	}
	if balance.Escrowed+net < balance.Escrowed || balance.TotalDeposited+amount < balance.TotalDeposited {
		return deposit, ErrInvalidAmount
	}
	balance.Escrowed += net
	balance.TotalDeposited += amount
	err = tx.Set(BalanceKey(merchant), &balance)
	if err != nil {
		return deposit, fmt.Errorf("failed to store balance: %w", err)
	}

	err = c.lock(tx, net)
	if err != nil {
		return deposit, err
	}

	payer := tx.Caller()
	txId, err := c.transfer(tx, settings, amount, payer, c.contract, paymentMemo(paymentId))
	if err != nil {
		return deposit, err
	}

	deposit = Deposit{
		PaymentId:   paymentId,
		Payer:       payer,
		Merchant:    merchant,
		Amount:      net,
		DepositedAt: tx.Height(),
		TxHash:      txId,
	}
	err = tx.Set(DepositKey(paymentId), &deposit)
	if err != nil {
		return deposit, fmt.Errorf("failed to store deposit: %w", err)
	}

	return deposit, tx.Emit(c.contract, "escrow-deposited", map[string]any{
		"payment-id":   paymentId,
		"payer":        payer,
		"merchant":     merchant,
		"gross-amount": amount,
		"deposit-fee":  settings.DepositFee,
		"net-amount":   net,
		"tx-hash":      txId,
	})
}

// lock adds amount to the total locked in escrow
func (c *Controller) lock(tx *chain.Tx, amount uint64) (err error) {
	locked, err := tx.Uint64(totalLockedKey)
	if err != nil {
		return err
	}
	if locked+amount < locked {
		return ErrInvalidAmount
	}
	return tx.SetUint64(totalLockedKey, locked+amount)
}

func (c *Controller) unlock(tx *chain.Tx, amount uint64) (err error) {
	locked, err := tx.Uint64(totalLockedKey)
	if err != nil {
		return err
	}
	if locked < amount {
		return errors.New("total locked underflows")
	}
	return tx.SetUint64(totalLockedKey, locked-amount)
}

// openEscrow loads the unreleased escrow of paymentId on behalf of the payment processor
func (c *Controller) openEscrow(tx *chain.Tx, paymentId uint64) (settings Settings, deposit Deposit, err error) {
	settings, err = c.settings(tx)
	if err != nil {
		return settings, deposit, err
	}

	if settings.PaymentProcessor == "" || tx.Caller() != settings.PaymentProcessor {
		return settings, deposit, ErrPaymentProcessorOnly
	}

	found, err := tx.Get(DepositKey(paymentId), &deposit)
	if err != nil {
		return settings, deposit, err
	}
	if !found {
		return settings, deposit, ErrEscrowNotFound
	}
	if deposit.Released {
		return settings, deposit, ErrEscrowAlreadyReleased
	}
	return settings, deposit, nil
}

// HasOpenEscrow reports whether paymentId holds an unreleased escrow
func (c *Controller) HasOpenEscrow(tx *chain.Tx, paymentId uint64) (open bool, err error) {
	var deposit Deposit
	found, err := tx.Get(DepositKey(paymentId), &deposit)
	if err != nil {
		return false, err
	}
	return found && !deposit.Released, nil
}

// Release moves the escrow of paymentId into the merchant's available balance. Runs inside the
// caller's call; tx.Caller() must be the configured payment processor.
func (c *Controller) Release(tx *chain.Tx, paymentId uint64) (amount uint64, err error) {
	_, deposit, err := c.openEscrow(tx, paymentId)
	if err != nil {
		return 0, err
	}

	balance, err := c.balance(tx, deposit.Merchant)
	if err != nil {
		return 0, err
	}
	if balance.Escrowed < deposit.Amount {
		return 0, ErrInsufficientBalance
	}
	balance.Escrowed -= deposit.Amount
	balance.Available += deposit.Amount
	err = tx.Set(BalanceKey(deposit.Merchant), &balance)
	if err != nil {
		return 0, fmt.Errorf("failed to store balance: %w", err)
	}

	height := tx.Height()
	deposit.Released = true
	deposit.ReleaseHeight = &height
	err = tx.Set(DepositKey(paymentId), &deposit)
	if err != nil {
		return 0, fmt.Errorf("failed to store deposit: %w", err)
	}

	err = c.unlock(tx, deposit.Amount)
	if err != nil {
		return 0, err
	}

	err = tx.Emit(c.contract, "escrow-released", map[string]any{
		"payment-id": paymentId,
		"merchant":   deposit.Merchant,
		"amount":     deposit.Amount,
	})
	if err != nil {
		return 0, err
	}
	return deposit.Amount, nil
}

// ReleaseEscrowToMerchant is Release as a standalone call signed by the payment processor
func (c *Controller) ReleaseEscrowToMerchant(ctx context.Context, sender chain.Principal, paymentId uint64) (amount uint64, err error) {
	err = c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		amount, err = c.Release(tx, paymentId)
		return err
	})
	return amount, err
}

// Refund unwinds the escrow of paymentId. The merchant's available balance is untouched and,
// while integrated, the escrowed amount is transferred back to the payer once the escrow is unwound.
func (c *Controller) Refund(tx *chain.Tx, paymentId uint64) (amount uint64, err error) {
	settings, deposit, err := c.openEscrow(tx, paymentId)
	if err != nil {
		return 0, err
	}

	balance, err := c.balance(tx, deposit.Merchant)
	if err != nil {
		return 0, err
	}
	if balance.Escrowed < deposit.Amount || balance.TotalDeposited < deposit.Amount {
		return 0, ErrInsufficientBalance
	}
	balance.Escrowed -= deposit.Amount
	balance.TotalDeposited -= deposit.Amount
	err = tx.Set(BalanceKey(deposit.Merchant), &balance)
	if err != nil {
		return 0, fmt.Errorf("failed to store balance: %w", err)
	}

	height := tx.Height()
	deposit.Released = true
	deposit.ReleaseHeight = &height
	err = tx.Set(DepositKey(paymentId), &deposit)
	if err != nil {
		return 0, fmt.Errorf("failed to store deposit: %w", err)
	}

	err = c.unlock(tx, deposit.Amount)
	if err != nil {
		return 0, err
	}

	txId, err := c.transfer(tx, settings, deposit.Amount, c.contract, deposit.Payer, paymentMemo(paymentId))
	if err != nil {
		return 0, err
	}

	err = tx.Emit(c.contract, "escrow-refunded", map[string]any{
		"payment-id": paymentId,
		"payer":      deposit.Payer,
		"amount":     deposit.Amount,
		"tx-hash":    txId,
	})
	if err != nil {
		return 0, err
	}
	return deposit.Amount, nil
}

// RefundEscrowToPayer is Refund as a standalone call signed by the payment processor
func (c *Controller) RefundEscrowToPayer(ctx context.Context, sender chain.Principal, paymentId uint64) (amount uint64, err error) {
	err = c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		amount, err = c.Refund(tx, paymentId)
		return err
	})
	return amount, err
}
