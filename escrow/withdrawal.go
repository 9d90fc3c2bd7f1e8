package escrow

import (
	"context"
	"fmt"
	"log"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/fees"
)

// RequestWithdrawal debits amount from the sender's available balance and queues a request paying
// out amount minus the withdrawal fee to recipient.
func (c *Controller) RequestWithdrawal(ctx context.Context, sender chain.Principal, amount uint64, recipient []byte) (request WithdrawalRequest, err error) {
	err = c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		settings, err := c.settings(tx)
		if err != nil {
			return err
		}

		if amount == 0 {
			return ErrInvalidAmount
		}
		if len(recipient) == 0 || len(recipient) > MaxRecipientLength {
			return ErrInvalidRecipient
		}

		net, err := fees.NetOfFixedFee(amount, settings.WithdrawalFee)
		if err != nil {
			return ErrInvalidAmount
		}

		merchant := tx.Caller()
		balance, err := c.balance(tx, merchant)
		if err != nil {
			return err
		}
		if balance.Available < amount {
			return ErrInsufficientBalance
		}
		balance.Available -= amount
		balance.TotalWithdrawn += net
		err = tx.Set(BalanceKey(merchant), &balance)
		if err != nil {
			return fmt.Errorf("failed to store balance: %w", err)
		}

		id, err := tx.Next(withdrawalSeqKey)
		if err != nil {
			return fmt.Errorf("failed to issue request id: %w", err)
		}

		request = WithdrawalRequest{
			Id:               id,
			Merchant:         merchant,
			Amount:           net,
			RecipientAddress: append([]byte(nil), recipient...),
			RequestedAt:      tx.Height(),
		}
		err = tx.Set(WithdrawalKey(id), &request)
		if err != nil {
			return fmt.Errorf("failed to store withdrawal request: %w", err)
		}
		err = tx.Set(PendingWithdrawalKey(id), &request)
		if err != nil {
			return fmt.Errorf("failed to add pending key: %w", err)
		}

		return tx.Emit(c.contract, "withdrawal-requested", map[string]any{
			"request-id":     id,
			"merchant":       merchant,
			"gross-amount":   amount,
			"withdrawal-fee": settings.WithdrawalFee,
			"net-amount":     net,
		})
	})
	return request, err
}

// ProcessWithdrawal records the external settlement of a pending request. Only the owner and
// authorized operators may call it.
func (c *Controller) ProcessWithdrawal(ctx context.Context, sender chain.Principal, requestId uint64, txHash string) (request WithdrawalRequest, err error) {
	err = c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		request, err = c.pending(tx, requestId)
		if err != nil {
			return err
		}
		if txHash == "" || len(txHash) > MaxTxHashLength {
			return ErrInvalidSettlementProof
		}

		request.Processed = true
		request.TxHash = txHash
		err = tx.Set(WithdrawalKey(requestId), &request)
		if err != nil {
			return fmt.Errorf("failed to store withdrawal request: %w", err)
		}
		err = tx.Delete(PendingWithdrawalKey(requestId))
		if err != nil {
			return fmt.Errorf("failed to delete pending key: %w", err)
		}

		return tx.Emit(c.contract, "withdrawal-processed", map[string]any{
			"request-id": requestId,
			"merchant":   request.Merchant,
			"amount":     request.Amount,
			"tx-hash":    txHash,
		})
	})
	return request, err
}

// pending loads an unprocessed request on behalf of an operator
func (c *Controller) pending(tx *chain.Tx, requestId uint64) (request WithdrawalRequest, err error) {
	settings, err := c.settings(tx)
	if err != nil {
		return request, err
	}
	if !settings.IsOperator(tx.Caller()) {
		return request, ErrUnauthorized
	}

	found, err := tx.Get(WithdrawalKey(requestId), &request)
	if err != nil {
		return request, err
	}
	if !found {
		return request, ErrWithdrawalNotFound
	}
	if request.Processed {
		return request, ErrWithdrawalProcessed
	}
	return request, nil
}

func (c *Controller) storePending(tx *chain.Tx, request *WithdrawalRequest) (err error) {
	err = tx.Set(WithdrawalKey(request.Id), request)
	if err != nil {
		return fmt.Errorf("failed to store withdrawal request: %w", err)
	}
	err = tx.Set(PendingWithdrawalKey(request.Id), request)
	if err != nil {
		return fmt.Errorf("failed to store pending key: %w", err)
	}
	return nil
}

// ClaimWithdrawal marks a pending request as being paid out by the sender. It must succeed before
// any funds move; a second claim fails until ReleaseWithdrawalClaim is called.
func (c *Controller) ClaimWithdrawal(ctx context.Context, sender chain.Principal, requestId uint64) (request WithdrawalRequest, err error) {
	err = c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		request, err = c.pending(tx, requestId)
		if err != nil {
			return err
		}
		if request.Claimed() {
			return ErrWithdrawalClaimed
		}

		request.ClaimedBy = tx.Caller()
		request.ClaimedAt = tx.Height()
		err = c.storePending(tx, &request)
		if err != nil {
			return err
		}

		return tx.Emit(c.contract, "withdrawal-claimed", map[string]any{
			"request-id": requestId,
			"operator":   request.ClaimedBy,
		})
	})
	return request, err
}

// ReleaseWithdrawalClaim makes a claimed request payable again. Only call it once it is known that
// no payout left for the request.
func (c *Controller) ReleaseWithdrawalClaim(ctx context.Context, sender chain.Principal, requestId uint64) (request WithdrawalRequest, err error) {
	err = c.chain.Execute(ctx, sender, func(tx *chain.Tx) (err error) {
		request, err = c.pending(tx, requestId)
		if err != nil {
			return err
		}
		if !request.Claimed() {
			return nil
		}

		claimedBy := request.ClaimedBy
		request.ClaimedBy = ""
		request.ClaimedAt = 0
		err = c.storePending(tx, &request)
		if err != nil {
			return err
		}

		return tx.Emit(c.contract, "withdrawal-claim-released", map[string]any{
			"request-id": requestId,
			"claimed-by": claimedBy,
		})
	})
	return request, err
}

// StreamPendingWithdrawals streams unprocessed withdrawal requests in id order. The requests
// channel must be consumed entirely.
func (c *Controller) StreamPendingWithdrawals(ctx context.Context) (requests chan WithdrawalRequest, err chan error) {
	requests = make(chan WithdrawalRequest, 1_000)
	err = make(chan error, 1)
	go func() {
		defer close(requests)
		defer close(err)

		err <- c.chain.View(ctx, func(tx *chain.Tx) (err error) {
			return tx.Iterate(pendingPrefix, func(key, value []byte) (err error) {
				var request WithdrawalRequest
				err = request.FromBytes(value)
				if err != nil {
					log.Println("ERROR|STREAMING|WITHDRAWALS", string(key), err) // Keep going with the others
					return nil
				}

				requests <- request
				return nil
			})
		})
	}()
	return requests, err
}
