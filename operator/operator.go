// Package operator runs the off-chain duties of an authorized operator: paying out queued
// withdrawals and expiring stale payments.
package operator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/escrow"
	"anarchy.ttfm/sbtcpay/payments"
	"anarchy.ttfm/sbtcpay/tokens"
	"anarchy.ttfm/sbtcpay/utils"
)

const (
	MaxConcurrentJobs = 100
	// Deadline of the ledger calls made after funds moved
	RecordTimeout = 30 * time.Second
)

type Worker struct {
	chain     *chain.Chain
	ledger    *escrow.Controller
	processor *payments.Controller
	token     tokens.Token
	operator  chain.Principal
	jobs      int
}

type Config struct {
	Chain     *chain.Chain
	Ledger    *escrow.Controller
	Processor *payments.Controller
	// Token withdrawals are paid out with
	Token tokens.Token
	// Principal signing process-withdrawal and expire-payment. Must be an authorized operator.
	Operator chain.Principal
	// Concurrent payouts. Defaults to MaxConcurrentJobs.
	Jobs int
}

func New(config Config) (w *Worker) {
	w = &Worker{
		chain:     config.Chain,
		ledger:    config.Ledger,
		processor: config.Processor,
		token:     config.Token,
		operator:  config.Operator,
		jobs:      config.Jobs,
	}
	if w.jobs <= 0 {
		w.jobs = MaxConcurrentJobs
	}
	return w
}

func withdrawalMemo(id uint64) (memo []byte) {
	return []byte(fmt.Sprintf("withdrawal-%d", id))
}

// release makes a request whose transfer was refused payable by the next run
func (w *Worker) release(id uint64) {
	ctx, cancel := utils.NewContextWithTimeout(RecordTimeout)
	defer cancel()

	_, err := w.ledger.ReleaseWithdrawalClaim(ctx, w.operator, id)
	if err != nil {
		log.Println("ERROR|RELEASING|WITHDRAWALS", id, err)
	}
}

// payout claims request, transfers its amount and records the transfer id. Once the claim is stored
// the request is never paid again by a worker: when the outcome of the transfer is unknown, or the
// transfer id could not be recorded, the claim stays and the request waits for the owner.
func (w *Worker) payout(ctx context.Context, settings escrow.Settings, request escrow.WithdrawalRequest) (err error) {
	_, err = w.ledger.ClaimWithdrawal(ctx, w.operator, request.Id)
	if err != nil {
		return fmt.Errorf("failed to claim withdrawal %d: %w", request.Id, err)
	}

	transfer, err := w.token.Transfer(ctx, tokens.TransferRequest{
		Contract:  settings.SbtcContract,
		Amount:    request.Amount,
		Sender:    w.ledger.Contract().String(),
		Recipient: string(request.RecipientAddress),
		Memo:      withdrawalMemo(request.Id),
	})
	if err != nil {
		if tokens.Rejected(err) {
			w.release(request.Id)
			return fmt.Errorf("failed to pay out withdrawal %d: %w", request.Id, err)
		}
		return fmt.Errorf("unknown outcome paying out withdrawal %d, left claimed: %w", request.Id, err)
	}

	// The run may be out of time already. Funds left, so recording gets its own deadline.
	recordCtx, cancel := utils.NewContextWithTimeout(RecordTimeout)
	defer cancel()

	_, err = w.ledger.ProcessWithdrawal(recordCtx, w.operator, request.Id, transfer.TxId)
	if err != nil {
		return fmt.Errorf("failed to record payout %s of withdrawal %d, left claimed: %w", transfer.TxId, request.Id, err)
	}
	return nil
}

// ProcessPendingWithdrawals pays out every pending withdrawal request and records the transfer as
// its settlement proof. Requests whose transfer was refused are retried by the next run, claimed
// requests are skipped.
func (w *Worker) ProcessPendingWithdrawals(ctx context.Context) (processed int, err error) {
	settings, err := w.ledger.Settings(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to query ledger settings: %w", err)
	}
	if !settings.IsOperator(w.operator) {
		return 0, escrow.ErrUnauthorized
	}

	requests, errChan := w.ledger.StreamPendingWithdrawals(ctx)
	defer utils.ConsumeChannel(requests)
	defer utils.ConsumeChannel(errChan)

	var (
		count atomic.Int64
		jobs  = utils.NewJobPool(w.jobs)
		wg    sync.WaitGroup
	)
	for request := range requests {
		if request.Claimed() {
			log.Println("WARNING|PROCESSING|WITHDRAWALS", request.Id, "claimed by", request.ClaimedBy, "at", request.ClaimedAt)
			continue
		}

		jobs.Get()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer jobs.Put()

			err := w.payout(ctx, settings, request)
			if err != nil {
				log.Println("ERROR|PROCESSING|WITHDRAWALS", err)
				return
			}
			count.Add(1)
		}()
	}

	wg.Wait()

	err = <-errChan
	if err != nil {
		return int(count.Load()), fmt.Errorf("failed to retrieve withdrawals: %w", err)
	}
	return int(count.Load()), nil
}

// ExpireStalePayments expires every open payment whose expiry height already passed
func (w *Worker) ExpireStalePayments(ctx context.Context) (expired int, err error) {
	height, err := w.chain.Height()
	if err != nil {
		return 0, fmt.Errorf("failed to query height: %w", err)
	}

	open, errChan := w.processor.StreamOpenPayments(ctx)
	defer utils.ConsumeChannel(open)
	defer utils.ConsumeChannel(errChan)

	for payment := range open {
		if !payment.Expired(height) {
			continue
		}

		_, err := w.processor.ExpirePayment(ctx, w.operator, payment.Id)
		if err != nil {
			log.Println("ERROR|EXPIRING|PAYMENTS", payment.Id, err)
			continue
		}
		expired++
	}

	err = <-errChan
	if err != nil {
		return expired, fmt.Errorf("failed to retrieve payments: %w", err)
	}
	return expired, nil
}

// Run executes both duties every interval until ctx is done
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		jobCtx, cancel := utils.NewContextWithTimeout(interval)
		expired, err := w.ExpireStalePayments(jobCtx)
		if err != nil {
			log.Println("ERROR|EXPIRING|PAYMENTS", err)
		}
		processed, err := w.ProcessPendingWithdrawals(jobCtx)
		if err != nil {
			log.Println("ERROR|PROCESSING|WITHDRAWALS", err)
		}
		cancel()

		if expired > 0 || processed > 0 {
			log.Printf("Operator run: %d payments expired, %d withdrawals processed", expired, processed)
		}
	}
}
