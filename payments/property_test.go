package payments_test

import (
	"context"
	"testing"

	"anarchy.ttfm/sbtcpay/chain/testsuite"
	"anarchy.ttfm/sbtcpay/payments"
	"anarchy.ttfm/sbtcpay/random"
	"github.com/stretchr/testify/assert"
)

var forward = map[payments.Status][]payments.Status{
	payments.StatusCreated:   {payments.StatusCreated, payments.StatusConfirmed, payments.StatusExpired},
	payments.StatusConfirmed: {payments.StatusConfirmed, payments.StatusSettled, payments.StatusExpired},
	payments.StatusSettled:   {payments.StatusSettled},
	payments.StatusExpired:   {payments.StatusExpired},
}

func Test_RandomOperations(t *testing.T) {
	assertions := assert.New(t)

	e := newEnv(t, false)
	r := random.PseudoRand

	var (
		statuses = map[uint64]payments.Status{}
		deposits = map[uint64]bool{}
		fees     uint64
	)
	for range 500 {
		var err error
		switch r.IntN(6) {
		case 0:
			payment := e.create(t, 2_000+r.Uint64N(100_000), r.Uint64N(8))
			statuses[payment.Id] = payment.Status
		case 1:
			_, err = e.chain.Mine(context.TODO(), 1)
		case 2, 3, 4, 5:
			if len(statuses) == 0 {
				continue
			}
			id := 1 + r.Uint64N(uint64(len(statuses)))
			switch r.IntN(4) {
			case 0:
				_, err = e.processor.ProcessPayment(context.TODO(), testsuite.Principal(), id)
			case 1:
				var settlement payments.Settlement
				settlement, err = e.processor.SettlePayment(context.TODO(), e.owner, id)
				if err == nil {
					fees += settlement.PlatformFee
					assertions.Equal(deposits[id], settlement.EscrowReleased, "escrow released iff deposited")
					delete(deposits, id)
				}
			case 2:
				_, err = e.processor.ExpirePayment(context.TODO(), testsuite.Principal(), id)
			default:
				payment, qErr := e.processor.Payment(context.TODO(), id)
				assertions.Nil(qErr, "failed to query payment")
				if deposits[id] || payment.Status.Terminal() {
					continue
				}
				_, err = e.ledger.DepositForPayment(context.TODO(), testsuite.Principal(), id, payment.Merchant, payment.SbtcAmount)
				if err == nil {
					deposits[id] = true
				}
			}
		}
		if err != nil {
			assertions.NotZero(code(err), "only contract errors are expected: %v", err)
		}

		for id, before := range statuses {
			payment, err := e.processor.Payment(context.TODO(), id)
			assertions.Nil(err, "failed to query payment")
			assertions.Contains(forward[before], payment.Status, "payment %d moved backwards", id)
			statuses[id] = payment.Status
		}
	}

	collected, err := e.processor.PlatformFeesCollected(context.TODO())
	assertions.Nil(err, "failed to query platform fees")
	assertions.Equal(fees, collected)

	locked, err := e.ledger.TotalLocked(context.TODO())
	assertions.Nil(err, "failed to query total locked")
	sum, err := e.ledger.OpenEscrowSum(context.TODO())
	assertions.Nil(err, "failed to sum open escrows")
	assertions.Equal(sum, locked)
}
