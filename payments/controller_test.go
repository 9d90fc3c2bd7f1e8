package payments_test

import (
	"context"
	"testing"

	_ "embed"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/chain/testsuite"
	"anarchy.ttfm/sbtcpay/escrow"
	"anarchy.ttfm/sbtcpay/payments"
	"anarchy.ttfm/sbtcpay/tokens/noop"
	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

type env struct {
	chain     *chain.Chain
	owner     chain.Principal
	processor *payments.Controller
	ledger    *escrow.Controller
	recorder  *testsuite.Recorder
}

func newEnv(t testing.TB, requireEscrow bool) (e env) {
	assertions := assert.New(t)

	e.recorder = &testsuite.Recorder{}
	e.chain = testsuite.NewChain(t, e.recorder)
	e.owner = testsuite.Principal()
	e.ledger = escrow.New(escrow.Config{
		Chain:    e.chain,
		Contract: e.owner + ".sbtc-handler",
		Token:    noop.New(),
	})
	e.processor = payments.New(payments.Config{
		Chain:         e.chain,
		Contract:      e.owner + ".payment-processor",
		Ledger:        e.ledger,
		RequireEscrow: requireEscrow,
	})

	err := e.processor.Deploy(context.TODO(), e.owner)
	assertions.Nil(err, "failed to deploy processor")
	err = e.ledger.Deploy(context.TODO(), e.owner)
	assertions.Nil(err, "failed to deploy ledger")
	err = e.ledger.SetPaymentProcessor(context.TODO(), e.owner, e.processor.Contract())
	if !assertions.Nil(err, "failed to link ledger") {
		t.FailNow()
	}
	return e
}

func (e *env) create(t testing.TB, sbtcAmount, expiresIn uint64) (payment payments.Payment) {
	payment, err := e.processor.CreatePayment(context.TODO(), testsuite.Principal(), payments.Create{
		Merchant:      testsuite.Principal(),
		PaymentAmount: sbtcAmount,
		SbtcAmount:    sbtcAmount,
		ExpiresIn:     expiresIn,
		Reference:     "order-1",
	})
	if !assert.Nil(t, err, "failed to create payment") {
		t.FailNow()
	}
	return payment
}

func code(err error) (c uint32) {
	c, _ = chain.Code(err)
	return c
}

//go:embed tests/lifecycle.yaml
var lifecycleTests []byte

func Test_Lifecycle(t *testing.T) {
	type Step struct {
		Op     string          `yaml:"op"`
		Mine   uint64          `yaml:"mine"`
		Expect uint32          `yaml:"expect"`
		Status payments.Status `yaml:"status"`
	}
	type Test struct {
		Name      string `yaml:"name"`
		ExpiresIn uint64 `yaml:"expires-in"`
		Steps     []Step `yaml:"steps"`
	}

	var tests []Test
	err := yaml.Unmarshal(lifecycleTests, &tests)
	if !assert.Nil(t, err, "failed to load tests") {
		return
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			assertions := assert.New(t)

			e := newEnv(t, false)
			payment := e.create(t, 100_000, test.ExpiresIn)
			payer := testsuite.Principal()

			for index, step := range test.Steps {
				if step.Mine > 0 {
					_, err := e.chain.Mine(context.TODO(), step.Mine)
					assertions.Nil(err, "failed to mine")
				}

				var err error
				switch step.Op {
				case "process":
					_, err = e.processor.ProcessPayment(context.TODO(), payer, payment.Id)
				case "settle":
					_, err = e.processor.SettlePayment(context.TODO(), e.owner, payment.Id)
				case "expire":
					_, err = e.processor.ExpirePayment(context.TODO(), testsuite.Principal(), payment.Id)
				default:
					t.Fatalf("unknown op %s", step.Op)
				}
				assertions.Equal(step.Expect, code(err), "step %d: %s: %v", index, step.Op, err)

				stored, err := e.processor.Payment(context.TODO(), payment.Id)
				assertions.Nil(err, "failed to query payment")
				assertions.Equal(step.Status, stored.Status, "step %d: %s", index, step.Op)
			}
		})
	}
}

func Test_Create(t *testing.T) {
	assertions := assert.New(t)

	e := newEnv(t, false)
	sender, merchant := testsuite.Principal(), testsuite.Principal()

	_, err := e.processor.CreatePayment(context.TODO(), sender, payments.Create{Merchant: merchant, PaymentAmount: 0, SbtcAmount: 1})
	assertions.ErrorIs(err, payments.ErrInvalidAmount)
	_, err = e.processor.CreatePayment(context.TODO(), sender, payments.Create{Merchant: merchant, PaymentAmount: 1, SbtcAmount: 0})
	assertions.ErrorIs(err, payments.ErrInvalidAmount)
	assertions.Equal(uint32(107), code(err))

	_, err = e.processor.CreatePayment(context.TODO(), sender, payments.Create{Merchant: "", PaymentAmount: 1, SbtcAmount: 1})
	assertions.ErrorIs(err, payments.ErrInvalidPayment)
	_, err = e.processor.CreatePayment(context.TODO(), sender, payments.Create{Merchant: merchant, PaymentAmount: 1, SbtcAmount: 1, Reference: "café"})
	assertions.ErrorIs(err, payments.ErrInvalidPayment, "reference must be ASCII")
	long := make([]byte, payments.MaxMetadataLength+1)
	for index := range long {
		long[index] = 'a'
	}
	_, err = e.processor.CreatePayment(context.TODO(), sender, payments.Create{Merchant: merchant, PaymentAmount: 1, SbtcAmount: 1, Metadata: string(long)})
	assertions.ErrorIs(err, payments.ErrInvalidPayment, "metadata is bounded")

	counter, err := e.processor.PaymentCounter(context.TODO())
	assertions.Nil(err, "failed to query counter")
	assertions.Zero(counter, "failed creates do not consume ids")

	_, err = e.chain.Mine(context.TODO(), 7)
	assertions.Nil(err, "failed to mine")

	for expect := uint64(1); expect <= 5; expect++ {
		payment, err := e.processor.CreatePayment(context.TODO(), sender, payments.Create{
			Merchant:      merchant,
			PaymentAmount: 50,
			SbtcAmount:    100_000,
			ExpiresIn:     144,
			Reference:     "INV-2024-001",
			Metadata:      `{"sku":"coffee"}`,
		})
		assertions.Nil(err, "failed to create payment")
		assertions.Equal(expect, payment.Id)
		assertions.Equal(uint64(7), payment.CreatedAt)
		assertions.Equal(uint64(151), payment.ExpiresAt)
		assertions.Equal(payments.StatusCreated, payment.Status)
		assertions.Empty(payment.Payer)
	}

	counter, err = e.processor.PaymentCounter(context.TODO())
	assertions.Nil(err, "failed to query counter")
	assertions.Equal(uint64(5), counter)

	_, err = e.processor.Payment(context.TODO(), 6)
	assertions.ErrorIs(err, payments.ErrPaymentNotFound)
	_, err = e.processor.ProcessPayment(context.TODO(), sender, 6)
	assertions.ErrorIs(err, payments.ErrPaymentNotFound)

	payment, err := e.processor.ProcessPayment(context.TODO(), sender, 3)
	assertions.Nil(err, "failed to process payment")
	assertions.Equal(sender, payment.Payer, "processing caller becomes the payer")
}

func Test_PlatformFee(t *testing.T) {
	assertions := assert.New(t)

	e := newEnv(t, false)

	fee, err := e.processor.CalculatePlatformFee(context.TODO(), 100_000)
	assertions.Nil(err, "failed to calculate fee")
	assertions.Equal(uint64(2_500), fee)

	err = e.processor.SetPlatformFeeRate(context.TODO(), testsuite.Principal(), 300)
	assertions.ErrorIs(err, payments.ErrUnauthorized)
	assertions.Equal(uint32(100), code(err))

	err = e.processor.SetPlatformFeeRate(context.TODO(), e.owner, 1_001)
	assertions.ErrorIs(err, payments.ErrInvalidPayment)

	err = e.processor.SetPlatformFeeRate(context.TODO(), e.owner, 300)
	assertions.Nil(err, "failed to set rate")

	fee, err = e.processor.CalculatePlatformFee(context.TODO(), 100_000)
	assertions.Nil(err, "failed to calculate fee")
	assertions.Equal(uint64(3_000), fee)

	assertions.Nil(e.processor.SetPlatformFeeRate(context.TODO(), e.owner, 1_000), "upper bound is inclusive")
	assertions.Nil(e.processor.SetPlatformFeeRate(context.TODO(), e.owner, 0))
}

func Test_Settle(t *testing.T) {
	t.Run("Releases Escrow", func(t *testing.T) {
		assertions := assert.New(t)

		e := newEnv(t, false)
		payment := e.create(t, 100_000, 10)
		payer := testsuite.Principal()

		_, err := e.ledger.DepositForPayment(context.TODO(), payer, payment.Id, payment.Merchant, 100_000)
		assertions.Nil(err, "failed to deposit")
		_, err = e.processor.ProcessPayment(context.TODO(), payer, payment.Id)
		assertions.Nil(err, "failed to process")

		settlement, err := e.processor.SettlePayment(context.TODO(), e.owner, payment.Id)
		assertions.Nil(err, "failed to settle")
		assertions.Equal(payments.Settlement{
			PaymentId:      payment.Id,
			SbtcAmount:     100_000,
			PlatformFee:    2_500,
			MerchantAmount: 97_500,
			SettledAt:      0,
			EscrowReleased: true,
			EscrowAmount:   99_000,
		}, settlement)

		stored, err := e.processor.Settlement(context.TODO(), payment.Id)
		assertions.Nil(err, "failed to query settlement")
		assertions.Equal(settlement, stored)

		ledgerBalance, err := e.ledger.MerchantBalance(context.TODO(), payment.Merchant)
		assertions.Nil(err, "failed to query ledger balance")
		assertions.Equal(uint64(99_000), ledgerBalance.Available)
		assertions.Zero(ledgerBalance.Escrowed)

		locked, err := e.ledger.TotalLocked(context.TODO())
		assertions.Nil(err, "failed to query total locked")
		assertions.Zero(locked)

		balance, err := e.processor.MerchantBalance(context.TODO(), payment.Merchant)
		assertions.Nil(err, "failed to query balance")
		assertions.Equal(payments.Balance{Available: 97_500, TotalEarned: 97_500}, balance)

		collected, err := e.processor.PlatformFeesCollected(context.TODO())
		assertions.Nil(err, "failed to query platform fees")
		assertions.Equal(uint64(2_500), collected)

		_, err = e.processor.SettlePayment(context.TODO(), e.owner, payment.Id)
		assertions.ErrorIs(err, payments.ErrInvalidPayment, "settlement is not re-triggerable")

		_, err = e.ledger.ReleaseEscrowToMerchant(context.TODO(), e.processor.Contract(), payment.Id)
		assertions.ErrorIs(err, escrow.ErrEscrowAlreadyReleased)

		names := e.recorder.Names()
		assertions.Equal([]string{"escrow-released", "payment-settled"}, names[len(names)-2:], "release runs inside settlement")

		_, err = e.processor.WithdrawBalance(context.TODO(), payment.Merchant, 97_500)
		assertions.Nil(err, "failed to withdraw processor balance")
		ledgerBalance, err = e.ledger.MerchantBalance(context.TODO(), payment.Merchant)
		assertions.Nil(err, "failed to query ledger balance")
		assertions.Equal(uint64(99_000), ledgerBalance.Available, "the books are independent")
	})

	t.Run("Without Escrow", func(t *testing.T) {
		assertions := assert.New(t)

		e := newEnv(t, false)
		payment := e.create(t, 40_000, 10)

		_, err := e.processor.ProcessPayment(context.TODO(), testsuite.Principal(), payment.Id)
		assertions.Nil(err, "failed to process")

		settlement, err := e.processor.SettlePayment(context.TODO(), e.owner, payment.Id)
		assertions.Nil(err, "failed to settle")
		assertions.False(settlement.EscrowReleased)
		assertions.Equal(uint64(39_000), settlement.MerchantAmount)
	})

	t.Run("Require Escrow", func(t *testing.T) {
		assertions := assert.New(t)

		e := newEnv(t, true)
		payment := e.create(t, 40_000, 10)
		payer := testsuite.Principal()

		_, err := e.processor.ProcessPayment(context.TODO(), payer, payment.Id)
		assertions.Nil(err, "failed to process")

		_, err = e.processor.SettlePayment(context.TODO(), e.owner, payment.Id)
		assertions.ErrorIs(err, payments.ErrInvalidPayment, "no escrow to release")

		_, err = e.ledger.DepositForPayment(context.TODO(), payer, payment.Id, payment.Merchant, 40_000)
		assertions.Nil(err, "failed to deposit")

		_, err = e.processor.SettlePayment(context.TODO(), e.owner, payment.Id)
		assertions.Nil(err, "failed to settle")
	})

	t.Run("Unlinked Ledger", func(t *testing.T) {
		assertions := assert.New(t)

		e := newEnv(t, false)
		payment := e.create(t, 40_000, 10)
		payer := testsuite.Principal()

		_, err := e.ledger.DepositForPayment(context.TODO(), payer, payment.Id, payment.Merchant, 40_000)
		assertions.Nil(err, "failed to deposit")
		_, err = e.processor.ProcessPayment(context.TODO(), payer, payment.Id)
		assertions.Nil(err, "failed to process")

		err = e.ledger.SetPaymentProcessor(context.TODO(), e.owner, testsuite.Principal())
		assertions.Nil(err, "failed to change payment processor")

		_, err = e.processor.SettlePayment(context.TODO(), e.owner, payment.Id)
		assertions.ErrorIs(err, escrow.ErrPaymentProcessorOnly)

		stored, err := e.processor.Payment(context.TODO(), payment.Id)
		assertions.Nil(err, "failed to query payment")
		assertions.Equal(payments.StatusConfirmed, stored.Status, "failed settlement leaves no trace")
		_, err = e.processor.Settlement(context.TODO(), payment.Id)
		assertions.ErrorIs(err, payments.ErrSettlementNotFound)
	})
}

func Test_WithdrawBalance(t *testing.T) {
	assertions := assert.New(t)

	e := newEnv(t, false)
	payment := e.create(t, 100_000, 10)

	_, err := e.processor.ProcessPayment(context.TODO(), testsuite.Principal(), payment.Id)
	assertions.Nil(err, "failed to process")
	_, err = e.processor.SettlePayment(context.TODO(), e.owner, payment.Id)
	assertions.Nil(err, "failed to settle")

	_, err = e.processor.WithdrawBalance(context.TODO(), payment.Merchant, 97_501)
	assertions.ErrorIs(err, payments.ErrInsufficientBalance)
	assertions.Equal(uint32(104), code(err))

	_, err = e.processor.WithdrawBalance(context.TODO(), payment.Merchant, 0)
	assertions.ErrorIs(err, payments.ErrInvalidAmount)

	_, err = e.processor.WithdrawBalance(context.TODO(), testsuite.Principal(), 1)
	assertions.ErrorIs(err, payments.ErrInsufficientBalance, "unknown merchants hold nothing")

	balance, err := e.processor.WithdrawBalance(context.TODO(), payment.Merchant, 97_500)
	assertions.Nil(err, "failed to withdraw")
	assertions.Equal(payments.Balance{Available: 0, TotalEarned: 97_500, TotalWithdrawn: 97_500}, balance)
}

func Test_StreamOpenPayments(t *testing.T) {
	assertions := assert.New(t)

	e := newEnv(t, false)
	for range 4 {
		e.create(t, 10_000, 5)
	}

	_, err := e.processor.ProcessPayment(context.TODO(), testsuite.Principal(), 2)
	assertions.Nil(err, "failed to process")
	_, err = e.processor.SettlePayment(context.TODO(), e.owner, 2)
	assertions.Nil(err, "failed to settle")

	_, err = e.chain.Mine(context.TODO(), 6)
	assertions.Nil(err, "failed to mine")
	_, err = e.processor.ExpirePayment(context.TODO(), testsuite.Principal(), 4)
	assertions.Nil(err, "failed to expire")

	open, errChan := e.processor.StreamOpenPayments(context.TODO())
	var ids []uint64
	for payment := range open {
		ids = append(ids, payment.Id)
	}
	assertions.Nil(<-errChan, "failed to stream open payments")
	assertions.Equal([]uint64{1, 3}, ids)
}
