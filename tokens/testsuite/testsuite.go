package testsuite

import (
	"context"
	"testing"

	"anarchy.ttfm/sbtcpay/random"
	"anarchy.ttfm/sbtcpay/tokens"
	"anarchy.ttfm/sbtcpay/utils"
	"github.com/stretchr/testify/assert"
)

// DataGenerator defines an interface for test data generation.
type DataGenerator interface {
	// Funded returns an account holding at least 10 times TransferAmount
	Funded(ctx context.Context) (owner string)
	// TransferAmount returns the amount to send for a transfer.
	TransferAmount() (amount uint64)
}

const Contract = "SM3VDXK3WZZSA84XXFKAFAF15NNZX32CTSG82JFQ4.sbtc-token"

func account() (owner string) {
	return "ST" + random.String(random.CryptoRand(), random.CharsetUpperAlphaNumeric, 38)
}

// Test runs a comprehensive suite of tests for any Token implementation.
func Test(t *testing.T, token tokens.Token, gen DataGenerator) {
	t.Run("Transfer", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		src := gen.Funded(ctx)
		dst := account()

		before, err := token.Balance(ctx, tokens.BalanceRequest{Contract: Contract, Owner: src})
		assertions.Nil(err, "failed to get source balance")

		transfer, err := token.Transfer(ctx, tokens.TransferRequest{
			Contract:  Contract,
			Amount:    gen.TransferAmount(),
			Sender:    src,
			Recipient: dst,
			Memo:      []byte("payment-1"),
		})
		if !assertions.Nil(err, "failed to transfer") {
			return
		}
		assertions.NotEmpty(transfer.TxId, "transfer should have a transaction id")
		assertions.Equal(src, transfer.Sender)
		assertions.Equal(dst, transfer.Recipient)
		assertions.Equal(gen.TransferAmount(), transfer.Amount)

		after, err := token.Balance(ctx, tokens.BalanceRequest{Contract: Contract, Owner: src})
		assertions.Nil(err, "failed to get source balance")
		assertions.Equal(before.Amount-gen.TransferAmount(), after.Amount, "source should be debited")

		received, err := token.Balance(ctx, tokens.BalanceRequest{Contract: Contract, Owner: dst})
		assertions.Nil(err, "failed to get destination balance")
		assertions.Equal(gen.TransferAmount(), received.Amount, "destination should be credited")
	})

	t.Run("Insufficient Funds", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		src := gen.Funded(ctx)
		balance, err := token.Balance(ctx, tokens.BalanceRequest{Contract: Contract, Owner: src})
		assertions.Nil(err, "failed to get source balance")

		_, err = token.Transfer(ctx, tokens.TransferRequest{
			Contract:  Contract,
			Amount:    balance.Amount + 1,
			Sender:    src,
			Recipient: account(),
		})
		assertions.NotNil(err, "transfer should fail due to insufficient funds")
		assertions.True(tokens.Rejected(err), "a refused transfer must be recognizable: %v", err)
	})

	t.Run("Zero Amount Transfer", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		_, err := token.Transfer(ctx, tokens.TransferRequest{
			Contract:  Contract,
			Amount:    0,
			Sender:    gen.Funded(ctx),
			Recipient: account(),
		})
		assertions.ErrorIs(err, tokens.ErrInvalidAmount, "transfer should fail for zero amount")
	})

	t.Run("Self Transfer", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		src := gen.Funded(ctx)
		_, err := token.Transfer(ctx, tokens.TransferRequest{
			Contract:  Contract,
			Amount:    gen.TransferAmount(),
			Sender:    src,
			Recipient: src,
		})
		assertions.ErrorIs(err, tokens.ErrInvalidRecipient, "transfer to self should fail")
	})
}
