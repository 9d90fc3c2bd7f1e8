package testsuite

import (
	"context"

	"anarchy.ttfm/sbtcpay/tokens/mock"
)

// MockGenerator funds fresh accounts by minting on a mock token
type MockGenerator struct {
	Token *mock.Mock
}

func (g *MockGenerator) Funded(_ context.Context) (owner string) {
	owner = account()
	g.Token.Mint(owner, 10*g.TransferAmount())
	return owner
}

func (g *MockGenerator) TransferAmount() (amount uint64) {
	return 1_000_000 // 0.01 sBTC
}
