package escrow

import (
	"encoding/json"
	"fmt"
	"slices"

	"anarchy.ttfm/sbtcpay/chain"
)

var (
	settingsKey       = []byte("/escrow/settings")
	totalLockedKey    = []byte("/escrow/total-locked")
	withdrawalSeqKey  = []byte("/escrow/sequence/withdrawals")
	conversionSeqKey  = []byte("/escrow/sequence/conversions")
	pendingPrefix     = []byte("/escrow/pending-withdrawals/")
	depositsPrefix    = []byte("/escrow/deposits/")
	withdrawalsPrefix = []byte("/escrow/withdrawals/")
)

func DepositKey(paymentId uint64) (key []byte) {
	return []byte(fmt.Sprintf("/escrow/deposits/%020d", paymentId))
}

func BalanceKey(merchant chain.Principal) (key []byte) {
	return []byte(fmt.Sprintf("/escrow/balances/%s", merchant))
}

func WithdrawalKey(id uint64) (key []byte) {
	return []byte(fmt.Sprintf("/escrow/withdrawals/%020d", id))
}

func PendingWithdrawalKey(id uint64) (key []byte) {
	return []byte(fmt.Sprintf("/escrow/pending-withdrawals/%020d", id))
}

func ConversionKey(id uint64) (key []byte) {
	return []byte(fmt.Sprintf("/escrow/conversions/%020d", id))
}

type (
	Settings struct {
		// Deployer of the ledger. Never changes.
		Owner chain.Principal `json:"owner"`
		// Only principal allowed to release and refund escrows
		PaymentProcessor chain.Principal `json:"payment-processor,omitempty"`
		// sBTC token contract
		SbtcContract string `json:"sbtc-contract,omitempty"`
		// Whether deposits and refunds move tokens through the token capability
		IntegrationEnabled bool `json:"integration-enabled"`
		// Satoshis obtained per 10^8 units converted
		ConversionRate uint64 `json:"conversion-rate"`
		// Fixed fee discounted from every deposit
		DepositFee uint64 `json:"deposit-fee"`
		// Fixed fee discounted from every withdrawal
		WithdrawalFee uint64 `json:"withdrawal-fee"`
		// Tolerated conversion deviation in basis points
		MaxSlippage uint64 `json:"max-slippage"`
		// Principals allowed to process withdrawals
		Operators []chain.Principal `json:"operators"`
	}
	Deposit struct {
		PaymentId uint64          `json:"payment-id"`
		Payer     chain.Principal `json:"payer"`
		Merchant  chain.Principal `json:"merchant"`
		// Escrowed amount, net of the deposit fee
		Amount      uint64 `json:"amount"`
		DepositedAt uint64 `json:"deposited-at"`
		// Set by release and refund alike. Terminal.
		Released      bool    `json:"released"`
		ReleaseHeight *uint64 `json:"release-height,omitempty"`
		// Transaction that moved the tokens into escrow, when integrated
		TxHash string `json:"tx-hash,omitempty"`
	}
	Balance struct {
		// Withdrawable funds
		Available uint64 `json:"available"`
		// Funds locked pending settlement
		Escrowed       uint64 `json:"escrowed"`
		TotalDeposited uint64 `json:"total-deposited"`
		TotalWithdrawn uint64 `json:"total-withdrawn"`
	}
	WithdrawalRequest struct {
		Id       uint64          `json:"id"`
		Merchant chain.Principal `json:"merchant"`
		// Amount to pay out, net of the withdrawal fee
		Amount           uint64 `json:"amount"`
		RecipientAddress []byte `json:"recipient-address"`
		RequestedAt      uint64 `json:"requested-at"`
		Processed        bool   `json:"processed"`
		// Proof of the external settlement
		TxHash string `json:"tx-hash,omitempty"`
		// Set by the operator paying the request out. A claimed request is never paid again
		// until the claim is released.
		ClaimedBy chain.Principal `json:"claimed-by,omitempty"`
		ClaimedAt uint64          `json:"claimed-at,omitempty"`
	}
	ConversionRecord struct {
		Id         uint64          `json:"id"`
		FromAmount uint64          `json:"from-amount"`
		ToAmount   uint64          `json:"to-amount"`
		Rate       uint64          `json:"rate"`
		Fee        uint64          `json:"fee"`
		Timestamp  uint64          `json:"timestamp"`
		User       chain.Principal `json:"user"`
	}
)

func (s *Settings) IsOperator(p chain.Principal) (ok bool) {
	return p == s.Owner || slices.Contains(s.Operators, p)
}

func (s *Settings) Bytes() (bytes []byte) {
	bytes, _ = json.Marshal(s)
	return bytes
}

func (s *Settings) FromBytes(b []byte) (err error) {
	return json.Unmarshal(b, s)
}

func (d *Deposit) Bytes() (bytes []byte) {
	bytes, _ = json.Marshal(d)
	return bytes
}

func (d *Deposit) FromBytes(b []byte) (err error) {
	return json.Unmarshal(b, d)
}

func (b *Balance) Bytes() (bytes []byte) {
	bytes, _ = json.Marshal(b)
	return bytes
}

func (b *Balance) FromBytes(raw []byte) (err error) {
	return json.Unmarshal(raw, b)
}

func (w *WithdrawalRequest) Claimed() (ok bool) {
	return w.ClaimedBy != ""
}

func (w *WithdrawalRequest) Bytes() (bytes []byte) {
	bytes, _ = json.Marshal(w)
	return bytes
}

func (w *WithdrawalRequest) FromBytes(b []byte) (err error) {
	return json.Unmarshal(b, w)
}

func (r *ConversionRecord) Bytes() (bytes []byte) {
	bytes, _ = json.Marshal(r)
	return bytes
}

func (r *ConversionRecord) FromBytes(b []byte) (err error) {
	return json.Unmarshal(b, r)
}

func (c *Controller) balance(tx *chain.Tx, merchant chain.Principal) (balance Balance, err error) {
	_, err = tx.Get(BalanceKey(merchant), &balance)
	if err != nil {
		return balance, fmt.Errorf("failed to load balance: %w", err)
	}
	return balance, nil
}
