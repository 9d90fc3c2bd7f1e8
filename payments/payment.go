package payments

import (
	"encoding/json"
	"fmt"

	"anarchy.ttfm/sbtcpay/chain"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusConfirmed Status = "confirmed"
	StatusSettled   Status = "settled"
	StatusExpired   Status = "expired"
	StatusRefunded  Status = "refunded"
)

// Terminal reports whether no further transition is possible
func (s Status) Terminal() (ok bool) {
	return s == StatusSettled || s == StatusExpired || s == StatusRefunded
}

var (
	settingsKey     = []byte("/payments/settings")
	counterKey      = []byte("/payments/counter")
	platformFeesKey = []byte("/payments/platform-fees")
	openPrefix      = []byte("/payments/open/")
)

func PaymentKey(id uint64) (key []byte) {
	return []byte(fmt.Sprintf("/payments/payment/%020d", id))
}

// OpenKey indexes payments that did not reach a terminal status yet
func OpenKey(id uint64) (key []byte) {
	return []byte(fmt.Sprintf("/payments/open/%020d", id))
}

func SettlementKey(id uint64) (key []byte) {
	return []byte(fmt.Sprintf("/payments/settlement/%020d", id))
}

func BalanceKey(merchant chain.Principal) (key []byte) {
	return []byte(fmt.Sprintf("/payments/balances/%s", merchant))
}

type (
	Settings struct {
		Owner chain.Principal `json:"owner"`
		// Basis points retained from every settlement
		PlatformFeeRate uint64 `json:"platform-fee-rate"`
	}
	Payment struct {
		// Sequential identifier starting at 1
		Id uint64 `json:"id"`
		// Principal that confirmed the payment. Empty until processed.
		Payer         chain.Principal `json:"payer,omitempty"`
		Merchant      chain.Principal `json:"merchant"`
		PaymentAmount uint64          `json:"payment-amount"`
		SbtcAmount    uint64          `json:"sbtc-amount"`
		CreatedAt     uint64          `json:"created-at"`
		ExpiresAt     uint64          `json:"expires-at"`
		Reference     string          `json:"reference"`
		Metadata      string          `json:"metadata"`
		Status        Status          `json:"status"`
	}
	Settlement struct {
		PaymentId      uint64 `json:"payment-id"`
		SbtcAmount     uint64 `json:"sbtc-amount"`
		PlatformFee    uint64 `json:"platform-fee"`
		MerchantAmount uint64 `json:"merchant-amount"`
		SettledAt      uint64 `json:"settled-at"`
		// Whether settlement released an escrow and how much it held
		EscrowReleased bool   `json:"escrow-released"`
		EscrowAmount   uint64 `json:"escrow-amount"`
	}
	// Balance credited to merchants by settlements
	Balance struct {
		Available      uint64 `json:"available"`
		TotalEarned    uint64 `json:"total-earned"`
		TotalWithdrawn uint64 `json:"total-withdrawn"`
	}
)

// Expired reports whether the payment can no longer be processed at height
func (p *Payment) Expired(height uint64) (ok bool) {
	return height > p.ExpiresAt
}

func (p *Payment) Bytes() (bytes []byte) {
	bytes, _ = json.Marshal(p)
	return bytes
}

func (p *Payment) FromBytes(b []byte) (err error) {
	return json.Unmarshal(b, p)
}

func (s *Settings) Bytes() (bytes []byte) {
	bytes, _ = json.Marshal(s)
	return bytes
}

func (s *Settings) FromBytes(b []byte) (err error) {
	return json.Unmarshal(b, s)
}

func (s *Settlement) Bytes() (bytes []byte) {
	bytes, _ = json.Marshal(s)
	return bytes
}

func (s *Settlement) FromBytes(b []byte) (err error) {
	return json.Unmarshal(b, s)
}

func (b *Balance) Bytes() (bytes []byte) {
	bytes, _ = json.Marshal(b)
	return bytes
}

func (b *Balance) FromBytes(raw []byte) (err error) {
	return json.Unmarshal(raw, b)
}
