package router

import (
	"anarchy.ttfm/sbtcpay/decimal"
	"anarchy.ttfm/sbtcpay/escrow"
	"anarchy.ttfm/sbtcpay/payments"
)

// Requests
type (
	CreatePayment struct {
		Merchant      string          `json:"merchant"`
		PaymentAmount uint64          `json:"payment-amount"`
		SbtcAmount    decimal.Decimal `json:"sbtc-amount"`
		// Blocks until the payment expires
		ExpiresIn uint64 `json:"expires-in"`
		Reference string `json:"reference,omitempty"`
		Metadata  string `json:"metadata,omitempty"`
	}
	Amount struct {
		Amount decimal.Decimal `json:"amount"`
	}
	Rate struct {
		Rate uint64 `json:"rate"`
	}
	Deposit struct {
		PaymentId uint64          `json:"payment-id"`
		Merchant  string          `json:"merchant"`
		Amount    decimal.Decimal `json:"amount"`
	}
	RequestWithdrawal struct {
		Amount    decimal.Decimal `json:"amount"`
		Recipient string          `json:"recipient"`
	}
	ProcessWithdrawal struct {
		TxHash string `json:"tx-hash"`
	}
	Convert struct {
		FromAmount       decimal.Decimal `json:"from-amount"`
		ExpectedToAmount decimal.Decimal `json:"expected-to-amount"`
	}
	Fees struct {
		WithdrawalFee decimal.Decimal `json:"withdrawal-fee"`
		DepositFee    decimal.Decimal `json:"deposit-fee"`
	}
	Principal struct {
		Principal string `json:"principal"`
	}
	Contract struct {
		Contract string `json:"contract"`
	}
	Ids struct {
		Ids []int64 `form:"id"`
	}
)

// Responses
type (
	Payment struct {
		Id            uint64          `json:"id"`
		Payer         string          `json:"payer,omitempty"`
		Merchant      string          `json:"merchant"`
		PaymentAmount uint64          `json:"payment-amount"`
		SbtcAmount    decimal.Decimal `json:"sbtc-amount"`
		CreatedAt     uint64          `json:"created-at"`
		ExpiresAt     uint64          `json:"expires-at"`
		Reference     string          `json:"reference"`
		Metadata      string          `json:"metadata"`
		Status        payments.Status `json:"status"`
	}
	Settlement struct {
		PaymentId      uint64          `json:"payment-id"`
		SbtcAmount     decimal.Decimal `json:"sbtc-amount"`
		PlatformFee    decimal.Decimal `json:"platform-fee"`
		MerchantAmount decimal.Decimal `json:"merchant-amount"`
		SettledAt      uint64          `json:"settled-at"`
		EscrowReleased bool            `json:"escrow-released"`
		EscrowAmount   decimal.Decimal `json:"escrow-amount"`
	}
	ProcessorBalance struct {
		Available      decimal.Decimal `json:"available"`
		TotalEarned    decimal.Decimal `json:"total-earned"`
		TotalWithdrawn decimal.Decimal `json:"total-withdrawn"`
	}
	EscrowDeposit struct {
		PaymentId     uint64          `json:"payment-id"`
		Payer         string          `json:"payer"`
		Merchant      string          `json:"merchant"`
		Amount        decimal.Decimal `json:"amount"`
		DepositedAt   uint64          `json:"deposited-at"`
		Released      bool            `json:"released"`
		ReleaseHeight *uint64         `json:"release-height,omitempty"`
		TxHash        string          `json:"tx-hash,omitempty"`
	}
	LedgerBalance struct {
		Available      decimal.Decimal `json:"available"`
		Escrowed       decimal.Decimal `json:"escrowed"`
		TotalDeposited decimal.Decimal `json:"total-deposited"`
		TotalWithdrawn decimal.Decimal `json:"total-withdrawn"`
	}
	Withdrawal struct {
		Id          uint64          `json:"id"`
		Merchant    string          `json:"merchant"`
		Amount      decimal.Decimal `json:"amount"`
		Recipient   string          `json:"recipient"`
		RequestedAt uint64          `json:"requested-at"`
		Processed   bool            `json:"processed"`
		TxHash      string          `json:"tx-hash,omitempty"`
		ClaimedBy   string          `json:"claimed-by,omitempty"`
		ClaimedAt   uint64          `json:"claimed-at,omitempty"`
	}
	Conversion struct {
		Id         uint64          `json:"id"`
		FromAmount decimal.Decimal `json:"from-amount"`
		ToAmount   decimal.Decimal `json:"to-amount"`
		Rate       uint64          `json:"rate"`
		Fee        decimal.Decimal `json:"fee"`
		Timestamp  uint64          `json:"timestamp"`
		User       string          `json:"user"`
	}
	LedgerSettings struct {
		Owner              string          `json:"owner"`
		PaymentProcessor   string          `json:"payment-processor"`
		SbtcContract       string          `json:"sbtc-contract"`
		IntegrationEnabled bool            `json:"integration-enabled"`
		ConversionRate     uint64          `json:"conversion-rate"`
		DepositFee         decimal.Decimal `json:"deposit-fee"`
		WithdrawalFee      decimal.Decimal `json:"withdrawal-fee"`
		MaxSlippage        uint64          `json:"max-slippage"`
		Operators          []string        `json:"operators"`
	}
	Value struct {
		Value uint64 `json:"value"`
	}
	Check struct {
		Ok bool `json:"ok"`
	}
	Error struct {
		Code  uint32 `json:"code,omitempty"`
		Error string `json:"error"`
	}
)

func PaymentFromProcessor(src *payments.Payment) (payment Payment) {
	payment = Payment{
		Id:            src.Id,
		Payer:         src.Payer.String(),
		Merchant:      src.Merchant.String(),
		PaymentAmount: src.PaymentAmount,
		SbtcAmount:    decimal.FromUint64(src.SbtcAmount),
		CreatedAt:     src.CreatedAt,
		ExpiresAt:     src.ExpiresAt,
		Reference:     src.Reference,
		Metadata:      src.Metadata,
		Status:        src.Status,
	}
	return payment
}

func SettlementFromProcessor(src *payments.Settlement) (settlement Settlement) {
	settlement = Settlement{
		PaymentId:      src.PaymentId,
		SbtcAmount:     decimal.FromUint64(src.SbtcAmount),
		PlatformFee:    decimal.FromUint64(src.PlatformFee),
		MerchantAmount: decimal.FromUint64(src.MerchantAmount),
		SettledAt:      src.SettledAt,
		EscrowReleased: src.EscrowReleased,
		EscrowAmount:   decimal.FromUint64(src.EscrowAmount),
	}
	return settlement
}

func ProcessorBalanceFrom(src *payments.Balance) (balance ProcessorBalance) {
	return ProcessorBalance{
		Available:      decimal.FromUint64(src.Available),
		TotalEarned:    decimal.FromUint64(src.TotalEarned),
		TotalWithdrawn: decimal.FromUint64(src.TotalWithdrawn),
	}
}

func DepositFromLedger(src *escrow.Deposit) (deposit EscrowDeposit) {
	deposit = EscrowDeposit{
		PaymentId:     src.PaymentId,
		Payer:         src.Payer.String(),
		Merchant:      src.Merchant.String(),
		Amount:        decimal.FromUint64(src.Amount),
		DepositedAt:   src.DepositedAt,
		Released:      src.Released,
		ReleaseHeight: src.ReleaseHeight,
		TxHash:        src.TxHash,
	}
	return deposit
}

func LedgerBalanceFrom(src *escrow.Balance) (balance LedgerBalance) {
	return LedgerBalance{
		Available:      decimal.FromUint64(src.Available),
		Escrowed:       decimal.FromUint64(src.Escrowed),
		TotalDeposited: decimal.FromUint64(src.TotalDeposited),
		TotalWithdrawn: decimal.FromUint64(src.TotalWithdrawn),
	}
}

func WithdrawalFromLedger(src *escrow.WithdrawalRequest) (withdrawal Withdrawal) {
	withdrawal = Withdrawal{
		Id:          src.Id,
		Merchant:    src.Merchant.String(),
		Amount:      decimal.FromUint64(src.Amount),
		Recipient:   string(src.RecipientAddress),
		RequestedAt: src.RequestedAt,
		Processed:   src.Processed,
		TxHash:      src.TxHash,
		ClaimedBy:   src.ClaimedBy.String(),
		ClaimedAt:   src.ClaimedAt,
	}
	return withdrawal
}

func ConversionFromLedger(src *escrow.ConversionRecord) (conversion Conversion) {
	conversion = Conversion{
		Id:         src.Id,
		FromAmount: decimal.FromUint64(src.FromAmount),
		ToAmount:   decimal.FromUint64(src.ToAmount),
		Rate:       src.Rate,
		Fee:        decimal.FromUint64(src.Fee),
		Timestamp:  src.Timestamp,
		User:       src.User.String(),
	}
	return conversion
}

func SettingsFromLedger(src *escrow.Settings) (settings LedgerSettings) {
	settings = LedgerSettings{
		Owner:              src.Owner.String(),
		PaymentProcessor:   src.PaymentProcessor.String(),
		SbtcContract:       src.SbtcContract,
		IntegrationEnabled: src.IntegrationEnabled,
		ConversionRate:     src.ConversionRate,
		DepositFee:         decimal.FromUint64(src.DepositFee),
		WithdrawalFee:      decimal.FromUint64(src.WithdrawalFee),
		MaxSlippage:        src.MaxSlippage,
		Operators:          make([]string, 0, len(src.Operators)),
	}
	for _, operator := range src.Operators {
		settings.Operators = append(settings.Operators, operator.String())
	}
	return settings
}

