package router

import (
	"errors"
	"net/http"
	"strconv"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/decimal"
	"anarchy.ttfm/sbtcpay/escrow"
	"anarchy.ttfm/sbtcpay/payments"
	"anarchy.ttfm/sbtcpay/utils"
	"github.com/gin-gonic/gin"
)

// Exposes both contracts over HTTP
type Router struct {
	// Payment processor contract
	Processor *payments.Controller
	// Escrow ledger contract
	Ledger *escrow.Controller
	// Host, for the status endpoint
	Chain *chain.Chain
	// Verifies the callers of state changing endpoints
	Auth *Authenticator
	// Base Gin router to register the routes in
	Base gin.IRouter
}

const (
	IdParam        = "id"
	PrincipalParam = "principal"

	PaymentsPath          = "/payments"
	PaymentsPathWithId    = PaymentsPath + "/:" + IdParam
	MerchantBalancePath   = "/merchants/:" + PrincipalParam + "/balance"
	EscrowPath            = "/escrow"
	DepositsPath          = "/deposits"
	DepositsPathWithId    = DepositsPath + "/:" + IdParam
	WithdrawalsPath       = "/withdrawals"
	WithdrawalsPathWithId = WithdrawalsPath + "/:" + IdParam
	ConversionsPath       = "/conversions"
	ConversionsPathWithId = ConversionsPath + "/:" + IdParam
	OperatorsPath         = "/operators"
	OperatorsPathWithId   = OperatorsPath + "/:" + PrincipalParam
	LedgerBalancePath     = "/balances/:" + PrincipalParam
	ClaimPath             = "/claim"
	MaxBatchSize          = 100
)

var ErrBatchTooLarge = errors.New("too many ids")

func paramId(ctx *gin.Context) (id uint64, ok bool) {
	id, err := strconv.ParseUint(ctx.Param(IdParam), 10, 64)
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, Error{Error: err.Error()})
		return 0, false
	}
	return id, true
}

func paramPrincipal(ctx *gin.Context) (principal chain.Principal, ok bool) {
	principal = chain.Principal(ctx.Param(PrincipalParam))
	err := principal.Validate()
	if err != nil {
		fail(ctx, err)
		return "", false
	}
	return principal, true
}

func queryAmount(ctx *gin.Context) (amount uint64, ok bool) {
	var value decimal.Decimal
	err := value.FromString(ctx.Query("amount"))
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, Error{Error: err.Error()})
		return 0, false
	}
	amount, _ = value.ToUint64()
	return amount, true
}

func bind(ctx *gin.Context, v any) (ok bool) {
	err := ctx.ShouldBindJSON(v)
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, Error{Error: err.Error()})
		return false
	}
	return true
}

func sats(ctx *gin.Context, values ...*decimal.Decimal) (amounts []uint64, ok bool) {
	amounts = make([]uint64, 0, len(values))
	for _, value := range values {
		amount, err := value.ToUint64()
		if err != nil {
			fail(ctx, err)
			return nil, false
		}
		amounts = append(amounts, amount)
	}
	return amounts, true
}

func (r *Router) createPayment(ctx *gin.Context) {
	var req CreatePayment
	if !bind(ctx, &req) {
		return
	}
	amounts, ok := sats(ctx, &req.SbtcAmount)
	if !ok {
		return
	}

	payment, err := r.Processor.CreatePayment(ctx, sender(ctx), payments.Create{
		Merchant:      chain.Principal(req.Merchant),
		PaymentAmount: req.PaymentAmount,
		SbtcAmount:    amounts[0],
		ExpiresIn:     req.ExpiresIn,
		Reference:     req.Reference,
		Metadata:      req.Metadata,
	})
	switch {
	case err == nil:
		out := PaymentFromProcessor(&payment)
		ctx.JSON(http.StatusCreated, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) payment(ctx *gin.Context) {
	id, ok := paramId(ctx)
	if !ok {
		return
	}

	payment, err := r.Processor.Payment(ctx, id)
	switch {
	case err == nil:
		out := PaymentFromProcessor(&payment)
		ctx.JSON(http.StatusOK, &out)
	default:
		fail(ctx, err)
	}
}

// batchPayments answers GET /payments?id=1&id=2 skipping unknown ids
func (r *Router) batchPayments(ctx *gin.Context) {
	var query Ids
	err := ctx.ShouldBindQuery(&query)
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, Error{Error: err.Error()})
		return
	}
	if len(query.Ids) > MaxBatchSize {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, Error{Error: ErrBatchTooLarge.Error()})
		return
	}
	for _, id := range query.Ids {
		if id <= 0 {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, Error{Error: "invalid id " + strconv.FormatInt(id, 10)})
			return
		}
	}

	out := make([]Payment, 0, len(query.Ids))
	for _, id := range utils.MapInt[int64, uint64](query.Ids) {
		payment, err := r.Processor.Payment(ctx, id)
		switch {
		case err == nil:
			out = append(out, PaymentFromProcessor(&payment))
		case errors.Is(err, payments.ErrPaymentNotFound):
		default:
			fail(ctx, err)
			return
		}
	}
	ctx.JSON(http.StatusOK, out)
}

func (r *Router) paymentCounter(ctx *gin.Context) {
	counter, err := r.Processor.PaymentCounter(ctx)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, Value{Value: counter})
	default:
		fail(ctx, err)
	}
}

func (r *Router) processPayment(ctx *gin.Context) {
	id, ok := paramId(ctx)
	if !ok {
		return
	}

	payment, err := r.Processor.ProcessPayment(ctx, sender(ctx), id)
	switch {
	case err == nil:
		out := PaymentFromProcessor(&payment)
		ctx.JSON(http.StatusOK, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) settlePayment(ctx *gin.Context) {
	id, ok := paramId(ctx)
	if !ok {
		return
	}

	settlement, err := r.Processor.SettlePayment(ctx, sender(ctx), id)
	switch {
	case err == nil:
		out := SettlementFromProcessor(&settlement)
		ctx.JSON(http.StatusOK, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) expirePayment(ctx *gin.Context) {
	id, ok := paramId(ctx)
	if !ok {
		return
	}

	payment, err := r.Processor.ExpirePayment(ctx, sender(ctx), id)
	switch {
	case err == nil:
		out := PaymentFromProcessor(&payment)
		ctx.JSON(http.StatusOK, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) paymentSettlement(ctx *gin.Context) {
	id, ok := paramId(ctx)
	if !ok {
		return
	}

	settlement, err := r.Processor.Settlement(ctx, id)
	switch {
	case err == nil:
		out := SettlementFromProcessor(&settlement)
		ctx.JSON(http.StatusOK, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) merchantBalance(ctx *gin.Context) {
	merchant, ok := paramPrincipal(ctx)
	if !ok {
		return
	}

	balance, err := r.Processor.MerchantBalance(ctx, merchant)
	switch {
	case err == nil:
		out := ProcessorBalanceFrom(&balance)
		ctx.JSON(http.StatusOK, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) withdrawBalance(ctx *gin.Context) {
	var req Amount
	if !bind(ctx, &req) {
		return
	}
	amounts, ok := sats(ctx, &req.Amount)
	if !ok {
		return
	}

	balance, err := r.Processor.WithdrawBalance(ctx, sender(ctx), amounts[0])
	switch {
	case err == nil:
		out := ProcessorBalanceFrom(&balance)
		ctx.JSON(http.StatusOK, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) calculatePlatformFee(ctx *gin.Context) {
	amount, ok := queryAmount(ctx)
	if !ok {
		return
	}

	fee, err := r.Processor.CalculatePlatformFee(ctx, amount)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, Amount{Amount: decimal.FromUint64(fee)})
	default:
		fail(ctx, err)
	}
}

func (r *Router) platformFees(ctx *gin.Context) {
	collected, err := r.Processor.PlatformFeesCollected(ctx)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, Amount{Amount: decimal.FromUint64(collected)})
	default:
		fail(ctx, err)
	}
}

func (r *Router) setPlatformFeeRate(ctx *gin.Context) {
	var req Rate
	if !bind(ctx, &req) {
		return
	}

	err := r.Processor.SetPlatformFeeRate(ctx, sender(ctx), req.Rate)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, &req)
	default:
		fail(ctx, err)
	}
}

func (r *Router) status(ctx *gin.Context) {
	height, err := r.Chain.Height()
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, Value{Value: height})
}

// Register routes in the Gin router. Reads are public, state changes require a token.
func (r *Router) Register() {
	authenticated := r.Base.Group("", r.Auth.Middleware)

	r.Base.GET("/height", r.status)

	r.Base.GET(PaymentsPath, r.batchPayments)
	r.Base.GET(PaymentsPath+"/counter", r.paymentCounter)
	r.Base.GET(PaymentsPathWithId, r.payment)
	r.Base.GET(PaymentsPathWithId+"/settlement", r.paymentSettlement)
	r.Base.GET(MerchantBalancePath, r.merchantBalance)
	r.Base.GET("/platform/fee", r.calculatePlatformFee)
	r.Base.GET("/platform/fees-collected", r.platformFees)

	authenticated.POST(PaymentsPath, r.createPayment)
	authenticated.POST(PaymentsPathWithId+"/process", r.processPayment)
	authenticated.POST(PaymentsPathWithId+"/settle", r.settlePayment)
	authenticated.POST(PaymentsPathWithId+"/expire", r.expirePayment)
	authenticated.POST("/balance/withdraw", r.withdrawBalance)
	authenticated.PUT("/platform/fee-rate", r.setPlatformFeeRate)

	r.registerEscrow(r.Base.Group(EscrowPath), authenticated.Group(EscrowPath))
}
