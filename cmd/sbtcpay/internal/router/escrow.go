package router

import (
	"context"
	"net/http"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/decimal"
	"anarchy.ttfm/sbtcpay/escrow"
	"github.com/gin-gonic/gin"
)

func (r *Router) deposit(ctx *gin.Context) {
	var req Deposit
	if !bind(ctx, &req) {
		return
	}
	amounts, ok := sats(ctx, &req.Amount)
	if !ok {
		return
	}

	deposit, err := r.Ledger.DepositForPayment(ctx, sender(ctx), req.PaymentId, chain.Principal(req.Merchant), amounts[0])
	switch {
	case err == nil:
		out := DepositFromLedger(&deposit)
		ctx.JSON(http.StatusCreated, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) escrowDeposit(ctx *gin.Context) {
	id, ok := paramId(ctx)
	if !ok {
		return
	}

	deposit, err := r.Ledger.EscrowDeposit(ctx, id)
	switch {
	case err == nil:
		out := DepositFromLedger(&deposit)
		ctx.JSON(http.StatusOK, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) release(ctx *gin.Context) {
	id, ok := paramId(ctx)
	if !ok {
		return
	}

	amount, err := r.Ledger.ReleaseEscrowToMerchant(ctx, sender(ctx), id)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, Amount{Amount: decimal.FromUint64(amount)})
	default:
		fail(ctx, err)
	}
}

func (r *Router) refund(ctx *gin.Context) {
	id, ok := paramId(ctx)
	if !ok {
		return
	}

	amount, err := r.Ledger.RefundEscrowToPayer(ctx, sender(ctx), id)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, Amount{Amount: decimal.FromUint64(amount)})
	default:
		fail(ctx, err)
	}
}

func (r *Router) ledgerBalance(ctx *gin.Context) {
	merchant, ok := paramPrincipal(ctx)
	if !ok {
		return
	}

	balance, err := r.Ledger.MerchantBalance(ctx, merchant)
	switch {
	case err == nil:
		out := LedgerBalanceFrom(&balance)
		ctx.JSON(http.StatusOK, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) requestWithdrawal(ctx *gin.Context) {
	var req RequestWithdrawal
	if !bind(ctx, &req) {
		return
	}
	amounts, ok := sats(ctx, &req.Amount)
	if !ok {
		return
	}

	request, err := r.Ledger.RequestWithdrawal(ctx, sender(ctx), amounts[0], []byte(req.Recipient))
	switch {
	case err == nil:
		out := WithdrawalFromLedger(&request)
		ctx.JSON(http.StatusCreated, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) withdrawal(ctx *gin.Context) {
	id, ok := paramId(ctx)
	if !ok {
		return
	}

	request, err := r.Ledger.WithdrawalRequest(ctx, id)
	switch {
	case err == nil:
		out := WithdrawalFromLedger(&request)
		ctx.JSON(http.StatusOK, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) processWithdrawal(ctx *gin.Context) {
	id, ok := paramId(ctx)
	if !ok {
		return
	}
	var req ProcessWithdrawal
	if !bind(ctx, &req) {
		return
	}

	request, err := r.Ledger.ProcessWithdrawal(ctx, sender(ctx), id, req.TxHash)
	switch {
	case err == nil:
		out := WithdrawalFromLedger(&request)
		ctx.JSON(http.StatusOK, &out)
	default:
		fail(ctx, err)
	}
}

// claim wraps the operator calls that take or drop a payout claim
func (r *Router) claim(call func(ctx context.Context, sender chain.Principal, id uint64) (escrow.WithdrawalRequest, error)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := paramId(ctx)
		if !ok {
			return
		}

		request, err := call(ctx, sender(ctx), id)
		switch {
		case err == nil:
			out := WithdrawalFromLedger(&request)
			ctx.JSON(http.StatusOK, &out)
		default:
			fail(ctx, err)
		}
	}
}

func (r *Router) convert(ctx *gin.Context) {
	var req Convert
	if !bind(ctx, &req) {
		return
	}
	amounts, ok := sats(ctx, &req.FromAmount, &req.ExpectedToAmount)
	if !ok {
		return
	}

	record, err := r.Ledger.ConvertPaymentAmount(ctx, sender(ctx), amounts[0], amounts[1])
	switch {
	case err == nil:
		out := ConversionFromLedger(&record)
		ctx.JSON(http.StatusCreated, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) conversion(ctx *gin.Context) {
	id, ok := paramId(ctx)
	if !ok {
		return
	}

	record, err := r.Ledger.ConversionRecord(ctx, id)
	switch {
	case err == nil:
		out := ConversionFromLedger(&record)
		ctx.JSON(http.StatusOK, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) withdrawals(ctx *gin.Context) {
	merchant, ok := paramPrincipal(ctx)
	if !ok {
		return
	}

	requests, err := r.Ledger.Withdrawals(ctx, merchant)
	switch {
	case err == nil:
		out := make([]Withdrawal, 0, len(requests))
		for index := range requests {
			out = append(out, WithdrawalFromLedger(&requests[index]))
		}
		ctx.JSON(http.StatusOK, out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) conversionRate(ctx *gin.Context) {
	rate, err := r.Ledger.ConversionRate(ctx)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, Rate{Rate: rate})
	default:
		fail(ctx, err)
	}
}

func (r *Router) ledgerSettings(ctx *gin.Context) {
	settings, err := r.Ledger.Settings(ctx)
	switch {
	case err == nil:
		out := SettingsFromLedger(&settings)
		ctx.JSON(http.StatusOK, &out)
	default:
		fail(ctx, err)
	}
}

func (r *Router) totalLocked(ctx *gin.Context) {
	total, err := r.Ledger.TotalLocked(ctx)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, Amount{Amount: decimal.FromUint64(total)})
	default:
		fail(ctx, err)
	}
}

func (r *Router) depositAmount(ctx *gin.Context) {
	gross, ok := queryAmount(ctx)
	if !ok {
		return
	}

	net, err := r.Ledger.CalculateDepositAmount(ctx, gross)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, Amount{Amount: decimal.FromUint64(net)})
	default:
		fail(ctx, err)
	}
}

func (r *Router) withdrawalAmount(ctx *gin.Context) {
	gross, ok := queryAmount(ctx)
	if !ok {
		return
	}

	net, err := r.Ledger.CalculateWithdrawalAmount(ctx, gross)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, Amount{Amount: decimal.FromUint64(net)})
	default:
		fail(ctx, err)
	}
}

func (r *Router) isOperator(ctx *gin.Context) {
	operator, ok := paramPrincipal(ctx)
	if !ok {
		return
	}

	authorized, err := r.Ledger.IsAuthorizedOperator(ctx, operator)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, Check{Ok: authorized})
	default:
		fail(ctx, err)
	}
}

// admin wraps an owner-only configuration call answering with the updated settings
func (r *Router) admin(call func(ctx *gin.Context) error) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		err := call(ctx)
		if err != nil {
			fail(ctx, err)
			return
		}
		r.ledgerSettings(ctx)
	}
}

func (r *Router) configureSbtcContract(ctx *gin.Context) (err error) {
	var req Contract
	err = ctx.ShouldBindJSON(&req)
	if err != nil {
		return badRequest(err)
	}
	return r.Ledger.ConfigureSbtcContract(ctx, sender(ctx), req.Contract)
}

func (r *Router) disableSbtcIntegration(ctx *gin.Context) (err error) {
	return r.Ledger.DisableSbtcIntegration(ctx, sender(ctx))
}

func (r *Router) setPaymentProcessor(ctx *gin.Context) (err error) {
	var req Principal
	err = ctx.ShouldBindJSON(&req)
	if err != nil {
		return badRequest(err)
	}
	return r.Ledger.SetPaymentProcessor(ctx, sender(ctx), chain.Principal(req.Principal))
}

func (r *Router) updateConversionRate(ctx *gin.Context) (err error) {
	var req Rate
	err = ctx.ShouldBindJSON(&req)
	if err != nil {
		return badRequest(err)
	}
	return r.Ledger.UpdateConversionRate(ctx, sender(ctx), req.Rate)
}

func (r *Router) updateMaxSlippage(ctx *gin.Context) (err error) {
	var req Rate
	err = ctx.ShouldBindJSON(&req)
	if err != nil {
		return badRequest(err)
	}
	return r.Ledger.UpdateMaxSlippage(ctx, sender(ctx), req.Rate)
}

func (r *Router) updateFees(ctx *gin.Context) (err error) {
	var req Fees
	err = ctx.ShouldBindJSON(&req)
	if err != nil {
		return badRequest(err)
	}
	withdrawalFee, err := req.WithdrawalFee.ToUint64()
	if err != nil {
		return err
	}
	depositFee, err := req.DepositFee.ToUint64()
	if err != nil {
		return err
	}
	return r.Ledger.UpdateFees(ctx, sender(ctx), withdrawalFee, depositFee)
}

func (r *Router) addOperator(ctx *gin.Context) (err error) {
	var req Principal
	err = ctx.ShouldBindJSON(&req)
	if err != nil {
		return badRequest(err)
	}
	return r.Ledger.AddAuthorizedOperator(ctx, sender(ctx), chain.Principal(req.Principal))
}

func (r *Router) removeOperator(ctx *gin.Context) (err error) {
	return r.Ledger.RemoveAuthorizedOperator(ctx, sender(ctx), chain.Principal(ctx.Param(PrincipalParam)))
}

func (r *Router) registerEscrow(public, authenticated gin.IRouter) {
	public.GET("/settings", r.ledgerSettings)
	public.GET("/total-locked", r.totalLocked)
	public.GET(DepositsPathWithId, r.escrowDeposit)
	public.GET(LedgerBalancePath, r.ledgerBalance)
	public.GET(LedgerBalancePath+WithdrawalsPath, r.withdrawals)
	public.GET("/conversion-rate", r.conversionRate)
	public.GET(WithdrawalsPathWithId, r.withdrawal)
	public.GET(ConversionsPathWithId, r.conversion)
	public.GET(OperatorsPathWithId, r.isOperator)
	public.GET("/fees/deposit", r.depositAmount)
	public.GET("/fees/withdrawal", r.withdrawalAmount)

	authenticated.POST(DepositsPath, r.deposit)
	authenticated.POST(DepositsPathWithId+"/release", r.release)
	authenticated.POST(DepositsPathWithId+"/refund", r.refund)
	authenticated.POST(WithdrawalsPath, r.requestWithdrawal)
	authenticated.POST(WithdrawalsPathWithId+"/process", r.processWithdrawal)
	authenticated.POST(WithdrawalsPathWithId+ClaimPath, r.claim(r.Ledger.ClaimWithdrawal))
	authenticated.DELETE(WithdrawalsPathWithId+ClaimPath, r.claim(r.Ledger.ReleaseWithdrawalClaim))
	authenticated.POST(ConversionsPath, r.convert)

	authenticated.PUT("/sbtc-contract", r.admin(r.configureSbtcContract))
	authenticated.DELETE("/sbtc-contract", r.admin(r.disableSbtcIntegration))
	authenticated.PUT("/payment-processor", r.admin(r.setPaymentProcessor))
	authenticated.PUT("/conversion-rate", r.admin(r.updateConversionRate))
	authenticated.PUT("/max-slippage", r.admin(r.updateMaxSlippage))
	authenticated.PUT("/fees", r.admin(r.updateFees))
	authenticated.POST(OperatorsPath, r.admin(r.addOperator))
	authenticated.DELETE(OperatorsPathWithId, r.admin(r.removeOperator))
}
