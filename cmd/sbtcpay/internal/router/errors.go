package router

import (
	"errors"
	"net/http"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/decimal"
	"anarchy.ttfm/sbtcpay/escrow"
	"anarchy.ttfm/sbtcpay/payments"
	"github.com/gin-gonic/gin"
)

// HTTP status of every contract error code
var statusByCode = map[uint32]int{
	100: http.StatusForbidden,
	101: http.StatusBadRequest,
	102: http.StatusNotFound,
	103: http.StatusConflict,
	104: http.StatusUnprocessableEntity,
	106: http.StatusGone,
	107: http.StatusBadRequest,

	300: http.StatusForbidden,
	301: http.StatusBadRequest,
	302: http.StatusUnprocessableEntity,
	303: http.StatusBadGateway,
	304: http.StatusBadRequest,
	305: http.StatusNotFound,
	306: http.StatusConflict,
	307: http.StatusForbidden,
	308: http.StatusBadRequest,
	309: http.StatusUnprocessableEntity,
}

// fail answers with the status matching err. Contract errors carry their code.
func fail(ctx *gin.Context, err error) {
	var (
		contractErr *chain.Error
		requestErr  *requestError
	)
	switch {
	case errors.As(err, &contractErr):
		status, ok := statusByCode[contractErr.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		ctx.AbortWithStatusJSON(status, Error{Code: contractErr.Code, Error: contractErr.Message})
	case errors.As(err, &requestErr):
		ctx.AbortWithStatusJSON(http.StatusBadRequest, Error{Error: err.Error()})
	case errors.Is(err, payments.ErrNotDeployed), errors.Is(err, escrow.ErrNotDeployed):
		ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, Error{Error: err.Error()})
	case errors.Is(err, chain.ErrInvalidPrincipal),
		errors.Is(err, decimal.ErrNegative),
		errors.Is(err, decimal.ErrPrecision),
		errors.Is(err, decimal.ErrOverflow):
		ctx.AbortWithStatusJSON(http.StatusBadRequest, Error{Error: err.Error()})
	default:
		ctx.Error(err)
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, Error{Error: err.Error()})
	}
}

// requestError is a malformed request body
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{err: err}
}
