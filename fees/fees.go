// Package fees holds the pure arithmetic shared by the payment processor and the escrow ledger.
// Rates are expressed in basis points; fixed fees in satoshis.
package fees

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// Denominator of every basis point rate
	BasisPoints = 10_000
	// Upper bound of the platform fee rate (10%)
	MaxPlatformFeeRate = 1_000
	// Satoshis per sBTC. Conversion rates are expressed against this unit.
	ConversionUnit = 100_000_000
)

var (
	ErrInvalidRate        = errors.New("rate out of bounds")
	ErrInsufficientAmount = errors.New("amount does not cover the fee")
	ErrSlippageExceeded   = errors.New("slippage exceeded")
	ErrOverflow           = errors.New("amount overflows")
)

var (
	basisPoints    = decimal.NewFromInt(BasisPoints)
	conversionUnit = decimal.NewFromInt(ConversionUnit)
)

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// floorDiv returns floor(a*b/div) as uint64
func floorDiv(a, b uint64, div decimal.Decimal) (v uint64, err error) {
	quotient, _ := fromUint64(a).Mul(fromUint64(b)).QuoRem(div, 0)
	asInt := quotient.BigInt()
	if !asInt.IsUint64() {
		return 0, ErrOverflow
	}
	return asInt.Uint64(), nil
}

// ValidatePlatformFeeRate checks rate against MaxPlatformFeeRate
func ValidatePlatformFeeRate(rate uint64) (err error) {
	if rate > MaxPlatformFeeRate {
		return ErrInvalidRate
	}
	return nil
}

// PlatformFee is floor(amount * rate / 10000). The result never exceeds amount for valid rates.
func PlatformFee(amount, rate uint64) (fee uint64) {
	// amount*rate/10000 <= amount whenever rate <= 10000, so the quotient always fits
	fee, _ = floorDiv(amount, rate, basisPoints)
	return fee
}

// NetOfFixedFee discounts a fixed per-operation fee. The net amount is always positive.
func NetOfFixedFee(gross, fee uint64) (net uint64, err error) {
	if gross <= fee {
		return 0, ErrInsufficientAmount
	}
	return gross - fee, nil
}

// Convert applies rate (satoshis per ConversionUnit) to amount and discounts fee
func Convert(amount, rate, fee uint64) (net uint64, err error) {
	converted, err := floorDiv(amount, rate, conversionUnit)
	if err != nil {
		return 0, err
	}
	return NetOfFixedFee(converted, fee)
}

// CheckSlippage fails when actual deviates from expected by more than maxSlippage basis points of expected
func CheckSlippage(expected, actual, maxSlippage uint64) (err error) {
	var deviation uint64
	if expected > actual {
		deviation = expected - actual
	} else {
		deviation = actual - expected
	}

	tolerance, err := floorDiv(expected, maxSlippage, basisPoints)
	if err != nil {
		return err
	}

	if deviation > tolerance {
		return ErrSlippageExceeded
	}
	return nil
}
