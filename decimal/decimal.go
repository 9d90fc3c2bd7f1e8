// Package decimal renders satoshi amounts as sBTC strings and parses them back.
package decimal

import (
	"encoding/json"
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimal places of one sBTC
const Places = 8

var (
	ErrNegative  = errors.New("negative amount")
	ErrPrecision = errors.New("amount has more than 8 decimal places")
	ErrOverflow  = errors.New("amount overflows")
)

type Decimal struct {
	Value decimal.Decimal
}

func FromUint64(v uint64) (d Decimal) {
	d.FromUint64(v)
	return d
}

// FromUint64 sets d to v satoshis
func (d *Decimal) FromUint64(v uint64) {
	d.Value = decimal.NewFromBigInt(new(big.Int).SetUint64(v), -Places)
}

// ToUint64 returns d in satoshis
func (d *Decimal) ToUint64() (v uint64, err error) {
	if d.Value.IsNegative() {
		return 0, ErrNegative
	}

	sats := d.Value.Shift(Places)
	if !sats.Equal(sats.Truncate(0)) {
		return 0, ErrPrecision
	}

	asInt := sats.BigInt()
	if !asInt.IsUint64() {
		return 0, ErrOverflow
	}
	return asInt.Uint64(), nil
}

func (d *Decimal) FromString(s string) (err error) {
	d.Value, err = decimal.NewFromString(s)
	if err != nil {
		return err
	}
	_, err = d.ToUint64()
	return err
}

func (d Decimal) String() (s string) {
	return d.Value.StringFixed(Places)
}

var (
	_ json.Unmarshaler = (*Decimal)(nil)
	_ json.Marshaler   = Decimal{}
)

func (d *Decimal) UnmarshalJSON(b []byte) (err error) {
	var asString string
	err = json.Unmarshal(b, &asString)
	if err != nil {
		return err
	}

	return d.FromString(asString)
}

func (d Decimal) MarshalJSON() (b []byte, err error) {
	return []byte("\"" + d.String() + "\""), nil
}
