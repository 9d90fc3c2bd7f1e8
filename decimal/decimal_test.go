package decimal_test

import (
	"encoding/json"
	"testing"

	"anarchy.ttfm/sbtcpay/decimal"
	"github.com/stretchr/testify/assert"
)

const sats = 100_000_000

func Test_Decimal(t *testing.T) {
	t.Run("Succeed", func(t *testing.T) {
		type Test struct {
			Reference string
			Expect    uint64
		}
		tests := []Test{
			{Reference: `10.00000001`, Expect: 10*sats + 1},
			{Reference: `0`, Expect: 0},
			{Reference: `0.0`, Expect: 0},
			{Reference: `1`, Expect: 1 * sats},
			{Reference: `1.00000000`, Expect: 1 * sats},
			{Reference: `0.00000001`, Expect: 1},
			{Reference: `0.0000001`, Expect: 10},
			{Reference: `0.1`, Expect: 10_000_000},
			{Reference: `0.12345678`, Expect: 12_345_678},
			{Reference: `21000000`, Expect: 21_000_000 * sats},
		}

		for _, test := range tests {
			t.Run(test.Reference, func(t *testing.T) {
				assertions := assert.New(t)

				var value decimal.Decimal
				err := json.Unmarshal([]byte(`"`+test.Reference+`"`), &value)
				assertions.Nil(err, "failed to unmarshal")

				amount, err := value.ToUint64()
				assertions.Nil(err, "failed to convert")
				assertions.Equal(test.Expect, amount)

				final := decimal.FromUint64(amount)
				again, err := final.ToUint64()
				assertions.Nil(err, "failed to convert back")
				assertions.Equal(amount, again)
			})
		}
	})

	t.Run("Fail", func(t *testing.T) {
		for reference, expect := range map[string]error{
			`-1`:                    decimal.ErrNegative,
			`0.000000001`:           decimal.ErrPrecision,
			`184467440737.09551616`: decimal.ErrOverflow,
		} {
			t.Run(reference, func(t *testing.T) {
				var value decimal.Decimal
				err := value.FromString(reference)
				assert.ErrorIs(t, err, expect)
			})
		}

		var value decimal.Decimal
		assert.NotNil(t, value.FromString("abc"))
	})

	t.Run("Marshal", func(t *testing.T) {
		assertions := assert.New(t)

		type Body struct {
			Amount decimal.Decimal `json:"amount"`
		}
		contents, err := json.Marshal(Body{Amount: decimal.FromUint64(97_500)})
		assertions.Nil(err, "failed to marshal")
		assertions.JSONEq(`{"amount":"0.00097500"}`, string(contents))
	})
}
