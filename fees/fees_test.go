package fees_test

import (
	_ "embed"
	"fmt"
	"testing"

	"anarchy.ttfm/sbtcpay/fees"
	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

//go:embed tests/fees.yaml
var feesTests []byte

type (
	PlatformTest struct {
		Amount uint64 `yaml:"amount"`
		Rate   uint64 `yaml:"rate"`
		Fee    uint64 `yaml:"fee"`
	}
	FixedTest struct {
		Gross uint64 `yaml:"gross"`
		Fee   uint64 `yaml:"fee"`
		Net   uint64 `yaml:"net"`
		Fails bool   `yaml:"fails"`
	}
	ConversionTest struct {
		Amount      uint64 `yaml:"amount"`
		Rate        uint64 `yaml:"rate"`
		Fee         uint64 `yaml:"fee"`
		Expected    uint64 `yaml:"expected"`
		MaxSlippage uint64 `yaml:"max-slippage"`
		Net         uint64 `yaml:"net"`
		Fails       bool   `yaml:"fails"`
		Slippage    bool   `yaml:"slippage"`
	}
	Tests struct {
		Platform   []PlatformTest   `yaml:"platform"`
		Fixed      []FixedTest      `yaml:"fixed"`
		Conversion []ConversionTest `yaml:"conversion"`
	}
)

func Test_Fees(t *testing.T) {
	var tests Tests
	err := yaml.Unmarshal(feesTests, &tests)
	if !assert.Nil(t, err, "failed to load tests") {
		return
	}

	t.Run("PlatformFee", func(t *testing.T) {
		for _, test := range tests.Platform {
			t.Run(fmt.Sprintf("%+v", test), func(t *testing.T) {
				assertions := assert.New(t)
				assertions.Equal(test.Fee, fees.PlatformFee(test.Amount, test.Rate))
			})
		}
	})

	t.Run("NetOfFixedFee", func(t *testing.T) {
		for _, test := range tests.Fixed {
			t.Run(fmt.Sprintf("%+v", test), func(t *testing.T) {
				assertions := assert.New(t)

				net, err := fees.NetOfFixedFee(test.Gross, test.Fee)
				if test.Fails {
					assertions.ErrorIs(err, fees.ErrInsufficientAmount)
					return
				}
				assertions.Nil(err)
				assertions.Equal(test.Net, net)
			})
		}
	})

	t.Run("Conversion", func(t *testing.T) {
		for _, test := range tests.Conversion {
			t.Run(fmt.Sprintf("%+v", test), func(t *testing.T) {
				assertions := assert.New(t)

				net, err := fees.Convert(test.Amount, test.Rate, test.Fee)
				if test.Fails {
					assertions.ErrorIs(err, fees.ErrInsufficientAmount)
					return
				}
				assertions.Nil(err)
				assertions.Equal(test.Net, net)

				err = fees.CheckSlippage(test.Expected, net, test.MaxSlippage)
				if test.Slippage {
					assertions.ErrorIs(err, fees.ErrSlippageExceeded)
				} else {
					assertions.Nil(err)
				}
			})
		}
	})

	t.Run("ValidatePlatformFeeRate", func(t *testing.T) {
		assertions := assert.New(t)

		assertions.Nil(fees.ValidatePlatformFeeRate(0))
		assertions.Nil(fees.ValidatePlatformFeeRate(fees.MaxPlatformFeeRate))
		assertions.ErrorIs(fees.ValidatePlatformFeeRate(fees.MaxPlatformFeeRate+1), fees.ErrInvalidRate)
	})

	t.Run("Overflow", func(t *testing.T) {
		assertions := assert.New(t)

		_, err := fees.Convert(^uint64(0), 2*fees.ConversionUnit, 0)
		assertions.ErrorIs(err, fees.ErrOverflow)
	})
}
