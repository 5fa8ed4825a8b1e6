package precision

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		v, step, want string
	}{
		{"50003", "5", "50005"},
		{"50002", "5", "50000"},
		{"0.123456", "0.01", "0.12"},
		{"0.125", "0.01", "0.13"},
		{"100", "0", "100"},
	}
	for _, tt := range tests {
		got := RoundToStep(d(tt.v), d(tt.step))
		assert.True(t, got.Equal(d(tt.want)), "%s/%s: got %s want %s", tt.v, tt.step, got, tt.want)
	}
}

func TestFloorToStep(t *testing.T) {
	assert.True(t, FloorToStep(d("0.019"), d("0.01")).Equal(d("0.01")))
	assert.True(t, FloorToStep(d("1.999"), d("0.001")).Equal(d("1.999")))
	assert.True(t, FloorToStep(d("0.009"), d("0.01")).IsZero())
}

func TestDeviation(t *testing.T) {
	assert.True(t, Deviation(d("100"), d("99")).Equal(d("0.01")))
	assert.True(t, Deviation(d("100"), d("100")).IsZero())
	assert.True(t, Deviation(decimal.Zero, decimal.Zero).IsZero())
	assert.True(t, Deviation(decimal.Zero, d("1")).Equal(d("1")))
}

func TestNormalize(t *testing.T) {
	m := Market{
		Symbol:      "BTC/USDT",
		PriceStep:   d("0.5"),
		SizeStep:    d("0.001"),
		MinNotional: d("10"),
	}

	price, qty, err := Normalize(m, d("50000.3"), d("0.0155"), d("0.05"))
	require.NoError(t, err)
	assert.True(t, price.Equal(d("50000.5")))
	assert.True(t, qty.Equal(d("0.015")))
}

func TestNormalize_MarketOrderSkipsPrice(t *testing.T) {
	m := Market{Symbol: "BTC/USDT", PriceStep: d("0.5"), SizeStep: d("0.001")}

	price, qty, err := Normalize(m, decimal.Zero, d("0.01"), d("0.001"))
	require.NoError(t, err)
	assert.True(t, price.IsZero())
	assert.True(t, qty.Equal(d("0.01")))
}

func TestNormalize_Rejections(t *testing.T) {
	m := Market{
		Symbol:      "BTC/USDT",
		PriceStep:   d("100"),
		SizeStep:    d("0.01"),
		MinNotional: d("10"),
	}

	// Price drift beyond tolerance.
	_, _, err := Normalize(m, d("1030"), d("1"), d("0.001"))
	assert.Error(t, err)

	// Quantity below lot size.
	_, _, err = Normalize(m, d("1000"), d("0.001"), d("0.5"))
	assert.Error(t, err)

	// Below minimum notional.
	_, _, err = Normalize(m, d("100"), d("0.01"), d("0.5"))
	assert.Error(t, err)
}
