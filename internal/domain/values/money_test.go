package values

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoneyRejectsUnknownCurrency(t *testing.T) {
	_, err := NewMoney(decimal.NewFromInt(100), "XYZ")
	assert.Error(t, err)
}

func TestMoneySub(t *testing.T) {
	a := MustNewMoneyFromFloat(150, EUR)
	b := MustNewMoneyFromFloat(40, EUR)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.InDelta(t, 110, diff.Float64(), 1e-9)
}

func TestMoneySubCurrencyMismatch(t *testing.T) {
	a := MustNewMoneyFromFloat(150, EUR)
	b := MustNewMoneyFromFloat(40, USD)

	_, err := a.Sub(b)
	assert.Error(t, err)
}

func TestMoneyRatioTo(t *testing.T) {
	awarded := MustNewMoneyFromFloat(93000, EUR)
	estimated := MustNewMoneyFromFloat(100000, EUR)

	ratio, ok := awarded.RatioTo(estimated)
	require.True(t, ok)
	assert.InDelta(t, 0.93, ratio, 1e-9)
}

func TestMoneyRatioToZeroDivisor(t *testing.T) {
	awarded := MustNewMoneyFromFloat(93000, EUR)

	_, ok := awarded.RatioTo(Zero(EUR))
	assert.False(t, ok)
}

func TestMoneyString(t *testing.T) {
	m := MustNewMoneyFromFloat(1234.5, EUR)
	assert.Equal(t, "1234.50 EUR", m.String())
}
