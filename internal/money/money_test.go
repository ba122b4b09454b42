package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse("12.50", "cad")
	require.NoError(t, err)
	assert.Equal(t, Money{Amount: 1250, Currency: "CAD"}, m)

	m, err = Parse("1500", "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), m.Amount)

	_, err = Parse("1.005", "CAD")
	assert.Error(t, err)

	_, err = Parse("abc", "CAD")
	assert.Error(t, err)
}

func TestStringAndMajor(t *testing.T) {
	assert.Equal(t, "10.05 CAD", New(1005, "CAD").String())
	assert.Equal(t, "300 JPY", New(300, "JPY").String())
	assert.InDelta(t, 10.05, New(1005, "CAD").Major(), 1e-9)
}

func TestMul(t *testing.T) {
	m, err := New(1005, "CAD").Mul(3)
	require.NoError(t, err)
	assert.Equal(t, int64(3015), m.Amount)

	_, err = New(math.MaxInt64/2+1, "CAD").Mul(2)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = New(100, "CAD").Mul(-1)
	assert.ErrorIs(t, err, ErrNegativeQuantity)
}

func TestAdd(t *testing.T) {
	sum, err := New(100, "CAD").Add(New(250, "CAD"))
	require.NoError(t, err)
	assert.Equal(t, int64(350), sum.Amount)

	_, err = New(100, "CAD").Add(New(100, "USD"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = New(math.MaxInt64, "CAD").Add(New(1, "CAD"))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestBreak(t *testing.T) {
	unit := New(2500, "CAD")

	b, err := Break(unit, 1, nil, false)
	require.NoError(t, err)
	assert.Nil(t, b.Subtotal)
	assert.Equal(t, int64(2500), b.Total.Amount)

	b, err = Break(unit, 3, nil, false)
	require.NoError(t, err)
	require.NotNil(t, b.Subtotal)
	assert.Equal(t, int64(7500), b.Subtotal.Amount)
	assert.Equal(t, int64(7500), b.Total.Amount)

	b, err = Break(unit, 1, nil, true)
	require.NoError(t, err)
	assert.NotNil(t, b.Subtotal)

	ship := New(700, "CAD")
	b, err = Break(unit, 2, &ship, false)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), b.Subtotal.Amount)
	assert.Equal(t, int64(5700), b.Total.Amount)
	assert.Equal(t, int64(700), b.Shipping.Amount)

	_, err = Break(unit, 0, nil, false)
	assert.Error(t, err)
}

// Totals are exact integer multiples for every quantity.
func TestBreakIntegrity(t *testing.T) {
	unit := New(333, "CAD")
	for q := int64(1); q <= 500; q++ {
		b, err := Break(unit, q, nil, false)
		require.NoError(t, err)
		assert.Equal(t, 333*q, b.Total.Amount)
	}
}
