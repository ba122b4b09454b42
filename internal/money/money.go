// Package money keeps amounts as integer minor units. Decimal values only
// appear at the edges: parsing user input and handing amounts to gateways
// that want major units.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	ErrOverflow         = errors.New("money: amount overflows int64")
	ErrNegativeQuantity = errors.New("money: quantity must be positive")
)

// zeroDecimal lists ISO 4217 currencies without a minor unit.
var zeroDecimal = map[string]bool{
	"JPY": true,
	"KRW": true,
	"CLP": true,
	"VND": true,
	"ISK": true,
}

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}
}

// Exponent is the number of minor-unit digits of a currency.
func Exponent(currency string) int32 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// Parse reads a major-unit string such as "12.50".
func Parse(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	exp := Exponent(currency)
	minor := d.Shift(exp)
	if !minor.Equal(minor.Truncate(0)) {
		return Money{}, fmt.Errorf("money: %q has more than %d decimals", s, exp)
	}
	if !minor.IsInteger() || minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || minor.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return Money{}, ErrOverflow
	}
	return New(minor.IntPart(), currency), nil
}

func (m Money) IsZero() bool { return m.Amount == 0 }

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -Exponent(m.Currency))
}

// Major returns the amount in major units as a float for gateway SDKs that
// only accept floats. Never use the result for arithmetic.
func (m Money) Major() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

func (m Money) String() string {
	return m.Decimal().StringFixed(Exponent(m.Currency)) + " " + m.Currency
}

func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	sum := m.Amount + o.Amount
	if (o.Amount > 0 && sum < m.Amount) || (o.Amount < 0 && sum > m.Amount) {
		return Money{}, ErrOverflow
	}
	return Money{Amount: sum, Currency: m.Currency}, nil
}

func (m Money) Mul(q int64) (Money, error) {
	if q < 0 {
		return Money{}, ErrNegativeQuantity
	}
	if q != 0 && m.Amount != 0 {
		if m.Amount > math.MaxInt64/q || m.Amount < math.MinInt64/q {
			return Money{}, ErrOverflow
		}
	}
	return Money{Amount: m.Amount * q, Currency: m.Currency}, nil
}
