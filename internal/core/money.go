// Package core holds the domain types shared by the ledger and its adapters.
//
// Amounts are kept as integer cents; decimal strings are only used at the
// edges (request parsing, JSON, spreadsheet export).
package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a signed amount in cents.
type Money struct {
	Cents int64
}

var maxCents = decimal.New(1<<63-1, 0)

// Cents builds a Money value from minor units.
func Cents(c int64) Money {
	return Money{Cents: c}
}

// ParseMoney converts a decimal string to Money with half-up rounding on the
// third decimal place. Both dot (12.34) and comma (12,34) separators are
// accepted, and so is a leading sign.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234
//	ParseMoney("12,345") -> 1235
//	ParseMoney("-5")     -> -500
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, fmt.Errorf("%w: empty amount", ErrInvalidArgument)
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: malformed amount %q", ErrInvalidArgument, s)
	}
	return FromDecimal(d)
}

// ParseAmount is ParseMoney restricted to strictly positive values, the shape
// of every transaction amount and spend limit.
func ParseAmount(s string) (Money, error) {
	m, err := ParseMoney(s)
	if err != nil {
		return Money{}, err
	}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// FromDecimal rounds d to cents.
func FromDecimal(d decimal.Decimal) (Money, error) {
	shifted := d.Round(2).Shift(2)
	if shifted.Abs().GreaterThan(maxCents) {
		return Money{}, fmt.Errorf("%w: amount out of range", ErrInvalidArgument)
	}
	return Money{Cents: shifted.IntPart()}, nil
}

// Validate reports whether m is usable as a transaction amount.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

// CheckedAdd is Add that fails with ErrBalanceOverflow instead of wrapping.
func (m Money) CheckedAdd(o Money) (Money, error) {
	sum := m.Cents + o.Cents
	if (o.Cents > 0 && sum < m.Cents) || (o.Cents < 0 && sum > m.Cents) {
		return Money{}, ErrBalanceOverflow
	}
	return Money{Cents: sum}, nil
}

// Ptr returns a pointer to a copy of m, for optional fields.
func (m Money) Ptr() *Money       { return &m }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsPositive() bool { return m.Cents > 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

// GreaterThan reports m > o.
func (m Money) GreaterThan(o Money) bool { return m.Cents > o.Cents }

// Decimal returns the exact decimal value of m.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders m with exactly two decimals, e.g. "-12.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON encodes Money as a decimal string so clients never see float
// rounding artefacts.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
