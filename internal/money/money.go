// Package money provides a fixed-point currency amount in integer minor units.
package money

import "fmt"

// Money is an immutable amount of a single currency. The zero value is zero
// units of the empty currency; use New for domain amounts so the currency code
// travels with the cents.
type Money struct {
	Cents    int64
	Currency string
}

func New(cents int64, currency string) Money {
	return Money{Cents: cents, Currency: currency}
}

func Zero(currency string) Money {
	return Money{Currency: currency}
}

// SameCurrency reports whether arithmetic between m and other is defined.
func (m Money) SameCurrency(other Money) bool {
	return m.Currency == other.Currency
}

// Add returns m + other. Callers must guarantee matching currencies; a
// mismatched operand leaves m unchanged, which keeps ledger math from
// silently mixing currencies.
func (m Money) Add(other Money) Money {
	if !m.SameCurrency(other) {
		return m
	}
	return Money{Cents: m.Cents + other.Cents, Currency: m.Currency}
}

// Sub returns m - other, with the same currency contract as Add.
func (m Money) Sub(other Money) Money {
	if !m.SameCurrency(other) {
		return m
	}
	return Money{Cents: m.Cents - other.Cents, Currency: m.Currency}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{Cents: -m.Cents, Currency: m.Currency}
}

// Min returns the smaller of m and other.
func (m Money) Min(other Money) Money {
	if other.Cents < m.Cents {
		return other
	}
	return m
}

// Cmp returns -1, 0 or 1 comparing m against other by minor units.
func (m Money) Cmp(other Money) int {
	switch {
	case m.Cents < other.Cents:
		return -1
	case m.Cents > other.Cents:
		return 1
	default:
		return 0
	}
}

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsPositive() bool { return m.Cents > 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

func (m Money) String() string {
	sign := ""
	if m.Cents < 0 {
		sign = "-"
	}
	c := abs(m.Cents)
	return fmt.Sprintf("%s%d.%02d %s", sign, c/100, c%100, m.Currency)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
