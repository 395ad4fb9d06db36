// Package money centralizes fixed-point decimal handling for every
// monetary and price-bearing value in tradecore. No package outside of
// money should perform arithmetic on a raw float64 that represents
// cash, price, quantity or fees; ingress always goes through FromString
// or FromFloat so the coercion point is explicit and auditable.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal is a fixed-point decimal value. It is a thin alias so call
// sites read as money.Decimal rather than reaching for the vendor type
// directly, and so the coercion helpers below are the only supported
// entry points into the type.
type Decimal = decimal.Decimal

// Zero is the additive identity.
var Zero = decimal.Zero

// FromString parses a decimal string. This is the preferred ingress
// path for any numeric value arriving from an exchange, the oracle, or
// a config file, per the "from_string(str(v))" discipline called out
// in the design notes.
func FromString(s string) (Decimal, error) {
	if s == "" {
		return Zero, fmt.Errorf("money: empty decimal string")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("money: invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// FromFloat converts a float64 into a Decimal. Every call site must be
// able to name where the float originated (JSON-decoded API payload,
// computed ratio, etc.) — this is not meant for chaining money math.
func FromFloat(f float64) Decimal {
	return decimal.NewFromFloat(f)
}

// New constructs a Decimal from an integer mantissa and an exponent,
// mirroring decimal.New for callers building constants.
func New(value int64, exp int32) Decimal {
	return decimal.New(value, exp)
}

// Must panics on a malformed decimal string; reserved for constants and
// config defaults evaluated at process bootstrap, never on the cycle
// path.
func Must(s string) Decimal {
	d, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi Decimal) Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// NullableString renders a pointer-to-Decimal as a SQL-safe driver
// value: nil stays nil, otherwise the decimal's string form.
func NullableString(d *Decimal) driver.Value {
	if d == nil {
		return nil
	}
	return d.String()
}
