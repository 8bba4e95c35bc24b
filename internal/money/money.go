// Package money provides the fixed-point monetary and rate types used by every
// calculation in the engine. Values are exact decimals; there is no conversion
// from or to binary floating point. Rounding happens only when a caller asks
// for it with Round, which is reserved for values that become reportable.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits of a reportable amount (cents).
const Scale = 2

// ErrMalformed is returned when a monetary or rate string cannot be parsed.
var ErrMalformed = errors.New("malformed decimal")

// Money is an exact decimal amount of US dollars. Intermediate results keep
// full precision; Round produces the cent-exact reportable value.
//
// The zero value is $0.
type Money struct {
	d decimal.Decimal
}

// Zero is $0.00.
var Zero = Money{}

// Parse reads an amount such as "30000", "-12.5" or "1999.99". At most two
// fractional digits are accepted because inputs are always whole cents.
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("%w: empty amount", ErrMalformed)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	if d.Exponent() < -Scale && !d.Equal(d.Round(Scale)) {
		return Zero, fmt.Errorf("%w: %q has more than %d fractional digits", ErrMalformed, s, Scale)
	}
	return Money{d: d}, nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromCents builds an amount from an integer number of cents.
func FromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -Scale)}
}

// FromDollars builds an amount from a whole number of dollars.
func FromDollars(dollars int64) Money {
	return Money{d: decimal.NewFromInt(dollars)}
}

// FromDecimal wraps an exact decimal. It is the bridge for calculators that
// need operations beyond the Money method set (powers, ratios).
func FromDecimal(d decimal.Decimal) Money {
	return Money{d: d}
}

// Sum adds all amounts.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Decimal exposes the exact underlying value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// Add, Sub, Neg and Abs are exact; none of them rounds.
func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money { return Money{d: m.d.Neg()} }
func (m Money) Abs() Money { return Money{d: m.d.Abs()} }

// MulRate multiplies by a rate without rounding.
func (m Money) MulRate(r Rate) Money { return Money{d: m.d.Mul(r.d)} }

// Mul multiplies by an integer count.
func (m Money) Mul(n int64) Money { return Money{d: m.d.Mul(decimal.NewFromInt(n))} }

// Div splits the amount into n equal parts without rounding. It panics on a
// zero divisor; callers validate term lengths before dividing.
func (m Money) Div(n int64) Money {
	if n == 0 {
		panic("money: division by zero")
	}
	return Money{d: m.d.Div(decimal.NewFromInt(n))}
}

// Round rounds half away from zero to whole cents. For non-negative amounts
// this is round-half-up.
func (m Money) Round() Money { return Money{d: m.d.Round(Scale)} }

// ClampZero returns m, or $0 when m is negative.
func (m Money) ClampZero() Money {
	if m.d.IsNegative() {
		return Zero
	}
	return m
}

// Sign predicates.
func (m Money) IsZero() bool { return m.d.IsZero() }
func (m Money) IsNegative() bool { return m.d.IsNegative() }
func (m Money) IsPositive() bool { return m.d.IsPositive() }

// Comparisons on the exact, unrounded values.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }
func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }
func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }
func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }
func (m Money) LessOrEqual(o Money) bool { return m.d.LessThanOrEqual(o.d) }
func (m Money) GreaterOrEqual(o Money) bool { return m.d.GreaterThanOrEqual(o.d) }

// String renders the cent-rounded value with exactly two fractional digits.
func (m Money) String() string { return m.d.StringFixed(Scale) }

// Exact renders the unrounded value.
func (m Money) Exact() string { return m.d.String() }

// MarshalJSON emits the amount as a quoted decimal string, never a number.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts only quoted decimal strings. JSON numbers are
// rejected because they are routinely decoded as binary floats upstream.
func (m *Money) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = Zero
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: amounts must be decimal strings, got %s", ErrMalformed, string(b))
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
