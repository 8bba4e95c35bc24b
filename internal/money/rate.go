package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Rate is an exact decimal fraction such as 0.0725 for 7.25%. Tax rates,
// interest rates and money factors all use it.
type Rate struct {
	d decimal.Decimal
}

// ZeroRate is 0%.
var ZeroRate = Rate{}

// ParseRate reads a fraction such as "0.0725".
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroRate, fmt.Errorf("%w: empty rate", ErrMalformed)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroRate, fmt.Errorf("%w: rate %q", ErrMalformed, s)
	}
	return Rate{d: d}, nil
}

// MustRate is ParseRate for literals known to be valid.
func MustRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// ParsePercent reads a percentage such as "7.25" and returns 0.0725.
func ParsePercent(s string) (Rate, error) {
	r, err := ParseRate(s)
	if err != nil {
		return ZeroRate, err
	}
	return Rate{d: r.d.Div(hundred)}, nil
}

// RateFromDecimal wraps an exact decimal fraction.
func RateFromDecimal(d decimal.Decimal) Rate { return Rate{d: d} }

// SumRates adds all rates.
func SumRates(rates ...Rate) Rate {
	total := ZeroRate
	for _, r := range rates {
		total = total.Add(r)
	}
	return total
}

// Decimal exposes the exact underlying fraction.
func (r Rate) Decimal() decimal.Decimal { return r.d }

// Add and Sub combine rates exactly, e.g. stacked jurisdiction levels.
func (r Rate) Add(o Rate) Rate { return Rate{d: r.d.Add(o.d)} }
func (r Rate) Sub(o Rate) Rate { return Rate{d: r.d.Sub(o.d)} }

// Scale multiplies the rate by an integer, e.g. money factor × 2400.
func (r Rate) Scale(n int64) Rate { return Rate{d: r.d.Mul(decimal.NewFromInt(n))} }

// Per divides the rate into n periods, e.g. an annual rate over 12 months.
func (r Rate) Per(n int64) Rate {
	if n == 0 {
		panic("money: division by zero")
	}
	return Rate{d: r.d.Div(decimal.NewFromInt(n))}
}

// Percent returns the rate expressed in percent (0.0725 -> 7.25).
func (r Rate) Percent() decimal.Decimal { return r.d.Mul(hundred) }

// Sign and comparison predicates.
func (r Rate) IsZero() bool { return r.d.IsZero() }
func (r Rate) IsNegative() bool { return r.d.IsNegative() }
func (r Rate) IsPositive() bool { return r.d.IsPositive() }
func (r Rate) Cmp(o Rate) int { return r.d.Cmp(o.d) }
func (r Rate) Equal(o Rate) bool { return r.d.Equal(o.d) }
func (r Rate) LessThan(o Rate) bool { return r.d.LessThan(o.d) }
func (r Rate) GreaterThan(o Rate) bool { return r.d.GreaterThan(o.d) }

// String renders the exact fraction.
func (r Rate) String() string { return r.d.String() }

// MarshalJSON emits the rate as a quoted decimal string.
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.d.String())
}

// UnmarshalJSON accepts only quoted decimal strings; null is 0%.
func (r *Rate) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = ZeroRate
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: rates must be decimal strings, got %s", ErrMalformed, string(b))
	}
	parsed, err := ParseRate(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
