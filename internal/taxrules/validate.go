package taxrules

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidBundle is returned when static data fails validation. A bundle is
// accepted wholesale or not at all.
var ErrInvalidBundle = errors.New("invalid rule bundle")

var one = decimal.NewFromInt(1)

// Validate checks a bundle for internal consistency and completeness: every
// implemented state classifies every category and carries the parameters its
// tax method needs, every postal code belongs to a known state, and every
// rate is a fraction in [0, 1).
func Validate(b *Bundle) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if b.Version == "" {
		fail("version is required")
	}

	states := make(map[string]StateRule, len(b.States))
	for _, s := range b.States {
		if len(s.State) != 2 {
			fail("state %q: code must be two letters", s.State)
			continue
		}
		if _, dup := states[s.State]; dup {
			fail("state %s: declared twice", s.State)
			continue
		}
		states[s.State] = s
		for _, err := range validateState(s) {
			fail("state %s: %w", s.State, err)
		}
	}

	zips := make(map[string]struct{}, len(b.Jurisdictions))
	for _, z := range b.Jurisdictions {
		if z.PostalCode == "" {
			fail("jurisdiction with empty postal code")
			continue
		}
		if _, dup := zips[z.PostalCode]; dup {
			fail("zip %s: declared twice", z.PostalCode)
			continue
		}
		zips[z.PostalCode] = struct{}{}
		if _, ok := states[z.State]; !ok {
			fail("zip %s: unknown state %q", z.PostalCode, z.State)
		}
		if len(z.Levels) == 0 {
			fail("zip %s: no rate levels", z.PostalCode)
		}
		stateLevels := 0
		for i, l := range z.Levels {
			if !l.Level.valid() {
				fail("zip %s level %d: unknown level %q", z.PostalCode, i, l.Level)
			}
			if l.Level == LevelState {
				stateLevels++
			}
			if !isFraction(l.Rate.Decimal()) {
				fail("zip %s level %d: rate %s outside [0, 1)", z.PostalCode, i, l.Rate)
			}
			if l.MaxTaxableAmount != nil && !l.MaxTaxableAmount.IsPositive() {
				fail("zip %s level %d: max_taxable_amount must be positive", z.PostalCode, i)
			}
		}
		if stateLevels > 1 {
			fail("zip %s: more than one state level", z.PostalCode)
		}
	}

	seen := make(map[pairKey]struct{}, len(b.Reciprocity.Pairs))
	if d := b.Reciprocity.Default; d != nil {
		if err := validatePolicy(*d); err != nil {
			fail("reciprocity default: %w", err)
		}
	}
	for _, p := range b.Reciprocity.Pairs {
		if p.Origin == "" || p.Destination == "" {
			fail("reciprocity pair %s->%s: both states are required", p.Origin, p.Destination)
			continue
		}
		if p.Origin == p.Destination {
			fail("reciprocity pair %s->%s: origin equals destination", p.Origin, p.Destination)
		}
		key := pairKey{p.Origin, p.Destination}
		if _, dup := seen[key]; dup {
			fail("reciprocity pair %s->%s: declared twice", p.Origin, p.Destination)
		}
		seen[key] = struct{}{}
		if err := validatePolicy(p); err != nil {
			fail("reciprocity pair %s->%s: %w", p.Origin, p.Destination, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidBundle, errors.Join(errs...))
	}
	return nil
}

func validateState(s StateRule) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch s.Status {
	case StatusStub:
		return nil
	case StatusImplemented:
	default:
		fail("unknown status %q", s.Status)
		return errs
	}

	if !s.Method.valid() {
		fail("unknown method %q", s.Method)
	}
	if s.Stacking != StackingStacked && s.Stacking != StackingCombined {
		fail("unknown stacking %q", s.Stacking)
	}
	if s.Rounding != RoundingTotal && s.Rounding != RoundingPerLine {
		fail("unknown rounding %q", s.Rounding)
	}
	if s.LeaseTaxMethod != LeasePaymentBased && s.LeaseTaxMethod != LeaseUpfrontOnCapCost {
		fail("unknown lease tax method %q", s.LeaseTaxMethod)
	}
	if s.TradeIn.Cap != nil && !s.TradeIn.Cap.IsPositive() {
		fail("trade_in.cap must be positive")
	}

	for _, c := range Categories {
		if _, ok := s.Taxability[c]; !ok {
			fail("taxability entry missing for %s", c)
		}
	}
	for c := range s.Taxability {
		if !c.Known() {
			fail("unknown taxability category %q", c)
		}
	}

	switch s.Method {
	case MethodTitleAdValorem:
		if s.TitleAdValorem == nil {
			fail("title_ad_valorem parameters required")
		} else if !isFraction(s.TitleAdValorem.Rate.Decimal()) || s.TitleAdValorem.Rate.IsZero() {
			fail("title_ad_valorem rate %s outside (0, 1)", s.TitleAdValorem.Rate)
		}
	case MethodClassBanded:
		if s.ClassBanded == nil {
			fail("class_banded parameters required")
			break
		}
		errs = append(errs, validateBands(*s.ClassBanded)...)
	case MethodTimeWindowed:
		if s.TimeWindowed == nil {
			fail("time_windowed parameters required")
			break
		}
		if s.TimeWindowed.WindowDays <= 0 {
			fail("time_windowed window_days must be positive")
		}
		if s.TimeWindowed.Predicate != PredicatePriorInStateWithin && s.TimeWindowed.Predicate != PredicateOutOfStateAtLeast {
			fail("unknown time_windowed predicate %q", s.TimeWindowed.Predicate)
		}
	}

	return errs
}

func validateBands(cb ClassBanded) []error {
	var errs []error
	if cb.Basis != BasisPrice && cb.Basis != BasisWeight {
		errs = append(errs, fmt.Errorf("unknown class_banded basis %q", cb.Basis))
	}
	if len(cb.Bands) == 0 {
		errs = append(errs, fmt.Errorf("class_banded needs at least one band"))
	}
	for i, band := range cb.Bands {
		switch band.Condition {
		case ConditionAny, ConditionNew, ConditionUsed:
		default:
			errs = append(errs, fmt.Errorf("band %d: unknown condition %q", i, band.Condition))
		}
		if band.Min.IsNegative() {
			errs = append(errs, fmt.Errorf("band %d: negative min", i))
		}
		if band.Max != nil && !band.Max.GreaterThan(band.Min) {
			errs = append(errs, fmt.Errorf("band %d: max must exceed min", i))
		}
		if band.Flat.IsNegative() {
			errs = append(errs, fmt.Errorf("band %d: negative flat amount", i))
		}
		if !isFraction(band.Rate.Decimal()) {
			errs = append(errs, fmt.Errorf("band %d: rate %s outside [0, 1)", i, band.Rate))
		}
		if cb.Basis == BasisWeight && !band.Rate.IsZero() {
			errs = append(errs, fmt.Errorf("band %d: weight bands are flat; rate must be zero", i))
		}
		if band.Over.GreaterThan(band.Min) {
			errs = append(errs, fmt.Errorf("band %d: over must not exceed min", i))
		}
	}
	return errs
}

func validatePolicy(p Policy) error {
	if !p.CreditMode.valid() {
		return fmt.Errorf("unknown credit mode %q", p.CreditMode)
	}
	switch p.Scope {
	case ScopeRetailOnly, ScopeLeaseOnly, ScopeBoth:
	default:
		return fmt.Errorf("unknown scope %q", p.Scope)
	}
	if p.MaxDaysSincePurchase < 0 {
		return fmt.Errorf("max_days_since_purchase must not be negative")
	}
	return nil
}

func isFraction(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThan(one)
}
