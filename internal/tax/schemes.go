package tax

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/calcerr"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/jurisdiction"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/taxrules"
)

// titleAdValorem taxes the full price, or the assessed value when higher, at
// the state's single title tax rate. Trade-in value never reduces the base.
func titleAdValorem(res jurisdiction.Resolution, in Input) (Breakdown, error) {
	tavt := res.Rule.TitleAdValorem
	if tavt == nil {
		return Breakdown{}, calcerr.New(calcerr.ErrUnsupportedState, "address.state",
			"%s has no title ad valorem rate", res.State())
	}

	base := in.SellingPrice
	if in.AssessedValue != nil {
		base = money.Max(base, *in.AssessedValue)
	}
	tax := base.MulRate(tavt.Rate).Round()

	return Breakdown{
		TaxableBase: base,
		Lines: []Line{{
			Level: taxrules.LevelState,
			Name:  res.Rule.Name + " title ad valorem tax",
			Rate:  tavt.Rate,
			Base:  base,
			Tax:   tax,
		}},
		GrossTax: tax,
	}, nil
}

// classBanded places the vehicle in the first band matching its condition
// and value, and charges Flat + (value - Over) * Rate.
func classBanded(res jurisdiction.Resolution, in Input) (Breakdown, error) {
	cb := res.Rule.ClassBanded
	if cb == nil {
		return Breakdown{}, calcerr.New(calcerr.ErrUnsupportedState, "address.state",
			"%s has no class bands", res.State())
	}

	var value decimal.Decimal
	switch cb.Basis {
	case taxrules.BasisPrice:
		value = in.SellingPrice.Decimal()
	case taxrules.BasisWeight:
		if !in.WeightLbs.IsPositive() {
			return Breakdown{}, calcerr.Invalid("weight_lbs", "vehicle weight is required in %s", res.State())
		}
		value = in.WeightLbs
	default:
		return Breakdown{}, calcerr.New(calcerr.ErrUnsupportedState, "address.state",
			"%s has unknown band basis %q", res.State(), cb.Basis)
	}

	if in.Condition == "" {
		for _, band := range cb.Bands {
			if band.Condition != taxrules.ConditionAny {
				return Breakdown{}, calcerr.Invalid("condition", "new or used is required in %s", res.State())
			}
		}
	}

	var (
		band  taxrules.Band
		found bool
	)
	for _, candidate := range cb.Bands {
		if candidate.Matches(in.Condition) && candidate.Contains(value) {
			band, found = candidate, true
			break
		}
	}
	if !found {
		return Breakdown{}, calcerr.New(calcerr.ErrUnsupportedState, "address.state",
			"no %s band in %s covers %s", cb.Basis, res.State(), value)
	}

	excess := money.FromDecimal(value.Sub(band.Over)).ClampZero()
	tax := band.Flat.Add(excess.MulRate(band.Rate)).Round()

	lineBase := money.Zero
	if cb.Basis == taxrules.BasisPrice {
		lineBase = in.SellingPrice
	}

	return Breakdown{
		TaxableBase: lineBase,
		Lines: []Line{{
			Level: taxrules.LevelState,
			Name:  band.Name,
			Rate:  band.Rate,
			Base:  lineBase,
			Tax:   tax,
		}},
		GrossTax: tax,
		Band:     band.Name,
	}, nil
}

// timeWindowed applies the standard base and rate stack unless the state's
// temporal predicate exempts the vehicle, in which case the base is zero.
func timeWindowed(res jurisdiction.Resolution, in Input) (Breakdown, error) {
	tw := res.Rule.TimeWindowed
	if tw == nil {
		return Breakdown{}, calcerr.New(calcerr.ErrUnsupportedState, "address.state",
			"%s has no use tax window", res.State())
	}

	exempt, reason, err := windowExempt(*tw, in)
	if err != nil {
		return Breakdown{}, err
	}

	b, err := taxableBase(res.Rule, in)
	if err != nil {
		return Breakdown{}, err
	}
	if exempt {
		b.taxable = money.Zero
	}

	out := salesTax(res, b)
	out.Exempt = exempt
	out.ExemptReason = reason
	return out, nil
}

func windowExempt(tw taxrules.TimeWindowed, in Input) (bool, string, error) {
	h := in.History
	switch tw.Predicate {
	case taxrules.PredicatePriorInStateWithin:
		if h.LastInStateRegistration == nil {
			return false, "", nil
		}
		if in.TransactionDate.IsZero() {
			return false, "", calcerr.Invalid("transaction_date", "required to evaluate the registration window")
		}
		days := daysBetween(*h.LastInStateRegistration, in.TransactionDate)
		if days < 0 {
			return false, "", calcerr.Invalid("history.last_in_state_registration", "is after the transaction date")
		}
		if days <= tw.WindowDays {
			return true, fmt.Sprintf("registered in state %d days ago, within %d", days, tw.WindowDays), nil
		}
		return false, "", nil

	case taxrules.PredicateOutOfStateAtLeast:
		if h.AcquiredAt == nil && h.EnteredStateAt == nil {
			return false, "", nil
		}
		if h.AcquiredAt == nil {
			return false, "", calcerr.Invalid("history.acquired_at", "required with entered_state_at")
		}
		if h.EnteredStateAt == nil {
			return false, "", calcerr.Invalid("history.entered_state_at", "required with acquired_at")
		}
		days := daysBetween(*h.AcquiredAt, *h.EnteredStateAt)
		if days < 0 {
			return false, "", calcerr.Invalid("history.entered_state_at", "is before acquired_at")
		}
		if days >= tw.WindowDays {
			return true, fmt.Sprintf("used out of state for %d days, at least %d", days, tw.WindowDays), nil
		}
		return false, "", nil
	}
	return false, "", calcerr.New(calcerr.ErrUnsupportedState, "address.state", "unknown use tax predicate %q", tw.Predicate)
}

// daysBetween counts calendar days from a to b in UTC.
func daysBetween(a, b time.Time) int {
	day := func(t time.Time) time.Time {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return int(day(b).Sub(day(a)).Hours() / 24)
}
