// Package jurisdiction maps a postal address to the state rule module and the
// stack of taxing authorities that apply to it.
package jurisdiction

import (
	"strings"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/calcerr"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/taxrules"
)

// Address is the resolver input. State may be empty, in which case it is
// taken from the rate table entry of the postal code.
type Address struct {
	State      string `json:"state"`
	County     string `json:"county,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code"`
}

// Resolution is a resolved address: the state's rule module, its tax method
// and the ordered rate set. Rates never changes after resolution.
type Resolution struct {
	Address Address
	Rule    taxrules.StateRule
	Method  taxrules.TaxMethod
	Rates   []taxrules.LevelRate
}

// State returns the resolved two-letter state code.
func (r Resolution) State() string { return r.Rule.State }

// CombinedRate is the sum of every level.
func (r Resolution) CombinedRate() money.Rate {
	total := money.ZeroRate
	for _, l := range r.Rates {
		total = total.Add(l.Rate)
	}
	return total
}

// StateRate is the rate of the state-level line, or zero when the postal code
// has no state-level authority.
func (r Resolution) StateRate() money.Rate {
	for _, l := range r.Rates {
		if l.Level == taxrules.LevelState {
			return l.Rate
		}
	}
	return money.ZeroRate
}

// Resolver resolves addresses against one rule snapshot.
type Resolver struct {
	rules *taxrules.Snapshot
}

// NewResolver creates a Resolver over snap.
func NewResolver(snap *taxrules.Snapshot) *Resolver {
	return &Resolver{rules: snap}
}

// Resolve looks up the address. It fails with ErrUnsupportedState when the
// state is unknown or only stubbed, and with ErrUnknownJurisdiction when the
// postal code is not in the rate table or belongs to a different state.
func (r *Resolver) Resolve(addr Address) (Resolution, error) {
	addr = normalize(addr)
	if addr.PostalCode == "" {
		return Resolution{}, calcerr.Invalid("address.postal_code", "postal code is required")
	}
	if addr.State != "" && len(addr.State) != 2 {
		return Resolution{}, calcerr.Invalid("address.state", "state %q must be a two-letter code", addr.State)
	}

	if addr.State != "" {
		if _, err := r.rule(addr.State); err != nil {
			return Resolution{}, err
		}
	}

	entry, ok := r.rules.Zip(addr.PostalCode)
	if !ok {
		return Resolution{}, calcerr.New(calcerr.ErrUnknownJurisdiction, "address.postal_code",
			"postal code %s is not in the rate table", addr.PostalCode)
	}
	if addr.State == "" {
		addr.State = entry.State
	} else if entry.State != addr.State {
		return Resolution{}, calcerr.New(calcerr.ErrUnknownJurisdiction, "address.postal_code",
			"postal code %s belongs to %s, not %s", addr.PostalCode, entry.State, addr.State)
	}
	if addr.County == "" {
		addr.County = entry.County
	}
	if addr.City == "" {
		addr.City = entry.City
	}

	rule, err := r.rule(addr.State)
	if err != nil {
		return Resolution{}, err
	}

	rates := entry.Levels
	if rule.Stacking == taxrules.StackingCombined {
		rates = combine(rule, entry.Levels)
	}

	return Resolution{
		Address: addr,
		Rule:    rule,
		Method:  rule.Method,
		Rates:   rates,
	}, nil
}

func (r *Resolver) rule(state string) (taxrules.StateRule, error) {
	rule, ok := r.rules.State(state)
	if !ok {
		return taxrules.StateRule{}, calcerr.New(calcerr.ErrUnsupportedState, "address.state",
			"no rule module for %s", state)
	}
	if rule.Status != taxrules.StatusImplemented {
		return taxrules.StateRule{}, calcerr.New(calcerr.ErrUnsupportedState, "address.state",
			"rule module for %s is a stub", state)
	}
	return rule, nil
}

// combine collapses the levels of a single-rate state into one state-level
// line. Per-level caps do not survive the collapse.
func combine(rule taxrules.StateRule, levels []taxrules.LevelRate) []taxrules.LevelRate {
	total := money.ZeroRate
	for _, l := range levels {
		total = total.Add(l.Rate)
	}
	return []taxrules.LevelRate{{
		Level: taxrules.LevelState,
		Name:  rule.Name,
		Rate:  total,
	}}
}

// normalize trims fields, upper-cases the state and reduces a ZIP+4 to its
// five-digit prefix.
func normalize(a Address) Address {
	a.State = strings.ToUpper(strings.TrimSpace(a.State))
	a.County = strings.TrimSpace(a.County)
	a.City = strings.TrimSpace(a.City)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	if i := strings.IndexByte(a.PostalCode, '-'); i == 5 {
		a.PostalCode = a.PostalCode[:5]
	}
	return a
}
