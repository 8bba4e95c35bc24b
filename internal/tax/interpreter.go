// Package tax computes the sales and use tax of a vehicle transaction for a
// resolved jurisdiction. Dispatch is over the state's closed TaxMethod; each
// method has its own calculator and none falls through to another.
package tax

import (
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/calcerr"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/jurisdiction"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/taxrules"
)

// Interpreter computes tax breakdowns. It holds no state, so one value serves
// any number of concurrent calculations.
type Interpreter struct{}

// NewInterpreter creates an Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// Calculate taxes in under the resolved state's method.
func (t *Interpreter) Calculate(res jurisdiction.Resolution, in Input) (Breakdown, error) {
	if err := in.Validate(); err != nil {
		return Breakdown{}, err
	}
	if res.Rule.Status != taxrules.StatusImplemented {
		return Breakdown{}, calcerr.New(calcerr.ErrUnsupportedState, "address.state", "%s is not implemented", res.State())
	}

	var (
		b   Breakdown
		err error
	)
	switch res.Method {
	case taxrules.MethodStandard:
		b, err = standard(res, in)
	case taxrules.MethodTitleAdValorem:
		b, err = titleAdValorem(res, in)
	case taxrules.MethodClassBanded:
		b, err = classBanded(res, in)
	case taxrules.MethodTimeWindowed:
		b, err = timeWindowed(res, in)
	default:
		return Breakdown{}, calcerr.New(calcerr.ErrUnsupportedState, "address.state",
			"%s has unknown tax method %q", res.State(), res.Method)
	}
	if err != nil {
		return Breakdown{}, err
	}

	b.State = res.State()
	b.Method = res.Method
	b.SellingPrice = in.SellingPrice
	b.TotalTax = b.GrossTax
	return b, nil
}

// LeaseRate is the single rate a lease is taxed at in the resolved
// jurisdiction: the combined level rate for sales-tax states and the title
// tax rate for title ad valorem states. Class-banded states do not tax leases
// through this engine.
func LeaseRate(res jurisdiction.Resolution) (money.Rate, error) {
	switch res.Method {
	case taxrules.MethodStandard, taxrules.MethodTimeWindowed:
		return res.CombinedRate(), nil
	case taxrules.MethodTitleAdValorem:
		if res.Rule.TitleAdValorem == nil {
			return money.ZeroRate, calcerr.New(calcerr.ErrUnsupportedState, "address.state",
				"%s has no title ad valorem rate", res.State())
		}
		return res.Rule.TitleAdValorem.Rate, nil
	}
	return money.ZeroRate, calcerr.New(calcerr.ErrUnsupportedState, "address.state",
		"%s does not tax leases under %s", res.State(), res.Method)
}

// base is the taxable base of a sales-tax transaction and its components.
type base struct {
	tradeIn  money.Money
	rebates  money.Money
	fees     money.Money
	products money.Money
	taxable  money.Money
}

// taxableBase applies
//
//	price - trade-in credit - non-taxable rebates + taxable fees + taxable products
//
// and clamps a negative result to zero.
func taxableBase(rule taxrules.StateRule, in Input) (base, error) {
	var b base

	if rule.TradeIn.Allowed {
		b.tradeIn = in.TradeInValue
		if rule.TradeIn.Cap != nil {
			b.tradeIn = money.Min(b.tradeIn, *rule.TradeIn.Cap)
		}
	}

	var err error
	if b.rebates, err = sumWhere(rule, in.Rebates, false); err != nil {
		return base{}, err
	}
	if b.fees, err = sumWhere(rule, in.Fees, true); err != nil {
		return base{}, err
	}
	if b.products, err = sumWhere(rule, in.Products, true); err != nil {
		return base{}, err
	}

	b.taxable = in.SellingPrice.
		Sub(b.tradeIn).
		Sub(b.rebates).
		Add(b.fees).
		Add(b.products).
		ClampZero()
	return b, nil
}

// sumWhere totals the items whose taxability equals want. A category missing
// from the state's table is an error, never a default.
func sumWhere(rule taxrules.StateRule, items []Item, want bool) (money.Money, error) {
	total := money.Zero
	for _, it := range items {
		taxable, ok := rule.Taxable(it.Category)
		if !ok {
			return money.Zero, calcerr.New(calcerr.ErrUnsupportedState, "address.state",
				"%s has no taxability entry for %s", rule.State, it.Category)
		}
		if taxable == want {
			total = total.Add(it.Amount)
		}
	}
	return total, nil
}

// applyLevels taxes base at every level. Under RoundingPerLine each line is
// rounded and the gross is their sum. Under RoundingTotal the exact line taxes
// are summed and rounded once; the difference between that and the rounded
// lines goes to the highest-rate line so the lines still add up.
func applyLevels(rates []taxrules.LevelRate, base money.Money, rounding taxrules.Rounding) ([]Line, money.Money) {
	lines := make([]Line, len(rates))
	exact := money.Zero
	rounded := money.Zero
	for i, l := range rates {
		levelBase := base
		if l.MaxTaxableAmount != nil {
			levelBase = money.Min(base, *l.MaxTaxableAmount)
		}
		tax := levelBase.MulRate(l.Rate)
		exact = exact.Add(tax)

		lines[i] = Line{
			Level: l.Level,
			Name:  l.Name,
			Rate:  l.Rate,
			Base:  levelBase,
			Tax:   tax.Round(),
		}
		rounded = rounded.Add(lines[i].Tax)
	}

	if rounding == taxrules.RoundingPerLine || len(lines) == 0 {
		return lines, rounded
	}

	gross := exact.Round()
	if residual := gross.Sub(rounded); !residual.IsZero() {
		top := 0
		for i := range lines {
			if lines[i].Rate.GreaterThan(lines[top].Rate) {
				top = i
			}
		}
		lines[top].Tax = lines[top].Tax.Add(residual)
	}
	return lines, gross
}

func standard(res jurisdiction.Resolution, in Input) (Breakdown, error) {
	b, err := taxableBase(res.Rule, in)
	if err != nil {
		return Breakdown{}, err
	}
	return salesTax(res, b), nil
}

func salesTax(res jurisdiction.Resolution, b base) Breakdown {
	lines, gross := applyLevels(res.Rates, b.taxable, res.Rule.Rounding)
	return Breakdown{
		TradeInCredit:    b.tradeIn,
		TradeInTaxCredit: b.tradeIn.MulRate(res.StateRate()).Round(),
		RebateAdjustment: b.rebates,
		TaxableFees:      b.fees,
		TaxableProducts:  b.products,
		TaxableBase:      b.taxable,
		Lines:            lines,
		GrossTax:         gross,
	}
}
