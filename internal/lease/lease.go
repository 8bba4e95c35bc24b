// Package lease derives closed-end lease payments: residual, adjusted
// capitalized cost, depreciation and rent charge, the tax due under the
// state's lease tax method, and the amount due at signing.
package lease

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/calcerr"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/finance"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/taxrules"
)

// aprFactor converts a money factor to an APR in percent.
var aprFactor = decimal.NewFromInt(2400)

// MaxTermMonths is the longest lease accepted.
const MaxTermMonths = 84

// MoneyFactorToAPR returns mf x 2400. The result is a percentage
// (3 means 3%), not a fraction like money.Rate.
func MoneyFactorToAPR(mf money.Rate) decimal.Decimal { return mf.Decimal().Mul(aprFactor) }

// APRToMoneyFactor returns aprPercent / 2400.
func APRToMoneyFactor(aprPercent decimal.Decimal) money.Rate {
	return money.RateFromDecimal(aprPercent.Div(aprFactor))
}

// Residual is the contractual end-of-term value, always taken from MSRP.
func Residual(msrp money.Money, percent money.Rate) money.Money {
	return msrp.MulRate(percent).Round()
}

// Terms is a lease to price.
type Terms struct {
	MSRP                money.Money
	SellingPrice        money.Money
	CapitalizedFees     money.Money
	CapitalizedProducts money.Money

	// Cap reductions.
	CashDown    money.Money
	Rebates     money.Money
	TradeEquity money.Money
	// NegativeEquity is trade debt rolled into the lease; it raises the cap cost.
	NegativeEquity money.Money

	ResidualPercent money.Rate
	// Exactly one of MoneyFactor and APRPercent is set. An APRPercent of 3
	// is a money factor of 0.00125.
	MoneyFactor *money.Rate
	APRPercent  *decimal.Decimal
	TermMonths  int

	TaxRate   money.Rate
	TaxMethod taxrules.LeaseTaxMethod
	// TaxCapReduction taxes cash down and rebates up front under payment-based taxation.
	TaxCapReduction bool

	NonCapitalizedFees money.Money
	SecurityDeposit    money.Money
	FirstPaymentDate   *time.Time
}

// Payment is one scheduled lease payment.
type Payment struct {
	Number  int         `json:"number"`
	DueDate *time.Time  `json:"due_date,omitempty"`
	Base    money.Money `json:"base"`
	Tax     money.Money `json:"tax"`
	Total   money.Money `json:"total"`
}

// Result is a priced lease. Monthly figures are rounded to cents; BasePayment
// is rounded once from the exact depreciation plus rent charge.
type Result struct {
	Residual            money.Money     `json:"residual_value"`
	GrossCapCost        money.Money     `json:"gross_cap_cost"`
	CapReductions       money.Money     `json:"cap_reductions"`
	AdjustedCapCost     money.Money     `json:"adjusted_cap_cost"`
	MoneyFactor         money.Rate      `json:"money_factor"`
	APRPercent          decimal.Decimal `json:"apr_percent"`
	TermMonths          int             `json:"term_months"`
	MonthlyDepreciation money.Money     `json:"monthly_depreciation"`
	MonthlyRentCharge   money.Money     `json:"monthly_rent_charge"`
	BasePayment         money.Money     `json:"base_payment"`

	TaxMethod       taxrules.LeaseTaxMethod `json:"tax_method"`
	TaxRate         money.Rate              `json:"tax_rate"`
	MonthlyTax      money.Money             `json:"monthly_tax"`
	TotalPayment    money.Money             `json:"total_monthly_payment"`
	UpfrontTax      money.Money             `json:"upfront_tax"`
	CapReductionTax money.Money             `json:"cap_reduction_tax"`

	DriveOff DriveOff `json:"drive_off"`

	TotalOfBasePayments money.Money `json:"total_of_base_payments"`
	TotalDepreciation   money.Money `json:"total_depreciation"`
	TotalRentCharge     money.Money `json:"total_rent_charge"`
	TotalMonthlyTax     money.Money `json:"total_monthly_tax"`
	TotalOfPayments     money.Money `json:"total_of_payments"`

	Payments []Payment `json:"payments"`
}

// DriveOff itemizes the amount due at signing.
type DriveOff struct {
	FirstPayment       money.Money `json:"first_payment"`
	CashDown           money.Money `json:"cash_down"`
	NonCapitalizedFees money.Money `json:"non_capitalized_fees"`
	UpfrontTax         money.Money `json:"upfront_tax"`
	CapReductionTax    money.Money `json:"cap_reduction_tax"`
	SecurityDeposit    money.Money `json:"security_deposit"`
	ReciprocityCredit  money.Money `json:"reciprocity_credit"`
	Total              money.Money `json:"total"`
}

// TaxDueAtSigning is the lease tax collected up front.
func (r Result) TaxDueAtSigning() money.Money {
	return r.UpfrontTax.Add(r.CapReductionTax)
}

// ApplyCredit reduces the tax due at signing by credit, bounded to
// [0, TaxDueAtSigning], and lowers the drive-off accordingly.
func (r *Result) ApplyCredit(credit money.Money) {
	credit = money.Min(credit.ClampZero(), r.TaxDueAtSigning())
	r.DriveOff.Total = r.DriveOff.Total.Add(r.DriveOff.ReciprocityCredit).Sub(credit)
	r.DriveOff.ReciprocityCredit = credit
}

func (t Terms) validate() error {
	if t.TermMonths <= 0 {
		return calcerr.New(calcerr.ErrInvalidTerm, "term_months", "must be positive, got %d", t.TermMonths)
	}
	if t.TermMonths > MaxTermMonths {
		return calcerr.New(calcerr.ErrInvalidTerm, "term_months", "must not exceed %d, got %d", MaxTermMonths, t.TermMonths)
	}
	if !t.MSRP.IsPositive() {
		return calcerr.Invalid("msrp", "must be positive")
	}
	if t.SellingPrice.IsZero() {
		return calcerr.Invalid("selling_price", "is required")
	}

	amounts := []struct {
		name string
		v    money.Money
	}{
		{"selling_price", t.SellingPrice},
		{"capitalized_fees", t.CapitalizedFees},
		{"capitalized_products", t.CapitalizedProducts},
		{"cash_down", t.CashDown},
		{"rebates", t.Rebates},
		{"trade_equity", t.TradeEquity},
		{"negative_equity", t.NegativeEquity},
		{"non_capitalized_fees", t.NonCapitalizedFees},
		{"security_deposit", t.SecurityDeposit},
	}
	for _, a := range amounts {
		if a.v.IsNegative() {
			return calcerr.Invalid(a.name, "must not be negative")
		}
	}

	if !t.ResidualPercent.IsPositive() || t.ResidualPercent.GreaterThan(money.MustRate("1")) {
		return calcerr.Invalid("residual_percent", "must be in (0, 1], got %s", t.ResidualPercent)
	}
	switch {
	case t.MoneyFactor != nil && t.APRPercent != nil:
		return calcerr.Invalid("money_factor", "give either money_factor or apr_percent, not both")
	case t.MoneyFactor == nil && t.APRPercent == nil:
		return calcerr.Invalid("money_factor", "money_factor or apr_percent is required")
	case t.MoneyFactor != nil && t.MoneyFactor.IsNegative():
		return calcerr.Invalid("money_factor", "must not be negative")
	case t.APRPercent != nil && t.APRPercent.IsNegative():
		return calcerr.Invalid("apr_percent", "must not be negative")
	}
	if t.TaxRate.IsNegative() {
		return calcerr.Invalid("tax_rate", "must not be negative")
	}
	if t.TaxMethod != taxrules.LeasePaymentBased && t.TaxMethod != taxrules.LeaseUpfrontOnCapCost {
		return calcerr.Invalid("tax_method", "unknown lease tax method %q", t.TaxMethod)
	}
	return nil
}

// Calculate prices the lease.
func Calculate(t Terms) (Result, error) {
	if err := t.validate(); err != nil {
		return Result{}, err
	}

	var mf money.Rate
	if t.MoneyFactor != nil {
		mf = *t.MoneyFactor
	} else {
		mf = APRToMoneyFactor(*t.APRPercent)
	}

	residual := Residual(t.MSRP, t.ResidualPercent)
	gross := money.Sum(t.SellingPrice, t.CapitalizedFees, t.CapitalizedProducts)
	reductions := money.Sum(t.CashDown, t.Rebates, t.TradeEquity)
	adjusted := gross.Sub(reductions).Add(t.NegativeEquity)
	if adjusted.LessThan(residual) {
		return Result{}, calcerr.Invalid("selling_price",
			"adjusted cap cost %s is below the residual value %s", adjusted, residual)
	}

	term := int64(t.TermMonths)
	depreciation := adjusted.Sub(residual).Div(term)
	rent := adjusted.Add(residual).MulRate(mf)
	base := depreciation.Add(rent).Round()

	r := Result{
		Residual:            residual,
		GrossCapCost:        gross,
		CapReductions:       reductions,
		AdjustedCapCost:     adjusted,
		MoneyFactor:         mf,
		APRPercent:          MoneyFactorToAPR(mf),
		TermMonths:          t.TermMonths,
		MonthlyDepreciation: depreciation.Round(),
		MonthlyRentCharge:   rent.Round(),
		BasePayment:         base,
		TaxMethod:           t.TaxMethod,
		TaxRate:             t.TaxRate,
	}

	switch t.TaxMethod {
	case taxrules.LeasePaymentBased:
		r.MonthlyTax = base.MulRate(t.TaxRate).Round()
		if t.TaxCapReduction {
			r.CapReductionTax = t.CashDown.Add(t.Rebates).MulRate(t.TaxRate).Round()
		}
	case taxrules.LeaseUpfrontOnCapCost:
		r.UpfrontTax = adjusted.MulRate(t.TaxRate).Round()
	}
	r.TotalPayment = base.Add(r.MonthlyTax)

	r.DriveOff = DriveOff{
		FirstPayment:       r.TotalPayment,
		CashDown:           t.CashDown,
		NonCapitalizedFees: t.NonCapitalizedFees,
		UpfrontTax:         r.UpfrontTax,
		CapReductionTax:    r.CapReductionTax,
		SecurityDeposit:    t.SecurityDeposit,
	}
	r.DriveOff.Total = money.Sum(
		r.DriveOff.FirstPayment,
		r.DriveOff.CashDown,
		r.DriveOff.NonCapitalizedFees,
		r.DriveOff.UpfrontTax,
		r.DriveOff.CapReductionTax,
		r.DriveOff.SecurityDeposit,
	)

	r.TotalOfBasePayments = base.Mul(term)
	r.TotalDepreciation = adjusted.Sub(residual)
	r.TotalRentCharge = r.TotalOfBasePayments.Sub(r.TotalDepreciation)
	r.TotalMonthlyTax = r.MonthlyTax.Mul(term)
	r.TotalOfPayments = r.TotalPayment.Mul(term)

	r.Payments = make([]Payment, t.TermMonths)
	for i := range r.Payments {
		p := Payment{Number: i + 1, Base: base, Tax: r.MonthlyTax, Total: r.TotalPayment}
		if t.FirstPaymentDate != nil {
			due := finance.AddMonths(*t.FirstPaymentDate, i)
			p.DueDate = &due
		}
		r.Payments[i] = p
	}
	return r, nil
}
