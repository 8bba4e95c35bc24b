package tax

import (
	"fmt"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/taxrules"
)

// Line is the tax owed to one authority.
type Line struct {
	Level taxrules.Level `json:"level"`
	Name  string         `json:"name"`
	Rate  money.Rate     `json:"rate"`
	Base  money.Money    `json:"base"`
	Tax   money.Money    `json:"tax"`
}

// Breakdown is the full result of taxing one transaction. Every amount is
// rounded to cents. Lines always sum to GrossTax, and TotalTax is GrossTax
// less ReciprocityCredit.
type Breakdown struct {
	State  string             `json:"state"`
	Method taxrules.TaxMethod `json:"method"`

	SellingPrice     money.Money `json:"selling_price"`
	TradeInCredit    money.Money `json:"trade_in_credit"`
	TradeInTaxCredit money.Money `json:"trade_in_tax_credit"`
	RebateAdjustment money.Money `json:"rebate_adjustment"`
	TaxableFees      money.Money `json:"taxable_fees"`
	TaxableProducts  money.Money `json:"taxable_products"`
	TaxableBase      money.Money `json:"taxable_base"`

	Lines    []Line      `json:"lines"`
	GrossTax money.Money `json:"gross_tax"`

	ReciprocityCredit money.Money `json:"reciprocity_credit"`
	TotalTax          money.Money `json:"total_tax"`

	// Band names the class band that priced a class-banded tax.
	Band string `json:"band,omitempty"`
	// Exempt is set when a time-windowed state waives the tax.
	Exempt       bool   `json:"exempt,omitempty"`
	ExemptReason string `json:"exempt_reason,omitempty"`
}

// EffectiveRate is TotalTax over SellingPrice, or zero for a zero price.
func (b Breakdown) EffectiveRate() money.Rate {
	if b.SellingPrice.IsZero() {
		return money.ZeroRate
	}
	return money.RateFromDecimal(b.TotalTax.Decimal().Div(b.SellingPrice.Decimal()))
}

// ApplyCredit records a reciprocity credit against the gross tax. The credit
// is bounded to [0, GrossTax].
func (b *Breakdown) ApplyCredit(credit money.Money) {
	credit = money.Min(credit.ClampZero(), b.GrossTax)
	b.ReciprocityCredit = credit
	b.TotalTax = b.GrossTax.Sub(credit)
}

// Reconcile checks the breakdown invariants: lines sum to GrossTax and
// GrossTax less the credit is TotalTax.
func (b Breakdown) Reconcile() error {
	sum := money.Zero
	for _, l := range b.Lines {
		sum = sum.Add(l.Tax)
	}
	if !sum.Equal(b.GrossTax) {
		return fmt.Errorf("lines sum to %s, gross tax is %s", sum, b.GrossTax)
	}
	if want := b.GrossTax.Sub(b.ReciprocityCredit); !want.Equal(b.TotalTax) {
		return fmt.Errorf("gross %s less credit %s is %s, total tax is %s", b.GrossTax, b.ReciprocityCredit, want, b.TotalTax)
	}
	if b.TotalTax.IsNegative() {
		return fmt.Errorf("total tax %s is negative", b.TotalTax)
	}
	return nil
}
