package tax

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/calcerr"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/taxrules"
)

// Item is a fee, aftermarket product or rebate on the deal. Its Category
// decides, per state, whether it enters the taxable base.
type Item struct {
	Category    taxrules.Category `json:"category"`
	Description string            `json:"description,omitempty"`
	Amount      money.Money       `json:"amount"`
}

// UseHistory carries the dates a time-windowed use tax needs.
type UseHistory struct {
	// AcquiredAt is when the buyer took ownership of the vehicle.
	AcquiredAt *time.Time `json:"acquired_at,omitempty"`
	// EnteredStateAt is when the vehicle was brought into the destination state.
	EnteredStateAt *time.Time `json:"entered_state_at,omitempty"`
	// LastInStateRegistration is the most recent registration in the destination state.
	LastInStateRegistration *time.Time `json:"last_in_state_registration,omitempty"`
}

// Input is the transaction data the interpreter taxes.
type Input struct {
	SellingPrice money.Money `json:"selling_price"`
	TradeInValue money.Money `json:"trade_in_value"`
	Fees         []Item      `json:"fees,omitempty"`
	Products     []Item      `json:"products,omitempty"`
	Rebates      []Item      `json:"rebates,omitempty"`

	// Condition is new or used; class-banded states require it.
	Condition taxrules.Condition `json:"condition,omitempty"`
	// WeightLbs is the vehicle weight for weight-banded states.
	WeightLbs decimal.Decimal `json:"weight_lbs"`
	// AssessedValue raises the title ad valorem base when it exceeds the price.
	AssessedValue *money.Money `json:"assessed_value,omitempty"`

	// TransactionDate anchors time-windowed tests. Required in those states.
	TransactionDate time.Time  `json:"transaction_date"`
	History         UseHistory `json:"history"`
}

// Validate checks the input before any computation. An absent selling
// price decodes as $0 and is rejected here.
func (in Input) Validate() error {
	if in.SellingPrice.IsNegative() {
		return calcerr.Invalid("selling_price", "must not be negative")
	}
	if in.SellingPrice.IsZero() {
		return calcerr.Invalid("selling_price", "is required")
	}
	if in.TradeInValue.IsNegative() {
		return calcerr.Invalid("trade_in_value", "must not be negative")
	}
	if in.AssessedValue != nil && in.AssessedValue.IsNegative() {
		return calcerr.Invalid("assessed_value", "must not be negative")
	}
	if in.WeightLbs.IsNegative() {
		return calcerr.Invalid("weight_lbs", "must not be negative")
	}
	switch in.Condition {
	case "", taxrules.ConditionNew, taxrules.ConditionUsed:
	default:
		return calcerr.Invalid("condition", "unknown condition %q", in.Condition)
	}

	groups := []struct {
		field  string
		items  []Item
		rebate bool
	}{
		{"fees", in.Fees, false},
		{"products", in.Products, false},
		{"rebates", in.Rebates, true},
	}
	for _, g := range groups {
		for i, it := range g.items {
			if !it.Category.Known() {
				return calcerr.Invalid(itemField(g.field, i), "unknown category %q", it.Category)
			}
			if it.Category.IsRebate() != g.rebate {
				return calcerr.Invalid(itemField(g.field, i), "category %s does not belong in %s", it.Category, g.field)
			}
			if it.Amount.IsNegative() {
				return calcerr.Invalid(itemField(g.field, i), "amount must not be negative")
			}
		}
	}
	return nil
}

func itemField(group string, i int) string {
	return fmt.Sprintf("%s[%d]", group, i)
}
