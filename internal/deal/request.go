package deal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/calcerr"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/finance"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/jurisdiction"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/lease"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/reciprocity"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/tax"
)

// ReciprocityClaim reports tax already paid to another state on the vehicle.
type ReciprocityClaim struct {
	OriginState   string      `json:"origin_state"`
	OriginTaxPaid money.Money `json:"origin_tax_paid"`
	HomeState     string      `json:"home_state,omitempty"`
	PurchaseDate  *time.Time  `json:"purchase_date,omitempty"`
}

// TaxRequest is a standalone tax quote. Monetary fields are decimal strings.
type TaxRequest struct {
	Address jurisdiction.Address `json:"address"`
	tax.Input
	Reciprocity *ReciprocityClaim `json:"reciprocity,omitempty"`
}

// FinanceRequest is a retail installment quote. The tax sub-request is
// computed first and its total enters the amount financed.
type FinanceRequest struct {
	TaxRequest
	DownPayment      money.Money `json:"down_payment"`
	TradePayoff      money.Money `json:"trade_payoff"`
	AnnualRate       money.Rate  `json:"annual_rate"`
	TermMonths       int         `json:"term_months"`
	FirstPaymentDate *time.Time  `json:"first_payment_date,omitempty"`
	BuyRate          *money.Rate `json:"buy_rate,omitempty"`
}

// LeaseRequest is a closed-end lease quote.
type LeaseRequest struct {
	Address jurisdiction.Address `json:"address"`

	MSRP                money.Money `json:"msrp"`
	SellingPrice        money.Money `json:"selling_price"`
	CapitalizedFees     money.Money `json:"capitalized_fees"`
	CapitalizedProducts money.Money `json:"capitalized_products"`
	CashDown            money.Money `json:"cash_down"`
	Rebates             money.Money `json:"rebates"`
	TradeInValue        money.Money `json:"trade_in_value"`
	TradePayoff         money.Money `json:"trade_payoff"`
	NonCapitalizedFees  money.Money `json:"non_capitalized_fees"`
	SecurityDeposit     money.Money `json:"security_deposit"`

	ResidualPercent  money.Rate       `json:"residual_percent"`
	MoneyFactor      *money.Rate      `json:"money_factor,omitempty"`
	APRPercent       *decimal.Decimal `json:"apr_percent,omitempty"`
	TermMonths       int              `json:"term_months"`
	FirstPaymentDate *time.Time       `json:"first_payment_date,omitempty"`

	TransactionDate time.Time         `json:"transaction_date"`
	Reciprocity     *ReciprocityClaim `json:"reciprocity,omitempty"`
}

// TaxResult is the outcome of a tax quote.
type TaxResult struct {
	CalculationID string               `json:"calculation_id"`
	RulesVersion  string               `json:"rules_version"`
	Address       jurisdiction.Address `json:"address"`
	Breakdown     tax.Breakdown        `json:"breakdown"`
	Reciprocity   *reciprocity.Result  `json:"reciprocity,omitempty"`
	TotalTax      money.Money          `json:"total_tax"`
}

// FinanceResult is the outcome of a finance quote.
type FinanceResult struct {
	CalculationID string         `json:"calculation_id"`
	RulesVersion  string         `json:"rules_version"`
	Tax           TaxResult      `json:"tax"`
	Finance       finance.Result `json:"finance"`
}

// LeaseResult is the outcome of a lease quote.
type LeaseResult struct {
	CalculationID string               `json:"calculation_id"`
	RulesVersion  string               `json:"rules_version"`
	Address       jurisdiction.Address `json:"address"`
	State         string               `json:"state"`
	Lease         lease.Result         `json:"lease"`
	Reciprocity   *reciprocity.Result  `json:"reciprocity,omitempty"`
}

// RulesInfo describes the loaded rule snapshot.
type RulesInfo struct {
	Version         string   `json:"version"`
	DeclaredVersion string   `json:"declared_version"`
	SupportedStates []string `json:"supported_states"`
	StubStates      []string `json:"stub_states"`
	Jurisdictions   int      `json:"jurisdictions"`
}

func (c *ReciprocityClaim) validate() error {
	if c == nil {
		return nil
	}
	if c.OriginState == "" {
		return calcerr.Invalid("reciprocity.origin_state", "is required")
	}
	if c.OriginTaxPaid.IsNegative() {
		return calcerr.Invalid("reciprocity.origin_tax_paid", "must not be negative")
	}
	return nil
}

func (r FinanceRequest) validate() error {
	if r.TermMonths <= 0 {
		return calcerr.New(calcerr.ErrInvalidTerm, "term_months", "must be positive, got %d", r.TermMonths)
	}
	if r.AnnualRate.IsNegative() {
		return calcerr.Invalid("annual_rate", "must not be negative")
	}
	if r.DownPayment.IsNegative() {
		return calcerr.Invalid("down_payment", "must not be negative")
	}
	if r.TradePayoff.IsNegative() {
		return calcerr.Invalid("trade_payoff", "must not be negative")
	}
	return r.Reciprocity.validate()
}

func (r LeaseRequest) validate() error {
	if r.TermMonths <= 0 {
		return calcerr.New(calcerr.ErrInvalidTerm, "term_months", "must be positive, got %d", r.TermMonths)
	}
	if r.TradeInValue.IsNegative() {
		return calcerr.Invalid("trade_in_value", "must not be negative")
	}
	if r.TradePayoff.IsNegative() {
		return calcerr.Invalid("trade_payoff", "must not be negative")
	}
	return r.Reciprocity.validate()
}
