package taxrules

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
)

// Level is a tier of taxing authority within a jurisdiction.
type Level string

const (
	LevelState    Level = "state"
	LevelCounty   Level = "county"
	LevelCity     Level = "city"
	LevelDistrict Level = "district"
)

func (l Level) valid() bool {
	switch l {
	case LevelState, LevelCounty, LevelCity, LevelDistrict:
		return true
	}
	return false
}

// TaxMethod selects how a state taxes a vehicle transaction. The set is
// closed: every state resolves to exactly one of these.
type TaxMethod string

const (
	MethodStandard       TaxMethod = "standard_sales_tax"
	MethodTitleAdValorem TaxMethod = "title_ad_valorem"
	MethodClassBanded    TaxMethod = "class_banded_flat"
	MethodTimeWindowed   TaxMethod = "time_windowed_use_tax"
)

func (m TaxMethod) valid() bool {
	switch m {
	case MethodStandard, MethodTitleAdValorem, MethodClassBanded, MethodTimeWindowed:
		return true
	}
	return false
}

// Stacking controls how the levels of a rate set combine.
type Stacking string

const (
	// StackingStacked computes every level independently off the same base.
	StackingStacked Stacking = "stacked"
	// StackingCombined collapses all levels into a single combined rate line.
	StackingCombined Stacking = "combined"
)

// Rounding controls where cents rounding happens for the line items.
type Rounding string

const (
	// RoundingTotal rounds once, at the total.
	RoundingTotal Rounding = "total"
	// RoundingPerLine rounds each jurisdiction line; the total is their sum.
	RoundingPerLine Rounding = "per_line"
)

// Category is a fee, product or rebate kind whose taxability varies by state.
type Category string

const (
	CategoryDocFee             Category = "doc_fee"
	CategoryGovernmentFee      Category = "government_fee"
	CategoryAccessory          Category = "accessory"
	CategoryServiceContract    Category = "service_contract"
	CategoryGAP                Category = "gap_insurance"
	CategoryManufacturerRebate Category = "manufacturer_rebate"
	CategoryDealerRebate       Category = "dealer_rebate"
)

// Categories lists every category an implemented state must classify.
var Categories = []Category{
	CategoryDocFee,
	CategoryGovernmentFee,
	CategoryAccessory,
	CategoryServiceContract,
	CategoryGAP,
	CategoryManufacturerRebate,
	CategoryDealerRebate,
}

// IsRebate reports whether the category reduces the price rather than adding to it.
func (c Category) IsRebate() bool {
	return c == CategoryManufacturerRebate || c == CategoryDealerRebate
}

// Known reports whether c is one of Categories.
func (c Category) Known() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// LeaseTaxMethod selects how lease transactions are taxed in a state.
type LeaseTaxMethod string

const (
	LeasePaymentBased     LeaseTaxMethod = "payment_based"
	LeaseUpfrontOnCapCost LeaseTaxMethod = "upfront_on_cap_cost"
)

// Status marks whether a state's rule module is implemented or only stubbed.
type Status string

const (
	StatusImplemented Status = "implemented"
	StatusStub        Status = "stub"
)

// LevelRate is one taxing authority in a rate set.
type LevelRate struct {
	Level Level      `json:"level"`
	Name  string     `json:"name"`
	Rate  money.Rate `json:"rate"`
	// MaxTaxableAmount caps the base this level taxes. Nil means uncapped.
	MaxTaxableAmount *money.Money `json:"max_taxable_amount,omitempty"`
}

// ZipEntry is the rate table row for one postal code.
type ZipEntry struct {
	PostalCode string      `json:"postal_code"`
	State      string      `json:"state"`
	County     string      `json:"county,omitempty"`
	City       string      `json:"city,omitempty"`
	Levels     []LevelRate `json:"levels"`
}

// TradeInPolicy describes whether trade-in value reduces the taxable base.
type TradeInPolicy struct {
	Allowed bool         `json:"allowed"`
	Cap     *money.Money `json:"cap,omitempty"`
}

// TitleAdValorem configures a one-time title tax on the full price.
type TitleAdValorem struct {
	Rate money.Rate `json:"rate"`
}

// Basis is the vehicle attribute a class band is keyed on.
type Basis string

const (
	BasisPrice  Basis = "price"
	BasisWeight Basis = "weight"
)

// Condition restricts a band to new or used vehicles.
type Condition string

const (
	ConditionAny  Condition = "any"
	ConditionNew  Condition = "new"
	ConditionUsed Condition = "used"
)

// Band is one class of a class-banded flat tax. A vehicle falls in the band
// when Min <= value < Max (Max nil means unbounded). The tax owed is
// Flat + (value - Over) * Rate; Rate is only meaningful for the price basis.
type Band struct {
	Name      string           `json:"name"`
	Condition Condition        `json:"condition"`
	Min       decimal.Decimal  `json:"min"`
	Max       *decimal.Decimal `json:"max,omitempty"`
	Flat      money.Money      `json:"flat"`
	Rate      money.Rate       `json:"rate"`
	Over      decimal.Decimal  `json:"over"`
}

// Contains reports whether value falls in the band.
func (b Band) Contains(value decimal.Decimal) bool {
	if value.LessThan(b.Min) {
		return false
	}
	return b.Max == nil || value.LessThan(*b.Max)
}

// Matches reports whether the band applies to a vehicle of the given condition.
func (b Band) Matches(c Condition) bool {
	return b.Condition == ConditionAny || b.Condition == c
}

// ClassBanded configures a weight or value banded flat tax.
type ClassBanded struct {
	Basis Basis  `json:"basis"`
	Bands []Band `json:"bands"`
}

// Predicate is the temporal test of a time-windowed use tax.
type Predicate string

const (
	// PredicatePriorInStateWithin exempts a vehicle registered in the state
	// within the window before this transaction.
	PredicatePriorInStateWithin Predicate = "prior_in_state_within"
	// PredicateOutOfStateAtLeast exempts a vehicle registered out of state for
	// at least the window before being brought in.
	PredicateOutOfStateAtLeast Predicate = "out_of_state_at_least"
)

// TimeWindowed configures a use tax whose applicability depends on prior registration.
type TimeWindowed struct {
	WindowDays int       `json:"window_days"`
	Predicate  Predicate `json:"predicate"`
}

// StateRule is the complete rule module for one state.
type StateRule struct {
	State    string    `json:"state"`
	Name     string    `json:"name"`
	Status   Status    `json:"status"`
	Method   TaxMethod `json:"method"`
	Stacking Stacking  `json:"stacking"`
	Rounding Rounding  `json:"rounding"`

	TradeIn    TradeInPolicy     `json:"trade_in"`
	Taxability map[Category]bool `json:"taxability"`

	LeaseTaxMethod         LeaseTaxMethod `json:"lease_tax_method"`
	LeaseTaxesCapReduction bool           `json:"lease_taxes_cap_reduction"`

	TitleAdValorem *TitleAdValorem `json:"title_ad_valorem,omitempty"`
	ClassBanded    *ClassBanded    `json:"class_banded,omitempty"`
	TimeWindowed   *TimeWindowed   `json:"time_windowed,omitempty"`
}

// Taxable looks up whether category is taxable in the state. The second
// result is false when the state's table has no entry for the category.
func (r StateRule) Taxable(c Category) (taxable, ok bool) {
	taxable, ok = r.Taxability[c]
	return taxable, ok
}

// CreditMode is how a destination state credits tax paid to an origin state.
type CreditMode string

const (
	CreditNone                CreditMode = "none"
	CreditUpToDestinationRate CreditMode = "credit_up_to_destination_rate"
	CreditFull                CreditMode = "credit_full"
	CreditHomeStateOnly       CreditMode = "home_state_only"
)

func (m CreditMode) valid() bool {
	switch m {
	case CreditNone, CreditUpToDestinationRate, CreditFull, CreditHomeStateOnly:
		return true
	}
	return false
}

// Scope is the kind of transaction a reciprocity policy covers.
type Scope string

const (
	ScopeRetailOnly Scope = "retail_only"
	ScopeLeaseOnly  Scope = "lease_only"
	ScopeBoth       Scope = "both"
)

// Covers reports whether the scope applies to a lease (true) or retail sale (false).
func (s Scope) Covers(lease bool) bool {
	switch s {
	case ScopeBoth:
		return true
	case ScopeLeaseOnly:
		return lease
	case ScopeRetailOnly:
		return !lease
	}
	return false
}

// Policy is the reciprocity policy for an origin/destination state pair.
type Policy struct {
	Origin        string     `json:"origin,omitempty"`
	Destination   string     `json:"destination,omitempty"`
	CreditMode    CreditMode `json:"credit_mode"`
	Scope         Scope      `json:"scope"`
	ProofRequired bool       `json:"proof_required"`
	// MaxDaysSincePurchase limits credit to origin purchases this recent. Zero means no limit.
	MaxDaysSincePurchase int `json:"max_days_since_purchase,omitempty"`
}

// ReciprocityTable holds every configured pair plus an optional default.
type ReciprocityTable struct {
	Default *Policy  `json:"default,omitempty"`
	Pairs   []Policy `json:"pairs"`
}

// Bundle is the wholesale unit of static data: the rate table, the per-state
// rule modules and the reciprocity policies, loaded and swapped together.
type Bundle struct {
	Version       string           `json:"version"`
	Jurisdictions []ZipEntry       `json:"jurisdictions"`
	States        []StateRule      `json:"states"`
	Reciprocity   ReciprocityTable `json:"reciprocity"`
}

// RateChange describes a rate that differs between two snapshots.
type RateChange struct {
	PostalCode string
	Level      Level
	Name       string
	OldRate    money.Rate
	NewRate    money.Rate
}

// SyncResult holds the outcome of a rule sync.
type SyncResult struct {
	Source        string
	Version       string
	Jurisdictions int
	States        int
	RatesChanged  int
	SyncedAt      time.Time
	Error         error
}

// Source identifiers.
const (
	SourceEmbedded = "embedded"
	SourceFile     = "file"
	SourceHTTP     = "http"
	SourceObject   = "object"
	SourcePostgres = "postgres"
)
