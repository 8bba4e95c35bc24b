// Package reciprocity credits tax already paid to an origin state against the
// tax a destination state levies on the same vehicle.
package reciprocity

import (
	"strings"
	"time"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/calcerr"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/taxrules"
)

// Reason codes explaining a Result.
const (
	ReasonCredited       = "credited"
	ReasonSameState      = "same_state"
	ReasonNoOriginTax    = "no_origin_tax"
	ReasonModeNone       = "credit_mode_none"
	ReasonScopeExcluded  = "scope_excluded"
	ReasonPurchaseTooOld = "purchase_too_old"
	ReasonNotHomeState   = "not_home_state"
	ReasonCreditCapped   = "credit_capped_at_destination_tax"
	// ReasonNoDestinationTax and ReasonNoUpfrontTax mean there was nothing
	// to credit against; the lease form covers a payment-based lease with
	// no tax due at signing.
	ReasonNoDestinationTax = "no_destination_tax"
	ReasonNoUpfrontTax     = "no_upfront_tax"
)

// Input describes one cross-state transaction.
type Input struct {
	Origin      string
	Destination string
	// HomeState is the buyer's state of residence, used by home_state_only policies.
	HomeState      string
	OriginTaxPaid  money.Money
	DestinationTax money.Money
	Lease          bool
	// PurchaseDate is when the origin tax was paid; TransactionDate is now.
	// Both are needed only when the policy limits purchase age.
	PurchaseDate    *time.Time
	TransactionDate time.Time
}

// Result is the credit decision. FinalTax = DestinationTax - Credit and is
// never negative. ExcessCredit is origin tax a credit_full policy would have
// granted beyond the destination tax; it is forfeited, not refunded.
type Result struct {
	Policy          taxrules.Policy `json:"policy"`
	PolicyIsDefault bool            `json:"policy_is_default"`
	Applied         bool            `json:"applied"`
	Reason          string          `json:"reason"`
	Credit          money.Money     `json:"credit"`
	ExcessCredit    money.Money     `json:"excess_credit"`
	FinalTax        money.Money     `json:"final_tax"`
	ProofRequired   bool            `json:"proof_required"`
}

// Engine looks up policies in one rule snapshot.
type Engine struct {
	rules *taxrules.Snapshot
}

// NewEngine creates an Engine over snap.
func NewEngine(snap *taxrules.Snapshot) *Engine {
	return &Engine{rules: snap}
}

// Apply computes the credit for in. A pair without a configured policy
// falls back to the default policy; with no default it is an error.
func (e *Engine) Apply(in Input) (Result, error) {
	in.Origin = strings.ToUpper(strings.TrimSpace(in.Origin))
	in.Destination = strings.ToUpper(strings.TrimSpace(in.Destination))
	in.HomeState = strings.ToUpper(strings.TrimSpace(in.HomeState))

	if len(in.Origin) != 2 {
		return Result{}, calcerr.Invalid("reciprocity.origin_state", "origin state %q must be a two-letter code", in.Origin)
	}
	if len(in.Destination) != 2 {
		return Result{}, calcerr.Invalid("reciprocity.destination_state", "destination state %q must be a two-letter code", in.Destination)
	}
	if in.OriginTaxPaid.IsNegative() {
		return Result{}, calcerr.Invalid("reciprocity.origin_tax_paid", "must not be negative")
	}
	if in.DestinationTax.IsNegative() {
		return Result{}, calcerr.Invalid("reciprocity.destination_tax", "must not be negative")
	}

	dest := in.DestinationTax.Round()
	none := func(r Result, reason string) Result {
		r.Reason = reason
		r.Credit = money.Zero
		r.ExcessCredit = money.Zero
		r.FinalTax = dest
		return r
	}

	if in.Origin == in.Destination {
		return none(Result{}, ReasonSameState), nil
	}

	policy, isDefault, ok := e.rules.Policy(in.Origin, in.Destination)
	if !ok {
		return Result{}, calcerr.New(calcerr.ErrReciprocityPolicyMissing, "reciprocity",
			"no policy for %s to %s and no default", in.Origin, in.Destination)
	}
	r := Result{
		Policy:          policy,
		PolicyIsDefault: isDefault,
		ProofRequired:   policy.ProofRequired,
	}

	if !policy.Scope.Covers(in.Lease) {
		return none(r, ReasonScopeExcluded), nil
	}
	if policy.CreditMode == taxrules.CreditNone {
		return none(r, ReasonModeNone), nil
	}
	if in.OriginTaxPaid.IsZero() {
		return none(r, ReasonNoOriginTax), nil
	}
	if policy.MaxDaysSincePurchase > 0 {
		if in.PurchaseDate == nil {
			return Result{}, calcerr.Invalid("reciprocity.purchase_date",
				"required: %s to %s credits purchases within %d days", in.Origin, in.Destination, policy.MaxDaysSincePurchase)
		}
		if in.TransactionDate.IsZero() {
			return Result{}, calcerr.Invalid("transaction_date", "required to check the purchase age")
		}
		age := daysBetween(*in.PurchaseDate, in.TransactionDate)
		if age < 0 {
			return Result{}, calcerr.Invalid("reciprocity.purchase_date", "is after the transaction date")
		}
		if age > policy.MaxDaysSincePurchase {
			return none(r, ReasonPurchaseTooOld), nil
		}
	}

	paid := in.OriginTaxPaid.Round()
	switch policy.CreditMode {
	case taxrules.CreditUpToDestinationRate:
		r.Credit = money.Min(paid, dest)
	case taxrules.CreditFull:
		r.Credit = money.Min(paid, dest)
		r.ExcessCredit = paid.Sub(r.Credit)
	case taxrules.CreditHomeStateOnly:
		if in.HomeState == "" {
			return Result{}, calcerr.Invalid("reciprocity.home_state", "required by the %s to %s policy", in.Origin, in.Destination)
		}
		if in.HomeState != in.Destination {
			return none(r, ReasonNotHomeState), nil
		}
		r.Credit = money.Min(paid, dest)
	default:
		return Result{}, calcerr.New(calcerr.ErrReciprocityPolicyMissing, "reciprocity",
			"policy for %s to %s has unknown credit mode %q", in.Origin, in.Destination, policy.CreditMode)
	}
	if dest.IsZero() {
		if in.Lease {
			return none(r, ReasonNoUpfrontTax), nil
		}
		return none(r, ReasonNoDestinationTax), nil
	}

	r.Applied = r.Credit.IsPositive()
	r.Reason = ReasonCredited
	if paid.GreaterThan(dest) {
		r.Reason = ReasonCreditCapped
	}
	r.FinalTax = dest.Sub(r.Credit)
	return r, nil
}

func daysBetween(a, b time.Time) int {
	day := func(t time.Time) time.Time {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return int(day(b).Sub(day(a)).Hours() / 24)
}
