// Package deal is the entry point of the calculation engine. An Engine reads
// the current rule snapshot once per quote, so a concurrent reload never mixes
// two rule versions within one result, and returns deterministic results:
// identical requests against identical rules produce identical output,
// including the calculation ID.
package deal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/finance"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/jurisdiction"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/lease"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/reciprocity"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/tax"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/taxrules"
)

// ErrRulesNotLoaded is returned when no rule snapshot has been installed yet.
var ErrRulesNotLoaded = errors.New("rules not loaded")

// calculationNamespace scopes the name-based calculation IDs.
var calculationNamespace = uuid.MustParse("6f1c5e0a-8d2b-4c61-9a8e-3b7d2f5c9e14")

// Engine computes tax, finance and lease quotes.
type Engine struct {
	store  *taxrules.Store
	interp *tax.Interpreter
}

// NewEngine creates an Engine reading rules from store.
func NewEngine(store *taxrules.Store) *Engine {
	return &Engine{
		store:  store,
		interp: tax.NewInterpreter(),
	}
}

func (e *Engine) snapshot() (*taxrules.Snapshot, error) {
	snap := e.store.Snapshot()
	if snap == nil {
		return nil, ErrRulesNotLoaded
	}
	return snap, nil
}

// Version identifies the loaded rules, or "" before the first load.
func (e *Engine) Version() string {
	if snap := e.store.Snapshot(); snap != nil {
		return snap.Version()
	}
	return ""
}

// SupportedStates lists the states with an implemented rule module.
func (e *Engine) SupportedStates() []string {
	if snap := e.store.Snapshot(); snap != nil {
		return snap.SupportedStates()
	}
	return nil
}

// Rules describes the loaded snapshot.
func (e *Engine) Rules() (RulesInfo, error) {
	snap, err := e.snapshot()
	if err != nil {
		return RulesInfo{}, err
	}
	return RulesInfo{
		Version:         snap.Version(),
		DeclaredVersion: snap.DeclaredVersion(),
		SupportedStates: snap.SupportedStates(),
		StubStates:      snap.StubStates(),
		Jurisdictions:   snap.JurisdictionCount(),
	}, nil
}

// QuoteTax computes a standalone tax quote.
func (e *Engine) QuoteTax(req TaxRequest) (TaxResult, error) {
	if err := req.Reciprocity.validate(); err != nil {
		return TaxResult{}, err
	}
	snap, err := e.snapshot()
	if err != nil {
		return TaxResult{}, err
	}

	res, err := e.quoteTax(snap, req)
	if err != nil {
		return TaxResult{}, err
	}
	res.CalculationID, err = calculationID(snap, "tax", req)
	if err != nil {
		return TaxResult{}, err
	}
	return res, nil
}

func (e *Engine) quoteTax(snap *taxrules.Snapshot, req TaxRequest) (TaxResult, error) {
	res, err := jurisdiction.NewResolver(snap).Resolve(req.Address)
	if err != nil {
		return TaxResult{}, err
	}

	b, err := e.interp.Calculate(res, req.Input)
	if err != nil {
		return TaxResult{}, err
	}

	out := TaxResult{
		RulesVersion: snap.Version(),
		Address:      res.Address,
	}

	if c := req.Reciprocity; c != nil {
		rr, err := reciprocity.NewEngine(snap).Apply(reciprocity.Input{
			Origin:          c.OriginState,
			Destination:     res.State(),
			HomeState:       c.HomeState,
			OriginTaxPaid:   c.OriginTaxPaid,
			DestinationTax:  b.GrossTax,
			PurchaseDate:    c.PurchaseDate,
			TransactionDate: req.TransactionDate,
		})
		if err != nil {
			return TaxResult{}, err
		}
		b.ApplyCredit(rr.Credit)
		out.Reciprocity = &rr
	}

	if err := b.Reconcile(); err != nil {
		return TaxResult{}, fmt.Errorf("tax breakdown for %s: %w", res.State(), err)
	}

	out.Breakdown = b
	out.TotalTax = b.TotalTax
	return out, nil
}

// QuoteFinance taxes the deal and amortizes the amount financed.
func (e *Engine) QuoteFinance(req FinanceRequest) (FinanceResult, error) {
	if err := req.validate(); err != nil {
		return FinanceResult{}, err
	}
	snap, err := e.snapshot()
	if err != nil {
		return FinanceResult{}, err
	}

	taxRes, err := e.quoteTax(snap, req.TaxRequest)
	if err != nil {
		return FinanceResult{}, err
	}

	fin, err := finance.Calculate(finance.Request{
		Components: finance.Components{
			VehiclePrice:   req.SellingPrice,
			TotalTax:       taxRes.TotalTax,
			TotalFees:      sumItems(req.Fees),
			Aftermarket:    sumItems(req.Products),
			TradePayoff:    req.TradePayoff,
			DownPayment:    req.DownPayment,
			Rebates:        sumItems(req.Rebates),
			TradeAllowance: req.TradeInValue,
		},
		AnnualRate:       req.AnnualRate,
		TermMonths:       req.TermMonths,
		FirstPaymentDate: req.FirstPaymentDate,
		BuyRate:          req.BuyRate,
	})
	if err != nil {
		return FinanceResult{}, err
	}

	id, err := calculationID(snap, "finance", req)
	if err != nil {
		return FinanceResult{}, err
	}
	taxRes.CalculationID = id
	return FinanceResult{
		CalculationID: id,
		RulesVersion:  snap.Version(),
		Tax:           taxRes,
		Finance:       fin,
	}, nil
}

// QuoteLease prices a lease under the destination state's lease tax method.
// A reciprocity claim is credited against the tax due at signing.
func (e *Engine) QuoteLease(req LeaseRequest) (LeaseResult, error) {
	if err := req.validate(); err != nil {
		return LeaseResult{}, err
	}
	snap, err := e.snapshot()
	if err != nil {
		return LeaseResult{}, err
	}

	res, err := jurisdiction.NewResolver(snap).Resolve(req.Address)
	if err != nil {
		return LeaseResult{}, err
	}
	rate, err := tax.LeaseRate(res)
	if err != nil {
		return LeaseResult{}, err
	}

	equity := req.TradeInValue.Sub(req.TradePayoff)
	terms := lease.Terms{
		MSRP:                req.MSRP,
		SellingPrice:        req.SellingPrice,
		CapitalizedFees:     req.CapitalizedFees,
		CapitalizedProducts: req.CapitalizedProducts,
		CashDown:            req.CashDown,
		Rebates:             req.Rebates,
		TradeEquity:         equity.ClampZero(),
		NegativeEquity:      equity.Neg().ClampZero(),
		ResidualPercent:     req.ResidualPercent,
		MoneyFactor:         req.MoneyFactor,
		APRPercent:          req.APRPercent,
		TermMonths:          req.TermMonths,
		TaxRate:             rate,
		TaxMethod:           res.Rule.LeaseTaxMethod,
		TaxCapReduction:     res.Rule.LeaseTaxesCapReduction,
		NonCapitalizedFees:  req.NonCapitalizedFees,
		SecurityDeposit:     req.SecurityDeposit,
		FirstPaymentDate:    req.FirstPaymentDate,
	}
	priced, err := lease.Calculate(terms)
	if err != nil {
		return LeaseResult{}, err
	}

	out := LeaseResult{
		RulesVersion: snap.Version(),
		Address:      res.Address,
		State:        res.State(),
	}

	if c := req.Reciprocity; c != nil {
		rr, err := reciprocity.NewEngine(snap).Apply(reciprocity.Input{
			Origin:          c.OriginState,
			Destination:     res.State(),
			HomeState:       c.HomeState,
			OriginTaxPaid:   c.OriginTaxPaid,
			DestinationTax:  priced.TaxDueAtSigning(),
			Lease:           true,
			PurchaseDate:    c.PurchaseDate,
			TransactionDate: req.TransactionDate,
		})
		if err != nil {
			return LeaseResult{}, err
		}
		priced.ApplyCredit(rr.Credit)
		out.Reciprocity = &rr
	}
	out.Lease = priced

	out.CalculationID, err = calculationID(snap, "lease", req)
	if err != nil {
		return LeaseResult{}, err
	}
	return out, nil
}

func sumItems(items []tax.Item) money.Money {
	total := money.Zero
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return total
}

// calculationID derives a name-based UUID from the rules version, the quote
// kind and the canonical JSON of the request.
func calculationID(snap *taxrules.Snapshot, kind string, req any) (string, error) {
	canonical, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding %s request: %w", kind, err)
	}
	name := make([]byte, 0, len(canonical)+64)
	name = append(name, snap.Version()...)
	name = append(name, '\n')
	name = append(name, kind...)
	name = append(name, '\n')
	name = append(name, canonical...)
	return uuid.NewSHA1(calculationNamespace, name).String(), nil
}
