// Package finance derives retail installment figures: amount financed,
// level monthly payment, amortization schedule and dealer reserve.
package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/calcerr"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
)

// powPrecision bounds the fractional digits kept while compounding the
// periodic rate.
const powPrecision = 24

// MaxTermMonths is the longest term accepted.
const MaxTermMonths = 120

// Components are the deal amounts that make up the amount financed.
type Components struct {
	VehiclePrice   money.Money `json:"vehicle_price"`
	TotalTax       money.Money `json:"total_tax"`
	TotalFees      money.Money `json:"total_fees"`
	Aftermarket    money.Money `json:"aftermarket_products"`
	TradePayoff    money.Money `json:"trade_payoff"`
	DownPayment    money.Money `json:"down_payment"`
	Rebates        money.Money `json:"rebates"`
	TradeAllowance money.Money `json:"trade_allowance"`
}

// AmountFinanced applies
//
//	price + tax + fees + aftermarket + trade payoff - down payment - rebates - trade allowance
//
// and rounds to cents. A negative result is ErrNegativeAmountFinanced.
func AmountFinanced(c Components) (money.Money, error) {
	fields := []struct {
		name string
		v    money.Money
	}{
		{"vehicle_price", c.VehiclePrice},
		{"total_tax", c.TotalTax},
		{"total_fees", c.TotalFees},
		{"aftermarket_products", c.Aftermarket},
		{"trade_payoff", c.TradePayoff},
		{"down_payment", c.DownPayment},
		{"rebates", c.Rebates},
		{"trade_allowance", c.TradeAllowance},
	}
	for _, f := range fields {
		if f.v.IsNegative() {
			return money.Zero, calcerr.Invalid(f.name, "must not be negative")
		}
	}

	amount := money.Sum(c.VehiclePrice, c.TotalTax, c.TotalFees, c.Aftermarket, c.TradePayoff).
		Sub(money.Sum(c.DownPayment, c.Rebates, c.TradeAllowance)).
		Round()
	if amount.IsNegative() {
		return money.Zero, calcerr.New(calcerr.ErrNegativeAmountFinanced, "down_payment",
			"deductions exceed the financed total by %s", amount.Neg())
	}
	return amount, nil
}

// Terms is a loan to amortize.
type Terms struct {
	AmountFinanced money.Money
	AnnualRate     money.Rate
	TermMonths     int
}

func (t Terms) validate() error {
	if t.TermMonths <= 0 {
		return calcerr.New(calcerr.ErrInvalidTerm, "term_months", "must be positive, got %d", t.TermMonths)
	}
	if t.TermMonths > MaxTermMonths {
		return calcerr.New(calcerr.ErrInvalidTerm, "term_months", "must not exceed %d, got %d", MaxTermMonths, t.TermMonths)
	}
	if t.AmountFinanced.IsNegative() {
		return calcerr.New(calcerr.ErrNegativeAmountFinanced, "amount_financed", "got %s", t.AmountFinanced)
	}
	if t.AnnualRate.IsNegative() {
		return calcerr.Invalid("annual_rate", "must not be negative")
	}
	return nil
}

// Payment is the level monthly payment, rounded to cents. A zero rate
// divides the principal evenly; otherwise
//
//	P * r(1+r)^n / ((1+r)^n - 1),  r = annual rate / 12
func Payment(t Terms) (money.Money, error) {
	if err := t.validate(); err != nil {
		return money.Zero, err
	}
	return payment(t), nil
}

func payment(t Terms) money.Money {
	principal := t.AmountFinanced.Round()
	if t.AnnualRate.IsZero() {
		return principal.Div(int64(t.TermMonths)).Round()
	}

	r := t.AnnualRate.Per(12).Decimal()
	growth := pow(decimal.NewFromInt(1).Add(r), t.TermMonths)
	factor := r.Mul(growth).DivRound(growth.Sub(decimal.NewFromInt(1)), powPrecision)
	return money.FromDecimal(principal.Decimal().Mul(factor)).Round()
}

// pow raises x to n by repeated multiplication, truncating each step so the
// result is identical on every platform.
func pow(x decimal.Decimal, n int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for i := 0; i < n; i++ {
		result = result.Mul(x).Truncate(powPrecision)
	}
	return result
}

// Period is one row of an amortization schedule.
type Period struct {
	Number    int         `json:"number"`
	DueDate   *time.Time  `json:"due_date,omitempty"`
	Payment   money.Money `json:"payment"`
	Interest  money.Money `json:"interest"`
	Principal money.Money `json:"principal"`
	Balance   money.Money `json:"balance"`
}

// Schedule amortizes t. Interest accrues on the outstanding balance each
// period and is rounded to cents; the final period pays off whatever balance
// remains, so the ending balance is exactly zero and the principal column
// sums to the amount financed. firstDue, when set, dates each period one
// calendar month apart.
func Schedule(t Terms, firstDue *time.Time) ([]Period, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	pmt := payment(t)
	r := t.AnnualRate.Per(12)
	balance := t.AmountFinanced.Round()

	periods := make([]Period, t.TermMonths)
	for i := range periods {
		interest := balance.MulRate(r).Round()
		principal := pmt.Sub(interest)
		if i == len(periods)-1 || principal.GreaterThan(balance) {
			principal = balance
		}
		balance = balance.Sub(principal)

		periods[i] = Period{
			Number:    i + 1,
			Payment:   principal.Add(interest),
			Interest:  interest,
			Principal: principal,
			Balance:   balance,
		}
		if firstDue != nil {
			due := AddMonths(*firstDue, i)
			periods[i].DueDate = &due
		}
	}
	return periods, nil
}

// AddMonths adds n calendar months, clamping to the last day of a shorter
// month (Jan 31 + 1 month is Feb 28 or 29).
func AddMonths(t time.Time, n int) time.Time {
	y, mo, d := t.Date()
	first := time.Date(y, mo+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// DealerReserve is the dealer's participation in the finance charge:
//
//	amount financed * (sell rate - buy rate) / 12 * term
//
// A sell rate below the buy rate is invalid.
func DealerReserve(amount money.Money, sellRate, buyRate money.Rate, termMonths int) (money.Money, error) {
	if termMonths <= 0 {
		return money.Zero, calcerr.New(calcerr.ErrInvalidTerm, "term_months", "must be positive, got %d", termMonths)
	}
	if buyRate.IsNegative() {
		return money.Zero, calcerr.Invalid("buy_rate", "must not be negative")
	}
	if sellRate.LessThan(buyRate) {
		return money.Zero, calcerr.Invalid("buy_rate", "buy rate %s exceeds sell rate %s", buyRate, sellRate)
	}
	spread := sellRate.Sub(buyRate)
	return amount.MulRate(spread).Mul(int64(termMonths)).Div(12).Round(), nil
}

// Request is a complete finance quote request.
type Request struct {
	Components       Components
	AnnualRate       money.Rate
	TermMonths       int
	FirstPaymentDate *time.Time
	// BuyRate is the lender's rate; when set the dealer reserve is computed
	// against AnnualRate as the sell rate.
	BuyRate *money.Rate
}

// Result is a complete finance quote.
type Result struct {
	AmountFinanced  money.Money `json:"amount_financed"`
	AnnualRate      money.Rate  `json:"annual_rate"`
	TermMonths      int         `json:"term_months"`
	Payment         money.Money `json:"monthly_payment"`
	FinalPayment    money.Money `json:"final_payment"`
	TotalOfPayments money.Money `json:"total_of_payments"`
	FinanceCharge   money.Money `json:"finance_charge"`
	DealerReserve   money.Money `json:"dealer_reserve"`
	Schedule        []Period    `json:"schedule"`
}

// Calculate derives the amount financed and amortizes it.
func Calculate(req Request) (Result, error) {
	amount, err := AmountFinanced(req.Components)
	if err != nil {
		return Result{}, err
	}
	terms := Terms{AmountFinanced: amount, AnnualRate: req.AnnualRate, TermMonths: req.TermMonths}

	schedule, err := Schedule(terms, req.FirstPaymentDate)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		AmountFinanced: amount,
		AnnualRate:     req.AnnualRate,
		TermMonths:     req.TermMonths,
		Payment:        payment(terms),
		FinalPayment:   schedule[len(schedule)-1].Payment,
		Schedule:       schedule,
	}
	for _, p := range schedule {
		res.TotalOfPayments = res.TotalOfPayments.Add(p.Payment)
		res.FinanceCharge = res.FinanceCharge.Add(p.Interest)
	}

	if req.BuyRate != nil {
		res.DealerReserve, err = DealerReserve(amount, req.AnnualRate, *req.BuyRate, req.TermMonths)
		if err != nil {
			return Result{}, err
		}
	}
	return res, nil
}
