package tax

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/calcerr"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/jurisdiction"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/taxrules"
)

var m = money.MustParse

func resolve(t *testing.T, zip string) jurisdiction.Resolution {
	t.Helper()
	b, err := taxrules.EmbeddedSource{}.Load(context.Background())
	if err != nil {
		t.Fatalf("loading embedded rules: %v", err)
	}
	snap, err := taxrules.NewSnapshot(b)
	if err != nil {
		t.Fatalf("building snapshot: %v", err)
	}
	res, err := jurisdiction.NewResolver(snap).Resolve(jurisdiction.Address{PostalCode: zip})
	if err != nil {
		t.Fatalf("resolving %s: %v", zip, err)
	}
	return res
}

func calculate(t *testing.T, zip string, in Input) Breakdown {
	t.Helper()
	b, err := NewInterpreter().Calculate(resolve(t, zip), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Reconcile(); err != nil {
		t.Fatalf("breakdown does not reconcile: %v", err)
	}
	return b
}

func assertMoney(t *testing.T, what string, got money.Money, want string) {
	t.Helper()
	if !got.Equal(m(want)) {
		t.Errorf("expected %s %s, got %s", what, want, got)
	}
}

func date(s string) *time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestStandard_CaliforniaStackedLevels(t *testing.T) {
	b := calculate(t, "90012", Input{
		SellingPrice: m("30000"),
		TradeInValue: m("5000"),
	})

	assertMoney(t, "taxable base", b.TaxableBase, "25000.00")
	assertMoney(t, "trade-in credit", b.TradeInCredit, "5000.00")
	assertMoney(t, "trade-in tax credit", b.TradeInTaxCredit, "362.50")

	if len(b.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(b.Lines))
	}
	assertMoney(t, "state tax", b.Lines[0].Tax, "1812.50")
	assertMoney(t, "county tax", b.Lines[1].Tax, "250.00")
	assertMoney(t, "district tax", b.Lines[2].Tax, "312.50")
	assertMoney(t, "total tax", b.TotalTax, "2375.00")

	if b.State != "CA" || b.Method != taxrules.MethodStandard {
		t.Errorf("expected CA standard, got %s %s", b.State, b.Method)
	}
}

func TestStandard_TaxabilityTable(t *testing.T) {
	b := calculate(t, "90012", Input{
		SellingPrice: m("30000"),
		Fees: []Item{
			{Category: taxrules.CategoryDocFee, Amount: m("85")},
			{Category: taxrules.CategoryGovernmentFee, Amount: m("400")},
		},
		Products: []Item{
			{Category: taxrules.CategoryServiceContract, Amount: m("2000")},
		},
		Rebates: []Item{
			{Category: taxrules.CategoryManufacturerRebate, Amount: m("1000")},
			{Category: taxrules.CategoryDealerRebate, Amount: m("500")},
		},
	})

	assertMoney(t, "taxable fees", b.TaxableFees, "85.00")
	assertMoney(t, "taxable products", b.TaxableProducts, "0.00")
	assertMoney(t, "rebate adjustment", b.RebateAdjustment, "500.00")
	assertMoney(t, "taxable base", b.TaxableBase, "29585.00")

	// 29585 x 9.5% = 2810.575; the lines round to 2810.57 and the
	// residual cent lands on the state line.
	assertMoney(t, "total tax", b.TotalTax, "2810.58")
	assertMoney(t, "state tax", b.Lines[0].Tax, "2144.92")
	assertMoney(t, "county tax", b.Lines[1].Tax, "295.85")
	assertMoney(t, "district tax", b.Lines[2].Tax, "369.81")
}

func TestStandard_NegativeBaseClampsToZero(t *testing.T) {
	b := calculate(t, "90012", Input{
		SellingPrice: m("3000"),
		TradeInValue: m("5000"),
	})

	assertMoney(t, "taxable base", b.TaxableBase, "0.00")
	assertMoney(t, "total tax", b.TotalTax, "0.00")
	for _, l := range b.Lines {
		if l.Tax.IsNegative() {
			t.Errorf("line %s has negative tax %s", l.Name, l.Tax)
		}
	}
}

func TestStandard_LevelCap(t *testing.T) {
	b := calculate(t, "33101", Input{SellingPrice: m("20000")})

	assertMoney(t, "state tax", b.Lines[0].Tax, "1200.00")
	assertMoney(t, "county base", b.Lines[1].Base, "5000.00")
	assertMoney(t, "county tax", b.Lines[1].Tax, "50.00")
	assertMoney(t, "total tax", b.TotalTax, "1250.00")
}

func TestStandard_CombinedState(t *testing.T) {
	b := calculate(t, "78701", Input{
		SellingPrice: m("30000"),
		TradeInValue: m("5000"),
	})

	if len(b.Lines) != 1 {
		t.Fatalf("expected a single combined line, got %d", len(b.Lines))
	}
	assertMoney(t, "total tax", b.TotalTax, "1562.50")
}

func TestStandard_PerLineRounding(t *testing.T) {
	b := calculate(t, "10001", Input{SellingPrice: m("333.33")})

	want := []string{"13.33", "15.00", "1.25"}
	for i, w := range want {
		assertMoney(t, b.Lines[i].Name, b.Lines[i].Tax, w)
	}
	assertMoney(t, "total tax", b.TotalTax, "29.58")
}

func TestTitleAdValorem(t *testing.T) {
	t.Run("full price, no trade-in credit", func(t *testing.T) {
		b := calculate(t, "30303", Input{
			SellingPrice: m("30000"),
			TradeInValue: m("5000"),
			Rebates:      []Item{{Category: taxrules.CategoryDealerRebate, Amount: m("1000")}},
		})
		assertMoney(t, "total tax", b.TotalTax, "2100.00")
		assertMoney(t, "trade-in credit", b.TradeInCredit, "0.00")
		if len(b.Lines) != 1 {
			t.Errorf("expected a single line, got %d", len(b.Lines))
		}
		if !b.EffectiveRate().Equal(money.MustRate("0.07")) {
			t.Errorf("expected effective rate 0.07, got %s", b.EffectiveRate())
		}
	})

	t.Run("assessed value above price", func(t *testing.T) {
		assessed := m("32000")
		b := calculate(t, "30303", Input{SellingPrice: m("30000"), AssessedValue: &assessed})
		assertMoney(t, "taxable base", b.TaxableBase, "32000.00")
		assertMoney(t, "total tax", b.TotalTax, "2240.00")
	})

	t.Run("effective rate is constant", func(t *testing.T) {
		for _, price := range []string{"1000", "17500", "48200", "99999"} {
			b := calculate(t, "30303", Input{SellingPrice: m(price)})
			if !b.EffectiveRate().Equal(money.MustRate("0.07")) {
				t.Errorf("price %s: expected effective rate 0.07, got %s", price, b.EffectiveRate())
			}
		}
	})
}

func TestClassBanded(t *testing.T) {
	tests := []struct {
		name      string
		price     string
		condition taxrules.Condition
		want      string
		band      string
	}{
		{"new vehicle percentage", "30000", taxrules.ConditionNew, "975.00", "new vehicle excise"},
		{"cheap used vehicle flat", "1000", taxrules.ConditionUsed, "20.00", "used first 1500"},
		{"used vehicle flat plus excess", "10000", taxrules.ConditionUsed, "296.25", "used over 1500"},
		{"used at band edge", "1500", taxrules.ConditionUsed, "20.00", "used over 1500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := calculate(t, "73102", Input{
				SellingPrice: m(tt.price),
				TradeInValue: m("500"),
				Condition:    tt.condition,
			})
			assertMoney(t, "total tax", b.TotalTax, tt.want)
			if b.Band != tt.band {
				t.Errorf("expected band %q, got %q", tt.band, b.Band)
			}
		})
	}

	t.Run("condition required", func(t *testing.T) {
		_, err := NewInterpreter().Calculate(resolve(t, "73102"), Input{SellingPrice: m("10000")})
		if !errors.Is(err, calcerr.ErrInvalidInput) || calcerr.Field(err) != "condition" {
			t.Errorf("expected invalid condition, got %v", err)
		}
	})
}

func TestClassBanded_WeightBasis(t *testing.T) {
	res := resolve(t, "73102")
	upper := decimal.NewFromInt(4000)
	res.Rule.ClassBanded = &taxrules.ClassBanded{
		Basis: taxrules.BasisWeight,
		Bands: []taxrules.Band{
			{Name: "light", Condition: taxrules.ConditionAny, Min: decimal.Zero, Max: &upper, Flat: m("85")},
			{Name: "heavy", Condition: taxrules.ConditionAny, Min: upper, Flat: m("140")},
		},
	}

	b, err := NewInterpreter().Calculate(res, Input{SellingPrice: m("25000"), WeightLbs: decimal.NewFromInt(5200)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertMoney(t, "total tax", b.TotalTax, "140.00")

	_, err = NewInterpreter().Calculate(res, Input{SellingPrice: m("25000")})
	if !errors.Is(err, calcerr.ErrInvalidInput) || calcerr.Field(err) != "weight_lbs" {
		t.Errorf("expected missing weight error, got %v", err)
	}
}

func TestTimeWindowed(t *testing.T) {
	tests := []struct {
		name    string
		history UseHistory
		exempt  bool
		want    string
	}{
		{"bought in state", UseHistory{}, false, "1250.00"},
		{"used out of state long enough", UseHistory{AcquiredAt: date("2026-01-01"), EnteredStateAt: date("2026-08-01")}, true, "0.00"},
		{"used out of state briefly", UseHistory{AcquiredAt: date("2026-01-01"), EnteredStateAt: date("2026-03-01")}, false, "1250.00"},
		{"exactly at the window", UseHistory{AcquiredAt: date("2026-01-01"), EnteredStateAt: date("2026-06-30")}, true, "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := calculate(t, "02108", Input{
				SellingPrice:    m("20000"),
				TransactionDate: *date("2026-09-01"),
				History:         tt.history,
			})
			if b.Exempt != tt.exempt {
				t.Errorf("expected exempt=%v, got %v (%s)", tt.exempt, b.Exempt, b.ExemptReason)
			}
			assertMoney(t, "total tax", b.TotalTax, tt.want)
		})
	}

	t.Run("incomplete history", func(t *testing.T) {
		_, err := NewInterpreter().Calculate(resolve(t, "02108"), Input{
			SellingPrice: m("20000"),
			History:      UseHistory{AcquiredAt: date("2026-01-01")},
		})
		if !errors.Is(err, calcerr.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestTimeWindowed_PriorInStateWithin(t *testing.T) {
	res := resolve(t, "02108")
	res.Rule.TimeWindowed = &taxrules.TimeWindowed{WindowDays: 90, Predicate: taxrules.PredicatePriorInStateWithin}

	in := Input{
		SellingPrice:    m("20000"),
		TransactionDate: *date("2026-09-01"),
		History:         UseHistory{LastInStateRegistration: date("2026-07-01")},
	}
	b, err := NewInterpreter().Calculate(res, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.Exempt {
		t.Error("expected a recent in-state registration to exempt the vehicle")
	}

	in.History.LastInStateRegistration = date("2025-01-01")
	b, err = NewInterpreter().Calculate(res, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Exempt {
		t.Error("expected an old registration not to exempt the vehicle")
	}
}

func TestCalculate_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"negative price", Input{SellingPrice: m("-1")}, "selling_price"},
		{"missing price", Input{TradeInValue: m("5000")}, "selling_price"},
		{"negative trade-in", Input{SellingPrice: m("1"), TradeInValue: m("-1")}, "trade_in_value"},
		{"unknown category", Input{SellingPrice: m("1"), Fees: []Item{{Category: "floor_mats", Amount: m("1")}}}, "fees[0]"},
		{"rebate listed as fee", Input{SellingPrice: m("1"), Fees: []Item{{Category: taxrules.CategoryDealerRebate, Amount: m("1")}}}, "fees[0]"},
		{"fee listed as rebate", Input{SellingPrice: m("1"), Rebates: []Item{{Category: taxrules.CategoryDocFee, Amount: m("1")}}}, "rebates[0]"},
		{"negative product", Input{SellingPrice: m("1"), Products: []Item{{Category: taxrules.CategoryAccessory, Amount: m("-5")}}}, "products[0]"},
		{"unknown condition", Input{SellingPrice: m("1"), Condition: "salvage"}, "condition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInterpreter().Calculate(resolve(t, "90012"), tt.in)
			if !errors.Is(err, calcerr.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if got := calcerr.Field(err); got != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, got)
			}
		})
	}
}

func TestCalculate_MissingTaxabilityEntry(t *testing.T) {
	res := resolve(t, "90012")
	delete(res.Rule.Taxability, taxrules.CategoryDocFee)

	_, err := NewInterpreter().Calculate(res, Input{
		SellingPrice: m("100"),
		Fees:         []Item{{Category: taxrules.CategoryDocFee, Amount: m("85")}},
	})
	if !errors.Is(err, calcerr.ErrUnsupportedState) {
		t.Errorf("expected ErrUnsupportedState, got %v", err)
	}
}

func TestCalculate_MonotonicInPrice(t *testing.T) {
	zips := []string{"90012", "94103", "33101", "10001", "78701", "30303", "02108"}
	for _, zip := range zips {
		t.Run(zip, func(t *testing.T) {
			res := resolve(t, zip)
			prev := money.Zero
			for cents := int64(1); cents <= 6_000_000; cents += 77_777 {
				b, err := NewInterpreter().Calculate(res, Input{
					SellingPrice: money.FromCents(cents),
					TradeInValue: m("2500"),
					Fees:         []Item{{Category: taxrules.CategoryDocFee, Amount: m("85")}},
				})
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if err := b.Reconcile(); err != nil {
					t.Fatalf("price %s: %v", money.FromCents(cents), err)
				}
				if b.TotalTax.LessThan(prev) {
					t.Fatalf("price %s: tax %s dropped below %s", money.FromCents(cents), b.TotalTax, prev)
				}
				prev = b.TotalTax
			}
		})
	}
}

func TestBreakdown_ApplyCredit(t *testing.T) {
	b := calculate(t, "90012", Input{SellingPrice: m("10000")})
	gross := b.GrossTax

	b.ApplyCredit(m("300"))
	assertMoney(t, "credit", b.ReciprocityCredit, "300.00")
	if !b.TotalTax.Equal(gross.Sub(m("300"))) {
		t.Errorf("expected total %s, got %s", gross.Sub(m("300")), b.TotalTax)
	}

	b.ApplyCredit(m("99999"))
	if !b.TotalTax.IsZero() || !b.ReciprocityCredit.Equal(gross) {
		t.Errorf("expected credit capped at gross, got credit %s total %s", b.ReciprocityCredit, b.TotalTax)
	}
	if err := b.Reconcile(); err != nil {
		t.Errorf("unexpected reconcile error: %v", err)
	}
}

func TestLeaseRate(t *testing.T) {
	tests := []struct {
		zip  string
		want string
	}{
		{"90012", "0.095"},
		{"78701", "0.0625"},
		{"30303", "0.07"},
		{"02108", "0.0625"},
	}
	for _, tt := range tests {
		rate, err := LeaseRate(resolve(t, tt.zip))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.zip, err)
		}
		if !rate.Equal(money.MustRate(tt.want)) {
			t.Errorf("%s: expected %s, got %s", tt.zip, tt.want, rate)
		}
	}

	if _, err := LeaseRate(resolve(t, "73102")); !errors.Is(err, calcerr.ErrUnsupportedState) {
		t.Errorf("expected class-banded lease to be unsupported, got %v", err)
	}
}
