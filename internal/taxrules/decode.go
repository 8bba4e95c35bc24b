package taxrules

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
)

// document is the on-disk YAML shape. Amounts and rates are quoted strings so
// no value passes through a float on the way in.
type document struct {
	Version       string          `yaml:"version"`
	Jurisdictions []zipDoc        `yaml:"jurisdictions"`
	States        []stateDoc      `yaml:"states"`
	Reciprocity   *reciprocityDoc `yaml:"reciprocity"`
}

type zipDoc struct {
	PostalCode string     `yaml:"postal_code"`
	State      string     `yaml:"state"`
	County     string     `yaml:"county"`
	City       string     `yaml:"city"`
	Levels     []levelDoc `yaml:"levels"`
}

type levelDoc struct {
	Level            string `yaml:"level"`
	Name             string `yaml:"name"`
	Rate             string `yaml:"rate"`
	MaxTaxableAmount string `yaml:"max_taxable_amount"`
}

type stateDoc struct {
	State    string `yaml:"state"`
	Name     string `yaml:"name"`
	Status   string `yaml:"status"`
	Method   string `yaml:"method"`
	Stacking string `yaml:"stacking"`
	Rounding string `yaml:"rounding"`

	TradeIn struct {
		Allowed bool   `yaml:"allowed"`
		Cap     string `yaml:"cap"`
	} `yaml:"trade_in"`

	Taxability map[string]bool `yaml:"taxability"`

	Lease struct {
		TaxMethod         string `yaml:"tax_method"`
		TaxesCapReduction bool   `yaml:"taxes_cap_reduction"`
	} `yaml:"lease"`

	TitleAdValorem *struct {
		Rate string `yaml:"rate"`
	} `yaml:"title_ad_valorem"`

	ClassBanded *struct {
		Basis string    `yaml:"basis"`
		Bands []bandDoc `yaml:"bands"`
	} `yaml:"class_banded"`

	TimeWindowed *struct {
		WindowDays int    `yaml:"window_days"`
		Predicate  string `yaml:"predicate"`
	} `yaml:"time_windowed"`
}

type bandDoc struct {
	Name      string `yaml:"name"`
	Condition string `yaml:"condition"`
	Min       string `yaml:"min"`
	Max       string `yaml:"max"`
	Flat      string `yaml:"flat"`
	Rate      string `yaml:"rate"`
	Over      string `yaml:"over"`
}

type policyDoc struct {
	Origin               string `yaml:"origin"`
	Destination          string `yaml:"destination"`
	CreditMode           string `yaml:"credit_mode"`
	Scope                string `yaml:"scope"`
	ProofRequired        bool   `yaml:"proof_required"`
	MaxDaysSincePurchase int    `yaml:"max_days_since_purchase"`
}

type reciprocityDoc struct {
	Default *policyDoc  `yaml:"default"`
	Pairs   []policyDoc `yaml:"pairs"`
}

// DecodeYAML merges one or more YAML documents into a Bundle. Each document may
// carry any subset of the sections; at most one distinct version may appear.
// The result is not validated; NewSnapshot does that.
func DecodeYAML(docs ...[]byte) (*Bundle, error) {
	merged := document{}
	for i, raw := range docs {
		var doc document
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decoding rule document %d: %w", i, err)
		}
		if doc.Version != "" {
			if merged.Version != "" && merged.Version != doc.Version {
				return nil, fmt.Errorf("conflicting bundle versions %q and %q", merged.Version, doc.Version)
			}
			merged.Version = doc.Version
		}
		merged.Jurisdictions = append(merged.Jurisdictions, doc.Jurisdictions...)
		merged.States = append(merged.States, doc.States...)
		if doc.Reciprocity != nil {
			if merged.Reciprocity == nil {
				merged.Reciprocity = &reciprocityDoc{}
			}
			if doc.Reciprocity.Default != nil {
				if merged.Reciprocity.Default != nil {
					return nil, fmt.Errorf("reciprocity default policy declared twice")
				}
				merged.Reciprocity.Default = doc.Reciprocity.Default
			}
			merged.Reciprocity.Pairs = append(merged.Reciprocity.Pairs, doc.Reciprocity.Pairs...)
		}
	}
	return merged.toBundle()
}

// Document is one raw rule file.
type Document struct {
	Name string
	Data []byte
}

// readDocuments reads every .yaml/.yml file in dir, in name order.
func readDocuments(fsys fs.FS, dir string) ([]Document, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("listing rule directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isRuleFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no rule documents in %s", dir)
	}
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		b, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		docs = append(docs, Document{Name: name, Data: b})
	}
	return docs, nil
}

func isRuleFile(name string) bool {
	ext := path.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

func decodeDocuments(docs []Document) (*Bundle, error) {
	raw := make([][]byte, len(docs))
	for i, d := range docs {
		raw[i] = d.Data
	}
	return DecodeYAML(raw...)
}

func (d document) toBundle() (*Bundle, error) {
	b := &Bundle{Version: strings.TrimSpace(d.Version)}

	for _, z := range d.Jurisdictions {
		entry := ZipEntry{
			PostalCode: strings.TrimSpace(z.PostalCode),
			State:      strings.ToUpper(strings.TrimSpace(z.State)),
			County:     z.County,
			City:       z.City,
		}
		for i, l := range z.Levels {
			rate, err := money.ParseRate(l.Rate)
			if err != nil {
				return nil, fmt.Errorf("zip %s level %d: rate: %w", entry.PostalCode, i, err)
			}
			limit, err := optionalMoney(l.MaxTaxableAmount)
			if err != nil {
				return nil, fmt.Errorf("zip %s level %d: max_taxable_amount: %w", entry.PostalCode, i, err)
			}
			entry.Levels = append(entry.Levels, LevelRate{
				Level:            Level(l.Level),
				Name:             l.Name,
				Rate:             rate,
				MaxTaxableAmount: limit,
			})
		}
		b.Jurisdictions = append(b.Jurisdictions, entry)
	}

	for _, s := range d.States {
		rule, err := s.toRule()
		if err != nil {
			return nil, err
		}
		b.States = append(b.States, rule)
	}

	if d.Reciprocity != nil {
		if d.Reciprocity.Default != nil {
			p := d.Reciprocity.Default.toPolicy()
			b.Reciprocity.Default = &p
		}
		for _, p := range d.Reciprocity.Pairs {
			b.Reciprocity.Pairs = append(b.Reciprocity.Pairs, p.toPolicy())
		}
	}

	return b, nil
}

func (s stateDoc) toRule() (StateRule, error) {
	code := strings.ToUpper(strings.TrimSpace(s.State))
	rule := StateRule{
		State:                  code,
		Name:                   s.Name,
		Status:                 Status(orDefault(s.Status, string(StatusImplemented))),
		Method:                 TaxMethod(s.Method),
		Stacking:               Stacking(orDefault(s.Stacking, string(StackingStacked))),
		Rounding:               Rounding(orDefault(s.Rounding, string(RoundingTotal))),
		LeaseTaxMethod:         LeaseTaxMethod(orDefault(s.Lease.TaxMethod, string(LeasePaymentBased))),
		LeaseTaxesCapReduction: s.Lease.TaxesCapReduction,
		Taxability:             make(map[Category]bool, len(s.Taxability)),
	}

	rule.TradeIn.Allowed = s.TradeIn.Allowed
	limit, err := optionalMoney(s.TradeIn.Cap)
	if err != nil {
		return StateRule{}, fmt.Errorf("state %s: trade_in.cap: %w", code, err)
	}
	rule.TradeIn.Cap = limit

	for k, v := range s.Taxability {
		rule.Taxability[Category(k)] = v
	}

	if s.TitleAdValorem != nil {
		rate, err := money.ParseRate(s.TitleAdValorem.Rate)
		if err != nil {
			return StateRule{}, fmt.Errorf("state %s: title_ad_valorem.rate: %w", code, err)
		}
		rule.TitleAdValorem = &TitleAdValorem{Rate: rate}
	}

	if s.ClassBanded != nil {
		cb := &ClassBanded{Basis: Basis(s.ClassBanded.Basis)}
		for i, bd := range s.ClassBanded.Bands {
			band, err := bd.toBand()
			if err != nil {
				return StateRule{}, fmt.Errorf("state %s: band %d: %w", code, i, err)
			}
			cb.Bands = append(cb.Bands, band)
		}
		rule.ClassBanded = cb
	}

	if s.TimeWindowed != nil {
		rule.TimeWindowed = &TimeWindowed{
			WindowDays: s.TimeWindowed.WindowDays,
			Predicate:  Predicate(s.TimeWindowed.Predicate),
		}
	}

	return rule, nil
}

func (bd bandDoc) toBand() (Band, error) {
	band := Band{
		Name:      bd.Name,
		Condition: Condition(orDefault(bd.Condition, string(ConditionAny))),
	}

	var err error
	if band.Min, err = decimalOrZero(bd.Min); err != nil {
		return Band{}, fmt.Errorf("min: %w", err)
	}
	if band.Over, err = decimalOrZero(bd.Over); err != nil {
		return Band{}, fmt.Errorf("over: %w", err)
	}
	if strings.TrimSpace(bd.Max) != "" {
		upper, err := decimal.NewFromString(strings.TrimSpace(bd.Max))
		if err != nil {
			return Band{}, fmt.Errorf("max: %w", err)
		}
		band.Max = &upper
	}
	if strings.TrimSpace(bd.Flat) != "" {
		if band.Flat, err = money.Parse(bd.Flat); err != nil {
			return Band{}, fmt.Errorf("flat: %w", err)
		}
	}
	if strings.TrimSpace(bd.Rate) != "" {
		if band.Rate, err = money.ParseRate(bd.Rate); err != nil {
			return Band{}, fmt.Errorf("rate: %w", err)
		}
	}
	return band, nil
}

func (p policyDoc) toPolicy() Policy {
	return Policy{
		Origin:               strings.ToUpper(strings.TrimSpace(p.Origin)),
		Destination:          strings.ToUpper(strings.TrimSpace(p.Destination)),
		CreditMode:           CreditMode(p.CreditMode),
		Scope:                Scope(orDefault(p.Scope, string(ScopeBoth))),
		ProofRequired:        p.ProofRequired,
		MaxDaysSincePurchase: p.MaxDaysSincePurchase,
	}
}

func optionalMoney(s string) (*money.Money, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	m, err := money.Parse(s)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func decimalOrZero(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
