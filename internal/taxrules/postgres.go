package taxrules

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/money"
)

// ErrNoActiveBundle is returned when the rule tables hold no active bundle.
var ErrNoActiveBundle = errors.New("no active rule bundle")

// defaultPolicyState marks the reciprocity row that holds the default policy.
const defaultPolicyState = "**"

// PostgresSource loads the active bundle from the rule tables created by the
// database migrations. NUMERIC columns are read as text so values reach
// decimal parsing without passing through a float.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a PostgresSource on the given pool.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (p *PostgresSource) Name() string { return SourcePostgres }

func (p *PostgresSource) Load(ctx context.Context) (*Bundle, error) {
	var version string
	err := p.pool.QueryRow(ctx, `SELECT version FROM rule_bundles WHERE is_active LIMIT 1`).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveBundle
	}
	if err != nil {
		return nil, fmt.Errorf("querying active rule bundle: %w", err)
	}

	b := &Bundle{Version: version}
	if b.Jurisdictions, err = p.loadJurisdictions(ctx, version); err != nil {
		return nil, err
	}
	if b.States, err = p.loadStates(ctx, version); err != nil {
		return nil, err
	}
	if b.Reciprocity, err = p.loadReciprocity(ctx, version); err != nil {
		return nil, err
	}
	return b, nil
}

func (p *PostgresSource) loadJurisdictions(ctx context.Context, version string) ([]ZipEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT postal_code, state_code, county, city, level, name, rate::text, max_taxable_amount::text
		FROM jurisdiction_rates
		WHERE version = $1
		ORDER BY postal_code, position
	`, version)
	if err != nil {
		return nil, fmt.Errorf("querying jurisdiction rates: %w", err)
	}
	defer rows.Close()

	var entries []ZipEntry
	for rows.Next() {
		var (
			zip, state, county, city, level, name, rate string
			maxTaxable                                  *string
		)
		if err := rows.Scan(&zip, &state, &county, &city, &level, &name, &rate, &maxTaxable); err != nil {
			return nil, fmt.Errorf("scanning jurisdiction rate: %w", err)
		}

		r, err := money.ParseRate(rate)
		if err != nil {
			return nil, fmt.Errorf("zip %s: rate: %w", zip, err)
		}
		lr := LevelRate{Level: Level(level), Name: name, Rate: r}
		if maxTaxable != nil {
			m, err := money.Parse(*maxTaxable)
			if err != nil {
				return nil, fmt.Errorf("zip %s: max_taxable_amount: %w", zip, err)
			}
			lr.MaxTaxableAmount = &m
		}

		if n := len(entries); n == 0 || entries[n-1].PostalCode != zip {
			entries = append(entries, ZipEntry{PostalCode: zip, State: state, County: county, City: city})
		}
		last := &entries[len(entries)-1]
		last.Levels = append(last.Levels, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jurisdiction rates: %w", err)
	}
	return entries, nil
}

func (p *PostgresSource) loadStates(ctx context.Context, version string) ([]StateRule, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT state_code, name, status, method, stacking, rounding,
		       trade_in_allowed, trade_in_cap::text,
		       lease_tax_method, lease_taxes_cap_reduction,
		       tavt_rate::text, class_basis, window_days, window_predicate
		FROM state_rules
		WHERE version = $1
		ORDER BY state_code
	`, version)
	if err != nil {
		return nil, fmt.Errorf("querying state rules: %w", err)
	}
	defer rows.Close()

	var rules []StateRule
	index := make(map[string]int)
	for rows.Next() {
		var (
			r                            StateRule
			status, method, stack, round string
			leaseMethod                  string
			tradeCap, tavtRate, basis    *string
			windowDays                   *int32
			predicate                    *string
		)
		if err := rows.Scan(&r.State, &r.Name, &status, &method, &stack, &round,
			&r.TradeIn.Allowed, &tradeCap,
			&leaseMethod, &r.LeaseTaxesCapReduction,
			&tavtRate, &basis, &windowDays, &predicate); err != nil {
			return nil, fmt.Errorf("scanning state rule: %w", err)
		}
		r.Status = Status(status)
		r.Method = TaxMethod(method)
		r.Stacking = Stacking(stack)
		r.Rounding = Rounding(round)
		r.LeaseTaxMethod = LeaseTaxMethod(leaseMethod)
		r.Taxability = make(map[Category]bool)

		if tradeCap != nil {
			m, err := money.Parse(*tradeCap)
			if err != nil {
				return nil, fmt.Errorf("state %s: trade_in_cap: %w", r.State, err)
			}
			r.TradeIn.Cap = &m
		}
		if tavtRate != nil {
			rate, err := money.ParseRate(*tavtRate)
			if err != nil {
				return nil, fmt.Errorf("state %s: tavt_rate: %w", r.State, err)
			}
			r.TitleAdValorem = &TitleAdValorem{Rate: rate}
		}
		if basis != nil {
			r.ClassBanded = &ClassBanded{Basis: Basis(*basis)}
		}
		if windowDays != nil && predicate != nil {
			r.TimeWindowed = &TimeWindowed{WindowDays: int(*windowDays), Predicate: Predicate(*predicate)}
		}

		index[r.State] = len(rules)
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state rules: %w", err)
	}

	if err := p.loadTaxability(ctx, version, rules, index); err != nil {
		return nil, err
	}
	if err := p.loadBands(ctx, version, rules, index); err != nil {
		return nil, err
	}
	return rules, nil
}

func (p *PostgresSource) loadTaxability(ctx context.Context, version string, rules []StateRule, index map[string]int) error {
	rows, err := p.pool.Query(ctx, `
		SELECT state_code, category, taxable
		FROM state_taxability
		WHERE version = $1
	`, version)
	if err != nil {
		return fmt.Errorf("querying state taxability: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state, category string
		var taxable bool
		if err := rows.Scan(&state, &category, &taxable); err != nil {
			return fmt.Errorf("scanning state taxability: %w", err)
		}
		i, ok := index[state]
		if !ok {
			return fmt.Errorf("taxability row for unknown state %s", state)
		}
		rules[i].Taxability[Category(category)] = taxable
	}
	return rows.Err()
}

func (p *PostgresSource) loadBands(ctx context.Context, version string, rules []StateRule, index map[string]int) error {
	rows, err := p.pool.Query(ctx, `
		SELECT state_code, name, condition, min_value::text, max_value::text,
		       flat_amount::text, rate::text, over_value::text
		FROM class_bands
		WHERE version = $1
		ORDER BY state_code, position
	`, version)
	if err != nil {
		return fmt.Errorf("querying class bands: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			state, name, condition, lower, flat, rate, over string
			upperText                                       *string
		)
		if err := rows.Scan(&state, &name, &condition, &lower, &upperText, &flat, &rate, &over); err != nil {
			return fmt.Errorf("scanning class band: %w", err)
		}
		i, ok := index[state]
		if !ok || rules[i].ClassBanded == nil {
			return fmt.Errorf("class band row for state %s without class_basis", state)
		}

		band := Band{Name: name, Condition: Condition(condition)}
		if band.Min, err = decimal.NewFromString(lower); err != nil {
			return fmt.Errorf("state %s band %s: min: %w", state, name, err)
		}
		if band.Over, err = decimal.NewFromString(over); err != nil {
			return fmt.Errorf("state %s band %s: over: %w", state, name, err)
		}
		if upperText != nil {
			upper, err := decimal.NewFromString(*upperText)
			if err != nil {
				return fmt.Errorf("state %s band %s: max: %w", state, name, err)
			}
			band.Max = &upper
		}
		if band.Flat, err = money.Parse(flat); err != nil {
			return fmt.Errorf("state %s band %s: flat: %w", state, name, err)
		}
		if band.Rate, err = money.ParseRate(rate); err != nil {
			return fmt.Errorf("state %s band %s: rate: %w", state, name, err)
		}
		rules[i].ClassBanded.Bands = append(rules[i].ClassBanded.Bands, band)
	}
	return rows.Err()
}

func (p *PostgresSource) loadReciprocity(ctx context.Context, version string) (ReciprocityTable, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT origin_state, destination_state, is_default, credit_mode, scope,
		       proof_required, max_days_since_purchase
		FROM reciprocity_policies
		WHERE version = $1
		ORDER BY origin_state, destination_state
	`, version)
	if err != nil {
		return ReciprocityTable{}, fmt.Errorf("querying reciprocity policies: %w", err)
	}
	defer rows.Close()

	var table ReciprocityTable
	for rows.Next() {
		var (
			pol         Policy
			mode, scope string
			isDefault   bool
			maxDays     int32
		)
		if err := rows.Scan(&pol.Origin, &pol.Destination, &isDefault, &mode, &scope, &pol.ProofRequired, &maxDays); err != nil {
			return ReciprocityTable{}, fmt.Errorf("scanning reciprocity policy: %w", err)
		}
		pol.CreditMode = CreditMode(mode)
		pol.Scope = Scope(scope)
		pol.MaxDaysSincePurchase = int(maxDays)
		if isDefault {
			pol.Origin, pol.Destination = "", ""
			table.Default = &pol
			continue
		}
		table.Pairs = append(table.Pairs, pol)
	}
	if err := rows.Err(); err != nil {
		return ReciprocityTable{}, fmt.Errorf("iterating reciprocity policies: %w", err)
	}
	return table, nil
}

// SaveBundle writes b to the rule tables and makes it the active bundle, in
// one transaction. An existing bundle with the same version is replaced.
func SaveBundle(ctx context.Context, pool *pgxpool.Pool, b *Bundle) error {
	if err := Validate(b); err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning rule bundle transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM rule_bundles WHERE version = $1`, b.Version); err != nil {
		return fmt.Errorf("clearing rule bundle %s: %w", b.Version, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO rule_bundles (version) VALUES ($1)`, b.Version); err != nil {
		return fmt.Errorf("inserting rule bundle %s: %w", b.Version, err)
	}

	for _, z := range b.Jurisdictions {
		for i, l := range z.Levels {
			_, err := tx.Exec(ctx, `
				INSERT INTO jurisdiction_rates
					(version, postal_code, state_code, county, city, position, level, name, rate, max_taxable_amount)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric)
			`, b.Version, z.PostalCode, z.State, z.County, z.City, i, string(l.Level), l.Name,
				l.Rate.String(), moneyParam(l.MaxTaxableAmount))
			if err != nil {
				return fmt.Errorf("inserting rate %s level %d: %w", z.PostalCode, i, err)
			}
		}
	}

	for _, r := range b.States {
		var tavt, basis, predicate *string
		var windowDays *int
		if r.TitleAdValorem != nil {
			s := r.TitleAdValorem.Rate.String()
			tavt = &s
		}
		if r.ClassBanded != nil {
			s := string(r.ClassBanded.Basis)
			basis = &s
		}
		if r.TimeWindowed != nil {
			s := string(r.TimeWindowed.Predicate)
			predicate = &s
			windowDays = &r.TimeWindowed.WindowDays
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO state_rules
				(version, state_code, name, status, method, stacking, rounding,
				 trade_in_allowed, trade_in_cap, lease_tax_method, lease_taxes_cap_reduction,
				 tavt_rate, class_basis, window_days, window_predicate)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12::numeric, $13, $14, $15)
		`, b.Version, r.State, r.Name, string(r.Status), string(r.Method), string(r.Stacking), string(r.Rounding),
			r.TradeIn.Allowed, moneyParam(r.TradeIn.Cap), string(r.LeaseTaxMethod), r.LeaseTaxesCapReduction,
			tavt, basis, windowDays, predicate)
		if err != nil {
			return fmt.Errorf("inserting state rule %s: %w", r.State, err)
		}

		for c, taxable := range r.Taxability {
			if _, err := tx.Exec(ctx, `
				INSERT INTO state_taxability (version, state_code, category, taxable)
				VALUES ($1, $2, $3, $4)
			`, b.Version, r.State, string(c), taxable); err != nil {
				return fmt.Errorf("inserting taxability %s/%s: %w", r.State, c, err)
			}
		}

		if r.ClassBanded != nil {
			for i, band := range r.ClassBanded.Bands {
				var upper *string
				if band.Max != nil {
					s := band.Max.String()
					upper = &s
				}
				if _, err := tx.Exec(ctx, `
					INSERT INTO class_bands
						(version, state_code, position, name, condition, min_value, max_value, flat_amount, rate, over_value)
					VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric)
				`, b.Version, r.State, i, band.Name, string(band.Condition), band.Min.String(), upper,
					band.Flat.Exact(), band.Rate.String(), band.Over.String()); err != nil {
					return fmt.Errorf("inserting band %s/%d: %w", r.State, i, err)
				}
			}
		}
	}

	policies := append([]Policy(nil), b.Reciprocity.Pairs...)
	if d := b.Reciprocity.Default; d != nil {
		def := *d
		def.Origin, def.Destination = defaultPolicyState, defaultPolicyState
		policies = append(policies, def)
	}
	for _, pol := range policies {
		isDefault := pol.Origin == defaultPolicyState
		if _, err := tx.Exec(ctx, `
			INSERT INTO reciprocity_policies
				(version, origin_state, destination_state, is_default, credit_mode, scope, proof_required, max_days_since_purchase)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, b.Version, pol.Origin, pol.Destination, isDefault, string(pol.CreditMode), string(pol.Scope),
			pol.ProofRequired, pol.MaxDaysSincePurchase); err != nil {
			return fmt.Errorf("inserting reciprocity %s->%s: %w", pol.Origin, pol.Destination, err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE rule_bundles SET is_active = false WHERE is_active`); err != nil {
		return fmt.Errorf("deactivating previous rule bundle: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE rule_bundles SET is_active = true WHERE version = $1`, b.Version); err != nil {
		return fmt.Errorf("activating rule bundle %s: %w", b.Version, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing rule bundle %s: %w", b.Version, err)
	}
	return nil
}

func moneyParam(m *money.Money) *string {
	if m == nil {
		return nil
	}
	s := m.Exact()
	return &s
}
