package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

// FixtureEmptyBundle inserts a bundle row with no rates or states and makes
// it the active bundle.
func (tdb *TestDB) FixtureEmptyBundle(t *testing.T, version string) {
	t.Helper()
	ctx := context.Background()

	if _, err := tdb.Pool.Exec(ctx, `UPDATE rule_bundles SET is_active = false WHERE is_active`); err != nil {
		t.Fatalf("deactivating rule bundles: %v", err)
	}
	if _, err := tdb.Pool.Exec(ctx,
		`INSERT INTO rule_bundles (version, is_active) VALUES ($1, true)`, version); err != nil {
		t.Fatalf("creating fixture bundle %q: %v", version, err)
	}
}

// ActiveBundleVersion returns the active bundle's version, or "" when none is active.
func (tdb *TestDB) ActiveBundleVersion(t *testing.T) string {
	t.Helper()

	var version string
	err := tdb.Pool.QueryRow(context.Background(),
		`SELECT version FROM rule_bundles WHERE is_active`).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return ""
	}
	if err != nil {
		t.Fatalf("reading active bundle: %v", err)
	}
	return version
}

// CountRows returns the number of rows of table belonging to version.
func (tdb *TestDB) CountRows(t *testing.T, table, version string) int {
	t.Helper()

	var n int
	err := tdb.Pool.QueryRow(context.Background(),
		`SELECT count(*) FROM `+pgx.Identifier{table}.Sanitize()+` WHERE version = $1`, version).Scan(&n)
	if err != nil {
		t.Fatalf("counting %s rows: %v", table, err)
	}
	return n
}
