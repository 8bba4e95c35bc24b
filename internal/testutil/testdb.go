// Package testutil starts a throwaway PostgreSQL for the rule-source
// integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/database"
)

const postgresImage = "postgres:16-alpine"

// TestDB is a migrated PostgreSQL container with an open pool.
type TestDB struct {
	Pool *pgxpool.Pool
	URL  string

	container *postgres.PostgresContainer
}

// NewTestDB starts a container for t and tears it down when t ends. The test
// is skipped in -short mode or when no container runtime is reachable.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	tdb, err := start(context.Background())
	if err != nil {
		t.Fatalf("setting up test database: %v", err)
	}
	t.Cleanup(tdb.close)
	return tdb
}

func start(ctx context.Context) (*TestDB, error) {
	ctr, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("dealcalc_test"),
		postgres.WithUsername("dealcalc"),
		postgres.WithPassword("dealcalc"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", postgresImage, err)
	}
	tdb := &TestDB{container: ctr}

	tdb.URL, err = ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		tdb.close()
		return nil, fmt.Errorf("reading connection string: %w", err)
	}
	if err := database.Migrate(tdb.URL); err != nil {
		tdb.close()
		return nil, fmt.Errorf("migrating rule tables: %w", err)
	}
	if tdb.Pool, err = database.Connect(ctx, tdb.URL); err != nil {
		tdb.close()
		return nil, err
	}
	return tdb, nil
}

func (tdb *TestDB) close() {
	if tdb.Pool != nil {
		tdb.Pool.Close()
	}
	if tdb.container != nil {
		_ = testcontainers.TerminateContainer(tdb.container)
	}
}

// Truncate removes every rule bundle; rates and rules cascade.
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()
	if _, err := tdb.Pool.Exec(context.Background(), `DELETE FROM rule_bundles`); err != nil {
		t.Fatalf("truncating rule bundles: %v", err)
	}
}
