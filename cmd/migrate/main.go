package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/config"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/database"
)

// migrate manages the rule-table schema used by the postgres rule source.
func main() {
	direction := flag.String("direction", "up", "up, down or version")
	dbURL := flag.String("db", "", "Database URL (default: DATABASE_URL)")
	steps := flag.Int("steps", 1, "Migrations to roll back with -direction down")
	flag.Parse()

	if *dbURL == "" {
		cfg, err := config.Load()
		if err != nil {
			slog.Error("invalid configuration", "error", err)
			os.Exit(1)
		}
		*dbURL = cfg.DatabaseURL
	}

	if err := run(*direction, *dbURL, *steps); err != nil {
		slog.Error("migration failed", "direction", *direction, "error", err)
		os.Exit(1)
	}
}

func run(direction, dbURL string, steps int) error {
	switch direction {
	case "up":
		if err := database.Migrate(dbURL); err != nil {
			return err
		}
		fmt.Println("rule tables up to date")
	case "down":
		if steps < 1 {
			return fmt.Errorf("steps must be at least 1, got %d", steps)
		}
		if err := database.MigrateDown(dbURL, steps); err != nil {
			return err
		}
		fmt.Printf("rolled back %d migration(s)\n", steps)
	case "version":
		v, dirty, err := database.SchemaVersion(dbURL)
		if err != nil {
			return err
		}
		fmt.Printf("schema version %d (dirty: %t)\n", v, dirty)
	default:
		return fmt.Errorf("unknown direction %q (use up, down or version)", direction)
	}
	return nil
}
