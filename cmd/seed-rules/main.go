package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/config"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/database"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/storage"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/taxrules"
)

// seed-rules publishes a rule bundle. With -target postgres (the default) it
// copies the bundle into the rule tables and makes it the active bundle; with
// -target object it uploads the YAML documents under RULES_OBJECT_PREFIX.
// The bundle is the one compiled into the binary unless -dir names a
// directory of YAML documents.
func main() {
	dir := flag.String("dir", "", "Directory of rule YAML documents (default: embedded rules)")
	target := flag.String("target", "postgres", "Where to publish: postgres or object")
	dbURL := flag.String("db", "", "Database URL (default: DATABASE_URL)")
	migrate := flag.Bool("migrate", true, "Apply pending migrations first (postgres target)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var docs []taxrules.Document
	var err error
	source := taxrules.SourceEmbedded
	if *dir != "" {
		source = taxrules.SourceFile
		docs, err = taxrules.FileSource{Dir: *dir}.Documents()
	} else {
		docs, err = taxrules.EmbeddedSource{}.Documents()
	}
	if err != nil {
		slog.Error("failed to read rule documents", "source", source, "error", err)
		os.Exit(1)
	}

	raw := make([][]byte, len(docs))
	for i, d := range docs {
		raw[i] = d.Data
	}
	bundle, err := taxrules.DecodeYAML(raw...)
	if err != nil {
		slog.Error("failed to decode rule bundle", "source", source, "error", err)
		os.Exit(1)
	}
	snap, err := taxrules.NewSnapshot(bundle)
	if err != nil {
		slog.Error("rule bundle is invalid", "source", source, "error", err)
		os.Exit(1)
	}

	switch *target {
	case "postgres":
		if *dbURL == "" {
			*dbURL = mustConfig().DatabaseURL
		}
		if err := seedPostgres(ctx, *dbURL, *migrate, bundle); err != nil {
			slog.Error("failed to seed postgres", "error", err)
			os.Exit(1)
		}
	case "object":
		cfg := mustConfig()
		objects, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			slog.Error("failed to open object storage", "error", err)
			os.Exit(1)
		}
		keys, err := taxrules.Publish(ctx, objects, cfg.Storage.Prefix, docs)
		if err != nil {
			slog.Error("failed to publish rule documents", "error", err)
			os.Exit(1)
		}
		for _, k := range keys {
			slog.Info("published", "key", k)
		}
	default:
		slog.Error("unknown target", "target", *target)
		os.Exit(2)
	}

	fmt.Printf("Rule bundle seeded:\n  Target:        %s\n  Version:       %s\n  Declared:      %s\n  Jurisdictions: %d\n  States:        %d\n",
		*target, snap.Version(), snap.DeclaredVersion(), snap.JurisdictionCount(), snap.StateCount())
}

func mustConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	return cfg
}

func seedPostgres(ctx context.Context, dbURL string, migrate bool, bundle *taxrules.Bundle) error {
	if migrate {
		if err := database.Migrate(dbURL); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	pool, err := database.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	return taxrules.SaveBundle(ctx, pool, bundle)
}
