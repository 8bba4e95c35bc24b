package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every key Load reads so the defaults apply.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "DATABASE_URL", "CORS_ORIGIN",
		"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"RULES_SOURCE", "RULES_DIR", "RULES_URL", "RULES_HTTP_TIMEOUT",
		"RULES_FALLBACK_EMBEDDED", "RULES_RELOAD_ENABLED", "RULES_RELOAD_INTERVAL",
		"RULES_RELOAD_MAX_RETRIES", "RULES_RELOAD_RETRY_DELAY",
		"OBJECT_STORAGE", "OBJECT_STORAGE_PATH", "RULES_OBJECT_PREFIX",
		"S3_ENDPOINT", "S3_REGION", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY",
		"S3_FORCE_PATH_STYLE", "S3_BUCKET",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port: want 8080, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: want 'info', got %q", cfg.LogLevel)
	}
	if cfg.CORSOrigin != "" {
		t.Errorf("CORSOrigin: want empty, got %q", cfg.CORSOrigin)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RPS != 20 || cfg.RateLimit.Burst != 40 {
		t.Errorf("RateLimit: want enabled 20/40, got %+v", cfg.RateLimit)
	}

	r := cfg.Rules
	if r.Source != SourceEmbedded {
		t.Errorf("Rules.Source: want %q, got %q", SourceEmbedded, r.Source)
	}
	if r.HTTPTimeout != 10*time.Second {
		t.Errorf("Rules.HTTPTimeout: want 10s, got %v", r.HTTPTimeout)
	}
	if !r.FallbackEmbedded {
		t.Error("Rules.FallbackEmbedded should default to true")
	}
	if r.ReloadEnabled {
		t.Error("Rules.ReloadEnabled should default to false")
	}
	if r.ReloadInterval != time.Hour {
		t.Errorf("Rules.ReloadInterval: want 1h, got %v", r.ReloadInterval)
	}
	if r.MaxRetries != 3 || r.RetryDelay != 5*time.Minute {
		t.Errorf("Rules retries: want 3 every 5m, got %d every %v", r.MaxRetries, r.RetryDelay)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RULES_SOURCE", "http")
	t.Setenv("RULES_URL", "https://rules.example.com/bundle.yaml")
	t.Setenv("RULES_RELOAD_ENABLED", "true")
	t.Setenv("RULES_RELOAD_INTERVAL", "15m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port: want 9090, got %d", cfg.Port)
	}
	if cfg.Rules.Source != SourceHTTP || cfg.Rules.URL != "https://rules.example.com/bundle.yaml" {
		t.Errorf("unexpected rules source %+v", cfg.Rules)
	}
	if !cfg.Rules.ReloadEnabled || cfg.Rules.ReloadInterval != 15*time.Minute {
		t.Errorf("expected reload every 15m, got %+v", cfg.Rules)
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", level)
	}
}

func TestLoad_ObjectSource(t *testing.T) {
	clearEnv(t)
	t.Setenv("RULES_SOURCE", "object")
	t.Setenv("OBJECT_STORAGE", "s3")
	t.Setenv("S3_BUCKET", "deal-rules")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Rules.Source != SourceObject {
		t.Errorf("Rules.Source: want %q, got %q", SourceObject, cfg.Rules.Source)
	}
	st := cfg.Storage
	if st.Backend != StorageS3 || st.Prefix != "rules/current" {
		t.Errorf("unexpected storage config %+v", st)
	}
	if st.S3.Bucket != "deal-rules" || st.S3.Region != "us-east-1" || !st.S3.ForcePathStyle {
		t.Errorf("unexpected s3 config %+v", st.S3)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"file source without dir", map[string]string{"RULES_SOURCE": "file"}},
		{"http source without url", map[string]string{"RULES_SOURCE": "http"}},
		{"unknown source", map[string]string{"RULES_SOURCE": "ftp"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "chatty"}},
		{"zero reload interval", map[string]string{"RULES_RELOAD_ENABLED": "true", "RULES_RELOAD_INTERVAL": "0s"}},
		{"zero burst", map[string]string{"RATE_LIMIT_BURST": "0"}},
		{"s3 object source without bucket", map[string]string{"RULES_SOURCE": "object", "OBJECT_STORAGE": "s3"}},
		{"unknown object storage", map[string]string{"RULES_SOURCE": "object", "OBJECT_STORAGE": "gcs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected an error, got nil")
			}
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("RULES_DIR")
	os.Unsetenv("RULES_SOURCE")

	dir := t.TempDir()
	env := "RULES_SOURCE=file\nRULES_DIR=/etc/dealcalc/rules\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Cleanup(func() {
		os.Unsetenv("RULES_SOURCE")
		os.Unsetenv("RULES_DIR")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Rules.Source != SourceFile || cfg.Rules.Dir != "/etc/dealcalc/rules" {
		t.Errorf("expected .env values, got %+v", cfg.Rules)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("DEALCALC_TEST_VAR", "")
	if got := getEnv("DEALCALC_TEST_VAR", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}

	t.Setenv("DEALCALC_TEST_VAR", "not-a-number")
	if got := getEnvInt("DEALCALC_TEST_VAR", 42); got != 42 {
		t.Errorf("expected fallback 42 for invalid int, got %d", got)
	}
	if got := getEnvFloat("DEALCALC_TEST_VAR", 1.5); got != 1.5 {
		t.Errorf("expected fallback 1.5 for invalid float, got %v", got)
	}
	if got := getEnvBool("DEALCALC_TEST_VAR", true); !got {
		t.Error("expected fallback true for invalid bool")
	}
	if got := getEnvDuration("DEALCALC_TEST_VAR", 5*time.Second); got != 5*time.Second {
		t.Errorf("expected fallback 5s for invalid duration, got %v", got)
	}

	t.Setenv("DEALCALC_TEST_VAR", "2.5")
	if got := getEnvFloat("DEALCALC_TEST_VAR", 1); got != 2.5 {
		t.Errorf("expected 2.5, got %v", got)
	}
	t.Setenv("DEALCALC_TEST_VAR", "30s")
	if got := getEnvDuration("DEALCALC_TEST_VAR", 5*time.Second); got != 30*time.Second {
		t.Errorf("expected 30s, got %v", got)
	}
}
