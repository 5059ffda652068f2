package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	DataDir string        `env:"OBJECTSTORE_TEST_DATA_DIR" envDefault:"data/test"`
	TTL     time.Duration `env:"OBJECTSTORE_TEST_TTL"      envDefault:"5m"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DataDir != "data/test" {
		t.Fatalf("expected default data dir, got %q", cfg.DataDir)
	}
	if cfg.TTL != 5*time.Minute {
		t.Fatalf("expected default ttl 5m, got %s", cfg.TTL)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("OBJECTSTORE_TEST_TTL", "not-a-duration")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvWithLookupIgnoresProcessEnv(t *testing.T) {
	t.Setenv("OBJECTSTORE_TEST_DATA_DIR", "from-process")
	lookup := func(key string) (string, bool) {
		if key == "OBJECTSTORE_TEST_TTL" {
			return "30s", true
		}
		return "", false
	}

	var cfg envTestConfig
	if err := ParseEnvWithLookup(&cfg, lookup); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DataDir != "data/test" {
		t.Fatalf("expected default data dir, got %q", cfg.DataDir)
	}
	if cfg.TTL != 30*time.Second {
		t.Fatalf("expected lookup ttl, got %s", cfg.TTL)
	}
}
