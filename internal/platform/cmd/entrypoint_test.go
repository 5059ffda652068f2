package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

type testConfig struct {
	DataDir string `env:"CMD_TEST_DATA_DIR" envDefault:"data/users"`
	Mode    string `env:"CMD_TEST_MODE" envDefault:"list"`
}

func TestParseConfigReadsLookup(t *testing.T) {
	env := map[string]string{"CMD_TEST_MODE": "lookup-mode"}
	cfg := testConfig{}
	err := ParseConfig(&cfg, func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DataDir != "data/users" {
		t.Fatalf("expected default data dir, got %q", cfg.DataDir)
	}
	if cfg.Mode != "lookup-mode" {
		t.Fatalf("expected lookup mode, got %q", cfg.Mode)
	}
}

func TestParseConfigThenArgs(t *testing.T) {
	t.Setenv("CMD_TEST_DATA_DIR", "env/users")

	cfg := testConfig{}
	if err := ParseConfig(&cfg, nil); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	fs := flag.NewFlagSet("configargs", flag.ContinueOnError)
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data dir")
	if cfg.DataDir != "env/users" {
		t.Fatalf("expected env data dir, got %q", cfg.DataDir)
	}
	if err := ParseArgs(fs, []string{"-data-dir", "flag/users"}); err != nil {
		t.Fatalf("parse args: %v", err)
	}
	if cfg.DataDir != "flag/users" {
		t.Fatalf("expected flag data dir, got %q", cfg.DataDir)
	}
}

func TestParseConfigRejectsNilTarget(t *testing.T) {
	if err := ParseConfig[testConfig](nil, nil); err == nil {
		t.Fatal("expected nil target error")
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, []string{}); err == nil {
		t.Fatal("expected parse args to reject nil parser")
	}
}

func TestRunWithTelemetryRejectsMissingInputs(t *testing.T) {
	if err := RunWithTelemetry(context.Background(), "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := RunWithTelemetry(context.Background(), ServiceUserStore, nil); err == nil {
		t.Fatal("expected missing run function error")
	}
}

func TestRunWithTelemetryReturnsRunError(t *testing.T) {
	t.Setenv("OBJECTSTORE_OTEL_ENDPOINT", "")
	want := errors.New("boom")
	err := RunWithTelemetry(context.Background(), ServiceUserStore, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected run error, got %v", err)
	}
}
