// Package config loads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Prefix namespaces every environment variable read by this module.
const Prefix = "OBJECTSTORE_"

// ParseEnv loads configuration from environment variables using the
// variable names declared in target's struct tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseEnvWithLookup is ParseEnv over a caller-provided environment, so
// commands can be driven by a map in tests instead of the process env.
func ParseEnvWithLookup(target any, lookup func(string) (string, bool)) error {
	if lookup == nil {
		return ParseEnv(target)
	}
	opts := env.Options{
		Environment: map[string]string{},
	}
	keys, err := env.GetFieldParams(target)
	if err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	for _, key := range keys {
		if value, ok := lookup(key.Key); ok {
			opts.Environment[key.Key] = value
		}
	}
	if err := env.ParseWithOptions(target, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
