// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

// Package config loads keyfold configuration from a YAML file and
// command-line flags, flags taking precedence.
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config holds the runtime configuration for the keyfold server.
type Config struct {
	// Listen is the address of the credential HTTP API.
	Listen string `koanf:"listen"`

	// MetricsListen is the address of the observability endpoints.
	MetricsListen string `koanf:"metrics_listen"`

	// DatabaseURL is the PostgreSQL connection string. The DATABASE_URL
	// environment variable is used when neither file nor flag sets it.
	DatabaseURL string `koanf:"database_url"`

	// InMemory replaces PostgreSQL with the in-process repository.
	// Development convenience only: state dies with the process.
	InMemory bool `koanf:"in_memory"`

	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log_format"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `koanf:"log_level"`
}

// Load reads configuration from an optional YAML file, then overlays any
// changed flags from flags. Flag defaults fill keys the file leaves unset.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	return &cfg, nil
}

// Validate checks that the configuration can actually start a server.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return oops.Code("CONFIG_INVALID").Errorf("listen address is required")
	}
	if !c.InMemory && c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required unless in_memory is set")
	}
	return nil
}
