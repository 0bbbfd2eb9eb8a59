// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

// Package config loads llmqa settings from defaults, an optional YAML file,
// the environment and command-line flags, in that order of precedence.
package config

import (
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/llmqa/llmqa/internal/auth"
	"github.com/llmqa/llmqa/internal/logging"
)

// Defaults.
const (
	DefaultAlgorithm     = auth.DefaultAlgorithm
	DefaultExpireMinutes = 30
	DefaultDatabaseURL   = "sqlite://./sql_app.db"
	DefaultHTTPAddr      = ":8000"
	DefaultMetricsAddr   = "127.0.0.1:9100"
	DefaultLogFormat     = "json"
	DefaultLogLevel      = "info"
	DefaultOpenAIModel   = "gpt-3.5-turbo"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAITimeout = 60 * time.Second
)

// Config holds every runtime setting.
type Config struct {
	SecretKey                string `koanf:"secret_key"                  env:"SECRET_KEY"`
	Algorithm                string `koanf:"algorithm"                   env:"ALGORITHM"`
	AccessTokenExpireMinutes int    `koanf:"access_token_expire_minutes" env:"ACCESS_TOKEN_EXPIRE_MINUTES"`
	PasswordHasher           string `koanf:"password_hasher"             env:"PASSWORD_HASHER"`

	DatabaseURL string `koanf:"database_url" env:"DATABASE_URL"`
	AutoMigrate bool   `koanf:"auto_migrate" env:"AUTO_MIGRATE"`

	HTTPAddr    string `koanf:"http_addr"    env:"HTTP_ADDR"`
	MetricsAddr string `koanf:"metrics_addr" env:"METRICS_ADDR"`
	LogFormat   string `koanf:"log_format"   env:"LOG_FORMAT"`
	LogLevel    string `koanf:"log_level"    env:"LOG_LEVEL"`

	OpenAI OpenAIConfig `koanf:"openai" envPrefix:"OPENAI_"`
}

// OpenAIConfig configures the answer provider. An empty APIKey disables /ask.
type OpenAIConfig struct {
	APIKey  string        `koanf:"api_key"  env:"API_KEY"`
	Model   string        `koanf:"model"    env:"MODEL"`
	BaseURL string        `koanf:"base_url" env:"BASE_URL"`
	Timeout time.Duration `koanf:"timeout"  env:"TIMEOUT"`
}

// Default returns a Config populated with defaults. SecretKey is left empty.
func Default() *Config {
	return &Config{
		Algorithm:                DefaultAlgorithm,
		AccessTokenExpireMinutes: DefaultExpireMinutes,
		PasswordHasher:           auth.HasherBcrypt,
		DatabaseURL:              DefaultDatabaseURL,
		AutoMigrate:              true,
		HTTPAddr:                 DefaultHTTPAddr,
		MetricsAddr:              DefaultMetricsAddr,
		LogFormat:                DefaultLogFormat,
		LogLevel:                 DefaultLogLevel,
		OpenAI: OpenAIConfig{
			Model:   DefaultOpenAIModel,
			BaseURL: DefaultOpenAIBaseURL,
			Timeout: DefaultOpenAITimeout,
		},
	}
}

// LoadOptions names the sources Load reads.
type LoadOptions struct {
	// File is an optional YAML config path.
	File string
	// Environment overrides the process environment when non-nil.
	Environment map[string]string
	// Flags contributes every flag the user set explicitly.
	Flags *pflag.FlagSet
}

// Load builds a Config from defaults, File, the environment and Flags.
// The result is not validated; call Validate.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Environment: opts.Environment}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if opts.Flags != nil {
		k := koanf.New(".")
		provider := posflag.ProviderWithFlag(opts.Flags, ".", nil, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	return cfg, nil
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	invalid := oops.Code("CONFIG_INVALID")

	if c.SecretKey == "" {
		return invalid.With("field", "SECRET_KEY").Errorf("SECRET_KEY is required")
	}
	if !slices.Contains(auth.SupportedAlgorithms, c.Algorithm) {
		return invalid.With("field", "ALGORITHM").
			Errorf("ALGORITHM must be one of %v, got %q", auth.SupportedAlgorithms, c.Algorithm)
	}
	if c.AccessTokenExpireMinutes <= 0 {
		return invalid.With("field", "ACCESS_TOKEN_EXPIRE_MINUTES").
			Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive, got %d", c.AccessTokenExpireMinutes)
	}
	if c.PasswordHasher != auth.HasherBcrypt && c.PasswordHasher != auth.HasherArgon2id {
		return invalid.With("field", "PASSWORD_HASHER").
			Errorf("PASSWORD_HASHER must be 'bcrypt' or 'argon2id', got %q", c.PasswordHasher)
	}
	if c.DatabaseURL == "" {
		return invalid.With("field", "DATABASE_URL").Errorf("DATABASE_URL is required")
	}
	if c.HTTPAddr == "" {
		return invalid.With("field", "HTTP_ADDR").Errorf("HTTP_ADDR is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid.With("field", "LOG_FORMAT").
			Errorf("LOG_FORMAT must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid.With("field", "LOG_LEVEL").
			Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	if c.OpenAI.Timeout <= 0 {
		return invalid.With("field", "OPENAI_TIMEOUT").Errorf("OPENAI_TIMEOUT must be positive")
	}
	return nil
}

// TokenTTL returns the access token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// AskEnabled reports whether an OpenAI key is configured.
func (c *Config) AskEnabled() bool {
	return c.OpenAI.APIKey != ""
}
