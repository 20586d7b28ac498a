// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authd configuration from a YAML file and command-line
// flags. Flags that were set explicitly override the file; the file overrides
// flag defaults.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/internal/logging"
	"github.com/holomush/authd/internal/xdg"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Environment variables consulted for flag defaults.
const (
	EnvDatabaseURL  = "DATABASE_URL"
	EnvTokenSecret  = "AUTHD_TOKEN_SECRET" //nolint:gosec // variable name, not a secret
	EnvOTLPEndpoint = "AUTHD_OTLP_ENDPOINT"
)

// Config is the complete authd configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Store    StoreConfig    `koanf:"store"`
	Database DatabaseConfig `koanf:"database"`
	Token    TokenConfig    `koanf:"token"`
	Hash     HashConfig     `koanf:"hash"`
	Seed     SeedConfig     `koanf:"seed"`
	Tracing  TracingConfig  `koanf:"tracing"`
	TLS      TLSConfig      `koanf:"tls"`
}

// HTTPConfig configures the auth API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// StoreConfig selects the credential store.
type StoreConfig struct {
	Backend string        `koanf:"backend"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig configures PostgreSQL access.
type DatabaseConfig struct {
	URL             string `koanf:"url"`
	ConnectAttempts int    `koanf:"connect_attempts"`
}

// TokenConfig configures bearer token signing.
type TokenConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
}

// HashConfig configures the password hash pool.
type HashConfig struct {
	Workers int           `koanf:"workers"`
	Timeout time.Duration `koanf:"timeout"`
}

// SeedConfig names a fixture applied at startup. Empty disables seeding.
type SeedConfig struct {
	File string `koanf:"file"`
}

// TracingConfig configures OTLP trace export. An empty Endpoint disables it.
type TracingConfig struct {
	Endpoint string `koanf:"endpoint"`
}

// TLSConfig enables HTTPS for the auth API. An empty CertsDir serves plain
// HTTP. Missing certificates are generated into CertsDir on first start.
type TLSConfig struct {
	CertsDir string   `koanf:"certs_dir"`
	Hosts    []string `koanf:"hosts"`
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":        "http.addr",
	"metrics-addr":     "metrics.addr",
	"log-format":       "log.format",
	"log-level":        "log.level",
	"store":            "store.backend",
	"store-timeout":    "store.timeout",
	"database-url":     "database.url",
	"connect-attempts": "database.connect_attempts",
	"token-secret":     "token.secret",
	"token-ttl":        "token.ttl",
	"hash-workers":     "hash.workers",
	"hash-timeout":     "hash.timeout",
	"seed-file":        "seed.file",
	"otlp-endpoint":    "tracing.endpoint",
	"tls-certs-dir":    "tls.certs_dir",
	"tls-hosts":        "tls.hosts",
}

// RegisterFlags adds the configuration flags to flags. DATABASE_URL,
// AUTHD_TOKEN_SECRET and AUTHD_OTLP_ENDPOINT provide the defaults of the
// matching flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("http-addr", ":8080", "auth API listen address")
	flags.String("metrics-addr", "127.0.0.1:9100", "metrics and health listen address (empty disables)")
	flags.String("log-format", logging.FormatJSON, "log format (json or text)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("store", BackendPostgres, "credential store backend (postgres or memory)")
	flags.Duration("store-timeout", auth.DefaultStoreTimeout, "timeout for each credential store call")
	flags.String("database-url", os.Getenv(EnvDatabaseURL), "PostgreSQL connection URL (env "+EnvDatabaseURL+")")
	flags.Int("connect-attempts", 5, "database connection attempts before giving up")
	flags.String("token-secret", os.Getenv(EnvTokenSecret), "HMAC secret for bearer tokens (env "+EnvTokenSecret+")")
	flags.Duration("token-ttl", auth.DefaultTokenTTL, "bearer token lifetime")
	flags.Int("hash-workers", runtime.NumCPU(), "maximum concurrent password hash operations")
	flags.Duration("hash-timeout", auth.DefaultHashTimeout, "timeout for each password hash operation")
	flags.String("seed-file", "", "YAML seed fixture applied at startup")
	flags.String("tls-certs-dir", "", "directory holding the API server certificate, empty serves plain HTTP")
	flags.StringSlice("tls-hosts", nil, "extra DNS names or IPs for a generated server certificate")
	flags.String("otlp-endpoint", os.Getenv(EnvOTLPEndpoint), "OTLP/HTTP trace collector URL, empty disables tracing (env "+EnvOTLPEndpoint+")")
}

// DefaultPath returns the config file used when --config is not given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigDir(), "config.yaml")
}

// Load reads path (or DefaultPath if it exists when path is empty) and then
// flags, which must have been populated by RegisterFlags.
func Load(flags *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
	}

	provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").With("path", path).Wrap(err)
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "listen address is required")
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log.format").Wrap(err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log.level").Wrap(err)
	}
	switch c.Store.Backend {
	case BackendPostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "required for the postgres store (set "+EnvDatabaseURL+" or --database-url)")
		}
		if c.Database.ConnectAttempts <= 0 {
			return invalid("database.connect_attempts", "must be positive")
		}
	case BackendMemory:
	default:
		return invalid("store.backend", "must be postgres or memory")
	}
	if c.Store.Timeout <= 0 {
		return invalid("store.timeout", "must be positive")
	}
	if len(c.Token.Secret) < auth.MinSecretLength {
		return invalid("token.secret", "must be at least 16 bytes (set "+EnvTokenSecret+" or --token-secret)")
	}
	if c.Token.TTL <= 0 {
		return invalid("token.ttl", "must be positive")
	}
	if c.Hash.Workers <= 0 {
		return invalid("hash.workers", "must be positive")
	}
	if c.Hash.Timeout <= 0 {
		return invalid("hash.timeout", "must be positive")
	}
	return nil
}

func invalid(key, msg string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s: %s", key, msg)
}
