package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen         = ":8080"
	defaultClockInterval  = time.Second
	defaultRequestsPerMin = 600
	defaultBurst          = 20
	minSecretLength       = 32
)

// Storage backends.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Journal drivers. An empty driver disables the journal.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures the runtime settings for the lending service daemon.
type Config struct {
	ListenAddress string            `yaml:"listen"`
	Environment   string            `yaml:"env"`
	TLS           TLSConfig         `yaml:"tls"`
	Storage       StorageConfig     `yaml:"storage"`
	Journal       JournalConfig     `yaml:"journal"`
	Auth          AuthConfig        `yaml:"auth"`
	RateLimit     RateLimitConfig   `yaml:"rate_limit"`
	Clock         ClockConfig       `yaml:"clock"`
	GenesisPath   string            `yaml:"genesis"`
	Funding       map[string]uint64 `yaml:"funding"`
	Log           LogConfig         `yaml:"log"`
	Telemetry     TelemetryConfig   `yaml:"telemetry"`
	Pauses        map[string]bool   `yaml:"pauses"`
}

// TLSConfig describes the TLS material for the HTTP server.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// StorageConfig selects where lending state and host balances persist.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// JournalConfig points at the SQL database receiving committed events.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig holds the HMAC bearer token settings. The token subject is the
// calling account.
type AuthConfig struct {
	HMACSecret     string        `yaml:"hmac_secret"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	ClockSkew      time.Duration `yaml:"clock_skew"`
	Bech32Accounts bool          `yaml:"bech32_accounts"`
}

// RateLimitConfig bounds requests per caller.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
	Disabled          bool    `yaml:"disabled"`
}

// ClockConfig derives block heights from wall time.
type ClockConfig struct {
	GenesisTime time.Time     `yaml:"genesis_time"`
	Interval    time.Duration `yaml:"interval"`
}

// LogConfig configures level and optional file rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConfig toggles the OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Metrics     bool    `yaml:"metrics"`
	Traces      bool    `yaml:"traces"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load reads the YAML configuration from disk, applies LENDINGD_* environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: defaultListen,
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := map[string]*string{
		"LENDINGD_LISTEN":       &cfg.ListenAddress,
		"LENDINGD_ENV":          &cfg.Environment,
		"LENDINGD_STORAGE_PATH": &cfg.Storage.Path,
		"LENDINGD_JOURNAL_DSN":  &cfg.Journal.DSN,
		"LENDINGD_AUTH_SECRET":  &cfg.Auth.HMACSecret,
		"LENDINGD_GENESIS":      &cfg.GenesisPath,
	}
	for key, target := range overrides {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*target = value
		}
	}
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.GenesisPath = strings.TrimSpace(cfg.GenesisPath)
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	cfg.Journal.Driver = strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	cfg.Journal.DSN = strings.TrimSpace(cfg.Journal.DSN)

	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}

	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = defaultRequestsPerMin
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}
	if cfg.Clock.Interval <= 0 {
		cfg.Clock.Interval = defaultClockInterval
	}

	funding := make(map[string]uint64, len(cfg.Funding))
	for account, amount := range cfg.Funding {
		if trimmed := strings.TrimSpace(account); trimmed != "" && amount > 0 {
			funding[trimmed] = amount
		}
	}
	cfg.Funding = funding
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	hasCert := cfg.TLS.CertPath != ""
	hasKey := cfg.TLS.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("tls: cert and key must either both be provided or both be empty")
	}
	if !cfg.TLS.AllowInsecure && !hasCert {
		return fmt.Errorf("tls: cert and key are required unless allow_insecure=true")
	}
	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendLevelDB, BackendBolt:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage: path required for %s backend", cfg.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	switch cfg.Journal.Driver {
	case "":
	case DriverSQLite, DriverPostgres:
		if cfg.Journal.DSN == "" {
			return fmt.Errorf("journal: dsn required for %s driver", cfg.Journal.Driver)
		}
	default:
		return fmt.Errorf("journal: unknown driver %q", cfg.Journal.Driver)
	}
	if len(cfg.Auth.HMACSecret) < minSecretLength {
		return fmt.Errorf("auth: hmac_secret must be at least %d bytes", minSecretLength)
	}
	if cfg.GenesisPath == "" {
		return fmt.Errorf("genesis path required")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0, 1]")
	}
	return nil
}
