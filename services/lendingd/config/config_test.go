package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :6000 "
tls:
  allow_insecure: true
auth:
  hmac_secret: "`+testSecret+`"
genesis: lending.toml
funding:
  " alice ": 1000
  bob: 0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":6000" {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Fatalf("expected memory backend by default, got %q", cfg.Storage.Backend)
	}
	if cfg.Clock.Interval != time.Second {
		t.Fatalf("unexpected clock interval: %s", cfg.Clock.Interval)
	}
	if cfg.RateLimit.RequestsPerMinute != defaultRequestsPerMin || cfg.RateLimit.Burst != defaultBurst {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Auth.ClockSkew != 2*time.Minute {
		t.Fatalf("unexpected clock skew: %s", cfg.Auth.ClockSkew)
	}
	if len(cfg.Funding) != 1 || cfg.Funding["alice"] != 1000 {
		t.Fatalf("unexpected funding: %v", cfg.Funding)
	}
}

func TestLoadConfigFullDocument(t *testing.T) {
	path := writeConfig(t, `
listen: 127.0.0.1:7000
env: staging
tls:
  cert: server.crt
  key: server.key
storage:
  backend: BOLT
  path: /var/lib/lendingd/ledger.db
journal:
  driver: postgres
  dsn: postgres://lend@localhost/lend
auth:
  hmac_secret: "`+testSecret+`"
  issuer: lendingd
  audience: api
  clock_skew: 30s
  bech32_accounts: true
rate_limit:
  requests_per_minute: 120
  burst: 5
clock:
  genesis_time: 2026-01-01T00:00:00Z
  interval: 5s
genesis: /etc/lendingd/lending.toml
log:
  level: debug
  file: /var/log/lendingd.log
  max_size_mb: 50
pauses:
  lending: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Storage.Backend != BackendBolt {
		t.Fatalf("expected normalized backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Auth.ClockSkew != 30*time.Second || !cfg.Auth.Bech32Accounts {
		t.Fatalf("unexpected auth config: %+v", cfg.Auth)
	}
	if cfg.Clock.Interval != 5*time.Second || cfg.Clock.GenesisTime.Year() != 2026 {
		t.Fatalf("unexpected clock config: %+v", cfg.Clock)
	}
	if !cfg.Pauses["lending"] {
		t.Fatalf("expected lending pause to propagate")
	}
	if cfg.Log.MaxSizeMB != 50 || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	base := "tls:\n  allow_insecure: true\ngenesis: lending.toml\n"
	secret := "auth:\n  hmac_secret: \"" + testSecret + "\"\n"
	cases := map[string]string{
		"short secret":        base + "auth:\n  hmac_secret: short\n",
		"missing tls key":     "tls:\n  cert: server.crt\ngenesis: g.toml\n" + secret,
		"plaintext":           "genesis: g.toml\n" + secret,
		"unknown backend":     base + secret + "storage:\n  backend: redis\n",
		"leveldb needs path":  base + secret + "storage:\n  backend: leveldb\n",
		"unknown driver":      base + secret + "journal:\n  driver: mysql\n  dsn: x\n",
		"journal needs dsn":   base + secret + "journal:\n  driver: sqlite\n",
		"missing genesis":     "tls:\n  allow_insecure: true\n" + secret,
		"unknown field":       base + secret + "listen_addr: :1\n",
		"sample ratio":        base + secret + "telemetry:\n  sample_ratio: 1.5\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, contents)); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Config{ListenAddress: ":1", Auth: AuthConfig{HMACSecret: "file"}}
	env := map[string]string{
		"LENDINGD_LISTEN":      ":9999",
		"LENDINGD_AUTH_SECRET": strings.Repeat("s", 40),
		"LENDINGD_GENESIS":     "  ",
	}
	cfg.applyEnv(func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	})
	if cfg.ListenAddress != ":9999" {
		t.Fatalf("listen override not applied: %q", cfg.ListenAddress)
	}
	if cfg.Auth.HMACSecret != strings.Repeat("s", 40) {
		t.Fatalf("secret override not applied")
	}
	if cfg.GenesisPath != "" {
		t.Fatalf("blank override must be ignored, got %q", cfg.GenesisPath)
	}
}
