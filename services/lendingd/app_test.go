package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"lendledger/native/lending"
	"lendledger/services/lendingd/config"
)

func writeGenesis(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lending.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func testConfig(t *testing.T, backend string) config.Config {
	t.Helper()
	cfg := config.Config{
		Storage:     config.StorageConfig{Backend: backend},
		GenesisPath: writeGenesis(t, "Owner = \"owner\"\nPoolAccount = \"pool\"\nInterestRateBps = 800\n"),
		Funding:     map[string]uint64{"alice": 10_000, "pool": 50_000},
		Auth:        config.AuthConfig{HMACSecret: "0123456789abcdef0123456789abcdef"},
		Clock:       config.ClockConfig{Interval: time.Second},
	}
	if backend != config.BackendMemory {
		cfg.Storage.Path = filepath.Join(t.TempDir(), "ledger")
	}
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewAppBootstrapsGenesisAndFunding(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Journal = config.JournalConfig{Driver: config.DriverSQLite, DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())}

	a, err := newApp(cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	params, err := a.engine.Parameters()
	require.NoError(t, err)
	require.Equal(t, lending.AccountID("owner"), params.Owner)
	require.Equal(t, uint32(800), params.InterestRateBps)
	require.Equal(t, uint64(10_000), a.ledger.Balance("alice"))

	_, err = a.engine.OpenLoan("alice", 1000, 1500)
	require.NoError(t, err)
	require.NotNil(t, a.journal)
}

func TestNewAppRestartDoesNotRefund(t *testing.T) {
	for _, backend := range []string{config.BackendLevelDB, config.BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)

			a, err := newApp(cfg, quietLogger())
			require.NoError(t, err)
			id, err := a.engine.OpenLoan("alice", 1000, 1500)
			require.NoError(t, err)
			require.Equal(t, uint64(9_500), a.ledger.Balance("alice"))
			require.NoError(t, a.Close())

			a, err = newApp(cfg, quietLogger())
			require.NoError(t, err)
			defer a.Close()
			require.Equal(t, uint64(9_500), a.ledger.Balance("alice"))
			rec, ok, err := a.engine.Loan(id)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, lending.LoanActive, rec.State)
			require.Equal(t, uint64(50_500), a.ledger.Balance("pool"))
		})
	}
}

func TestNewAppRejectsBadGenesis(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.GenesisPath = writeGenesis(t, "Owner = \"owner\"\nPoolAccount = \"pool\"\nMinCollateralRatioBps = 5\n")
	_, err := newApp(cfg, quietLogger())
	require.Error(t, err)

	cfg = testConfig(t, config.BackendMemory)
	cfg.Auth.Bech32Accounts = true
	_, err = newApp(cfg, quietLogger())
	require.Error(t, err)
}
