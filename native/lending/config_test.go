package lending

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeGenesis(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lending.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeGenesis(t, `
Owner = "owner"
PoolAccount = "pool"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	params, err := cfg.Parameters()
	require.NoError(t, err)
	require.Equal(t, DefaultParameters("owner", "pool"), params)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeGenesis(t, `
Owner = " owner "
PoolAccount = "pool"
MinCollateralRatioBps = 20000
InterestRateBps = 250
LiquidationThresholdBps = 12000
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	params, err := cfg.Parameters()
	require.NoError(t, err)
	require.Equal(t, AccountID("owner"), params.Owner)
	require.Equal(t, uint64(20_000), params.MinCollateralRatioBps)
	require.Equal(t, uint32(250), params.InterestRateBps)
	require.Equal(t, uint64(12_000), params.LiquidationThresholdBps)
	require.Equal(t, LoanID(1), params.NextLoanID)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeGenesis(t, `
Owner = "owner"
PoolAccount = "pool"
InterestRate = 250
`)
	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "InterestRate")
}

func TestConfigParametersValidates(t *testing.T) {
	_, err := Config{Owner: "owner", PoolAccount: "pool", InterestRateBps: 99}.Parameters()
	require.ErrorIs(t, err, ErrParameterOutOfRange)

	_, err = Config{Owner: "owner", PoolAccount: "pool", MinCollateralRatioBps: 30_001}.Parameters()
	require.ErrorIs(t, err, ErrParameterOutOfRange)

	_, err = Config{PoolAccount: "pool"}.Parameters()
	require.Error(t, err)

	_, err = Config{Owner: "same", PoolAccount: "same"}.Parameters()
	require.Error(t, err)
}

func TestValidateBoundsInclusive(t *testing.T) {
	require.NoError(t, ValidateCollateralRatio(MinCollateralRatioLowerBps))
	require.NoError(t, ValidateCollateralRatio(MinCollateralRatioUpperBps))
	require.ErrorIs(t, ValidateCollateralRatio(MinCollateralRatioLowerBps-1), ErrParameterOutOfRange)
	require.ErrorIs(t, ValidateCollateralRatio(MinCollateralRatioUpperBps+1), ErrParameterOutOfRange)

	require.NoError(t, ValidateInterestRate(InterestRateLowerBps))
	require.NoError(t, ValidateInterestRate(InterestRateUpperBps))
	require.ErrorIs(t, ValidateInterestRate(InterestRateLowerBps-1), ErrParameterOutOfRange)
	require.ErrorIs(t, ValidateInterestRate(InterestRateUpperBps+1), ErrParameterOutOfRange)
}

func TestManualClockRefusesToRewind(t *testing.T) {
	clock := NewManualClock(10)
	require.Equal(t, uint64(15), clock.Advance(5))
	require.Error(t, clock.Set(14))
	require.NoError(t, clock.Set(20))
	require.Equal(t, uint64(20), clock.Now())
}

func TestManualClockAdvanceSaturates(t *testing.T) {
	clock := NewManualClock(math.MaxUint64 - 3)
	require.Equal(t, uint64(math.MaxUint64-1), clock.Advance(2))
	require.Equal(t, uint64(math.MaxUint64), clock.Advance(10))
	require.Equal(t, uint64(math.MaxUint64), clock.Advance(math.MaxUint64))
	require.Equal(t, uint64(math.MaxUint64), clock.Now())
}

func TestIntervalClockMonotonic(t *testing.T) {
	genesis := time.Unix(1_700_000_000, 0)
	clock := NewIntervalClock(genesis, 2*time.Second)
	wall := genesis.Add(10 * time.Second)
	clock.nowFn = func() time.Time { return wall }
	require.Equal(t, uint64(5), clock.Now())

	wall = genesis.Add(3 * time.Second)
	require.Equal(t, uint64(5), clock.Now())

	wall = genesis.Add(-time.Hour)
	require.Equal(t, uint64(5), clock.Now())

	wall = genesis.Add(21 * time.Second)
	require.Equal(t, uint64(10), clock.Now())
}
