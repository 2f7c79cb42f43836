package lending

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the genesis configuration of the lending module as read from a
// TOML file. Zero numeric fields fall back to the protocol defaults.
type Config struct {
	Owner                   string `toml:"Owner"`
	PoolAccount             string `toml:"PoolAccount"`
	MinCollateralRatioBps   uint64 `toml:"MinCollateralRatioBps"`
	InterestRateBps         uint32 `toml:"InterestRateBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
}

// LoadConfig decodes a genesis file. Unknown keys are rejected so typos do not
// silently fall back to defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode lending genesis: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return Config{}, fmt.Errorf("lending genesis: unknown keys %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Parameters converts the configuration into a validated genesis parameter
// set.
func (c Config) Parameters() (Parameters, error) {
	params := DefaultParameters(AccountID(strings.TrimSpace(c.Owner)), AccountID(strings.TrimSpace(c.PoolAccount)))
	if c.MinCollateralRatioBps != 0 {
		params.MinCollateralRatioBps = c.MinCollateralRatioBps
	}
	if c.InterestRateBps != 0 {
		params.InterestRateBps = c.InterestRateBps
	}
	if c.LiquidationThresholdBps != 0 {
		params.LiquidationThresholdBps = c.LiquidationThresholdBps
	}
	if err := params.Validate(); err != nil {
		return Parameters{}, err
	}
	return params, nil
}
