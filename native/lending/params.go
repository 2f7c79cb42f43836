package lending

import "fmt"

const (
	DefaultMinCollateralRatioBps   uint64 = 15_000
	DefaultInterestRateBps         uint32 = 500
	DefaultLiquidationThresholdBps uint64 = 13_000

	MinCollateralRatioLowerBps uint64 = 10_000
	MinCollateralRatioUpperBps uint64 = 30_000
	InterestRateLowerBps       uint32 = 100
	InterestRateUpperBps       uint32 = 5_000

	firstLoanID LoanID = 1
)

// Parameters is the protocol-wide singleton. Owner and PoolAccount are fixed
// at initialisation; the ratio and rate are changed through the owner-gated
// setters; LiquidationThresholdBps has no setter.
type Parameters struct {
	Owner                   AccountID `json:"owner"`
	PoolAccount             AccountID `json:"poolAccount"`
	MinCollateralRatioBps   uint64    `json:"minCollateralRatioBps"`
	InterestRateBps         uint32    `json:"interestRateBps"`
	LiquidationThresholdBps uint64    `json:"liquidationThresholdBps"`
	NextLoanID              LoanID    `json:"nextLoanId"`
}

// DefaultParameters returns the genesis parameters for the supplied owner and
// pool identities.
func DefaultParameters(owner, pool AccountID) Parameters {
	return Parameters{
		Owner:                   owner,
		PoolAccount:             pool,
		MinCollateralRatioBps:   DefaultMinCollateralRatioBps,
		InterestRateBps:         DefaultInterestRateBps,
		LiquidationThresholdBps: DefaultLiquidationThresholdBps,
		NextLoanID:              firstLoanID,
	}
}

// LoanCount returns the number of loans ever registered.
func (p Parameters) LoanCount() uint64 {
	if p.NextLoanID <= firstLoanID {
		return 0
	}
	return uint64(p.NextLoanID - firstLoanID)
}

// Validate checks the genesis invariants of the parameter set.
func (p Parameters) Validate() error {
	if p.Owner.IsZero() {
		return fmt.Errorf("params: owner: %w", errBadAccount)
	}
	if p.PoolAccount.IsZero() {
		return fmt.Errorf("params: pool account: %w", errBadAccount)
	}
	if p.Owner.String() == p.PoolAccount.String() {
		return fmt.Errorf("params: owner and pool account must differ")
	}
	if err := ValidateCollateralRatio(p.MinCollateralRatioBps); err != nil {
		return err
	}
	if err := ValidateInterestRate(p.InterestRateBps); err != nil {
		return err
	}
	if p.LiquidationThresholdBps == 0 {
		return fmt.Errorf("params: liquidation threshold must be set")
	}
	if p.NextLoanID < firstLoanID {
		return fmt.Errorf("params: next loan id must be at least %d", firstLoanID)
	}
	return nil
}

// ValidateCollateralRatio enforces the admin bounds on the minimum collateral
// ratio.
func ValidateCollateralRatio(bps uint64) error {
	if bps < MinCollateralRatioLowerBps || bps > MinCollateralRatioUpperBps {
		return fmt.Errorf("%w: collateral ratio %d bps outside [%d, %d]", ErrParameterOutOfRange, bps, MinCollateralRatioLowerBps, MinCollateralRatioUpperBps)
	}
	return nil
}

// ValidateInterestRate enforces the admin bounds on the interest rate.
func ValidateInterestRate(bps uint32) error {
	if bps < InterestRateLowerBps || bps > InterestRateUpperBps {
		return fmt.Errorf("%w: interest rate %d bps outside [%d, %d]", ErrParameterOutOfRange, bps, InterestRateLowerBps, InterestRateUpperBps)
	}
	return nil
}

func (p Parameters) authorize(caller AccountID) error {
	if caller.IsZero() || caller.Canonical() != p.Owner.Canonical() {
		return ErrUnauthorized
	}
	return nil
}
