package lending

import (
	"math"

	"github.com/holiman/uint256"
)

const basisPoints uint64 = 10_000

var basisPointsU256 = uint256.NewInt(basisPoints)

// CollateralRatioBps returns collateral*10000/principal truncated toward zero.
// The product is computed in 256 bits; a ratio that does not fit in uint64
// saturates at math.MaxUint64, which still compares correctly against any
// bps threshold. principal must be non-zero.
func CollateralRatioBps(collateral, principal uint64) (uint64, error) {
	if principal == 0 {
		return 0, ErrInvalidAmount
	}
	product := new(uint256.Int).Mul(uint256.NewInt(collateral), basisPointsU256)
	ratio := product.Div(product, uint256.NewInt(principal))
	if !ratio.IsUint64() {
		return math.MaxUint64, nil
	}
	return ratio.Uint64(), nil
}

// AccruedInterest computes simple interest principal*rateBps*elapsed/10000,
// truncated toward zero. rateBps is charged once per elapsed clock unit.
func AccruedInterest(principal uint64, rateBps uint32, elapsed uint64) (uint64, error) {
	acc := new(uint256.Int).Mul(uint256.NewInt(principal), uint256.NewInt(uint64(rateBps)))
	// principal*rate fits in 96 bits, times elapsed in 160: no 256-bit overflow.
	acc.Mul(acc, uint256.NewInt(elapsed))
	acc.Div(acc, basisPointsU256)
	if !acc.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return acc.Uint64(), nil
}

// TotalDue returns principal plus accrued interest.
func TotalDue(principal uint64, rateBps uint32, elapsed uint64) (AmountDue, error) {
	interest, err := AccruedInterest(principal, rateBps, elapsed)
	if err != nil {
		return AmountDue{}, err
	}
	total, err := checkedAdd(principal, interest)
	if err != nil {
		return AmountDue{}, err
	}
	return AmountDue{Principal: principal, Interest: interest, Total: total, Elapsed: elapsed}, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrInsufficientBalance
	}
	return a - b, nil
}
