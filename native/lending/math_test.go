package lending

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollateralRatioBps(t *testing.T) {
	tests := []struct {
		name       string
		collateral uint64
		principal  uint64
		want       uint64
	}{
		{name: "exact minimum", collateral: 1500, principal: 1000, want: 15_000},
		{name: "truncates", collateral: 1499, principal: 1000, want: 14_990},
		{name: "truncates toward zero", collateral: 1, principal: 3, want: 3333},
		{name: "parity", collateral: 7, principal: 7, want: 10_000},
		{name: "wide product", collateral: math.MaxUint64 / 2, principal: math.MaxUint64 / 4, want: 20_000},
		{name: "saturates", collateral: math.MaxUint64, principal: 1, want: math.MaxUint64},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CollateralRatioBps(tc.collateral, tc.principal)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCollateralRatioRejectsZeroPrincipal(t *testing.T) {
	_, err := CollateralRatioBps(1500, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAccruedInterest(t *testing.T) {
	tests := []struct {
		name      string
		principal uint64
		rate      uint32
		elapsed   uint64
		want      uint64
	}{
		{name: "no time elapsed", principal: 1000, rate: 500, elapsed: 0, want: 0},
		{name: "one unit", principal: 1000, rate: 500, elapsed: 1, want: 50},
		{name: "ten thousand units", principal: 1000, rate: 500, elapsed: 10_000, want: 500_000},
		{name: "truncated", principal: 3, rate: 100, elapsed: 1, want: 0},
		{name: "linear", principal: 10_000, rate: 100, elapsed: 7, want: 700},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AccruedInterest(tc.principal, tc.rate, tc.elapsed)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestAccruedInterestWidensIntermediate(t *testing.T) {
	// principal*rate*elapsed overflows 64 bits, the quotient does not.
	principal := uint64(1) << 40
	got, err := AccruedInterest(principal, 5000, 1<<20)
	require.NoError(t, err)
	require.Equal(t, (principal/2)<<20, got)
}

func TestAccruedInterestOverflow(t *testing.T) {
	_, err := AccruedInterest(math.MaxUint64, 5000, math.MaxUint64)
	require.True(t, errors.Is(err, ErrArithmeticOverflow))
}

func TestTotalDue(t *testing.T) {
	due, err := TotalDue(1000, 500, 10_000)
	require.NoError(t, err)
	require.Equal(t, AmountDue{Principal: 1000, Interest: 500_000, Total: 501_000, Elapsed: 10_000}, due)

	_, err = TotalDue(math.MaxUint64, 10_000, 1)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestCheckedArithmetic(t *testing.T) {
	_, err := checkedAdd(math.MaxUint64, 1)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
	_, err = checkedSub(1, 2)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	v, err := checkedSub(5, 5)
	require.NoError(t, err)
	require.Zero(t, v)
}
