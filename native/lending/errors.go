package lending

import "errors"

var (
	ErrUnauthorized              = errors.New("lending: unauthorized")
	ErrInvalidAmount             = errors.New("lending: amount must be positive")
	ErrInsufficientBalance       = errors.New("lending: insufficient balance")
	ErrInsufficientPayment       = errors.New("lending: payment below amount due")
	ErrCollateralBelowMinimum    = errors.New("lending: collateral ratio below minimum")
	ErrNotEligibleForLiquidation = errors.New("lending: loan not eligible for liquidation")
	ErrNotFound                  = errors.New("lending: loan not found")
	ErrInvalidState              = errors.New("lending: invalid loan state")
	ErrParameterOutOfRange       = errors.New("lending: parameter out of range")
	ErrArithmeticOverflow        = errors.New("lending: arithmetic overflow")
	ErrTransferFailed            = errors.New("lending: transfer failed")

	errNilEngine  = errors.New("lending engine: not configured")
	errNilStore   = errors.New("lending engine: store not configured")
	errNilBank    = errors.New("lending engine: transfer primitive not configured")
	errNilClock   = errors.New("lending engine: clock not configured")
	errNoGenesis  = errors.New("lending engine: parameters not initialised")
	errBadAccount = errors.New("lending: account identifier required")
)
