package lending

import (
	"fmt"
	"strings"
)

// AccountID identifies a participant at the host ledger. The core treats it as
// an opaque, already authenticated identity.
type AccountID string

// String returns the identifier with surrounding whitespace removed.
func (a AccountID) String() string { return strings.TrimSpace(string(a)) }

// Canonical returns the identifier in the form used for map keys, storage
// keys and identity comparisons. Two identifiers name the same account iff
// their canonical forms are equal.
func (a AccountID) Canonical() AccountID { return AccountID(a.String()) }

// IsZero reports whether the identifier is empty.
func (a AccountID) IsZero() bool { return a.String() == "" }

// LoanID is the registry-assigned loan identifier. Identifiers start at 1 and
// are never reused.
type LoanID uint64

// LoanState enumerates the lifecycle states of a loan.
type LoanState uint8

const (
	LoanActive LoanState = iota + 1
	LoanRepaid
	LoanLiquidated
)

// Valid reports whether the state is one of the known lifecycle states.
func (s LoanState) Valid() bool {
	switch s {
	case LoanActive, LoanRepaid, LoanLiquidated:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s LoanState) Terminal() bool {
	return s == LoanRepaid || s == LoanLiquidated
}

func (s LoanState) String() string {
	switch s {
	case LoanActive:
		return "active"
	case LoanRepaid:
		return "repaid"
	case LoanLiquidated:
		return "liquidated"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// LoanRecord is the immutable origination data of a loan plus its lifecycle
// state. Only State changes after creation.
type LoanRecord struct {
	ID              LoanID    `json:"id"`
	Borrower        AccountID `json:"borrower"`
	Principal       uint64    `json:"principal"`
	Collateral      uint64    `json:"collateral"`
	RateBps         uint32    `json:"rateBps"`
	OriginationTime uint64    `json:"originationTime"`
	State           LoanState `json:"state"`
}

// AccountState aggregates the balances the ledger tracks per identity.
type AccountState struct {
	// PoolBalance is deposited, undeployed liquidity that can be withdrawn.
	PoolBalance uint64 `json:"poolBalance"`
	// BorrowedPrincipal is the sum of principal over the account's active loans.
	BorrowedPrincipal uint64 `json:"borrowedPrincipal"`
	// LockedCollateral is the sum of collateral over the account's active loans.
	LockedCollateral uint64 `json:"lockedCollateral"`
}

// AmountDue breaks down the repayment requirement of an active loan.
type AmountDue struct {
	Principal uint64 `json:"principal"`
	Interest  uint64 `json:"interest"`
	Total     uint64 `json:"total"`
	Elapsed   uint64 `json:"elapsed"`
}
