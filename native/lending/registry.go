package lending

import (
	"errors"
	"fmt"
	"math"
)

// insertLoan assigns the next identifier to rec, stages it and advances the
// counter.
func (tx *txn) insertLoan(rec LoanRecord) (LoanID, error) {
	id := tx.params.NextLoanID
	if id < firstLoanID {
		id = firstLoanID
	}
	if uint64(id) == math.MaxUint64 {
		return 0, fmt.Errorf("registry: %w: loan id space exhausted", ErrArithmeticOverflow)
	}
	rec.ID = id
	tx.loans[id] = rec
	tx.dirtyLoans[id] = struct{}{}

	params := tx.params
	params.NextLoanID = id + 1
	tx.setParams(params)
	return id, nil
}

// loan returns the staged or committed record for id.
func (tx *txn) loan(id LoanID) (LoanRecord, error) {
	if rec, ok := tx.loans[id]; ok {
		return rec, nil
	}
	rec, ok, err := tx.store.GetLoan(id)
	if err != nil {
		return LoanRecord{}, fmt.Errorf("load loan %d: %w", id, err)
	}
	if !ok {
		return LoanRecord{}, ErrNotFound
	}
	tx.loans[id] = rec
	return rec, nil
}

// activeLoan returns the record only when it exists and is Active; terminal
// loans are reported as not found.
func (tx *txn) activeLoan(id LoanID) (LoanRecord, error) {
	rec, err := tx.loan(id)
	if err != nil {
		return LoanRecord{}, err
	}
	if rec.State != LoanActive {
		return LoanRecord{}, fmt.Errorf("%w: loan %d is %s", ErrNotFound, id, rec.State)
	}
	return rec, nil
}

// updateLoanState moves an Active loan to next. Only the state field changes.
func (tx *txn) updateLoanState(id LoanID, next LoanState) error {
	rec, err := tx.loan(id)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: loan %d absent", ErrInvalidState, id)
	}
	if err != nil {
		return err
	}
	if rec.State != LoanActive || !next.Terminal() {
		return fmt.Errorf("%w: loan %d %s -> %s", ErrInvalidState, id, rec.State, next)
	}
	rec.State = next
	tx.loans[id] = rec
	tx.dirtyLoans[id] = struct{}{}
	return nil
}
