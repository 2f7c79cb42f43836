package lending

import "fmt"

// BalanceField selects one of the aggregate balances of an AccountState.
type BalanceField uint8

const (
	FieldPoolBalance BalanceField = iota + 1
	FieldBorrowedPrincipal
	FieldLockedCollateral
)

func (f BalanceField) String() string {
	switch f {
	case FieldPoolBalance:
		return "pool_balance"
	case FieldBorrowedPrincipal:
		return "borrowed_principal"
	case FieldLockedCollateral:
		return "locked_collateral"
	default:
		return fmt.Sprintf("field(%d)", uint8(f))
	}
}

func (a *AccountState) field(f BalanceField) (*uint64, error) {
	switch f {
	case FieldPoolBalance:
		return &a.PoolBalance, nil
	case FieldBorrowedPrincipal:
		return &a.BorrowedPrincipal, nil
	case FieldLockedCollateral:
		return &a.LockedCollateral, nil
	default:
		return nil, fmt.Errorf("ledger: unknown balance field %d", uint8(f))
	}
}

// account returns the staged state of id, loading it from the store on first
// access. Absent accounts start at zero.
func (tx *txn) account(id AccountID) (AccountState, error) {
	id = id.Canonical()
	if acc, ok := tx.accounts[id]; ok {
		return acc, nil
	}
	acc, _, err := tx.store.GetAccount(id)
	if err != nil {
		return AccountState{}, fmt.Errorf("load account %s: %w", id, err)
	}
	tx.accounts[id] = acc
	return acc, nil
}

func (tx *txn) credit(id AccountID, f BalanceField, amount uint64) error {
	return tx.adjust(id, f, func(cur uint64) (uint64, error) {
		return checkedAdd(cur, amount)
	})
}

func (tx *txn) debit(id AccountID, f BalanceField, amount uint64) error {
	return tx.adjust(id, f, func(cur uint64) (uint64, error) {
		return checkedSub(cur, amount)
	})
}

func (tx *txn) adjust(id AccountID, f BalanceField, op func(uint64) (uint64, error)) error {
	id = id.Canonical()
	if id.IsZero() {
		return errBadAccount
	}
	acc, err := tx.account(id)
	if err != nil {
		return err
	}
	ptr, err := acc.field(f)
	if err != nil {
		return err
	}
	next, err := op(*ptr)
	if err != nil {
		return fmt.Errorf("%s %s: %w", id, f, err)
	}
	*ptr = next
	tx.accounts[id] = acc
	tx.dirtyAccounts[id] = struct{}{}
	return nil
}
