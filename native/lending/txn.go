package lending

import (
	"errors"
	"fmt"
)

// txn is the transaction boundary of one engine operation. Reads fall through
// to the committed store on first access and are cached, so an operation sees
// a consistent snapshot; writes are staged and reach the store in a single
// Apply. The sequencer guarantees no other operation commits in between.
type txn struct {
	store     Store
	transfers *transferSession
	now       uint64

	params      Parameters
	paramsDirty bool

	accounts      map[AccountID]AccountState
	dirtyAccounts map[AccountID]struct{}
	loans         map[LoanID]LoanRecord
	dirtyLoans    map[LoanID]struct{}

	events []Event
}

func beginTxn(store Store, bank Transferer, now uint64) (*txn, error) {
	params, ok, err := store.GetParams()
	if err != nil {
		return nil, fmt.Errorf("load params: %w", err)
	}
	if !ok {
		return nil, errNoGenesis
	}
	session, err := openTransferSession(bank)
	if err != nil {
		return nil, err
	}
	return &txn{
		store:         store,
		transfers:     session,
		now:           now,
		params:        params,
		accounts:      make(map[AccountID]AccountState),
		dirtyAccounts: make(map[AccountID]struct{}),
		loans:         make(map[LoanID]LoanRecord),
		dirtyLoans:    make(map[LoanID]struct{}),
	}, nil
}

func (tx *txn) setParams(p Parameters) {
	tx.params = p
	tx.paramsDirty = true
}

func (tx *txn) transfer(from, to AccountID, amount uint64) error {
	return tx.transfers.transfer(from, to, amount)
}

func (tx *txn) emit(ev Event) {
	ev.Height = tx.now
	tx.events = append(tx.events, ev)
}

func (tx *txn) changes() Changes {
	var changes Changes
	if tx.paramsDirty {
		p := tx.params
		changes.Params = &p
	}
	if len(tx.dirtyAccounts) > 0 {
		changes.Accounts = make(map[AccountID]AccountState, len(tx.dirtyAccounts))
		for id := range tx.dirtyAccounts {
			changes.Accounts[id] = tx.accounts[id]
		}
	}
	if len(tx.dirtyLoans) > 0 {
		changes.Loans = make(map[LoanID]LoanRecord, len(tx.dirtyLoans))
		for id := range tx.dirtyLoans {
			changes.Loans[id] = tx.loans[id]
		}
	}
	return changes
}

// commit makes the operation durable: staged transfers first, then the store
// write. A store failure after the transfers committed is undone by
// compensating transfers.
func (tx *txn) commit() error {
	if err := tx.transfers.commit(); err != nil {
		return errors.Join(err, tx.transfers.rollback())
	}
	changes := tx.changes()
	if changes.Empty() {
		return nil
	}
	if err := tx.store.Apply(changes); err != nil {
		err = fmt.Errorf("apply changes: %w", err)
		if cerr := tx.transfers.compensate(); cerr != nil {
			return errors.Join(err, cerr)
		}
		return err
	}
	return nil
}

// abort discards staged writes and rolls back transfers.
func (tx *txn) abort() error {
	tx.accounts = nil
	tx.dirtyAccounts = nil
	tx.loans = nil
	tx.dirtyLoans = nil
	tx.events = nil
	return tx.transfers.rollback()
}
