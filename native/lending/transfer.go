package lending

import (
	"errors"
	"fmt"
)

// Transferer is the host ledger's value-transfer primitive. A call either
// moves the full amount or leaves balances untouched.
type Transferer interface {
	Transfer(from, to AccountID, amount uint64) error
}

// TransferBatch stages transfers that become visible only on Commit.
type TransferBatch interface {
	Transferer
	Commit() error
	Rollback()
}

// Batcher is implemented by host ledgers able to stage transfers. The engine
// prefers staging over compensation when it is available.
type Batcher interface {
	Begin() (TransferBatch, error)
}

type transferLeg struct {
	from, to AccountID
	amount   uint64
}

// transferSession journals the transfers of one operation so they can be
// rolled back. With a Batcher nothing is visible before commit; otherwise
// executed legs are compensated in reverse order.
type transferSession struct {
	bank  Transferer
	batch TransferBatch
	legs  []transferLeg
}

func openTransferSession(bank Transferer) (*transferSession, error) {
	session := &transferSession{bank: bank}
	if b, ok := bank.(Batcher); ok {
		batch, err := b.Begin()
		if err != nil {
			return nil, fmt.Errorf("%w: begin batch: %v", ErrTransferFailed, err)
		}
		session.batch = batch
	}
	return session, nil
}

func (s *transferSession) transfer(from, to AccountID, amount uint64) error {
	from, to = from.Canonical(), to.Canonical()
	var err error
	if s.batch != nil {
		err = s.batch.Transfer(from, to, amount)
	} else {
		err = s.bank.Transfer(from, to, amount)
	}
	if err != nil {
		return fmt.Errorf("%w: %s -> %s (%d): %w", ErrTransferFailed, from, to, amount, err)
	}
	s.legs = append(s.legs, transferLeg{from: from, to: to, amount: amount})
	return nil
}

func (s *transferSession) commit() error {
	if s.batch == nil {
		return nil
	}
	if err := s.batch.Commit(); err != nil {
		return fmt.Errorf("%w: commit batch: %w", ErrTransferFailed, err)
	}
	s.batch = nil
	return nil
}

// rollback undoes every transfer of the session. It reports legs that could
// not be compensated; those need operator attention.
func (s *transferSession) rollback() error {
	if s.batch != nil {
		s.batch.Rollback()
		s.batch = nil
		s.legs = nil
		return nil
	}
	return s.compensate()
}

// compensate reverses executed legs directly against the host ledger. It is
// also used when a committed batch has to be undone after a store failure.
func (s *transferSession) compensate() error {
	var errs []error
	for i := len(s.legs) - 1; i >= 0; i-- {
		leg := s.legs[i]
		if err := s.bank.Transfer(leg.to, leg.from, leg.amount); err != nil {
			errs = append(errs, fmt.Errorf("compensate %s -> %s (%d): %w", leg.to, leg.from, leg.amount, err))
		}
	}
	s.legs = nil
	return errors.Join(errs...)
}
