package lending

import "sync"

// Store is the persistence boundary of the engine: the parameters singleton,
// account states keyed by identity and loan records keyed by id. Reads return
// committed state only. Apply must persist every change in the set or none.
type Store interface {
	GetParams() (Parameters, bool, error)
	GetAccount(id AccountID) (AccountState, bool, error)
	GetLoan(id LoanID) (LoanRecord, bool, error)
	Apply(changes Changes) error
}

// Changes is the write set of a single committed operation.
type Changes struct {
	Params   *Parameters
	Accounts map[AccountID]AccountState
	Loans    map[LoanID]LoanRecord
}

// Empty reports whether the change set carries no writes.
func (c Changes) Empty() bool {
	return c.Params == nil && len(c.Accounts) == 0 && len(c.Loans) == 0
}

// MemStore keeps the three keyed stores in process memory. Accounts are keyed
// by their canonical identifier.
type MemStore struct {
	mu       sync.RWMutex
	params   *Parameters
	accounts map[AccountID]AccountState
	loans    map[LoanID]LoanRecord
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[AccountID]AccountState),
		loans:    make(map[LoanID]LoanRecord),
	}
}

func (s *MemStore) GetParams() (Parameters, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.params == nil {
		return Parameters{}, false, nil
	}
	return *s.params, true, nil
}

func (s *MemStore) GetAccount(id AccountID) (AccountState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id.Canonical()]
	return acc, ok, nil
}

func (s *MemStore) GetLoan(id LoanID) (LoanRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.loans[id]
	return rec, ok, nil
}

func (s *MemStore) Apply(changes Changes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if changes.Params != nil {
		p := *changes.Params
		s.params = &p
	}
	for id, acc := range changes.Accounts {
		s.accounts[id.Canonical()] = acc
	}
	for id, rec := range changes.Loans {
		s.loans[id] = rec
	}
	return nil
}

// Accounts returns a copy of every stored account state.
func (s *MemStore) Accounts() map[AccountID]AccountState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[AccountID]AccountState, len(s.accounts))
	for id, acc := range s.accounts {
		out[id] = acc
	}
	return out
}

// Loans returns a copy of every stored loan record.
func (s *MemStore) Loans() map[LoanID]LoanRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[LoanID]LoanRecord, len(s.loans))
	for id, rec := range s.loans {
		out[id] = rec
	}
	return out
}
