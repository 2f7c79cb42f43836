package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"lendledger/native/lending"
	"lendledger/storage"
)

var (
	paramsKey     = []byte("lending/params")
	accountPrefix = []byte("lending/account/")
	loanPrefix    = []byte("lending/loan/")
)

// accountKey hashes the identity so keys have a fixed width regardless of
// the identifier format.
func accountKey(id lending.AccountID) []byte {
	digest := ethcrypto.Keccak256([]byte(id.String()))
	buf := make([]byte, len(accountPrefix)+len(digest))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], digest)
	return buf
}

func loanKey(id lending.LoanID) []byte {
	buf := make([]byte, len(loanPrefix)+8)
	copy(buf, loanPrefix)
	binary.BigEndian.PutUint64(buf[len(loanPrefix):], uint64(id))
	return buf
}

type storedParams struct {
	Owner                   string
	PoolAccount             string
	MinCollateralRatioBps   uint64
	InterestRateBps         uint32
	LiquidationThresholdBps uint64
	NextLoanID              uint64
}

func newStoredParams(p lending.Parameters) *storedParams {
	return &storedParams{
		Owner:                   p.Owner.String(),
		PoolAccount:             p.PoolAccount.String(),
		MinCollateralRatioBps:   p.MinCollateralRatioBps,
		InterestRateBps:         p.InterestRateBps,
		LiquidationThresholdBps: p.LiquidationThresholdBps,
		NextLoanID:              uint64(p.NextLoanID),
	}
}

func (s *storedParams) toParams() lending.Parameters {
	return lending.Parameters{
		Owner:                   lending.AccountID(s.Owner),
		PoolAccount:             lending.AccountID(s.PoolAccount),
		MinCollateralRatioBps:   s.MinCollateralRatioBps,
		InterestRateBps:         s.InterestRateBps,
		LiquidationThresholdBps: s.LiquidationThresholdBps,
		NextLoanID:              lending.LoanID(s.NextLoanID),
	}
}

type storedAccount struct {
	ID                string
	PoolBalance       uint64
	BorrowedPrincipal uint64
	LockedCollateral  uint64
}

type storedLoan struct {
	ID              uint64
	Borrower        string
	Principal       uint64
	Collateral      uint64
	RateBps         uint32
	OriginationTime uint64
	State           uint8
}

func newStoredLoan(rec lending.LoanRecord) *storedLoan {
	return &storedLoan{
		ID:              uint64(rec.ID),
		Borrower:        rec.Borrower.String(),
		Principal:       rec.Principal,
		Collateral:      rec.Collateral,
		RateBps:         rec.RateBps,
		OriginationTime: rec.OriginationTime,
		State:           uint8(rec.State),
	}
}

func (s *storedLoan) toRecord() (lending.LoanRecord, error) {
	state := lending.LoanState(s.State)
	if !state.Valid() {
		return lending.LoanRecord{}, fmt.Errorf("lending state: loan %d has invalid state %d", s.ID, s.State)
	}
	return lending.LoanRecord{
		ID:              lending.LoanID(s.ID),
		Borrower:        lending.AccountID(s.Borrower),
		Principal:       s.Principal,
		Collateral:      s.Collateral,
		RateBps:         s.RateBps,
		OriginationTime: s.OriginationTime,
		State:           state,
	}, nil
}

// Store persists the lending module into a key-value database as RLP records.
// Every Apply is written through one storage batch.
type Store struct {
	mu sync.RWMutex
	db storage.Database
}

// NewStore wraps db. The caller keeps ownership of the database handle.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

var _ lending.Store = (*Store)(nil)

func (s *Store) load(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("lending state: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) GetParams() (lending.Parameters, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stored storedParams
	ok, err := s.load(paramsKey, &stored)
	if err != nil || !ok {
		return lending.Parameters{}, false, err
	}
	return stored.toParams(), true, nil
}

func (s *Store) GetAccount(id lending.AccountID) (lending.AccountState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stored storedAccount
	ok, err := s.load(accountKey(id), &stored)
	if err != nil || !ok {
		return lending.AccountState{}, false, err
	}
	return lending.AccountState{
		PoolBalance:       stored.PoolBalance,
		BorrowedPrincipal: stored.BorrowedPrincipal,
		LockedCollateral:  stored.LockedCollateral,
	}, true, nil
}

func (s *Store) GetLoan(id lending.LoanID) (lending.LoanRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stored storedLoan
	ok, err := s.load(loanKey(id), &stored)
	if err != nil || !ok {
		return lending.LoanRecord{}, false, err
	}
	rec, err := stored.toRecord()
	if err != nil {
		return lending.LoanRecord{}, false, err
	}
	return rec, true, nil
}

// Apply encodes every change up front and writes them in one batch, so a
// failed encode leaves the database untouched.
func (s *Store) Apply(changes lending.Changes) error {
	if changes.Empty() {
		return nil
	}
	batch := s.db.NewBatch()
	if changes.Params != nil {
		encoded, err := rlp.EncodeToBytes(newStoredParams(*changes.Params))
		if err != nil {
			return fmt.Errorf("lending state: encode params: %w", err)
		}
		batch.Put(paramsKey, encoded)
	}
	for id, acc := range changes.Accounts {
		encoded, err := rlp.EncodeToBytes(&storedAccount{
			ID:                id.String(),
			PoolBalance:       acc.PoolBalance,
			BorrowedPrincipal: acc.BorrowedPrincipal,
			LockedCollateral:  acc.LockedCollateral,
		})
		if err != nil {
			return fmt.Errorf("lending state: encode account %s: %w", id, err)
		}
		batch.Put(accountKey(id), encoded)
	}
	for id, rec := range changes.Loans {
		encoded, err := rlp.EncodeToBytes(newStoredLoan(rec))
		if err != nil {
			return fmt.Errorf("lending state: encode loan %d: %w", id, err)
		}
		batch.Put(loanKey(id), encoded)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := batch.Write(); err != nil {
		return fmt.Errorf("lending state: write batch: %w", err)
	}
	return nil
}
