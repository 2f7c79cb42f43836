package bank

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"lendledger/native/lending"
	"lendledger/storage"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrInvalidTransfer   = errors.New("bank: invalid transfer")
	ErrBalanceOverflow   = errors.New("bank: balance overflow")
	ErrBatchClosed       = errors.New("bank: batch already closed")
)

var balancePrefix = []byte("bank/balance/")

func balanceKey(account lending.AccountID) []byte {
	id := account.String()
	buf := make([]byte, len(balancePrefix)+len(id))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], id)
	return buf
}

// Ledger is the host ledger holding spendable balances per canonical account
// identifier.
// Transfers are atomic; batches stage transfers against a private overlay
// and publish them together on Commit. With a backing database every
// published change is written through one storage batch before it becomes
// visible.
type Ledger struct {
	mu       sync.Mutex
	balances map[lending.AccountID]uint64
	db       storage.Database
}

// NewLedger returns an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[lending.AccountID]uint64)}
}

// NewPersistentLedger returns a ledger whose balances live in db. Balances are
// loaded lazily on first access.
func NewPersistentLedger(db storage.Database) *Ledger {
	l := NewLedger()
	l.db = db
	return l
}

// Mint credits amount to account out of thin air. Used for genesis funding
// and tests.
func (l *Ledger) Mint(account lending.AccountID, amount uint64) error {
	if account.IsZero() {
		return fmt.Errorf("%w: account required", ErrInvalidTransfer)
	}
	account = account.Canonical()
	l.mu.Lock()
	defer l.mu.Unlock()
	current, err := l.load(account)
	if err != nil {
		return err
	}
	next := current + amount
	if next < current {
		return ErrBalanceOverflow
	}
	return l.publish(balanceMap{account: next})
}

// Balance returns the spendable balance of account. Storage failures read as
// zero; use BalanceOf to observe them.
func (l *Ledger) Balance(account lending.AccountID) uint64 {
	bal, _ := l.BalanceOf(account)
	return bal
}

// BalanceOf returns the spendable balance of account.
func (l *Ledger) BalanceOf(account lending.AccountID) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(account.Canonical())
}

// Transfer moves amount from one account to another or fails without effect.
func (l *Ledger) Transfer(from, to lending.AccountID, amount uint64) error {
	from, to = from.Canonical(), to.Canonical()
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.preload(from, to); err != nil {
		return err
	}
	scratch := make(balanceMap, 2)
	view := overlayView{base: l.balances, overlay: scratch}
	if err := applyTransfer(view, scratch, from, to, amount); err != nil {
		return err
	}
	return l.publish(scratch)
}

// Begin opens a staged batch. Staged transfers are invisible to other ledger
// users until Commit.
func (l *Ledger) Begin() (lending.TransferBatch, error) {
	return &batch{ledger: l, overlay: make(balanceMap)}, nil
}

// load returns the balance of account, reading through to the database on a
// cache miss. Callers hold l.mu.
func (l *Ledger) load(account lending.AccountID) (uint64, error) {
	if bal, ok := l.balances[account]; ok {
		return bal, nil
	}
	if l.db == nil {
		return 0, nil
	}
	raw, err := l.db.Get(balanceKey(account))
	if errors.Is(err, storage.ErrNotFound) {
		l.balances[account] = 0
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("bank: load %s: %w", account, err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("bank: corrupt balance record for %s", account)
	}
	bal := binary.BigEndian.Uint64(raw)
	l.balances[account] = bal
	return bal, nil
}

func (l *Ledger) preload(accounts ...lending.AccountID) error {
	for _, account := range accounts {
		if _, err := l.load(account); err != nil {
			return err
		}
	}
	return nil
}

// publish persists changes and then applies them to the cache. Callers hold
// l.mu.
func (l *Ledger) publish(changes balanceMap) error {
	if l.db != nil && len(changes) > 0 {
		batch := l.db.NewBatch()
		for account, bal := range changes {
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], bal)
			batch.Put(balanceKey(account), buf[:])
		}
		if err := batch.Write(); err != nil {
			return fmt.Errorf("bank: persist balances: %w", err)
		}
	}
	for account, bal := range changes {
		l.balances[account] = bal
	}
	return nil
}

type stagedTransfer struct {
	from, to lending.AccountID
	amount   uint64
}

type batch struct {
	ledger  *Ledger
	overlay balanceMap
	staged  []stagedTransfer
	closed  bool
}

func (b *batch) Transfer(from, to lending.AccountID, amount uint64) error {
	if b.closed {
		return ErrBatchClosed
	}
	from, to = from.Canonical(), to.Canonical()
	b.ledger.mu.Lock()
	defer b.ledger.mu.Unlock()
	if err := b.ledger.preload(from, to); err != nil {
		return err
	}
	view := overlayView{base: b.ledger.balances, overlay: b.overlay}
	if err := applyTransfer(view, b.overlay, from, to, amount); err != nil {
		return err
	}
	b.staged = append(b.staged, stagedTransfer{from: from, to: to, amount: amount})
	return nil
}

// Commit replays the staged transfers against the live balances under a
// single lock. Balances may have moved since staging, so every leg is
// re-validated; on failure nothing is published.
func (b *batch) Commit() error {
	if b.closed {
		return ErrBatchClosed
	}
	b.closed = true
	b.ledger.mu.Lock()
	defer b.ledger.mu.Unlock()
	scratch := make(balanceMap)
	view := overlayView{base: b.ledger.balances, overlay: scratch}
	for _, t := range b.staged {
		if err := applyTransfer(view, scratch, t.from, t.to, t.amount); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	return b.ledger.publish(scratch)
}

func (b *batch) Rollback() {
	b.closed = true
	b.overlay = nil
	b.staged = nil
}

type balanceReader interface {
	get(account lending.AccountID) uint64
}

type balanceMap = map[lending.AccountID]uint64

type overlayView struct {
	base    balanceMap
	overlay balanceMap
}

func (v overlayView) get(account lending.AccountID) uint64 {
	if bal, ok := v.overlay[account]; ok {
		return bal
	}
	return v.base[account]
}

func applyTransfer(read balanceReader, dst balanceMap, from, to lending.AccountID, amount uint64) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("%w: account required", ErrInvalidTransfer)
	}
	if amount == 0 {
		return fmt.Errorf("%w: zero amount", ErrInvalidTransfer)
	}
	if from.Canonical() == to.Canonical() {
		return fmt.Errorf("%w: self transfer", ErrInvalidTransfer)
	}
	fromBal := read.get(from)
	if fromBal < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, fromBal, amount)
	}
	toBal := read.get(to)
	if toBal+amount < toBal {
		return ErrBalanceOverflow
	}
	dst[from] = fromBal - amount
	dst[to] = toBal + amount
	return nil
}
