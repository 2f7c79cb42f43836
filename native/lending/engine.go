package lending

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	nativecommon "lendledger/native/common"
)

const moduleName = "lending"

// Engine orchestrates the loan lifecycle. Mutating operations are admitted one
// at a time in arrival order and each either commits all of its effects
// (registry, ledger and transfers) or none of them.
type Engine struct {
	store    Store
	bank     Transferer
	clock    Clock
	pauses   nativecommon.PauseView
	logger   *slog.Logger
	sinks    []EventSink
	observer Observer
	seq      *sequencer
}

// NewEngine wires the engine to its persistence, the host's transfer
// primitive and the host clock.
func NewEngine(store Store, bank Transferer, clock Clock) *Engine {
	return &Engine{
		store:  store,
		bank:   bank,
		clock:  clock,
		logger: slog.Default(),
		seq:    newSequencer(),
	}
}

// SetPauses installs the pause view consulted by lifecycle operations.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// AddSink registers a receiver for committed events. Sinks must be registered
// before the engine starts serving.
func (e *Engine) AddSink(sink EventSink) {
	if e == nil || sink == nil {
		return
	}
	e.sinks = append(e.sinks, sink)
}

// SetObserver installs the operation outcome observer.
func (e *Engine) SetObserver(obs Observer) {
	if e == nil {
		return
	}
	e.observer = obs
}

// InitGenesis persists params when the store holds none yet and returns the
// effective parameters. An existing parameter set is left untouched.
func (e *Engine) InitGenesis(params Parameters) (Parameters, error) {
	if err := e.ready(); err != nil {
		return Parameters{}, err
	}
	e.seq.acquire()
	defer e.seq.release()

	existing, ok, err := e.store.GetParams()
	if err != nil {
		return Parameters{}, fmt.Errorf("load params: %w", err)
	}
	if ok {
		return existing, nil
	}
	params.Owner = params.Owner.Canonical()
	params.PoolAccount = params.PoolAccount.Canonical()
	if params.NextLoanID == 0 {
		params.NextLoanID = firstLoanID
	}
	if err := params.Validate(); err != nil {
		return Parameters{}, err
	}
	if err := e.store.Apply(Changes{Params: &params}); err != nil {
		return Parameters{}, fmt.Errorf("store genesis: %w", err)
	}
	e.logger.Info("lending genesis initialised",
		"owner", params.Owner.String(),
		"pool", params.PoolAccount.String(),
		"min_collateral_ratio_bps", params.MinCollateralRatioBps,
		"interest_rate_bps", params.InterestRateBps,
		"liquidation_threshold_bps", params.LiquidationThresholdBps)
	return params, nil
}

// Deposit moves amount from caller into the pool and credits the caller's
// pool balance.
func (e *Engine) Deposit(caller AccountID, amount uint64) error {
	caller = caller.Canonical()
	return e.execute("deposit", true, func(tx *txn) error {
		if caller.IsZero() {
			return errBadAccount
		}
		if amount == 0 {
			return ErrInvalidAmount
		}
		if err := tx.transfer(caller, tx.params.PoolAccount, amount); err != nil {
			return err
		}
		if err := tx.credit(caller, FieldPoolBalance, amount); err != nil {
			return err
		}
		tx.emit(Event{Type: EventDeposit, Caller: caller, Amount: amount})
		return nil
	})
}

// Withdraw returns amount of the caller's undeployed pool balance.
func (e *Engine) Withdraw(caller AccountID, amount uint64) error {
	caller = caller.Canonical()
	return e.execute("withdraw", true, func(tx *txn) error {
		if caller.IsZero() {
			return errBadAccount
		}
		if amount == 0 {
			return ErrInvalidAmount
		}
		acc, err := tx.account(caller)
		if err != nil {
			return err
		}
		if acc.PoolBalance < amount {
			return fmt.Errorf("%w: pool balance %d < %d", ErrInsufficientBalance, acc.PoolBalance, amount)
		}
		if err := tx.transfer(tx.params.PoolAccount, caller, amount); err != nil {
			return err
		}
		if err := tx.debit(caller, FieldPoolBalance, amount); err != nil {
			return err
		}
		tx.emit(Event{Type: EventWithdraw, Caller: caller, Amount: amount})
		return nil
	})
}

// OpenLoan locks collateral from caller, registers an Active loan at the
// current protocol rate and pays the principal out of the pool. A failure of
// any leg, including the outbound principal transfer, reverts every earlier
// leg.
func (e *Engine) OpenLoan(caller AccountID, principal, collateral uint64) (LoanID, error) {
	caller = caller.Canonical()
	var id LoanID
	err := e.execute("open_loan", true, func(tx *txn) error {
		if caller.IsZero() {
			return errBadAccount
		}
		if principal == 0 || collateral == 0 {
			return ErrInvalidAmount
		}
		ratio, err := CollateralRatioBps(collateral, principal)
		if err != nil {
			return err
		}
		if ratio < tx.params.MinCollateralRatioBps {
			return fmt.Errorf("%w: %d bps < %d bps", ErrCollateralBelowMinimum, ratio, tx.params.MinCollateralRatioBps)
		}
		pool := tx.params.PoolAccount
		if err := tx.transfer(caller, pool, collateral); err != nil {
			return err
		}
		loanID, err := tx.insertLoan(LoanRecord{
			Borrower:        caller,
			Principal:       principal,
			Collateral:      collateral,
			RateBps:         tx.params.InterestRateBps,
			OriginationTime: tx.now,
			State:           LoanActive,
		})
		if err != nil {
			return err
		}
		if err := tx.credit(caller, FieldBorrowedPrincipal, principal); err != nil {
			return err
		}
		if err := tx.credit(caller, FieldLockedCollateral, collateral); err != nil {
			return err
		}
		if err := tx.transfer(pool, caller, principal); err != nil {
			return err
		}
		id = loanID
		tx.emit(Event{Type: EventLoanOpened, Caller: caller, Borrower: caller, LoanID: loanID, Amount: principal, Collateral: collateral})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RepayLoan settles an Active loan of the caller. amount must cover principal
// plus simple interest accrued since origination; any excess stays with the
// pool. The collateral is returned to the borrower.
func (e *Engine) RepayLoan(caller AccountID, id LoanID, amount uint64) error {
	caller = caller.Canonical()
	return e.execute("repay_loan", true, func(tx *txn) error {
		rec, err := tx.activeLoan(id)
		if err != nil {
			return err
		}
		if caller != rec.Borrower.Canonical() {
			return ErrUnauthorized
		}
		due, err := amountDue(rec, tx.now)
		if err != nil {
			return err
		}
		if amount < due.Total {
			return fmt.Errorf("%w: paid %d, due %d", ErrInsufficientPayment, amount, due.Total)
		}
		pool := tx.params.PoolAccount
		if err := tx.transfer(caller, pool, amount); err != nil {
			return err
		}
		if err := tx.transfer(pool, caller, rec.Collateral); err != nil {
			return err
		}
		if err := tx.updateLoanState(id, LoanRepaid); err != nil {
			return err
		}
		if err := tx.debit(rec.Borrower, FieldBorrowedPrincipal, rec.Principal); err != nil {
			return err
		}
		if err := tx.debit(rec.Borrower, FieldLockedCollateral, rec.Collateral); err != nil {
			return err
		}
		tx.emit(Event{Type: EventLoanRepaid, Caller: caller, Borrower: rec.Borrower, LoanID: id, Amount: amount, Collateral: rec.Collateral, Interest: due.Interest})
		return nil
	})
}

// LiquidateLoan pays an under-collateralised loan's collateral to the caller
// (the liquidator) and clears the borrower's obligation. Eligibility requires
// the collateral ratio to be strictly below the liquidation threshold.
func (e *Engine) LiquidateLoan(caller AccountID, id LoanID) error {
	caller = caller.Canonical()
	return e.execute("liquidate_loan", true, func(tx *txn) error {
		if caller.IsZero() {
			return errBadAccount
		}
		rec, err := tx.activeLoan(id)
		if err != nil {
			return err
		}
		ratio, err := CollateralRatioBps(rec.Collateral, rec.Principal)
		if err != nil {
			return err
		}
		if ratio >= tx.params.LiquidationThresholdBps {
			return fmt.Errorf("%w: %d bps >= %d bps", ErrNotEligibleForLiquidation, ratio, tx.params.LiquidationThresholdBps)
		}
		if err := tx.transfer(tx.params.PoolAccount, caller, rec.Collateral); err != nil {
			return err
		}
		if err := tx.updateLoanState(id, LoanLiquidated); err != nil {
			return err
		}
		if err := tx.debit(rec.Borrower, FieldBorrowedPrincipal, rec.Principal); err != nil {
			return err
		}
		if err := tx.debit(rec.Borrower, FieldLockedCollateral, rec.Collateral); err != nil {
			return err
		}
		tx.emit(Event{Type: EventLoanLiquidated, Caller: caller, Borrower: rec.Borrower, LoanID: id, Amount: rec.Principal, Collateral: rec.Collateral})
		return nil
	})
}

// SetCollateralRatio updates the minimum collateral ratio. Owner only.
func (e *Engine) SetCollateralRatio(caller AccountID, bps uint64) error {
	caller = caller.Canonical()
	return e.execute("set_collateral_ratio", false, func(tx *txn) error {
		if err := tx.params.authorize(caller); err != nil {
			return err
		}
		if err := ValidateCollateralRatio(bps); err != nil {
			return err
		}
		params := tx.params
		params.MinCollateralRatioBps = bps
		tx.setParams(params)
		tx.emit(Event{Type: EventParamUpdated, Caller: caller, Param: "min_collateral_ratio_bps", Value: bps})
		return nil
	})
}

// SetInterestRate updates the rate applied to loans opened from now on.
// Existing loans keep the rate snapshotted at origination. Owner only.
func (e *Engine) SetInterestRate(caller AccountID, bps uint32) error {
	caller = caller.Canonical()
	return e.execute("set_interest_rate", false, func(tx *txn) error {
		if err := tx.params.authorize(caller); err != nil {
			return err
		}
		if err := ValidateInterestRate(bps); err != nil {
			return err
		}
		params := tx.params
		params.InterestRateBps = bps
		tx.setParams(params)
		tx.emit(Event{Type: EventParamUpdated, Caller: caller, Param: "interest_rate_bps", Value: uint64(bps)})
		return nil
	})
}

// Loan returns the record for id, if registered.
func (e *Engine) Loan(id LoanID) (LoanRecord, bool, error) {
	if err := e.ready(); err != nil {
		return LoanRecord{}, false, err
	}
	return e.store.GetLoan(id)
}

// Account returns the aggregate balances of id, if the account was ever
// touched.
func (e *Engine) Account(id AccountID) (AccountState, bool, error) {
	if err := e.ready(); err != nil {
		return AccountState{}, false, err
	}
	return e.store.GetAccount(id.Canonical())
}

// Parameters returns the committed protocol parameters.
func (e *Engine) Parameters() (Parameters, error) {
	if err := e.ready(); err != nil {
		return Parameters{}, err
	}
	params, ok, err := e.store.GetParams()
	if err != nil {
		return Parameters{}, err
	}
	if !ok {
		return Parameters{}, errNoGenesis
	}
	return params, nil
}

// InterestRate returns the rate new loans are opened at.
func (e *Engine) InterestRate() (uint32, error) {
	params, err := e.Parameters()
	return params.InterestRateBps, err
}

// CollateralRatio returns the minimum collateral ratio for new loans.
func (e *Engine) CollateralRatio() (uint64, error) {
	params, err := e.Parameters()
	return params.MinCollateralRatioBps, err
}

// LiquidationThreshold returns the ratio below which loans can be liquidated.
func (e *Engine) LiquidationThreshold() (uint64, error) {
	params, err := e.Parameters()
	return params.LiquidationThresholdBps, err
}

// LoanCount returns the number of loans ever opened.
func (e *Engine) LoanCount() (uint64, error) {
	params, err := e.Parameters()
	return params.LoanCount(), err
}

// AmountDue quotes the repayment an Active loan requires at the current clock.
func (e *Engine) AmountDue(id LoanID) (AmountDue, error) {
	rec, ok, err := e.Loan(id)
	if err != nil {
		return AmountDue{}, err
	}
	if !ok || rec.State != LoanActive {
		return AmountDue{}, ErrNotFound
	}
	return amountDue(rec, e.clock.Now())
}

func amountDue(rec LoanRecord, now uint64) (AmountDue, error) {
	if now < rec.OriginationTime {
		return AmountDue{}, fmt.Errorf("%w: clock %d before origination %d", ErrInvalidState, now, rec.OriginationTime)
	}
	return TotalDue(rec.Principal, rec.RateBps, now-rec.OriginationTime)
}

func (e *Engine) ready() error {
	switch {
	case e == nil:
		return errNilEngine
	case e.store == nil:
		return errNilStore
	case e.bank == nil:
		return errNilBank
	case e.clock == nil:
		return errNilClock
	}
	return nil
}

// execute runs fn inside the sequencer and a fresh transaction. Lifecycle
// operations are guarded by the module pause; admin operations are not.
func (e *Engine) execute(op string, guarded bool, fn func(tx *txn) error) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		if e.observer != nil {
			e.observer.ObserveOperation(op, err, time.Since(start))
		}
	}()
	if guarded {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
	}

	e.seq.acquire()
	defer e.seq.release()

	tx, err := beginTxn(e.store, e.bank, e.clock.Now())
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.abort(); rbErr != nil {
			e.logger.Error("lending rollback incomplete", "op", op, "error", err, "rollback_error", rbErr)
			return errors.Join(err, rbErr)
		}
		e.logger.Debug("lending operation aborted", "op", op, "error", err)
		return err
	}
	events := tx.events
	if err := tx.commit(); err != nil {
		e.logger.Error("lending commit failed", "op", op, "error", err)
		return err
	}
	e.logger.Debug("lending operation committed", "op", op, "height", tx.now)
	for _, ev := range events {
		for _, sink := range e.sinks {
			sink.Publish(ev)
		}
	}
	return nil
}
