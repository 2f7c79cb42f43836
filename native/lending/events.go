package lending

import "time"

// EventType names a committed state transition.
type EventType string

const (
	EventDeposit        EventType = "deposit"
	EventWithdraw       EventType = "withdraw"
	EventLoanOpened     EventType = "loan_opened"
	EventLoanRepaid     EventType = "loan_repaid"
	EventLoanLiquidated EventType = "loan_liquidated"
	EventParamUpdated   EventType = "param_updated"
)

// Event describes one committed operation. Fields that do not apply to the
// event type are left zero.
type Event struct {
	Type       EventType `json:"type"`
	Caller     AccountID `json:"caller"`
	Borrower   AccountID `json:"borrower,omitempty"`
	LoanID     LoanID    `json:"loanId,omitempty"`
	Amount     uint64    `json:"amount,omitempty"`
	Collateral uint64    `json:"collateral,omitempty"`
	Interest   uint64    `json:"interest,omitempty"`
	Param      string    `json:"param,omitempty"`
	Value      uint64    `json:"value,omitempty"`
	Height     uint64    `json:"height"`
}

// EventSink receives events after the operation that produced them has been
// committed. Sinks run synchronously on the operation path and must not call
// back into the engine's mutating methods.
type EventSink interface {
	Publish(Event)
}

// Observer is notified of every operation outcome, committed or not.
type Observer interface {
	ObserveOperation(op string, err error, duration time.Duration)
}
