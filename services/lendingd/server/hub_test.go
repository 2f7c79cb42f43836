package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lendledger/native/lending"
)

func TestHubFiltersByLoanAndAccount(t *testing.T) {
	hub := NewHub(nil)
	byLoan, cancelLoan := hub.Subscribe(EventFilter{LoanID: 2})
	defer cancelLoan()
	byAccount, cancelAccount := hub.Subscribe(EventFilter{Account: "carol"})
	defer cancelAccount()

	hub.Publish(lending.Event{Type: lending.EventLoanOpened, Caller: "alice", Borrower: "alice", LoanID: 1})
	hub.Publish(lending.Event{Type: lending.EventLoanLiquidated, Caller: "carol", Borrower: "alice", LoanID: 2})

	require.Len(t, byLoan, 1)
	require.Equal(t, lending.LoanID(2), (<-byLoan).LoanID)
	require.Len(t, byAccount, 1)
	require.Equal(t, lending.AccountID("carol"), (<-byAccount).Caller)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(nil)
	events, cancel := hub.Subscribe(EventFilter{})
	defer cancel()

	for i := 0; i <= subscriberBuffer; i++ {
		hub.Publish(lending.Event{Type: lending.EventDeposit, Caller: "alice", Amount: uint64(i + 1)})
	}
	require.Equal(t, 0, hub.Subscribers())

	received := 0
	for range events {
		received++
	}
	require.Equal(t, subscriberBuffer, received)
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub(nil)
	events, cancel := hub.Subscribe(EventFilter{})
	require.Equal(t, 1, hub.Subscribers())
	cancel()
	cancel()
	_, open := <-events
	require.False(t, open)
	require.Equal(t, 0, hub.Subscribers())
}
