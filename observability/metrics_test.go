package observability

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	nativecommon "lendledger/native/common"
	"lendledger/native/lending"
)

func TestOutcomeLabels(t *testing.T) {
	require.Equal(t, "success", Outcome(nil))
	require.Equal(t, "not_found", Outcome(fmt.Errorf("%w: loan 3 is repaid", lending.ErrNotFound)))
	require.Equal(t, "paused", Outcome(nativecommon.ErrModulePaused))
	require.Equal(t, "transfer_failed", Outcome(errors.Join(lending.ErrTransferFailed, errors.New("x"))))
	require.Equal(t, "error", Outcome(errors.New("disk full")))
}

func TestLendingMetricsRecordsOutcomesAndEvents(t *testing.T) {
	m := LendingMetrics()
	require.Same(t, m, LendingMetrics())

	before := testutil.ToFloat64(m.operations.WithLabelValues("repay_loan", "insufficient_payment"))
	m.ObserveOperation("repay_loan", lending.ErrInsufficientPayment, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.operations.WithLabelValues("repay_loan", "insufficient_payment")))

	events := testutil.ToFloat64(m.events.WithLabelValues("loan_repaid"))
	volume := testutil.ToFloat64(m.volume.WithLabelValues("loan_repaid"))
	interest := testutil.ToFloat64(m.interest)
	m.Publish(lending.Event{Type: lending.EventLoanRepaid, Amount: 1100, Interest: 100})
	require.Equal(t, events+1, testutil.ToFloat64(m.events.WithLabelValues("loan_repaid")))
	require.Equal(t, volume+1100, testutil.ToFloat64(m.volume.WithLabelValues("loan_repaid")))
	require.Equal(t, interest+100, testutil.ToFloat64(m.interest))
}

func TestHTTPMetricsObserve(t *testing.T) {
	m := HTTPMetrics()
	before := testutil.ToFloat64(m.errors.WithLabelValues("/v1/loans", "POST", "409"))
	m.Observe("/v1/loans", "POST", 409, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.errors.WithLabelValues("/v1/loans", "POST", "409")))

	throttled := testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "rate_limit"))
	m.RecordThrottle("", "rate_limit")
	require.Equal(t, throttled+1, testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "rate_limit")))

	var nilMetrics *httpMetrics
	nilMetrics.Observe("x", "GET", 200, 0)
}
