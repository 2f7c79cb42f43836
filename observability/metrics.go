package observability

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	nativecommon "lendledger/native/common"
	"lendledger/native/lending"
)

// LendingMetricsRecorder exports engine outcomes and committed events. It
// implements lending.Observer and lending.EventSink.
type LendingMetricsRecorder struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	events     *prometheus.CounterVec
	volume     *prometheus.CounterVec
	interest   prometheus.Counter
}

type httpMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetricsRecorder

	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics
)

var (
	_ lending.Observer  = (*LendingMetricsRecorder)(nil)
	_ lending.EventSink = (*LendingMetricsRecorder)(nil)
)

// LendingMetrics returns the lazily-initialised lending engine registry.
func LendingMetrics() *LendingMetricsRecorder {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetricsRecorder{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lend",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for engine operations, sequencing included.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Committed lifecycle events segmented by type.",
			}, []string{"type"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "engine",
				Name:      "volume_total",
				Help:      "Sum of amounts moved by committed events segmented by type.",
			}, []string{"type"}),
			interest: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "engine",
				Name:      "interest_collected_total",
				Help:      "Interest collected by repaid loans.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.latency,
			lendingRegistry.events,
			lendingRegistry.volume,
			lendingRegistry.interest,
		)
	})
	return lendingRegistry
}

// ObserveOperation records the outcome of one engine call.
func (m *LendingMetricsRecorder) ObserveOperation(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op, Outcome(err)).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// Publish counts a committed event.
func (m *LendingMetricsRecorder) Publish(ev lending.Event) {
	if m == nil {
		return
	}
	kind := string(ev.Type)
	m.events.WithLabelValues(kind).Inc()
	if ev.Amount > 0 {
		m.volume.WithLabelValues(kind).Add(float64(ev.Amount))
	}
	if ev.Type == lending.EventLoanRepaid && ev.Interest > 0 {
		m.interest.Add(float64(ev.Interest))
	}
}

var outcomeReasons = []struct {
	err    error
	reason string
}{
	{lending.ErrUnauthorized, "unauthorized"},
	{lending.ErrInvalidAmount, "invalid_amount"},
	{lending.ErrInsufficientBalance, "insufficient_balance"},
	{lending.ErrInsufficientPayment, "insufficient_payment"},
	{lending.ErrCollateralBelowMinimum, "collateral_below_minimum"},
	{lending.ErrNotEligibleForLiquidation, "not_eligible"},
	{lending.ErrNotFound, "not_found"},
	{lending.ErrInvalidState, "invalid_state"},
	{lending.ErrParameterOutOfRange, "parameter_out_of_range"},
	{lending.ErrArithmeticOverflow, "overflow"},
	{lending.ErrTransferFailed, "transfer_failed"},
	{nativecommon.ErrModulePaused, "paused"},
}

// Outcome maps an engine error to a stable, low-cardinality label.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	for _, entry := range outcomeReasons {
		if errors.Is(err, entry.err) {
			return entry.reason
		}
	}
	return "error"
}

// HTTPMetrics returns the lazily-initialised registry for the HTTP surface.
func HTTPMetrics() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route, method and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lend",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.errors,
			httpRegistry.latency,
			httpRegistry.throttles,
		)
	})
	return httpRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *httpMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *httpMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}
