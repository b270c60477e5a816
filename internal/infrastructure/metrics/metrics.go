package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionMetrics holds all prometheus collectors for the session lifecycle.
type SessionMetrics struct {
	SessionsStartedTotal    prometheus.CounterVec
	SessionsAuthorizedTotal prometheus.CounterVec
	SessionsFinalizedTotal  prometheus.CounterVec

	AuthorizedAmountTotal prometheus.CounterVec
	CapturedAmountTotal   prometheus.CounterVec

	FinalizeRetriesTotal prometheus.CounterVec
	GatewayErrorsTotal   prometheus.CounterVec

	ChargerBusyTotal    prometheus.CounterVec
	ChargerTimeoutTotal prometheus.CounterVec
	ChargerRoundTrip    prometheus.HistogramVec

	AdminActionsTotal prometheus.CounterVec
}

func NewSessionMetrics() *SessionMetrics {
	return &SessionMetrics{
		SessionsStartedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessions_started_total",
				Help: "Sessions for which a charger slot was reserved",
			},
			[]string{"charger_id"},
		),

		SessionsAuthorizedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessions_authorized_total",
				Help: "Sessions with a successful payment pre-authorization",
			},
			[]string{"charger_id", "payment_kind"},
		),

		SessionsFinalizedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessions_finalized_total",
				Help: "Finalized sessions by settlement outcome",
			},
			[]string{"charger_id", "outcome"},
		),

		AuthorizedAmountTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authorized_amount_cents_total",
				Help: "Total pre-authorized amount in cents",
			},
			[]string{"charger_id"},
		),

		CapturedAmountTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "captured_amount_cents_total",
				Help: "Total settled amount in cents",
			},
			[]string{"charger_id"},
		),

		FinalizeRetriesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finalize_retries_total",
				Help: "Retried gateway calls during settlement",
			},
			[]string{"operation"},
		),

		GatewayErrorsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_errors_total",
				Help: "Payment gateway errors by operation and kind",
			},
			[]string{"operation", "kind"},
		),

		ChargerBusyTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charger_busy_total",
				Help: "Charger requests rejected because a call was in flight",
			},
			[]string{"charger_id"},
		),

		ChargerTimeoutTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charger_timeout_total",
				Help: "Charger requests that timed out waiting for a response",
			},
			[]string{"charger_id"},
		),

		ChargerRoundTrip: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "charger_round_trip_seconds",
				Help:    "Request/response round trip to the charger in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"charger_id", "request"},
		),

		AdminActionsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_actions_total",
				Help: "Admin corrective actions by action and result",
			},
			[]string{"action", "result"},
		),
	}
}

func (m *SessionMetrics) RecordSessionStarted(chargerID string) {
	m.SessionsStartedTotal.WithLabelValues(chargerID).Inc()
}

func (m *SessionMetrics) RecordSessionAuthorized(chargerID, paymentKind string, amountCents int64) {
	m.SessionsAuthorizedTotal.WithLabelValues(chargerID, paymentKind).Inc()
	m.AuthorizedAmountTotal.WithLabelValues(chargerID).Add(float64(amountCents))
}

func (m *SessionMetrics) RecordSessionFinalized(chargerID, outcome string, capturedCents int64) {
	m.SessionsFinalizedTotal.WithLabelValues(chargerID, outcome).Inc()
	if capturedCents > 0 {
		m.CapturedAmountTotal.WithLabelValues(chargerID).Add(float64(capturedCents))
	}
}

func (m *SessionMetrics) RecordFinalizeRetry(operation string) {
	m.FinalizeRetriesTotal.WithLabelValues(operation).Inc()
}

func (m *SessionMetrics) RecordGatewayError(operation, kind string) {
	m.GatewayErrorsTotal.WithLabelValues(operation, kind).Inc()
}

func (m *SessionMetrics) RecordChargerBusy(chargerID string) {
	m.ChargerBusyTotal.WithLabelValues(chargerID).Inc()
}

func (m *SessionMetrics) RecordChargerTimeout(chargerID string) {
	m.ChargerTimeoutTotal.WithLabelValues(chargerID).Inc()
}

func (m *SessionMetrics) RecordChargerRoundTrip(chargerID, request string, durationSeconds float64) {
	m.ChargerRoundTrip.WithLabelValues(chargerID, request).Observe(durationSeconds)
}

func (m *SessionMetrics) RecordAdminAction(action, result string) {
	m.AdminActionsTotal.WithLabelValues(action, result).Inc()
}
