// Package metrics holds the Prometheus instrumentation for the alert
// pipeline. Collectors are registered once at startup via Init; the Record
// helpers are safe to call before that (they no-op).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricsOnce ensures collectors are registered only once
	metricsOnce sync.Once

	// snapshotsTotal counts feed snapshots applied
	snapshotsTotal prometheus.Counter

	// feedErrorsTotal counts subscription failures surfaced to the UI state
	feedErrorsTotal prometheus.Counter

	// feedReconnectsTotal counts transport-level reconnect attempts
	feedReconnectsTotal prometheus.Counter

	// webhookNotificationsTotal counts delivery attempts by outcome
	webhookNotificationsTotal *prometheus.CounterVec

	// threatsCurrent / blockedCurrent mirror the dashboard headline counters
	threatsCurrent prometheus.Gauge
	blockedCurrent prometheus.Gauge

	// alertsVisible / alertsUnread mirror the alert list state
	alertsVisible prometheus.Gauge
	alertsUnread  prometheus.Gauge
)

// Init registers all collectors. Call once at application startup.
func Init() {
	metricsOnce.Do(func() {
		snapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ampdefend_feed_snapshots_total",
			Help: "Total feed snapshots applied",
		})
		feedErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ampdefend_feed_errors_total",
			Help: "Total feed subscription errors surfaced",
		})
		feedReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ampdefend_feed_reconnects_total",
			Help: "Total feed reconnect attempts",
		})
		webhookNotificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ampdefend_webhook_notifications_total",
				Help: "Total webhook delivery attempts by outcome",
			},
			[]string{"outcome"},
		)
		threatsCurrent = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ampdefend_threats_current",
			Help: "Threat records in the latest snapshot",
		})
		blockedCurrent = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ampdefend_blocked_ips_current",
			Help: "Threat records with an auto-blocked source in the latest snapshot",
		})
		alertsVisible = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ampdefend_alerts_visible",
			Help: "Alerts currently visible to the dashboard",
		})
		alertsUnread = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ampdefend_alerts_unread",
			Help: "Visible alerts not yet read",
		})
	})
}

// RecordSnapshot counts one applied snapshot.
func RecordSnapshot() {
	if snapshotsTotal != nil {
		snapshotsTotal.Inc()
	}
}

// RecordFeedError counts one surfaced subscription error.
func RecordFeedError() {
	if feedErrorsTotal != nil {
		feedErrorsTotal.Inc()
	}
}

// RecordFeedReconnect counts one reconnect attempt.
func RecordFeedReconnect() {
	if feedReconnectsTotal != nil {
		feedReconnectsTotal.Inc()
	}
}

// RecordNotification counts one webhook delivery attempt.
// outcome: "sent" or "failed".
func RecordNotification(outcome string) {
	if webhookNotificationsTotal != nil {
		webhookNotificationsTotal.WithLabelValues(outcome).Inc()
	}
}

// SetThreatGauges updates the snapshot-derived gauges.
func SetThreatGauges(threats, blocked int) {
	if threatsCurrent != nil {
		threatsCurrent.Set(float64(threats))
	}
	if blockedCurrent != nil {
		blockedCurrent.Set(float64(blocked))
	}
}

// SetAlertGauges updates the alert list gauges.
func SetAlertGauges(visible, unread int) {
	if alertsVisible != nil {
		alertsVisible.Set(float64(visible))
	}
	if alertsUnread != nil {
		alertsUnread.Set(float64(unread))
	}
}
