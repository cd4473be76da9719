// Package service wires the feed snapshots to the alert lifecycle: dedup
// tracking, webhook fan-out, alert derivation, and the headline metrics.
package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ampdefend/ampdefend/internal/core/domain"
	"github.com/ampdefend/ampdefend/internal/core/ports"
	"github.com/ampdefend/ampdefend/internal/metrics"
)

// feedErrorMessage is the user-visible degraded state. Individual webhook
// failures are deliberately invisible; only the feed connection gets a face.
const feedErrorMessage = "Database connection failed"

// Config tunes pipeline behavior.
type Config struct {
	// NotifyInitialSnapshot controls whether identifiers present in the very
	// first snapshot are forwarded to the webhook. Historically they always
	// were (the backlog counts as "new"); turning this off seeds the dedup
	// set silently instead, avoiding duplicate downstream notifications
	// across restarts.
	NotifyInitialSnapshot bool

	// ActiveHoneypots is the configured fleet baseline shown on the
	// dashboard. The feed carries no honeypot inventory to derive it from.
	ActiveHoneypots int

	// WebhookEndpoint is recorded on delivery-log entries.
	WebhookEndpoint string
}

// Pipeline consumes feed snapshots and exposes the derived, stateful alert
// list plus counters to the presentation layer. Snapshot processing and
// user-triggered mutations are serialized; webhook sends are fire-and-forget
// goroutines whose outcome never feeds back into snapshot processing, so a
// hung endpoint cannot stall alert-list updates.
type Pipeline struct {
	cfg      Config
	log      *logrus.Logger
	notifier ports.AlertNotifier
	delivery ports.DeliveryLog
	store    *AlertStore
	notified *NotifiedSet

	mu           sync.Mutex
	threats      []domain.Threat
	sysMetrics   domain.SystemMetrics
	loading      bool
	feedErr      string
	seenSnapshot bool

	sends    sync.WaitGroup
	onChange func(event string)
}

// NewPipeline builds a pipeline around an explicitly injected, session-scoped
// NotifiedSet. The set's lifecycle is the session's lifecycle: it is never
// persisted and never pruned.
func NewPipeline(cfg Config, notifier ports.AlertNotifier, delivery ports.DeliveryLog, notified *NotifiedSet, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		log:      log,
		notifier: notifier,
		delivery: delivery,
		store:    NewAlertStore(),
		notified: notified,
		loading:  true,
		sysMetrics: domain.SystemMetrics{
			ActiveHoneypots: cfg.ActiveHoneypots,
			SystemStatus:    domain.StatusOnline,
			LastUpdated:     time.Now(),
		},
	}
}

// SetOnChange registers a callback invoked after every state change, outside
// the pipeline lock. Used to push updates to WebSocket clients.
func (p *Pipeline) SetOnChange(fn func(event string)) {
	p.onChange = fn
}

// HandleSnapshot applies one full snapshot: forwards unseen identifiers to
// the webhook, then recomputes threats, metrics, and the alert list. A
// successful snapshot, empty ones included, clears any previous feed error.
func (p *Pipeline) HandleSnapshot(snap domain.Snapshot) {
	now := time.Now()

	p.mu.Lock()
	suppress := !p.seenSnapshot && !p.cfg.NotifyInitialSnapshot
	p.seenSnapshot = true

	var arrivals []string
	for id := range snap {
		if p.notified.MarkIfNew(id) {
			arrivals = append(arrivals, id)
		}
	}
	sort.Strings(arrivals)

	if suppress && len(arrivals) > 0 {
		p.log.WithField("count", len(arrivals)).Info("Seeded dedup set from initial snapshot without notifying")
	} else {
		for _, id := range arrivals {
			p.log.WithField("alert_id", id).Info("New alert detected")
			p.sends.Add(1)
			go p.send(id, snap[id])
		}
	}

	p.threats = snap.Threats()
	p.sysMetrics = domain.ComputeMetrics(snap, p.cfg.ActiveHoneypots, domain.StatusOnline, now)
	p.loading = false
	p.feedErr = ""
	p.mu.Unlock()

	p.store.Replace(domain.BuildAlerts(snap, now))

	metrics.RecordSnapshot()
	metrics.SetThreatGauges(len(snap), p.sysMetricsBlocked())
	p.updateAlertGauges()
	p.notifyChange("snapshot")
}

// HandleFeedError surfaces a subscription failure as the user-visible error
// state. The feed adapter keeps reconnecting on its own.
func (p *Pipeline) HandleFeedError(err error) {
	p.mu.Lock()
	p.loading = false
	p.feedErr = feedErrorMessage
	p.sysMetrics.SystemStatus = domain.StatusOffline
	p.mu.Unlock()

	p.log.WithError(err).Error("Feed subscription error")
	metrics.RecordFeedError()
	p.notifyChange("feed_error")
}

// send makes the single delivery attempt for one identifier and records the
// outcome. The identifier was already marked notified before this goroutine
// started, so the attempt is never repeated regardless of the result.
func (p *Pipeline) send(alertID string, rec domain.ThreatRecord) {
	defer p.sends.Done()

	entry := domain.DeliveryRecord{
		ID:       uuid.NewString(),
		AlertID:  alertID,
		Endpoint: p.cfg.WebhookEndpoint,
		Status:   "sent",
		SentAt:   time.Now(),
	}

	if err := p.notifier.Notify(context.Background(), alertID, rec); err != nil {
		entry.Status = "failed"
		entry.Detail = err.Error()
		p.log.WithError(err).WithField("alert_id", alertID).Warn("Failed to send alert to webhook")
		metrics.RecordNotification("failed")
	} else {
		p.log.WithField("alert_id", alertID).Info("Alert sent to webhook")
		metrics.RecordNotification("sent")
	}

	if p.delivery == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.delivery.Record(ctx, entry); err != nil {
		p.log.WithError(err).Debug("Failed to record delivery")
	}
}

// Drain waits for in-flight webhook sends to finish. Used on shutdown and in
// tests; the snapshot path never waits on it.
func (p *Pipeline) Drain() {
	p.sends.Wait()
}

// MarkAsRead marks one alert read; unknown ids are a no-op.
func (p *Pipeline) MarkAsRead(id string) {
	p.store.MarkAsRead(id)
	p.updateAlertGauges()
	p.notifyChange("alerts")
}

// MarkAllAsRead marks every non-dismissed alert read.
func (p *Pipeline) MarkAllAsRead() {
	p.store.MarkAllAsRead()
	p.updateAlertGauges()
	p.notifyChange("alerts")
}

// Dismiss hides one alert; the dismissal survives recomputation.
func (p *Pipeline) Dismiss(id string) {
	p.store.Dismiss(id)
	p.updateAlertGauges()
	p.notifyChange("alerts")
}

// ClearAll wipes the alert list and all read/dismiss history.
func (p *Pipeline) ClearAll() {
	p.store.ClearAll()
	p.updateAlertGauges()
	p.notifyChange("alerts")
}

// Alerts returns the visible (non-dismissed) alert list, newest first.
func (p *Pipeline) Alerts() []domain.Alert {
	return p.store.Visible()
}

// UnreadCount returns the number of visible unread alerts.
func (p *Pipeline) UnreadCount() int {
	return p.store.UnreadCount()
}

// Threats returns the latest snapshot as a list, newest first.
func (p *Pipeline) Threats() []domain.Threat {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Threat, len(p.threats))
	copy(out, p.threats)
	return out
}

// Metrics returns the latest headline counters.
func (p *Pipeline) Metrics() domain.SystemMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sysMetrics
}

// State returns the feed connection state: loading until the first snapshot
// or error, and the user-visible error string when degraded.
func (p *Pipeline) State() (loading bool, feedErr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading, p.feedErr
}

func (p *Pipeline) sysMetricsBlocked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sysMetrics.BlockedIPs
}

func (p *Pipeline) updateAlertGauges() {
	metrics.SetAlertGauges(len(p.store.Visible()), p.store.UnreadCount())
}

func (p *Pipeline) notifyChange(event string) {
	if p.onChange != nil {
		p.onChange(event)
	}
}
