package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ampdefend/ampdefend/internal/core/domain"
	"github.com/ampdefend/ampdefend/internal/core/ports"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, alertID string, rec domain.ThreatRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, alertID)
	return f.err
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDeliveryLog struct {
	mu      sync.Mutex
	records []domain.DeliveryRecord
}

func (f *fakeDeliveryLog) Record(ctx context.Context, rec domain.DeliveryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeDeliveryLog) FindRecent(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.DeliveryRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestPipeline(cfg Config, notifier *fakeNotifier, delivery *fakeDeliveryLog) *Pipeline {
	var dl ports.DeliveryLog
	if delivery != nil {
		dl = delivery
	}
	return NewPipeline(cfg, notifier, dl, NewNotifiedSet(), quietLogger())
}

func snapshotOf(ids ...string) domain.Snapshot {
	snap := domain.Snapshot{}
	for _, id := range ids {
		snap[id] = domain.ThreatRecord{
			AlertType:  "port_scan",
			Severity:   domain.SeverityHigh,
			UploadedAt: "2026-03-01T12:00:00Z",
		}
	}
	return snap
}

func TestNotifiesEachIdentifierAtMostOnce(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newTestPipeline(Config{NotifyInitialSnapshot: true, ActiveHoneypots: 12}, notifier, nil)

	p.HandleSnapshot(snapshotOf("t-1", "t-2"))
	p.Drain()

	if notifier.callCount() != 2 {
		t.Fatalf("calls after first snapshot = %d, want 2", notifier.callCount())
	}

	// Same ids plus one arrival: only the arrival is forwarded
	p.HandleSnapshot(snapshotOf("t-1", "t-2", "t-3"))
	p.Drain()

	if notifier.callCount() != 3 {
		t.Errorf("calls after second snapshot = %d, want 3", notifier.callCount())
	}

	// Unchanged snapshot forwards nothing
	p.HandleSnapshot(snapshotOf("t-1", "t-2", "t-3"))
	p.Drain()

	if notifier.callCount() != 3 {
		t.Errorf("calls after unchanged snapshot = %d, want 3", notifier.callCount())
	}
}

func TestInitialSnapshotNotifiedByDefault(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newTestPipeline(Config{NotifyInitialSnapshot: true, ActiveHoneypots: 12}, notifier, nil)

	p.HandleSnapshot(snapshotOf("t-1", "t-2", "t-3"))
	p.Drain()

	if notifier.callCount() != 3 {
		t.Errorf("calls = %d, want 3 (backlog counts as new)", notifier.callCount())
	}
}

func TestInitialSnapshotSuppressionSeedsDedup(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newTestPipeline(Config{NotifyInitialSnapshot: false, ActiveHoneypots: 12}, notifier, nil)

	p.HandleSnapshot(snapshotOf("t-1", "t-2"))
	p.Drain()

	if notifier.callCount() != 0 {
		t.Fatalf("calls after suppressed backlog = %d, want 0", notifier.callCount())
	}

	// Backlog ids were still marked: only the genuine arrival notifies
	p.HandleSnapshot(snapshotOf("t-1", "t-2", "t-3"))
	p.Drain()

	if notifier.callCount() != 1 {
		t.Errorf("calls after arrival = %d, want 1", notifier.callCount())
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.calls) != 1 || notifier.calls[0] != "t-3" {
		t.Errorf("calls = %v, want [t-3]", notifier.calls)
	}
}

func TestFailedDeliveryIsNotRetried(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("connection refused")}
	delivery := &fakeDeliveryLog{}
	p := newTestPipeline(Config{NotifyInitialSnapshot: true, ActiveHoneypots: 12, WebhookEndpoint: "http://example.test/hook"}, notifier, delivery)

	p.HandleSnapshot(snapshotOf("t-1"))
	p.Drain()
	p.HandleSnapshot(snapshotOf("t-1"))
	p.Drain()

	if notifier.callCount() != 1 {
		t.Fatalf("calls = %d, want 1 (failure must not trigger a retry)", notifier.callCount())
	}

	records, err := delivery.FindRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("FindRecent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if records[0].Status != "failed" {
		t.Errorf("record status = %q, want failed", records[0].Status)
	}
	if records[0].AlertID != "t-1" {
		t.Errorf("record alert id = %q, want t-1", records[0].AlertID)
	}
	if records[0].Endpoint != "http://example.test/hook" {
		t.Errorf("record endpoint = %q", records[0].Endpoint)
	}
}

func TestFeedErrorStateAndRecovery(t *testing.T) {
	p := newTestPipeline(Config{NotifyInitialSnapshot: true, ActiveHoneypots: 12}, &fakeNotifier{}, nil)

	loading, feedErr := p.State()
	if !loading || feedErr != "" {
		t.Fatalf("initial state = (%v, %q), want (true, \"\")", loading, feedErr)
	}

	p.HandleFeedError(errors.New("stream closed"))

	loading, feedErr = p.State()
	if loading {
		t.Error("loading should be false after a feed error")
	}
	if feedErr != "Database connection failed" {
		t.Errorf("feedErr = %q, want the fixed user-visible message", feedErr)
	}
	if p.Metrics().SystemStatus != domain.StatusOffline {
		t.Errorf("SystemStatus = %q, want offline", p.Metrics().SystemStatus)
	}

	// Any successful snapshot clears the error, empty included
	p.HandleSnapshot(domain.Snapshot{})
	p.Drain()

	loading, feedErr = p.State()
	if loading || feedErr != "" {
		t.Errorf("state after recovery = (%v, %q), want (false, \"\")", loading, feedErr)
	}
	if p.Metrics().SystemStatus != domain.StatusOnline {
		t.Errorf("SystemStatus = %q, want online", p.Metrics().SystemStatus)
	}
}

func TestSnapshotRecomputesAlertsAndMetrics(t *testing.T) {
	p := newTestPipeline(Config{NotifyInitialSnapshot: true, ActiveHoneypots: 7}, &fakeNotifier{}, nil)

	snap := snapshotOf("t-1", "t-2")
	rec := snap["t-2"]
	rec.IPBlocked = "9.9.9.9"
	rec.Severity = domain.SeverityLow
	snap["t-2"] = rec

	p.HandleSnapshot(snap)
	p.Drain()

	m := p.Metrics()
	if m.ThreatsDetected != 2 || m.BlockedIPs != 1 || m.ActiveHoneypots != 7 {
		t.Errorf("metrics = %+v", m)
	}

	// t-1 reportable + 2 system notices; t-2 is low severity
	alerts := p.Alerts()
	if len(alerts) != 3 {
		t.Fatalf("len(alerts) = %d, want 3", len(alerts))
	}

	if len(p.Threats()) != 2 {
		t.Errorf("len(threats) = %d, want 2", len(p.Threats()))
	}
}

func TestOnChangeFiresOutsideOfMutations(t *testing.T) {
	p := newTestPipeline(Config{NotifyInitialSnapshot: true, ActiveHoneypots: 12}, &fakeNotifier{}, nil)

	var mu sync.Mutex
	var events []string
	p.SetOnChange(func(event string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	})

	p.HandleSnapshot(snapshotOf("t-1"))
	p.Drain()
	p.MarkAllAsRead()

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != "snapshot" || events[1] != "alerts" {
		t.Errorf("events = %v, want [snapshot alerts]", events)
	}
}
