package domain

import (
	"strings"
	"testing"
	"time"
)

func TestNewThreatAlert(t *testing.T) {
	rec := ThreatRecord{
		AlertType:     "ssh_brute_force",
		Severity:      SeverityCritical,
		PublicIP:      "203.0.113.9",
		IPBlocked:     "203.0.113.9",
		DeviceID:      "honeypot-03",
		UploadedAt:    "2026-02-10T08:30:00Z",
		RawMessage:    "Failed password for root",
		City:          "Amsterdam",
		Country:       "NL",
		VPNLikelihood: 87.5,
	}

	alert := NewThreatAlert("t-42", rec)

	if alert.ID != "alert-t-42" {
		t.Errorf("ID = %q, want %q", alert.ID, "alert-t-42")
	}
	if alert.Type != AlertTypeThreat {
		t.Errorf("Type = %q, want %q", alert.Type, AlertTypeThreat)
	}
	if alert.Title != "SSH BRUTE FORCE Detected" {
		t.Errorf("Title = %q, want %q", alert.Title, "SSH BRUTE FORCE Detected")
	}
	if !strings.Contains(alert.Message, "Failed password for root") {
		t.Error("Message should contain the raw feed message")
	}
	if !strings.Contains(alert.Message, "203.0.113.9 (Amsterdam, NL)") {
		t.Error("Message should contain source IP and location")
	}
	if !strings.Contains(alert.Message, "targeting honeypot-03") {
		t.Error("Message should contain target device")
	}
	if !strings.Contains(alert.Message, "VPN likelihood: 87.5%") {
		t.Error("Message should contain VPN likelihood")
	}
	if !alert.ActionRequired {
		t.Error("ActionRequired should be true when the source IP was blocked")
	}
	if alert.Read || alert.Dismissed {
		t.Error("New alerts must start unread and undismissed")
	}

	want := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)
	if !alert.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", alert.Timestamp, want)
	}
}

func TestNewThreatAlertNotBlocked(t *testing.T) {
	alert := NewThreatAlert("t-1", ThreatRecord{AlertType: "port_scan", Severity: SeverityHigh})
	if alert.ActionRequired {
		t.Error("ActionRequired should be false when ip_blocked is empty")
	}
}

func TestSeverityReportable(t *testing.T) {
	tests := []struct {
		severity Severity
		want     bool
	}{
		{SeverityLow, false},
		{SeverityMedium, false},
		{SeverityHigh, true},
		{SeverityCritical, true},
		{Severity(""), false},
		{Severity("HIGH"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			if got := tt.severity.Reportable(); got != tt.want {
				t.Errorf("Reportable(%q) = %v, want %v", tt.severity, got, tt.want)
			}
		})
	}
}

func TestBuildAlertsFiltersAndOrders(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := Snapshot{
		"t-old": {AlertType: "port_scan", Severity: SeverityCritical, UploadedAt: "2026-03-01T09:00:00Z"},
		"t-new": {AlertType: "ssh_brute_force", Severity: SeverityHigh, UploadedAt: "2026-03-01T11:55:00Z"},
		"t-low": {AlertType: "ping_sweep", Severity: SeverityLow, UploadedAt: "2026-03-01T11:59:00Z"},
		"t-med": {AlertType: "banner_grab", Severity: SeverityMedium, UploadedAt: "2026-03-01T11:58:00Z"},
	}

	alerts := BuildAlerts(snap, now)

	// 2 reportable threats + 2 system notices
	if len(alerts) != 4 {
		t.Fatalf("len(alerts) = %d, want 4", len(alerts))
	}

	for _, a := range alerts {
		if a.ID == ThreatAlertID("t-low") || a.ID == ThreatAlertID("t-med") {
			t.Errorf("low/medium threat %s should not be surfaced", a.ID)
		}
	}

	// Newest first
	wantOrder := []string{"alert-t-new", "system-1", "system-2", "alert-t-old"}
	for i, id := range wantOrder {
		if alerts[i].ID != id {
			t.Errorf("alerts[%d].ID = %q, want %q", i, alerts[i].ID, id)
		}
	}
}

func TestBuildAlertsEmptySnapshot(t *testing.T) {
	now := time.Now()
	alerts := BuildAlerts(Snapshot{}, now)

	if len(alerts) != 2 {
		t.Fatalf("len(alerts) = %d, want the 2 system notices", len(alerts))
	}
	if alerts[0].ID != "system-1" || alerts[1].ID != "system-2" {
		t.Errorf("got ids %q, %q; want system-1, system-2", alerts[0].ID, alerts[1].ID)
	}
	if !alerts[0].Timestamp.Equal(now.Add(-30 * time.Minute)) {
		t.Errorf("system-1 timestamp = %v, want now-30m", alerts[0].Timestamp)
	}
	if !alerts[1].Timestamp.Equal(now.Add(-time.Hour)) {
		t.Errorf("system-2 timestamp = %v, want now-1h", alerts[1].Timestamp)
	}
}

func TestSortAlertsStableOnTies(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alerts := []Alert{
		{ID: "a", Timestamp: ts},
		{ID: "b", Timestamp: ts},
		{ID: "c", Timestamp: ts.Add(time.Minute)},
	}

	SortAlerts(alerts)

	if alerts[0].ID != "c" {
		t.Errorf("alerts[0].ID = %q, want c", alerts[0].ID)
	}
	if alerts[1].ID != "a" || alerts[2].ID != "b" {
		t.Errorf("tied alerts reordered: got %q, %q", alerts[1].ID, alerts[2].ID)
	}
}

func TestParseFeedTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339", "2026-02-10T08:30:00Z", time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)},
		{"rfc3339 nano", "2026-02-10T08:30:00.5Z", time.Date(2026, 2, 10, 8, 30, 0, 500000000, time.UTC)},
		{"no zone", "2026-02-10T08:30:00", time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)},
		{"space separator", "2026-02-10 08:30:00", time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)},
		{"garbage", "not-a-date", time.Time{}},
		{"empty", "", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseFeedTime(tt.input); !got.Equal(tt.want) {
				t.Errorf("ParseFeedTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSnapshotThreatsDeterministicOrder(t *testing.T) {
	snap := Snapshot{
		"b": {UploadedAt: "2026-01-01T00:00:00Z"},
		"a": {UploadedAt: "2026-01-01T00:00:00Z"},
		"c": {UploadedAt: "2026-01-02T00:00:00Z"},
	}

	threats := snap.Threats()

	wantOrder := []string{"c", "a", "b"}
	for i, id := range wantOrder {
		if threats[i].ID != id {
			t.Errorf("threats[%d].ID = %q, want %q", i, threats[i].ID, id)
		}
	}
}
