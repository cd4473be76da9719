package domain

import (
	"testing"
	"time"
)

func TestComputeMetrics(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := Snapshot{
		"t-1": {Severity: SeverityCritical, IPBlocked: "1.2.3.4"},
		"t-2": {Severity: SeverityLow, IPBlocked: ""},
		"t-3": {Severity: SeverityHigh},
	}

	m := ComputeMetrics(snap, 12, StatusOnline, now)

	if m.ThreatsDetected != 3 {
		t.Errorf("ThreatsDetected = %d, want 3", m.ThreatsDetected)
	}
	if m.BlockedIPs != 1 {
		t.Errorf("BlockedIPs = %d, want 1", m.BlockedIPs)
	}
	if m.ActiveHoneypots != 12 {
		t.Errorf("ActiveHoneypots = %d, want 12", m.ActiveHoneypots)
	}
	if m.SystemStatus != StatusOnline {
		t.Errorf("SystemStatus = %q, want online", m.SystemStatus)
	}
	if !m.LastUpdated.Equal(now) {
		t.Errorf("LastUpdated = %v, want %v", m.LastUpdated, now)
	}
}

func TestComputeMetricsEmptySnapshot(t *testing.T) {
	m := ComputeMetrics(Snapshot{}, 12, StatusOffline, time.Now())

	if m.ThreatsDetected != 0 || m.BlockedIPs != 0 {
		t.Errorf("empty snapshot counts = (%d, %d), want (0, 0)", m.ThreatsDetected, m.BlockedIPs)
	}
	if m.SystemStatus != StatusOffline {
		t.Errorf("SystemStatus = %q, want offline", m.SystemStatus)
	}
}

func TestBlockedCountsOnlyNonEmpty(t *testing.T) {
	tests := []struct {
		name      string
		ipBlocked string
		want      bool
	}{
		{"blocked address", "1.2.3.4", true},
		{"empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ThreatRecord{IPBlocked: tt.ipBlocked}
			if got := rec.Blocked(); got != tt.want {
				t.Errorf("Blocked() = %v, want %v", got, tt.want)
			}
		})
	}
}
