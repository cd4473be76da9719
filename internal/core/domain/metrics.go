package domain

import "time"

type SystemStatus string

const (
	StatusOnline      SystemStatus = "online"
	StatusOffline     SystemStatus = "offline"
	StatusMaintenance SystemStatus = "maintenance"
)

// SystemMetrics are the dashboard headline counters derived from the current
// snapshot. ActiveHoneypots is a configured baseline, not a live signal; the
// feed carries no honeypot inventory.
type SystemMetrics struct {
	ActiveHoneypots int          `json:"activeHoneypots"`
	ThreatsDetected int          `json:"threatsDetected"`
	BlockedIPs      int          `json:"blockedIps"`
	SystemStatus    SystemStatus `json:"systemStatus"`
	LastUpdated     time.Time    `json:"lastUpdated"`
}

// ComputeMetrics is a pure function of the snapshot contents.
func ComputeMetrics(snap Snapshot, activeHoneypots int, status SystemStatus, now time.Time) SystemMetrics {
	blocked := 0
	for _, rec := range snap {
		if rec.Blocked() {
			blocked++
		}
	}
	return SystemMetrics{
		ActiveHoneypots: activeHoneypots,
		ThreatsDetected: len(snap),
		BlockedIPs:      blocked,
		SystemStatus:    status,
		LastUpdated:     now,
	}
}

// DeliveryRecord is one webhook delivery attempt, kept for the activity
// audit trail. Status is "sent" or "failed"; Detail carries the error text
// on failure.
type DeliveryRecord struct {
	ID       string    `json:"id"`
	AlertID  string    `json:"alert_id"`
	Endpoint string    `json:"endpoint"`
	Status   string    `json:"status"`
	Detail   string    `json:"detail,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}
