package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type AlertType string

const (
	AlertTypeThreat      AlertType = "threat"
	AlertTypeSystem      AlertType = "system"
	AlertTypeMaintenance AlertType = "maintenance"
	AlertTypeInfo        AlertType = "info"
)

// Alert is the presentation-facing wrapper around a threat record or a
// synthetic system notice. Read and Dismissed are the only fields the user
// can change; everything else is recomputed from the feed on every snapshot.
type Alert struct {
	ID             string    `json:"id"`
	Type           AlertType `json:"type"`
	Severity       Severity  `json:"severity"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
	Read           bool      `json:"read"`
	Dismissed      bool      `json:"dismissed"`
	ActionRequired bool      `json:"actionRequired"`
	SourceIP       string    `json:"sourceIp,omitempty"`
	TargetDevice   string    `json:"targetDevice,omitempty"`
	ThreatType     string    `json:"threatType,omitempty"`
}

// ThreatAlertID returns the alert identifier derived from a feed record id.
func ThreatAlertID(threatID string) string {
	return "alert-" + threatID
}

// NewThreatAlert synthesizes a presentation alert from a feed record.
func NewThreatAlert(threatID string, rec ThreatRecord) Alert {
	return Alert{
		ID:       ThreatAlertID(threatID),
		Type:     AlertTypeThreat,
		Severity: rec.Severity,
		Title:    strings.ToUpper(strings.ReplaceAll(rec.AlertType, "_", " ")) + " Detected",
		Message: fmt.Sprintf("%s - Activity from %s (%s, %s) targeting %s. VPN likelihood: %g%%",
			rec.RawMessage, rec.PublicIP, rec.City, rec.Country, rec.DeviceID, rec.VPNLikelihood),
		Timestamp:      ParseFeedTime(rec.UploadedAt),
		ActionRequired: rec.Blocked(),
		SourceIP:       rec.PublicIP,
		TargetDevice:   rec.DeviceID,
		ThreatType:     rec.AlertType,
	}
}

// SystemAlerts returns the fixed synthetic system/maintenance notices with
// timestamps relative to now.
func SystemAlerts(now time.Time) []Alert {
	return []Alert{
		{
			ID:        "system-1",
			Type:      AlertTypeSystem,
			Severity:  SeverityMedium,
			Title:     "Honeypot Deployment",
			Message:   "New honeypot device successfully deployed to network segment 192.168.1.0/24",
			Timestamp: now.Add(-30 * time.Minute),
		},
		{
			ID:        "system-2",
			Type:      AlertTypeMaintenance,
			Severity:  SeverityLow,
			Title:     "Scheduled Maintenance",
			Message:   "System maintenance scheduled for tonight at 2:00 AM EST. Expected downtime: 30 minutes.",
			Timestamp: now.Add(-time.Hour),
		},
	}
}

// BuildAlerts derives the full alert list for a snapshot: threat records of
// reportable severity plus the synthetic system notices, ordered
// newest-first. The result carries default (unread, undismissed) flags;
// merging user state back in is the store's job.
func BuildAlerts(snap Snapshot, now time.Time) []Alert {
	var alerts []Alert
	for _, threat := range snap.Threats() {
		if !threat.Severity.Reportable() {
			continue
		}
		alerts = append(alerts, NewThreatAlert(threat.ID, threat.ThreatRecord))
	}
	alerts = append(alerts, SystemAlerts(now)...)
	SortAlerts(alerts)
	return alerts
}

// SortAlerts orders alerts newest-first. The sort is stable so alerts with
// identical timestamps keep their input order.
func SortAlerts(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
}
