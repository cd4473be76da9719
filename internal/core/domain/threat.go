package domain

import (
	"sort"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Reportable reports whether a threat of this severity is surfaced to the
// operator as an alert. Only high and critical threats make the cut.
func (s Severity) Reportable() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// ThreatRecord is a single honeypot detection as stored in the upstream
// realtime database. Records are created and owned entirely by the feed;
// this service never mutates them. Field names match the upstream wire
// format exactly.
type ThreatRecord struct {
	AlertType     string   `json:"alert_type"`
	Severity      Severity `json:"severity"`
	PublicIP      string   `json:"public_ip"`
	IPBlocked     string   `json:"ip_blocked"`
	DeviceID      string   `json:"device_id"`
	Timestamp     string   `json:"timestamp"`
	UploadedAt    string   `json:"uploaded_at"`
	RawMessage    string   `json:"raw_message"`
	City          string   `json:"city"`
	Country       string   `json:"country"`
	Region        string   `json:"region"`
	Timezone      string   `json:"timezone"`
	Loc           string   `json:"loc"`
	Org           string   `json:"org"`
	VPNLikelihood float64  `json:"vpn_likelihood"`
}

// Blocked reports whether the upstream honeypot auto-blocked the source.
// The field carries the blocked address when set and is empty otherwise.
func (r ThreatRecord) Blocked() bool {
	return r.IPBlocked != ""
}

// Snapshot is the complete contents of the feed's alert collection at one
// point in time, keyed by the upstream-assigned record identifier. An empty
// snapshot is a valid state, not an error.
type Snapshot map[string]ThreatRecord

// Threat pairs a record with its feed identifier for list-shaped consumers.
type Threat struct {
	ID string `json:"id"`
	ThreatRecord
}

// Threats flattens a snapshot into a list ordered newest-first by upload
// time. Records with equal upload times are ordered by identifier so the
// output is deterministic across calls.
func (s Snapshot) Threats() []Threat {
	out := make([]Threat, 0, len(s))
	for id, rec := range s {
		out = append(out, Threat{ID: id, ThreatRecord: rec})
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := ParseFeedTime(out[i].UploadedAt), ParseFeedTime(out[j].UploadedAt)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, rec := range s {
		out[id] = rec
	}
	return out
}

var feedTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseFeedTime parses the loosely ISO-shaped date strings the uploader
// writes. Unparseable values map to the zero time, which sorts last.
func ParseFeedTime(s string) time.Time {
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
