// Package notifier delivers threat records to the downstream automation
// webhook (n8n in the default deployment).
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ampdefend/ampdefend/internal/core/domain"
)

// DefaultEndpoint is the local n8n test webhook used when nothing is
// configured.
const DefaultEndpoint = "http://localhost:5678/webhook-test/ec07343d-c58e-4591-b0d5-abe742db1d1c"

// WebhookNotifier posts the fixed-shape alert payload to a configured
// endpoint. One call makes exactly one attempt; there is no retry.
type WebhookNotifier struct {
	endpoint   string
	httpClient *http.Client
	log        *logrus.Logger
}

func NewWebhookNotifier(endpoint string, log *logrus.Logger) *WebhookNotifier {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &WebhookNotifier{
		endpoint: endpoint,
		log:      log,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Endpoint returns the configured target URL.
func (n *WebhookNotifier) Endpoint() string {
	return n.endpoint
}

// Notify sends one threat record in the nested wire shape.
func (n *WebhookNotifier) Notify(ctx context.Context, alertID string, rec domain.ThreatRecord) error {
	return n.Forward(ctx, alertID, NewAlertFields(rec))
}

// Forward sends pre-flattened alert fields under the given identifier. The
// relay endpoint uses this directly: whatever the caller posted is passed
// through without validation.
func (n *WebhookNotifier) Forward(ctx context.Context, alertID string, fields AlertFields) error {
	payload := Payload{Alerts: map[string]AlertFields{alertID: fields}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// Payload is the wire shape the downstream automation expects: one top-level
// "alerts" key mapping identifiers to the fourteen named fields.
type Payload struct {
	Alerts map[string]AlertFields `json:"alerts"`
}

// AlertFields is the fixed field set forwarded per alert. Fields absent on
// the input record go out as empty strings, never omitted.
type AlertFields struct {
	AlertType  string `json:"alert_type"`
	City       string `json:"city"`
	Country    string `json:"country"`
	DeviceID   string `json:"device_id"`
	IPBlocked  string `json:"ip_blocked"`
	Loc        string `json:"loc"`
	Org        string `json:"org"`
	PublicIP   string `json:"public_ip"`
	RawMessage string `json:"raw_message"`
	Region     string `json:"region"`
	Severity   string `json:"severity"`
	Timestamp  string `json:"timestamp"`
	Timezone   string `json:"timezone"`
	UploadedAt string `json:"uploaded_at"`
}

// NewAlertFields projects a threat record onto the wire field set.
func NewAlertFields(rec domain.ThreatRecord) AlertFields {
	return AlertFields{
		AlertType:  rec.AlertType,
		City:       rec.City,
		Country:    rec.Country,
		DeviceID:   rec.DeviceID,
		IPBlocked:  rec.IPBlocked,
		Loc:        rec.Loc,
		Org:        rec.Org,
		PublicIP:   rec.PublicIP,
		RawMessage: rec.RawMessage,
		Region:     rec.Region,
		Severity:   string(rec.Severity),
		Timestamp:  rec.Timestamp,
		Timezone:   rec.Timezone,
		UploadedAt: rec.UploadedAt,
	}
}
