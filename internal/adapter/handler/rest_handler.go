package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ampdefend/ampdefend/internal/adapter/notifier"
	"github.com/ampdefend/ampdefend/internal/core/domain"
	"github.com/ampdefend/ampdefend/internal/core/ports"
	"github.com/ampdefend/ampdefend/internal/core/service"
)

type RestHandler struct {
	pipeline *service.Pipeline
	relay    *notifier.WebhookNotifier
	delivery ports.DeliveryLog
	hub      *Hub
	log      *logrus.Logger
}

func NewRestHandler(pipeline *service.Pipeline, relay *notifier.WebhookNotifier, delivery ports.DeliveryLog, hub *Hub, log *logrus.Logger) *RestHandler {
	return &RestHandler{
		pipeline: pipeline,
		relay:    relay,
		delivery: delivery,
		hub:      hub,
		log:      log,
	}
}

// Routes builds the router. Middleware is the caller's concern.
func (h *RestHandler) Routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/api/v1/health", h.Health).Methods("GET")

	router.HandleFunc("/api/v1/threats", h.Threats).Methods("GET")
	router.HandleFunc("/api/v1/status", h.Status).Methods("GET")

	router.HandleFunc("/api/v1/alerts", h.Alerts).Methods("GET")
	router.HandleFunc("/api/v1/alerts", h.ClearAlerts).Methods("DELETE")
	router.HandleFunc("/api/v1/alerts/read_all", h.MarkAllAlertsRead).Methods("POST")
	router.HandleFunc("/api/v1/alerts/{id}/read", h.MarkAlertRead).Methods("POST")
	router.HandleFunc("/api/v1/alerts/{id}/dismiss", h.DismissAlert).Methods("POST")

	router.HandleFunc("/api/v1/deliveries", h.Deliveries).Methods("GET")

	router.HandleFunc("/api/webhook", h.RelayWebhook).Methods("POST")

	if h.hub != nil {
		router.HandleFunc("/ws", h.hub.ServeWS)
	}
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

// Health check endpoint
func (h *RestHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "ampdefend-api",
	}
	writeJSON(w, http.StatusOK, response)
}

// Threats returns the latest snapshot as a list, newest first. This is what
// the map and activity pages render.
func (h *RestHandler) Threats(w http.ResponseWriter, r *http.Request) {
	threats := h.pipeline.Threats()
	response := map[string]interface{}{
		"count":   len(threats),
		"threats": threats,
	}
	writeJSON(w, http.StatusOK, response)
}

// Status returns the headline counters plus the feed connection state.
func (h *RestHandler) Status(w http.ResponseWriter, r *http.Request) {
	loading, feedErr := h.pipeline.State()
	response := statusResponse{
		Metrics: h.pipeline.Metrics(),
		Loading: loading,
		Error:   feedErr,
	}
	writeJSON(w, http.StatusOK, response)
}

// Alerts returns the visible alert list with the unread counter.
func (h *RestHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"alerts":       h.pipeline.Alerts(),
		"unread_count": h.pipeline.UnreadCount(),
	}
	writeJSON(w, http.StatusOK, response)
}

// MarkAlertRead marks one alert read. Unknown ids succeed as a no-op.
func (h *RestHandler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	h.pipeline.MarkAsRead(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// MarkAllAlertsRead marks every non-dismissed alert read.
func (h *RestHandler) MarkAllAlertsRead(w http.ResponseWriter, r *http.Request) {
	h.pipeline.MarkAllAsRead()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DismissAlert hides one alert. Unknown ids succeed as a no-op.
func (h *RestHandler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Dismiss(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ClearAlerts wipes the alert list and all read/dismiss history.
func (h *RestHandler) ClearAlerts(w http.ResponseWriter, r *http.Request) {
	h.pipeline.ClearAll()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Deliveries returns recent webhook delivery attempts from the audit log.
func (h *RestHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		limit = n
	}

	records, err := h.delivery.FindRecent(r.Context(), limit)
	if err != nil {
		h.log.WithError(err).Error("Failed to query delivery log")
		writeError(w, http.StatusInternalServerError, "failed to query deliveries")
		return
	}
	if records == nil {
		// keep JSON as [] rather than null
		records = []domain.DeliveryRecord{}
	}
	response := map[string]interface{}{
		"count":      len(records),
		"deliveries": records,
	}
	writeJSON(w, http.StatusOK, response)
}

// RelayWebhook accepts one flattened record and forwards it to the real
// webhook target in the nested shape. Its contract is deliberately blunt:
// the input is passed through without validation, and every failure mode,
// malformed body included, collapses to the same generic 500.
func (h *RestHandler) RelayWebhook(w http.ResponseWriter, r *http.Request) {
	var req relayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.WithError(err).Error("Webhook relay error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Webhook failed"})
		return
	}

	if err := h.relay.Forward(r.Context(), req.ID, req.AlertFields); err != nil {
		h.log.WithError(err).Error("Webhook relay error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Webhook failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("Error encoding JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Request/response structures

// relayRequest is the flattened record the browser posts: the identifier
// plus the fourteen webhook fields at the top level.
type relayRequest struct {
	ID string `json:"id"`
	notifier.AlertFields
}

type statusResponse struct {
	Metrics domain.SystemMetrics `json:"metrics"`
	Loading bool                 `json:"loading"`
	Error   string               `json:"error,omitempty"`
}
