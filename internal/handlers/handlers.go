// Package handlers adapts the HTTP surface onto the service layer. Routing,
// authn and serialization frameworks stay out of the core: this is plain
// net/http translating requests into service calls and errors into statuses.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/trailpoint-systems/trailpoint/common/httputil"
	"github.com/trailpoint-systems/trailpoint/common/logging"
	"github.com/trailpoint-systems/trailpoint/internal/models"
	"github.com/trailpoint-systems/trailpoint/internal/ratelimit"
	"github.com/trailpoint-systems/trailpoint/internal/repository"
	"github.com/trailpoint-systems/trailpoint/internal/service"
)

type Handler struct {
	service *service.Service
	limiter ratelimit.Limiter
	logger  *logging.Logger
}

func NewHandler(svc *service.Service, limiter ratelimit.Limiter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: svc, limiter: limiter, logger: logger}
}

// HealthCheck handles GET /api/health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health(r.Context())
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, health)
}

// ListEvents handles GET /api/events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	q := &models.EventQuery{
		EventType: params.Get("event_type"),
		UserID:    params.Get("user_id"),
		DataPath:  params.Get("data_path"),
		DataValue: params.Get("data_value"),
	}

	limit, ok := parseLimit(w, params.Get("limit"), models.DefaultEventLimit)
	if !ok {
		return
	}
	q.Limit = limit

	if raw := params.Get("start_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "start_date must be RFC3339")
			return
		}
		q.StartDate = &t
	}
	if raw := params.Get("end_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "end_date must be RFC3339")
			return
		}
		q.EndDate = &t
	}

	resp, err := h.service.QueryEvents(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// CreateEvent handles POST /api/events.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		allowed, err := h.limiter.Allow(r.Context(), httputil.GetClientIP(r))
		if err != nil {
			h.logger.WarnContext(r.Context(), "rate limiter unavailable", logging.Error(err))
		} else if !allowed {
			httputil.WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
	}

	var req models.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	event, err := h.service.CreateEvent(r.Context(), &req, httputil.Actor(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, event)
}

// GetEventAlerts handles GET /api/events/{id}/alerts.
func (h *Handler) GetEventAlerts(w http.ResponseWriter, r *http.Request) {
	eventID := pathSegment(r.URL.Path, "/api/events/", "/alerts")
	if eventID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "Event ID required")
		return
	}

	resp, err := h.service.GetEventAlerts(r.Context(), eventID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ListAlerts handles GET /api/alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	limit, ok := parseLimit(w, params.Get("limit"), models.DefaultAlertLimit)
	if !ok {
		return
	}
	q := &models.AlertQuery{
		Status: params.Get("status"),
		Limit:  limit,
	}

	resp, err := h.service.QueryAlerts(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// CreateAlert handles POST /api/alerts.
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	alert, err := h.service.CreateAlert(r.Context(), &req, httputil.Actor(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, alert)
}

// GetAlertEvents handles GET /api/alerts/{id}/events.
func (h *Handler) GetAlertEvents(w http.ResponseWriter, r *http.Request) {
	alertID := pathSegment(r.URL.Path, "/api/alerts/", "/events")
	if alertID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "Alert ID required")
		return
	}

	resp, err := h.service.GetAlertEvents(r.Context(), alertID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// SetAlertStatus handles PUT /api/alerts/{id}/status.
func (h *Handler) SetAlertStatus(w http.ResponseWriter, r *http.Request) {
	alertID := pathSegment(r.URL.Path, "/api/alerts/", "/status")
	if alertID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "Alert ID required")
		return
	}

	var req models.SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	actor := req.UserID
	if actor == "" {
		actor = httputil.Actor(r)
	}

	alert, err := h.service.SetAlertStatus(r.Context(), alertID, req.Status, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, alert)
}

// SetAlertConfidence handles PUT /api/alerts/{id}/confidence.
func (h *Handler) SetAlertConfidence(w http.ResponseWriter, r *http.Request) {
	alertID := pathSegment(r.URL.Path, "/api/alerts/", "/confidence")
	if alertID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "Alert ID required")
		return
	}

	var req models.SetConfidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	actor := req.UserID
	if actor == "" {
		actor = httputil.Actor(r)
	}

	alert, err := h.service.SetAlertConfidence(r.Context(), alertID, req.ConfidenceScore, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, alert)
}

// ListAuditLogs handles GET /api/audit.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	limit, ok := parseLimit(w, params.Get("limit"), models.DefaultAuditLimit)
	if !ok {
		return
	}
	q := &models.AuditQuery{
		UserID:     params.Get("user_id"),
		ActionType: params.Get("action_type"),
		Limit:      limit,
	}

	resp, err := h.service.QueryAuditLogs(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// writeServiceError maps service and repository errors onto HTTP statuses.
// Validation problems are the caller's to fix (400); storage trouble is
// retryable (503); not-found is terminal for the request (404).
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case service.IsValidationError(err):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrAlertNotFound):
		httputil.WriteError(w, http.StatusNotFound, "Alert not found")
	case errors.Is(err, repository.ErrEventNotFound):
		httputil.WriteError(w, http.StatusNotFound, "Event not found")
	case repository.IsStorageError(err):
		h.logger.ErrorContext(r.Context(), "storage error", logging.Error(err))
		httputil.WriteError(w, http.StatusServiceUnavailable, "Storage unavailable, retry later")
	default:
		h.logger.ErrorContext(r.Context(), "internal error", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// parseLimit parses a limit query parameter. An absent parameter yields the
// default; a present one is passed through verbatim so the service can
// reject out-of-range values instead of silently clamping them.
func parseLimit(w http.ResponseWriter, raw string, defaultLimit int) (int, bool) {
	if raw == "" {
		return defaultLimit, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "limit must be an integer")
		return 0, false
	}
	return v, true
}

// pathSegment extracts the id from paths like /api/alerts/{id}/events.
func pathSegment(path, prefix, suffix string) string {
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
}
