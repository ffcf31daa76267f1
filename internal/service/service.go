// Package service implements the business rules: input validation, the
// query engine entry points, the alert lifecycle, and the audit wiring.
//
// Validation always happens before any store access and fails fast; storage
// failures propagate as repository.StorageError so callers can distinguish
// retryable backend trouble from caller mistakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trailpoint-systems/trailpoint/common/logging"
	"github.com/trailpoint-systems/trailpoint/internal/audit"
	"github.com/trailpoint-systems/trailpoint/internal/correlation"
	"github.com/trailpoint-systems/trailpoint/internal/metrics"
	"github.com/trailpoint-systems/trailpoint/internal/models"
	"github.com/trailpoint-systems/trailpoint/internal/repository"
)

// ValidationError reports caller-fixable bad input: unknown enum values,
// out-of-range scores or limits, malformed identifiers. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Notifier publishes state changes to interested subscribers. Implementations
// must not block request handling; publish failures are logged, not surfaced.
type Notifier interface {
	PublishEventCreated(ctx context.Context, event *models.Event)
	PublishAlertStatus(ctx context.Context, alert *models.Alert, previous string)
}

// Service wires the repository, the correlation resolver, the audit recorder
// and the optional notifier into the operation surface the API exposes.
type Service struct {
	repo     repository.Repository
	resolver *correlation.Resolver
	recorder *audit.Recorder
	notifier Notifier
	logger   *logging.Logger
}

func New(repo repository.Repository, resolver *correlation.Resolver, recorder *audit.Recorder, notifier Notifier, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		recorder: recorder,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateEvent validates and persists a new telemetry event, writing its
// audit entry in the same transaction.
func (s *Service) CreateEvent(ctx context.Context, req *models.CreateEventRequest, actor string) (*models.Event, error) {
	if !models.ValidEventType(req.EventType) {
		metrics.ValidationFailuresTotal.WithLabelValues("create_event").Inc()
		return nil, &ValidationError{Field: "event_type", Message: fmt.Sprintf("unknown event type %q", req.EventType)}
	}
	if !models.ValidSeverity(req.Severity) {
		metrics.ValidationFailuresTotal.WithLabelValues("create_event").Inc()
		return nil, &ValidationError{Field: "severity", Message: fmt.Sprintf("unknown severity %q", req.Severity)}
	}
	if req.SourceSystem == "" {
		metrics.ValidationFailuresTotal.WithLabelValues("create_event").Inc()
		return nil, &ValidationError{Field: "source_system", Message: "must not be empty"}
	}

	event := &models.Event{
		EventType:    req.EventType,
		SourceSystem: req.SourceSystem,
		UserID:       req.UserID,
		DeviceID:     req.DeviceID,
		EventData:    req.EventData,
		Severity:     req.Severity,
	}
	if req.Timestamp != nil {
		event.Timestamp = req.Timestamp.UTC()
	}

	entry, err := s.recorder.Entry(actor, audit.ActionEventCreate, map[string]interface{}{
		"event_type":    req.EventType,
		"source_system": req.SourceSystem,
		"severity":      req.Severity,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateEvent(ctx, event, entry); err != nil {
		return nil, err
	}

	metrics.EventsCreatedTotal.WithLabelValues(event.EventType, event.Severity).Inc()
	metrics.AuditEntriesTotal.WithLabelValues(audit.ActionEventCreate).Inc()
	s.logger.InfoContext(ctx, "event created",
		logging.EventID(event.ID), "event_type", event.EventType, "severity", event.Severity)

	if s.notifier != nil {
		s.notifier.PublishEventCreated(ctx, event)
	}
	return event, nil
}

// QueryEvents validates the filter set, then returns a page of events plus
// the full matching count. Ordering is timestamp descending. Limits are
// validated, never clamped; callers apply their own default before calling.
func (s *Service) QueryEvents(ctx context.Context, q *models.EventQuery) (*models.EventsResponse, error) {
	if q.Limit < 1 || q.Limit > models.MaxEventLimit {
		metrics.ValidationFailuresTotal.WithLabelValues("query_events").Inc()
		return nil, &ValidationError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", models.MaxEventLimit)}
	}
	if q.EventType != "" && !models.ValidEventType(q.EventType) {
		metrics.ValidationFailuresTotal.WithLabelValues("query_events").Inc()
		return nil, &ValidationError{Field: "event_type", Message: fmt.Sprintf("unknown event type %q", q.EventType)}
	}
	if q.StartDate != nil && q.EndDate != nil && q.EndDate.Before(*q.StartDate) {
		metrics.ValidationFailuresTotal.WithLabelValues("query_events").Inc()
		return nil, &ValidationError{Field: "end_date", Message: "must not precede start_date"}
	}
	if (q.DataPath == "") != (q.DataValue == "") {
		metrics.ValidationFailuresTotal.WithLabelValues("query_events").Inc()
		return nil, &ValidationError{Field: "data_path", Message: "data_path and data_value must be supplied together"}
	}

	start := time.Now()
	events, total, err := s.repo.QueryEvents(ctx, q)
	if err != nil {
		return nil, err
	}
	metrics.QueryDuration.WithLabelValues("events").Observe(time.Since(start).Seconds())

	return &models.EventsResponse{Events: events, Total: total}, nil
}

// CreateAlert validates and persists a new alert. Status starts at open;
// related event ids are deduplicated preserving order but deliberately not
// checked for existence — they are soft references.
func (s *Service) CreateAlert(ctx context.Context, req *models.CreateAlertRequest, actor string) (*models.Alert, error) {
	if req.Title == "" {
		metrics.ValidationFailuresTotal.WithLabelValues("create_alert").Inc()
		return nil, &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if req.ConfidenceScore != nil && !models.ValidConfidence(*req.ConfidenceScore) {
		metrics.ValidationFailuresTotal.WithLabelValues("create_alert").Inc()
		return nil, &ValidationError{Field: "confidence_score", Message: "must be between 0 and 100"}
	}

	alert := &models.Alert{
		Title:           req.Title,
		Status:          models.StatusOpen,
		ConfidenceScore: req.ConfidenceScore,
		RelatedEventIDs: uniqueIDs(req.RelatedEventIDs),
	}

	entry, err := s.recorder.Entry(actor, audit.ActionAlertCreate, map[string]interface{}{
		"title":         req.Title,
		"related_count": len(alert.RelatedEventIDs),
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateAlert(ctx, alert, entry); err != nil {
		return nil, err
	}

	count, err := s.resolver.CountResolved(ctx, alert.RelatedEventIDs)
	if err != nil {
		return nil, err
	}
	alert.EventCount = count

	metrics.AlertsCreatedTotal.Inc()
	metrics.AuditEntriesTotal.WithLabelValues(audit.ActionAlertCreate).Inc()
	s.logger.InfoContext(ctx, "alert created", logging.AlertID(alert.ID), "title", alert.Title)
	return alert, nil
}

// QueryAlerts validates the filter set and returns a page of alerts, each
// carrying event_count derived at read time through the correlation resolver.
func (s *Service) QueryAlerts(ctx context.Context, q *models.AlertQuery) (*models.AlertsResponse, error) {
	if q.Limit < 1 || q.Limit > models.MaxAlertLimit {
		metrics.ValidationFailuresTotal.WithLabelValues("query_alerts").Inc()
		return nil, &ValidationError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", models.MaxAlertLimit)}
	}
	if q.Status != "" && !models.ValidStatus(q.Status) {
		metrics.ValidationFailuresTotal.WithLabelValues("query_alerts").Inc()
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", q.Status)}
	}

	start := time.Now()
	alerts, total, err := s.repo.QueryAlerts(ctx, q)
	if err != nil {
		return nil, err
	}
	metrics.QueryDuration.WithLabelValues("alerts").Observe(time.Since(start).Seconds())

	for _, alert := range alerts {
		count, err := s.resolver.CountResolved(ctx, alert.RelatedEventIDs)
		if err != nil {
			return nil, err
		}
		alert.EventCount = count
	}

	return &models.AlertsResponse{Alerts: alerts, Total: total}, nil
}

// GetAlertEvents resolves an alert's related events. Dangling and malformed
// references are excluded, never an error; a missing alert is NotFound.
func (s *Service) GetAlertEvents(ctx context.Context, alertID string) (*models.AlertEventsResponse, error) {
	if _, err := uuid.Parse(alertID); err != nil {
		metrics.ValidationFailuresTotal.WithLabelValues("get_alert_events").Inc()
		return nil, &ValidationError{Field: "alert_id", Message: "must be a valid UUID"}
	}

	alert, err := s.repo.GetAlertByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	events, total, err := s.resolver.Resolve(ctx, alert.RelatedEventIDs)
	if err != nil {
		return nil, err
	}

	return &models.AlertEventsResponse{AlertID: alert.ID, Events: events, Total: total}, nil
}

// GetEventAlerts is the reverse lookup: which alerts reference this event.
// The event itself is not required to exist; the reference list is data.
func (s *Service) GetEventAlerts(ctx context.Context, eventID string) (*models.EventAlertsResponse, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		metrics.ValidationFailuresTotal.WithLabelValues("get_event_alerts").Inc()
		return nil, &ValidationError{Field: "event_id", Message: "must be a valid UUID"}
	}

	alerts, err := s.resolver.FindAlertsReferencing(ctx, eventID)
	if err != nil {
		return nil, err
	}
	for _, alert := range alerts {
		count, err := s.resolver.CountResolved(ctx, alert.RelatedEventIDs)
		if err != nil {
			return nil, err
		}
		alert.EventCount = count
	}

	return &models.EventAlertsResponse{EventID: eventID, Alerts: alerts, Total: len(alerts)}, nil
}

// SetAlertStatus validates the target status and applies it. The status
// machine is deliberately permissive: any of the three statuses is reachable
// from any other, so resolved alerts can be re-opened.
func (s *Service) SetAlertStatus(ctx context.Context, alertID, status, actor string) (*models.Alert, error) {
	if _, err := uuid.Parse(alertID); err != nil {
		metrics.ValidationFailuresTotal.WithLabelValues("set_alert_status").Inc()
		return nil, &ValidationError{Field: "alert_id", Message: "must be a valid UUID"}
	}
	if !models.ValidStatus(status) {
		metrics.ValidationFailuresTotal.WithLabelValues("set_alert_status").Inc()
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}

	alert, err := s.repo.GetAlertByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	previous := alert.Status

	entry, err := s.recorder.Entry(actor, audit.ActionAlertStatusChange, map[string]interface{}{
		"alert_id": alertID,
		"from":     previous,
		"to":       status,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetAlertStatus(ctx, alertID, status, entry); err != nil {
		return nil, err
	}
	alert.Status = status

	count, err := s.resolver.CountResolved(ctx, alert.RelatedEventIDs)
	if err != nil {
		return nil, err
	}
	alert.EventCount = count

	metrics.AlertStatusChangesTotal.WithLabelValues(status).Inc()
	metrics.AuditEntriesTotal.WithLabelValues(audit.ActionAlertStatusChange).Inc()
	s.logger.InfoContext(ctx, "alert status changed",
		logging.AlertID(alertID), "from", previous, "to", status, logging.UserID(entry.UserID))

	if s.notifier != nil {
		s.notifier.PublishAlertStatus(ctx, alert, previous)
	}
	return alert, nil
}

// SetAlertConfidence validates the [0,100] range and applies the score.
func (s *Service) SetAlertConfidence(ctx context.Context, alertID string, score float64, actor string) (*models.Alert, error) {
	if _, err := uuid.Parse(alertID); err != nil {
		metrics.ValidationFailuresTotal.WithLabelValues("set_alert_confidence").Inc()
		return nil, &ValidationError{Field: "alert_id", Message: "must be a valid UUID"}
	}
	if !models.ValidConfidence(score) {
		metrics.ValidationFailuresTotal.WithLabelValues("set_alert_confidence").Inc()
		return nil, &ValidationError{Field: "confidence_score", Message: "must be between 0 and 100"}
	}

	alert, err := s.repo.GetAlertByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	entry, err := s.recorder.Entry(actor, audit.ActionAlertConfidenceChange, map[string]interface{}{
		"alert_id": alertID,
		"score":    score,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetAlertConfidence(ctx, alertID, score, entry); err != nil {
		return nil, err
	}
	alert.ConfidenceScore = &score

	count, err := s.resolver.CountResolved(ctx, alert.RelatedEventIDs)
	if err != nil {
		return nil, err
	}
	alert.EventCount = count

	metrics.AuditEntriesTotal.WithLabelValues(audit.ActionAlertConfidenceChange).Inc()
	return alert, nil
}

// QueryAuditLogs returns a page of the audit trail, newest first.
func (s *Service) QueryAuditLogs(ctx context.Context, q *models.AuditQuery) (*models.AuditLogsResponse, error) {
	if q.Limit < 1 || q.Limit > models.MaxAuditLimit {
		metrics.ValidationFailuresTotal.WithLabelValues("query_audit").Inc()
		return nil, &ValidationError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", models.MaxAuditLimit)}
	}

	entries, total, err := s.repo.QueryAuditLogs(ctx, q)
	if err != nil {
		return nil, err
	}
	return &models.AuditLogsResponse{Entries: entries, Total: total}, nil
}

// Health reports database connectivity.
func (s *Service) Health(ctx context.Context) *models.HealthResponse {
	if err := s.repo.Ping(ctx); err != nil {
		s.logger.ErrorContext(ctx, "database health check failed", logging.Error(err))
		return &models.HealthResponse{Status: "unhealthy", Database: "disconnected"}
	}
	return &models.HealthResponse{Status: "healthy", Database: "connected"}
}

// uniqueIDs removes duplicates preserving first-occurrence order. The result
// is never nil: related_event_ids is NOT NULL in the store, and a nil slice
// would encode as SQL NULL rather than an empty array.
func uniqueIDs(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
