package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trailpoint-systems/trailpoint/internal/models"
)

// InMemoryRepository is a Repository backed by process memory. It mirrors the
// transactional behavior of the PostgreSQL implementation: a mutation and its
// audit entry land together or not at all.
type InMemoryRepository struct {
	events map[string]*models.Event
	alerts map[string]*models.Alert
	audit  []*models.AuditLog

	// auditErr, when set, makes the next audit append fail. Used by tests to
	// verify that mutations roll back when the audit write fails.
	auditErr error

	mu sync.RWMutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		events: make(map[string]*models.Event),
		alerts: make(map[string]*models.Alert),
	}
}

// FailAudits makes every subsequent audit append fail with err until called
// again with nil.
func (r *InMemoryRepository) FailAudits(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auditErr = err
}

func (r *InMemoryRepository) appendAuditLocked(entry *models.AuditLog) error {
	if r.auditErr != nil {
		return &StorageError{Op: "AppendAuditLog", Table: "audit_log", Err: r.auditErr}
	}
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return &StorageError{Op: "AppendAuditLog", Table: "audit_log", Err: err}
		}
		entry.ID = id.String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	r.audit = append(r.audit, entry)
	return nil
}

func (r *InMemoryRepository) CreateEvent(ctx context.Context, event *models.Event, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return &StorageError{Op: "CreateEvent", Table: "events", Err: err}
	}
	event.ID = id.String()
	event.CreatedAt = time.Now().UTC()
	if event.Timestamp.IsZero() {
		event.Timestamp = event.CreatedAt
	}

	if entry != nil {
		if err := r.appendAuditLocked(entry); err != nil {
			event.ID = ""
			event.CreatedAt = time.Time{}
			return err
		}
	}

	r.events[event.ID] = event
	return nil
}

func (r *InMemoryRepository) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func (r *InMemoryRepository) QueryEvents(ctx context.Context, q *models.EventQuery) ([]*models.Event, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*models.Event, 0)
	for _, e := range r.events {
		if !eventMatches(e, q) {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func eventMatches(e *models.Event, q *models.EventQuery) bool {
	if q.EventType != "" && e.EventType != q.EventType {
		return false
	}
	if q.UserID != "" && (e.UserID == nil || *e.UserID != q.UserID) {
		return false
	}
	if q.StartDate != nil && e.Timestamp.Before(*q.StartDate) {
		return false
	}
	if q.EndDate != nil && e.Timestamp.After(*q.EndDate) {
		return false
	}
	if q.DataPath != "" {
		value, ok := models.LookupPath(e.EventData, q.DataPath)
		// A JSON null never matches, mirroring #>> returning SQL NULL.
		if !ok || value == nil || renderPathValue(value) != q.DataValue {
			return false
		}
	}
	return true
}

// renderPathValue renders a payload value the way the #>> operator renders
// jsonb as text: strings bare, everything else as its JSON encoding.
func renderPathValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func (r *InMemoryRepository) EventsByIDs(ctx context.Context, ids []string) ([]*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]*models.Event, 0, len(ids))
	for _, id := range ids {
		if e, ok := r.events[id]; ok {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

func (r *InMemoryRepository) CountEventsByIDs(ctx context.Context, ids []string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, id := range ids {
		if _, ok := r.events[id]; ok {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepository) CreateAlert(ctx context.Context, alert *models.Alert, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return &StorageError{Op: "CreateAlert", Table: "alerts", Err: err}
	}
	alert.ID = id.String()
	alert.CreatedAt = time.Now().UTC()

	if entry != nil {
		if err := r.appendAuditLocked(entry); err != nil {
			alert.ID = ""
			alert.CreatedAt = time.Time{}
			return err
		}
	}

	r.alerts[alert.ID] = copyAlert(alert)
	return nil
}

// copyAlert shields the store from callers: read results are written to by
// the service layer (derived event_count, lifecycle fields) outside our lock.
func copyAlert(a *models.Alert) *models.Alert {
	c := *a
	c.RelatedEventIDs = make([]string, len(a.RelatedEventIDs))
	copy(c.RelatedEventIDs, a.RelatedEventIDs)
	return &c
}

func (r *InMemoryRepository) GetAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alert, ok := r.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return copyAlert(alert), nil
}

func (r *InMemoryRepository) QueryAlerts(ctx context.Context, q *models.AlertQuery) ([]*models.Alert, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*models.Alert, 0)
	for _, a := range r.alerts {
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		matched = append(matched, copyAlert(a))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func (r *InMemoryRepository) AlertsReferencing(ctx context.Context, eventID string) ([]*models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*models.Alert, 0)
	for _, a := range r.alerts {
		for _, id := range a.RelatedEventIDs {
			if id == eventID {
				matched = append(matched, copyAlert(a))
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

func (r *InMemoryRepository) SetAlertStatus(ctx context.Context, id, status string, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert, ok := r.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}

	if entry != nil {
		if err := r.appendAuditLocked(entry); err != nil {
			return err
		}
	}

	alert.Status = status
	return nil
}

func (r *InMemoryRepository) SetAlertConfidence(ctx context.Context, id string, score float64, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert, ok := r.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}

	if entry != nil {
		if err := r.appendAuditLocked(entry); err != nil {
			return err
		}
	}

	alert.ConfidenceScore = &score
	return nil
}

func (r *InMemoryRepository) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendAuditLocked(entry)
}

func (r *InMemoryRepository) QueryAuditLogs(ctx context.Context, q *models.AuditQuery) ([]*models.AuditLog, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*models.AuditLog, 0)
	for _, entry := range r.audit {
		if q.UserID != "" && entry.UserID != q.UserID {
			continue
		}
		if q.ActionType != "" && entry.ActionType != q.ActionType {
			continue
		}
		matched = append(matched, entry)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func (r *InMemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *InMemoryRepository) Close() error {
	return nil
}
