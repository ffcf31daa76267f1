// Package repository persists events, alerts and the audit trail.
//
// Two implementations exist: PostgresRepository for production and
// InMemoryRepository for tests and local development. Both enforce the same
// contract: entity identifiers and created_at timestamps are assigned at
// persistence time, and every mutating operation writes its audit entry in
// the same transaction as the mutation. The audit trail is append-only; no
// update or delete entry point exists for audit rows.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/trailpoint-systems/trailpoint/internal/models"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrAlertNotFound = errors.New("alert not found")
)

// StorageError wraps a backend failure with the operation and table involved.
// Storage errors are safe to retry: the transaction boundary guarantees the
// failed operation left no partial state behind.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage.%s(%s): %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("storage.%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

type Repository interface {
	// CreateEvent persists a new event and its audit entry atomically.
	// The event's ID and CreatedAt are assigned here, never by the caller.
	CreateEvent(ctx context.Context, event *models.Event, entry *models.AuditLog) error
	GetEventByID(ctx context.Context, id string) (*models.Event, error)

	// QueryEvents returns a page of matching events ordered by timestamp
	// descending, plus the total matching count computed before the limit.
	QueryEvents(ctx context.Context, q *models.EventQuery) ([]*models.Event, int, error)

	// EventsByIDs bulk-resolves event ids, ordered by timestamp ascending.
	// IDs that do not resolve are simply absent from the result.
	EventsByIDs(ctx context.Context, ids []string) ([]*models.Event, error)

	// CountEventsByIDs counts how many of the given ids resolve to a stored
	// event. Backs the derived event_count attribute.
	CountEventsByIDs(ctx context.Context, ids []string) (int, error)

	// CreateAlert persists a new alert and its audit entry atomically.
	CreateAlert(ctx context.Context, alert *models.Alert, entry *models.AuditLog) error
	GetAlertByID(ctx context.Context, id string) (*models.Alert, error)

	// QueryAlerts returns a page of matching alerts ordered by created_at
	// descending, plus the total matching count computed before the limit.
	QueryAlerts(ctx context.Context, q *models.AlertQuery) ([]*models.Alert, int, error)

	// AlertsReferencing scans for alerts whose related_event_ids contains
	// eventID. Pure set membership; no referential integrity is assumed.
	AlertsReferencing(ctx context.Context, eventID string) ([]*models.Alert, error)

	// SetAlertStatus updates the status and appends the audit entry in one
	// transaction. If the audit write fails the status change is rolled back.
	SetAlertStatus(ctx context.Context, id, status string, entry *models.AuditLog) error

	// SetAlertConfidence updates the confidence score and appends the audit
	// entry in one transaction.
	SetAlertConfidence(ctx context.Context, id string, score float64, entry *models.AuditLog) error

	// AppendAuditLog appends a standalone audit entry. This is the only way
	// audit rows come into existence; they are never modified afterwards.
	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error

	// QueryAuditLogs returns a page of audit entries ordered by timestamp
	// descending, plus the total matching count.
	QueryAuditLogs(ctx context.Context, q *models.AuditQuery) ([]*models.AuditLog, int, error)

	Ping(ctx context.Context) error
	Close() error
}
