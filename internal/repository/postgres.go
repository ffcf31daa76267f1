package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trailpoint-systems/trailpoint/common/database"
	"github.com/trailpoint-systems/trailpoint/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL. Event payloads
// are stored as JSONB, related_event_ids as TEXT[] (soft references, no
// foreign key), and every mutation shares a transaction with its audit row.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Connection pool configuration
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) CreateEvent(ctx context.Context, event *models.Event, entry *models.AuditLog) error {
	id, err := uuid.NewV7()
	if err != nil {
		return &StorageError{Op: "CreateEvent", Table: "events", Err: err}
	}
	event.ID = id.String()
	event.CreatedAt = time.Now().UTC()
	if event.Timestamp.IsZero() {
		event.Timestamp = event.CreatedAt
	}

	payload, err := marshalPayload(event.EventData)
	if err != nil {
		return &StorageError{Op: "CreateEvent", Table: "events", Err: err}
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return &StorageError{Op: "CreateEvent", Table: "events", Err: err}
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO events (id, event_type, source_system, timestamp, user_id, device_id, event_data, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, query,
		event.ID, event.EventType, event.SourceSystem, event.Timestamp,
		event.UserID, event.DeviceID, payload, event.Severity, event.CreatedAt,
	)
	if err != nil {
		return &StorageError{Op: "CreateEvent", Table: "events", Err: err}
	}

	if entry != nil {
		if err := insertAuditTx(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &StorageError{Op: "CreateEvent", Table: "events", Err: err}
	}
	return nil
}

func (r *PostgresRepository) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT id, event_type, source_system, timestamp, user_id, device_id, event_data, severity, created_at
		FROM events
		WHERE id = $1
	`
	event, err := scanEvent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, &StorageError{Op: "GetEventByID", Table: "events", Err: err}
	}
	return event, nil
}

func (r *PostgresRepository) QueryEvents(ctx context.Context, q *models.EventQuery) ([]*models.Event, int, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if q.EventType != "" {
		whereClause += fmt.Sprintf(" AND event_type = $%d", argPos)
		args = append(args, q.EventType)
		argPos++
	}
	if q.UserID != "" {
		whereClause += fmt.Sprintf(" AND user_id = $%d", argPos)
		args = append(args, q.UserID)
		argPos++
	}
	if q.StartDate != nil {
		whereClause += fmt.Sprintf(" AND timestamp >= $%d", argPos)
		args = append(args, *q.StartDate)
		argPos++
	}
	if q.EndDate != nil {
		whereClause += fmt.Sprintf(" AND timestamp <= $%d", argPos)
		args = append(args, *q.EndDate)
		argPos++
	}
	if q.DataPath != "" {
		// Equality predicate on a dotted path inside the JSONB payload.
		whereClause += fmt.Sprintf(" AND event_data #>> $%d = $%d", argPos, argPos+1)
		args = append(args, strings.Split(q.DataPath, "."), q.DataValue)
		argPos += 2
	}

	// Total matching count, computed before the limit is applied.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM events %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, &StorageError{Op: "QueryEvents", Table: "events", Err: err}
	}

	args = append(args, q.Limit)
	query := fmt.Sprintf(`
		SELECT id, event_type, source_system, timestamp, user_id, device_id, event_data, severity, created_at
		FROM events
		%s
		ORDER BY timestamp DESC
		LIMIT $%d
	`, whereClause, argPos)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, &StorageError{Op: "QueryEvents", Table: "events", Err: err}
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return nil, 0, &StorageError{Op: "QueryEvents", Table: "events", Err: err}
	}
	return events, total, nil
}

func (r *PostgresRepository) EventsByIDs(ctx context.Context, ids []string) ([]*models.Event, error) {
	if len(ids) == 0 {
		return []*models.Event{}, nil
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT id, event_type, source_system, timestamp, user_id, device_id, event_data, severity, created_at
		FROM events
		WHERE id = ANY($1::uuid[])
		ORDER BY timestamp ASC
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, &StorageError{Op: "EventsByIDs", Table: "events", Err: err}
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return nil, &StorageError{Op: "EventsByIDs", Table: "events", Err: err}
	}
	return events, nil
}

func (r *PostgresRepository) CountEventsByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var count int
	query := "SELECT COUNT(*) FROM events WHERE id = ANY($1::uuid[])"
	if err := r.pool.QueryRow(ctx, query, ids).Scan(&count); err != nil {
		return 0, &StorageError{Op: "CountEventsByIDs", Table: "events", Err: err}
	}
	return count, nil
}

func (r *PostgresRepository) CreateAlert(ctx context.Context, alert *models.Alert, entry *models.AuditLog) error {
	id, err := uuid.NewV7()
	if err != nil {
		return &StorageError{Op: "CreateAlert", Table: "alerts", Err: err}
	}
	alert.ID = id.String()
	alert.CreatedAt = time.Now().UTC()
	if alert.RelatedEventIDs == nil {
		// pgx encodes a nil []string as SQL NULL; the column is NOT NULL.
		alert.RelatedEventIDs = []string{}
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return &StorageError{Op: "CreateAlert", Table: "alerts", Err: err}
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO alerts (id, title, status, confidence_score, related_event_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(ctx, query,
		alert.ID, alert.Title, alert.Status, alert.ConfidenceScore,
		alert.RelatedEventIDs, alert.CreatedAt,
	)
	if err != nil {
		return &StorageError{Op: "CreateAlert", Table: "alerts", Err: err}
	}

	if entry != nil {
		if err := insertAuditTx(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &StorageError{Op: "CreateAlert", Table: "alerts", Err: err}
	}
	return nil
}

func (r *PostgresRepository) GetAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT id, title, status, confidence_score, related_event_ids, created_at
		FROM alerts
		WHERE id = $1
	`
	alert := &models.Alert{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&alert.ID, &alert.Title, &alert.Status,
		&alert.ConfidenceScore, &alert.RelatedEventIDs, &alert.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, &StorageError{Op: "GetAlertByID", Table: "alerts", Err: err}
	}
	return alert, nil
}

func (r *PostgresRepository) QueryAlerts(ctx context.Context, q *models.AlertQuery) ([]*models.Alert, int, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if q.Status != "" {
		whereClause += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, q.Status)
		argPos++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM alerts %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, &StorageError{Op: "QueryAlerts", Table: "alerts", Err: err}
	}

	args = append(args, q.Limit)
	query := fmt.Sprintf(`
		SELECT id, title, status, confidence_score, related_event_ids, created_at
		FROM alerts
		%s
		ORDER BY created_at DESC
		LIMIT $%d
	`, whereClause, argPos)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, &StorageError{Op: "QueryAlerts", Table: "alerts", Err: err}
	}
	defer rows.Close()

	alerts, err := collectAlerts(rows)
	if err != nil {
		return nil, 0, &StorageError{Op: "QueryAlerts", Table: "alerts", Err: err}
	}
	return alerts, total, nil
}

func (r *PostgresRepository) AlertsReferencing(ctx context.Context, eventID string) ([]*models.Alert, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	// Set-membership scan over the soft reference array. The array is TEXT[]
	// on purpose: entries are data, not enforced foreign keys.
	query := `
		SELECT id, title, status, confidence_score, related_event_ids, created_at
		FROM alerts
		WHERE $1 = ANY(related_event_ids)
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, &StorageError{Op: "AlertsReferencing", Table: "alerts", Err: err}
	}
	defer rows.Close()

	alerts, err := collectAlerts(rows)
	if err != nil {
		return nil, &StorageError{Op: "AlertsReferencing", Table: "alerts", Err: err}
	}
	return alerts, nil
}

func (r *PostgresRepository) SetAlertStatus(ctx context.Context, id, status string, entry *models.AuditLog) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return &StorageError{Op: "SetAlertStatus", Table: "alerts", Err: err}
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, "UPDATE alerts SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return &StorageError{Op: "SetAlertStatus", Table: "alerts", Err: err}
	}
	if result.RowsAffected() == 0 {
		return ErrAlertNotFound
	}

	if entry != nil {
		if err := insertAuditTx(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &StorageError{Op: "SetAlertStatus", Table: "alerts", Err: err}
	}
	return nil
}

func (r *PostgresRepository) SetAlertConfidence(ctx context.Context, id string, score float64, entry *models.AuditLog) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return &StorageError{Op: "SetAlertConfidence", Table: "alerts", Err: err}
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, "UPDATE alerts SET confidence_score = $1 WHERE id = $2", score, id)
	if err != nil {
		return &StorageError{Op: "SetAlertConfidence", Table: "alerts", Err: err}
	}
	if result.RowsAffected() == 0 {
		return ErrAlertNotFound
	}

	if entry != nil {
		if err := insertAuditTx(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &StorageError{Op: "SetAlertConfidence", Table: "alerts", Err: err}
	}
	return nil
}

func (r *PostgresRepository) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return &StorageError{Op: "AppendAuditLog", Table: "audit_log", Err: err}
	}
	defer tx.Rollback(ctx)

	if err := insertAuditTx(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &StorageError{Op: "AppendAuditLog", Table: "audit_log", Err: err}
	}
	return nil
}

func (r *PostgresRepository) QueryAuditLogs(ctx context.Context, q *models.AuditQuery) ([]*models.AuditLog, int, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if q.UserID != "" {
		whereClause += fmt.Sprintf(" AND user_id = $%d", argPos)
		args = append(args, q.UserID)
		argPos++
	}
	if q.ActionType != "" {
		whereClause += fmt.Sprintf(" AND action_type = $%d", argPos)
		args = append(args, q.ActionType)
		argPos++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_log %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, &StorageError{Op: "QueryAuditLogs", Table: "audit_log", Err: err}
	}

	args = append(args, q.Limit)
	query := fmt.Sprintf(`
		SELECT id, timestamp, user_id, action_type, action_details, signature
		FROM audit_log
		%s
		ORDER BY timestamp DESC
		LIMIT $%d
	`, whereClause, argPos)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, &StorageError{Op: "QueryAuditLogs", Table: "audit_log", Err: err}
	}
	defer rows.Close()

	entries := []*models.AuditLog{}
	for rows.Next() {
		entry := &models.AuditLog{}
		var details []byte
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.UserID, &entry.ActionType, &details, &entry.Signature); err != nil {
			return nil, 0, &StorageError{Op: "QueryAuditLogs", Table: "audit_log", Err: err}
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.ActionDetails); err != nil {
				return nil, 0, &StorageError{Op: "QueryAuditLogs", Table: "audit_log", Err: err}
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &StorageError{Op: "QueryAuditLogs", Table: "audit_log", Err: err}
	}
	return entries, total, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return &StorageError{Op: "Ping", Err: err}
	}
	return nil
}

// Close closes the database connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// insertAuditTx appends an audit row inside the caller's transaction so the
// entry commits or rolls back together with the entity mutation.
func insertAuditTx(ctx context.Context, tx pgx.Tx, entry *models.AuditLog) error {
	details, err := marshalPayload(entry.ActionDetails)
	if err != nil {
		return &StorageError{Op: "AppendAuditLog", Table: "audit_log", Err: err}
	}

	query := `
		INSERT INTO audit_log (id, timestamp, user_id, action_type, action_details, signature)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(ctx, query,
		entry.ID, entry.Timestamp, entry.UserID, entry.ActionType, details, entry.Signature,
	)
	if err != nil {
		return &StorageError{Op: "AppendAuditLog", Table: "audit_log", Err: err}
	}
	return nil
}

func marshalPayload(data map[string]interface{}) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return payload, nil
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	event := &models.Event{}
	var payload []byte
	err := row.Scan(
		&event.ID, &event.EventType, &event.SourceSystem, &event.Timestamp,
		&event.UserID, &event.DeviceID, &payload, &event.Severity, &event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &event.EventData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event_data: %w", err)
		}
	}
	return event, nil
}

func collectEvents(rows pgx.Rows) ([]*models.Event, error) {
	events := []*models.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func collectAlerts(rows pgx.Rows) ([]*models.Alert, error) {
	alerts := []*models.Alert{}
	for rows.Next() {
		alert := &models.Alert{}
		err := rows.Scan(
			&alert.ID, &alert.Title, &alert.Status,
			&alert.ConfidenceScore, &alert.RelatedEventIDs, &alert.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}
