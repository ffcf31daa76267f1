package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailpoint-systems/trailpoint/internal/models"
)

func newTestEvent(eventType string, ts time.Time) *models.Event {
	return &models.Event{
		EventType:    eventType,
		SourceSystem: "test-source",
		Timestamp:    ts,
		Severity:     models.SeverityMedium,
	}
}

func TestCreateEventAssignsServerFields(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	event := newTestEvent(models.EventTypeSecurity, time.Time{})
	require.NoError(t, repo.CreateEvent(ctx, event, nil))

	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
	// Missing timestamp falls back to ingestion time.
	assert.Equal(t, event.CreatedAt, event.Timestamp)

	got, err := repo.GetEventByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.ID, got.ID)
}

func TestGetEventByIDNotFound(t *testing.T) {
	repo := NewInMemoryRepository()

	_, err := repo.GetEventByID(context.Background(), "0198a7a2-0000-7000-8000-000000000000")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestQueryEventsOrderAndTotal(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	older := newTestEvent(models.EventTypeSecurity, now.Add(-time.Hour))
	newer := newTestEvent(models.EventTypeSecurity, now)
	require.NoError(t, repo.CreateEvent(ctx, older, nil))
	require.NoError(t, repo.CreateEvent(ctx, newer, nil))

	events, total, err := repo.QueryEvents(ctx, &models.EventQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, events, 2)
	// Newest first.
	assert.Equal(t, newer.ID, events[0].ID)
	assert.Equal(t, older.ID, events[1].ID)

	// Total reflects all matches even when the page is smaller.
	events, total, err = repo.QueryEvents(ctx, &models.EventQuery{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, events, 1)
	assert.Equal(t, newer.ID, events[0].ID)
}

func TestQueryEventsFilters(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	alice := "alice"
	secEvent := newTestEvent(models.EventTypeSecurity, now.Add(-time.Hour))
	secEvent.UserID = &alice
	secEvent.EventData = map[string]interface{}{
		"geo":       map[string]interface{}{"country": "RU"},
		"bytes_out": 10000000.0,
	}
	idEvent := newTestEvent(models.EventTypeIdentity, now)
	require.NoError(t, repo.CreateEvent(ctx, secEvent, nil))
	require.NoError(t, repo.CreateEvent(ctx, idEvent, nil))

	t.Run("by event type", func(t *testing.T) {
		events, total, err := repo.QueryEvents(ctx, &models.EventQuery{EventType: models.EventTypeSecurity, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, secEvent.ID, events[0].ID)
	})

	t.Run("by user", func(t *testing.T) {
		events, total, err := repo.QueryEvents(ctx, &models.EventQuery{UserID: "alice", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, secEvent.ID, events[0].ID)
	})

	t.Run("by time range", func(t *testing.T) {
		start := now.Add(-30 * time.Minute)
		_, total, err := repo.QueryEvents(ctx, &models.EventQuery{StartDate: &start, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("by data path", func(t *testing.T) {
		events, total, err := repo.QueryEvents(ctx, &models.EventQuery{
			DataPath: "geo.country", DataValue: "RU", Limit: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, secEvent.ID, events[0].ID)
	})

	t.Run("data path no match", func(t *testing.T) {
		_, total, err := repo.QueryEvents(ctx, &models.EventQuery{
			DataPath: "geo.country", DataValue: "US", Limit: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})

	t.Run("numeric data value", func(t *testing.T) {
		// Numbers compare against their JSON text rendering, the same form
		// the #>> operator yields on the SQL path.
		events, total, err := repo.QueryEvents(ctx, &models.EventQuery{
			DataPath: "bytes_out", DataValue: "10000000", Limit: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, secEvent.ID, events[0].ID)
	})
}

func TestEventsByIDsAscending(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	first := newTestEvent(models.EventTypeSecurity, now.Add(-2*time.Hour))
	second := newTestEvent(models.EventTypeSecurity, now.Add(-time.Hour))
	require.NoError(t, repo.CreateEvent(ctx, first, nil))
	require.NoError(t, repo.CreateEvent(ctx, second, nil))

	events, err := repo.EventsByIDs(ctx, []string{second.ID, first.ID, "0198a7a2-0000-7000-8000-000000000000"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, second.ID, events[1].ID)
}

func TestQueryAlertsStatusFilterAndOrder(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	open := &models.Alert{Title: "a", Status: models.StatusOpen}
	require.NoError(t, repo.CreateAlert(ctx, open, nil))
	resolved := &models.Alert{Title: "b", Status: models.StatusResolved}
	require.NoError(t, repo.CreateAlert(ctx, resolved, nil))

	alerts, total, err := repo.QueryAlerts(ctx, &models.AlertQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, alerts, 2)

	alerts, total, err = repo.QueryAlerts(ctx, &models.AlertQuery{Status: models.StatusResolved, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, resolved.ID, alerts[0].ID)
}

func TestCreateAlertWithoutReferences(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	alert := &models.Alert{Title: "manual review", Status: models.StatusOpen}
	require.NoError(t, repo.CreateAlert(ctx, alert, nil))

	got, err := repo.GetAlertByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.RelatedEventIDs)
	assert.Empty(t, got.RelatedEventIDs)

	count, err := repo.CountEventsByIDs(ctx, got.RelatedEventIDs)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAlertReadsReturnCopies(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	alert := &models.Alert{Title: "a", Status: models.StatusOpen}
	require.NoError(t, repo.CreateAlert(ctx, alert, nil))

	// Writes to a read result must not leak into the store.
	got, err := repo.GetAlertByID(ctx, alert.ID)
	require.NoError(t, err)
	got.Status = models.StatusResolved
	got.EventCount = 99

	fresh, err := repo.GetAlertByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, fresh.Status)
	assert.Equal(t, 0, fresh.EventCount)

	listed, _, err := repo.QueryAlerts(ctx, &models.AlertQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	listed[0].Status = models.StatusInvestigating

	fresh, err = repo.GetAlertByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, fresh.Status)
}

func TestSetAlertStatusNotFound(t *testing.T) {
	repo := NewInMemoryRepository()

	err := repo.SetAlertStatus(context.Background(), "0198a7a2-0000-7000-8000-000000000000", models.StatusResolved, nil)
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestAlertsReferencing(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	event := newTestEvent(models.EventTypeSecurity, time.Now().UTC())
	require.NoError(t, repo.CreateEvent(ctx, event, nil))

	referencing := &models.Alert{Title: "hit", Status: models.StatusOpen, RelatedEventIDs: []string{event.ID}}
	other := &models.Alert{Title: "miss", Status: models.StatusOpen}
	require.NoError(t, repo.CreateAlert(ctx, referencing, nil))
	require.NoError(t, repo.CreateAlert(ctx, other, nil))

	alerts, err := repo.AlertsReferencing(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, referencing.ID, alerts[0].ID)
}

func TestAuditFailureRollsBackCreate(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	repo.FailAudits(errors.New("audit backend down"))

	event := newTestEvent(models.EventTypeSecurity, time.Now().UTC())
	err := repo.CreateEvent(ctx, event, &models.AuditLog{UserID: "u", ActionType: "event.create"})
	require.Error(t, err)
	assert.True(t, IsStorageError(err))

	// The event never became visible and its identity was not assigned.
	assert.Empty(t, event.ID)
	_, total, qerr := repo.QueryEvents(ctx, &models.EventQuery{Limit: 10})
	require.NoError(t, qerr)
	assert.Equal(t, 0, total)

	// Recovery: with the audit path healthy again, the write goes through.
	repo.FailAudits(nil)
	require.NoError(t, repo.CreateEvent(ctx, event, &models.AuditLog{UserID: "u", ActionType: "event.create"}))
	assert.NotEmpty(t, event.ID)
}

func TestAuditFailureRollsBackStatusChange(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	alert := &models.Alert{Title: "a", Status: models.StatusOpen}
	require.NoError(t, repo.CreateAlert(ctx, alert, nil))

	repo.FailAudits(errors.New("audit backend down"))
	err := repo.SetAlertStatus(ctx, alert.ID, models.StatusResolved, &models.AuditLog{UserID: "u", ActionType: "alert.status_change"})
	require.Error(t, err)

	got, gerr := repo.GetAlertByID(ctx, alert.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.StatusOpen, got.Status)
}

func TestQueryAuditLogs(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	entries := []*models.AuditLog{
		{UserID: "alice", ActionType: "event.create", Timestamp: time.Now().UTC().Add(-2 * time.Minute)},
		{UserID: "bob", ActionType: "alert.create", Timestamp: time.Now().UTC().Add(-time.Minute)},
		{UserID: "alice", ActionType: "alert.status_change", Timestamp: time.Now().UTC()},
	}
	for _, e := range entries {
		require.NoError(t, repo.AppendAuditLog(ctx, e))
	}

	t.Run("newest first", func(t *testing.T) {
		got, total, err := repo.QueryAuditLogs(ctx, &models.AuditQuery{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, "alert.status_change", got[0].ActionType)
	})

	t.Run("by user", func(t *testing.T) {
		got, total, err := repo.QueryAuditLogs(ctx, &models.AuditQuery{UserID: "alice", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, got, 2)
	})

	t.Run("by action type", func(t *testing.T) {
		got, total, err := repo.QueryAuditLogs(ctx, &models.AuditQuery{ActionType: "alert.create", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, "bob", got[0].UserID)
	})

	t.Run("limit with total intact", func(t *testing.T) {
		got, total, err := repo.QueryAuditLogs(ctx, &models.AuditQuery{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, got, 1)
	})
}

func TestStorageErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &StorageError{Op: "QueryEvents", Table: "events", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStorageError(err))
	assert.False(t, IsStorageError(ErrEventNotFound))
	assert.Contains(t, err.Error(), "QueryEvents")
}
