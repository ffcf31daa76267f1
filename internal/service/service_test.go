package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailpoint-systems/trailpoint/internal/audit"
	"github.com/trailpoint-systems/trailpoint/internal/correlation"
	"github.com/trailpoint-systems/trailpoint/internal/models"
	"github.com/trailpoint-systems/trailpoint/internal/repository"
)

// mockRepository lets individual tests fail specific repository operations.
type mockRepository struct {
	createEventFunc    func(ctx context.Context, event *models.Event, entry *models.AuditLog) error
	queryEventsFunc    func(ctx context.Context, q *models.EventQuery) ([]*models.Event, int, error)
	getAlertByIDFunc   func(ctx context.Context, id string) (*models.Alert, error)
	setAlertStatusFunc func(ctx context.Context, id, status string, entry *models.AuditLog) error
}

func (m *mockRepository) CreateEvent(ctx context.Context, event *models.Event, entry *models.AuditLog) error {
	if m.createEventFunc != nil {
		return m.createEventFunc(ctx, event, entry)
	}
	return nil
}

func (m *mockRepository) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	return nil, repository.ErrEventNotFound
}

func (m *mockRepository) QueryEvents(ctx context.Context, q *models.EventQuery) ([]*models.Event, int, error) {
	if m.queryEventsFunc != nil {
		return m.queryEventsFunc(ctx, q)
	}
	return nil, 0, nil
}

func (m *mockRepository) EventsByIDs(ctx context.Context, ids []string) ([]*models.Event, error) {
	return nil, nil
}

func (m *mockRepository) CountEventsByIDs(ctx context.Context, ids []string) (int, error) {
	return 0, nil
}

func (m *mockRepository) CreateAlert(ctx context.Context, alert *models.Alert, entry *models.AuditLog) error {
	return nil
}

func (m *mockRepository) GetAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	if m.getAlertByIDFunc != nil {
		return m.getAlertByIDFunc(ctx, id)
	}
	return nil, repository.ErrAlertNotFound
}

func (m *mockRepository) QueryAlerts(ctx context.Context, q *models.AlertQuery) ([]*models.Alert, int, error) {
	return nil, 0, nil
}

func (m *mockRepository) AlertsReferencing(ctx context.Context, eventID string) ([]*models.Alert, error) {
	return nil, nil
}

func (m *mockRepository) SetAlertStatus(ctx context.Context, id, status string, entry *models.AuditLog) error {
	if m.setAlertStatusFunc != nil {
		return m.setAlertStatusFunc(ctx, id, status, entry)
	}
	return nil
}

func (m *mockRepository) SetAlertConfidence(ctx context.Context, id string, score float64, entry *models.AuditLog) error {
	return nil
}

func (m *mockRepository) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return nil
}

func (m *mockRepository) QueryAuditLogs(ctx context.Context, q *models.AuditQuery) ([]*models.AuditLog, int, error) {
	return nil, 0, nil
}

func (m *mockRepository) Ping(ctx context.Context) error { return nil }
func (m *mockRepository) Close() error                   { return nil }

// mockNotifier records published notifications.
type mockNotifier struct {
	events       []*models.Event
	statusAlerts []*models.Alert
	previous     []string
}

func (m *mockNotifier) PublishEventCreated(ctx context.Context, event *models.Event) {
	m.events = append(m.events, event)
}

func (m *mockNotifier) PublishAlertStatus(ctx context.Context, alert *models.Alert, previous string) {
	m.statusAlerts = append(m.statusAlerts, alert)
	m.previous = append(m.previous, previous)
}

// newTestService wires a service over the in-memory repository.
func newTestService(t *testing.T) (*Service, *repository.InMemoryRepository, *mockNotifier) {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	notifier := &mockNotifier{}
	svc := New(repo, correlation.NewResolver(repo, nil), audit.NewRecorder("test-secret"), notifier, nil)
	return svc, repo, notifier
}

func createEvent(t *testing.T, svc *Service, ts time.Time) *models.Event {
	t.Helper()
	event, err := svc.CreateEvent(context.Background(), &models.CreateEventRequest{
		EventType:    models.EventTypeSecurity,
		SourceSystem: "ids-sensor",
		Timestamp:    &ts,
		Severity:     models.SeverityHigh,
	}, "tester")
	require.NoError(t, err)
	return event
}

func TestCreateEventValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   *models.CreateEventRequest
		field string
	}{
		{
			name:  "unknown event type",
			req:   &models.CreateEventRequest{EventType: "network", SourceSystem: "x", Severity: "low"},
			field: "event_type",
		},
		{
			name:  "unknown severity",
			req:   &models.CreateEventRequest{EventType: "security", SourceSystem: "x", Severity: "urgent"},
			field: "severity",
		},
		{
			name:  "missing source",
			req:   &models.CreateEventRequest{EventType: "security", Severity: "low"},
			field: "source_system",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateEvent(ctx, tt.req, "tester")
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCreateEventWritesAuditAndNotifies(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()

	event := createEvent(t, svc, time.Now().UTC())
	assert.NotEmpty(t, event.ID)

	entries, total, err := repo.QueryAuditLogs(ctx, &models.AuditQuery{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, audit.ActionEventCreate, entries[0].ActionType)
	assert.Equal(t, "tester", entries[0].UserID)
	assert.NotEmpty(t, entries[0].Signature)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, event.ID, notifier.events[0].ID)
}

func TestCreateEventAnonymousActorAttributedToSystem(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateEvent(ctx, &models.CreateEventRequest{
		EventType: models.EventTypeEmail, SourceSystem: "mail-filter", Severity: models.SeverityInfo,
	}, "")
	require.NoError(t, err)

	entries, _, err := repo.QueryAuditLogs(ctx, &models.AuditQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, audit.SystemUser, entries[0].UserID)
}

func TestQueryEventsLimitValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, limit := range []int{0, -1, models.MaxEventLimit + 1} {
		_, err := svc.QueryEvents(ctx, &models.EventQuery{Limit: limit})
		assert.True(t, IsValidationError(err), "limit %d", limit)
	}

	// The maximum itself is accepted.
	_, err := svc.QueryEvents(ctx, &models.EventQuery{Limit: models.MaxEventLimit})
	assert.NoError(t, err)
}

func TestQueryEventsFilterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)

	t.Run("unknown event type", func(t *testing.T) {
		_, err := svc.QueryEvents(ctx, &models.EventQuery{EventType: "bogus", Limit: 10})
		assert.True(t, IsValidationError(err))
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := svc.QueryEvents(ctx, &models.EventQuery{StartDate: &now, EndDate: &earlier, Limit: 10})
		assert.True(t, IsValidationError(err))
	})

	t.Run("data path without value", func(t *testing.T) {
		_, err := svc.QueryEvents(ctx, &models.EventQuery{DataPath: "geo.country", Limit: 10})
		assert.True(t, IsValidationError(err))
	})

	t.Run("data value without path", func(t *testing.T) {
		_, err := svc.QueryEvents(ctx, &models.EventQuery{DataValue: "RU", Limit: 10})
		assert.True(t, IsValidationError(err))
	})
}

func TestQueryEventsTotalBeforeLimit(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		createEvent(t, svc, now.Add(time.Duration(-i)*time.Minute))
	}

	resp, err := svc.QueryEvents(ctx, &models.EventQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Events, 2)
}

func TestCreateAlertValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	t.Run("missing title", func(t *testing.T) {
		_, err := svc.CreateAlert(ctx, &models.CreateAlertRequest{}, "tester")
		assert.True(t, IsValidationError(err))
	})

	t.Run("confidence out of range", func(t *testing.T) {
		bad := 100.5
		_, err := svc.CreateAlert(ctx, &models.CreateAlertRequest{Title: "x", ConfidenceScore: &bad}, "tester")
		assert.True(t, IsValidationError(err))
	})
}

func TestCreateAlertDefaultsAndDedupe(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	event := createEvent(t, svc, time.Now().UTC())

	alert, err := svc.CreateAlert(ctx, &models.CreateAlertRequest{
		Title:           "duplicate refs",
		RelatedEventIDs: []string{event.ID, event.ID, "0198a7a2-0000-7000-8000-000000000000"},
	}, "tester")
	require.NoError(t, err)

	assert.Equal(t, models.StatusOpen, alert.Status)
	// Duplicates collapsed, dangling reference retained as data.
	assert.Equal(t, []string{event.ID, "0198a7a2-0000-7000-8000-000000000000"}, alert.RelatedEventIDs)
	// Only the resolving reference counts.
	assert.Equal(t, 1, alert.EventCount)
}

func TestCreateAlertAcceptsDanglingAndMalformedRefs(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	alert, err := svc.CreateAlert(ctx, &models.CreateAlertRequest{
		Title:           "speculative",
		RelatedEventIDs: []string{"not-a-uuid", "0198a7a2-0000-7000-8000-000000000000"},
	}, "tester")
	require.NoError(t, err)
	assert.Equal(t, 0, alert.EventCount)
	assert.Len(t, alert.RelatedEventIDs, 2)
}

func TestCreateAlertWithNoReferences(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	alert, err := svc.CreateAlert(ctx, &models.CreateAlertRequest{Title: "no refs yet"}, "tester")
	require.NoError(t, err)

	// An empty reference list stays an empty array, never nil: the store
	// column is NOT NULL and nil would encode as SQL NULL.
	assert.NotNil(t, alert.RelatedEventIDs)
	assert.Empty(t, alert.RelatedEventIDs)
	assert.Equal(t, 0, alert.EventCount)
}

func TestQueryAlertsDerivesEventCount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	event := createEvent(t, svc, time.Now().UTC())
	_, err := svc.CreateAlert(ctx, &models.CreateAlertRequest{
		Title:           "counted",
		RelatedEventIDs: []string{event.ID, "0198a7a2-0000-7000-8000-000000000000"},
	}, "tester")
	require.NoError(t, err)

	resp, err := svc.QueryAlerts(ctx, &models.AlertQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.Alerts, 1)
	assert.Equal(t, 1, resp.Alerts[0].EventCount)
}

func TestQueryAlertsValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.QueryAlerts(ctx, &models.AlertQuery{Status: "closed", Limit: 10})
	assert.True(t, IsValidationError(err))

	_, err = svc.QueryAlerts(ctx, &models.AlertQuery{Limit: models.MaxAlertLimit + 1})
	assert.True(t, IsValidationError(err))
}

func TestGetAlertEvents(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	newer := createEvent(t, svc, now)
	older := createEvent(t, svc, now.Add(-time.Hour))

	alert, err := svc.CreateAlert(ctx, &models.CreateAlertRequest{
		Title:           "ordered",
		RelatedEventIDs: []string{newer.ID, older.ID, "junk-ref"},
	}, "tester")
	require.NoError(t, err)

	resp, err := svc.GetAlertEvents(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, alert.ID, resp.AlertID)
	require.Equal(t, 2, resp.Total)
	// Oldest first.
	assert.Equal(t, older.ID, resp.Events[0].ID)
	assert.Equal(t, newer.ID, resp.Events[1].ID)
}

func TestGetAlertEventsMissingAlert(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetAlertEvents(context.Background(), "0198a7a2-0000-7000-8000-000000000000")
	assert.ErrorIs(t, err, repository.ErrAlertNotFound)
}

func TestGetAlertEventsMalformedID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetAlertEvents(context.Background(), "not-a-uuid")
	assert.True(t, IsValidationError(err))
}

func TestGetEventAlertsReverseLookup(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	event := createEvent(t, svc, time.Now().UTC())
	alert, err := svc.CreateAlert(ctx, &models.CreateAlertRequest{
		Title:           "references it",
		RelatedEventIDs: []string{event.ID},
	}, "tester")
	require.NoError(t, err)

	resp, err := svc.GetEventAlerts(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, alert.ID, resp.Alerts[0].ID)
	assert.Equal(t, 1, resp.Alerts[0].EventCount)
}

func TestGetEventAlertsNoExistenceRequirement(t *testing.T) {
	svc, _, _ := newTestService(t)

	// The event does not exist; the lookup still succeeds with no matches.
	resp, err := svc.GetEventAlerts(context.Background(), "0198a7a2-0000-7000-8000-000000000000")
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Total)
}

func TestSetAlertStatusTransitions(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()

	alert, err := svc.CreateAlert(ctx, &models.CreateAlertRequest{Title: "lifecycle"}, "tester")
	require.NoError(t, err)

	// Any status is reachable from any other, including re-opening.
	for _, status := range []string{
		models.StatusInvestigating,
		models.StatusResolved,
		models.StatusOpen,
		models.StatusResolved,
	} {
		updated, err := svc.SetAlertStatus(ctx, alert.ID, status, "analyst")
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}

	entries, _, err := repo.QueryAuditLogs(ctx, &models.AuditQuery{ActionType: audit.ActionAlertStatusChange, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	// Transition details are recorded.
	assert.Equal(t, models.StatusOpen, entries[0].ActionDetails["from"])
	assert.Equal(t, models.StatusResolved, entries[0].ActionDetails["to"])

	require.Len(t, notifier.statusAlerts, 4)
	assert.Equal(t, models.StatusOpen, notifier.previous[0])
}

func TestSetAlertStatusValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetAlertStatus(ctx, "not-a-uuid", models.StatusOpen, "a")
	assert.True(t, IsValidationError(err))

	_, err = svc.SetAlertStatus(ctx, "0198a7a2-0000-7000-8000-000000000000", "closed", "a")
	assert.True(t, IsValidationError(err))

	_, err = svc.SetAlertStatus(ctx, "0198a7a2-0000-7000-8000-000000000000", models.StatusOpen, "a")
	assert.ErrorIs(t, err, repository.ErrAlertNotFound)
}

func TestSetAlertConfidence(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	alert, err := svc.CreateAlert(ctx, &models.CreateAlertRequest{Title: "scored"}, "tester")
	require.NoError(t, err)

	updated, err := svc.SetAlertConfidence(ctx, alert.ID, 87.5, "analyst")
	require.NoError(t, err)
	require.NotNil(t, updated.ConfidenceScore)
	assert.Equal(t, 87.5, *updated.ConfidenceScore)

	_, err = svc.SetAlertConfidence(ctx, alert.ID, 101, "analyst")
	assert.True(t, IsValidationError(err))

	entries, _, err := repo.QueryAuditLogs(ctx, &models.AuditQuery{ActionType: audit.ActionAlertConfidenceChange, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMutationFailsWhenAuditFails(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	alert, err := svc.CreateAlert(ctx, &models.CreateAlertRequest{Title: "atomic"}, "tester")
	require.NoError(t, err)

	repo.FailAudits(errors.New("audit store down"))

	_, err = svc.SetAlertStatus(ctx, alert.ID, models.StatusResolved, "analyst")
	require.Error(t, err)
	assert.True(t, repository.IsStorageError(err))

	repo.FailAudits(nil)
	got, err := svc.QueryAlerts(ctx, &models.AlertQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Alerts[0].Status)
}

func TestQueryAuditLogsLimitValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.QueryAuditLogs(context.Background(), &models.AuditQuery{Limit: models.MaxAuditLimit + 1})
	assert.True(t, IsValidationError(err))
}

func TestHealth(t *testing.T) {
	svc, _, _ := newTestService(t)

	health := svc.Health(context.Background())
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "connected", health.Database)
}

func TestStorageErrorsPropagate(t *testing.T) {
	repo := &mockRepository{
		queryEventsFunc: func(ctx context.Context, q *models.EventQuery) ([]*models.Event, int, error) {
			return nil, 0, &repository.StorageError{Op: "QueryEvents", Table: "events", Err: errors.New("connection refused")}
		},
	}
	svc := New(repo, correlation.NewResolver(repo, nil), audit.NewRecorder("k"), nil, nil)

	_, err := svc.QueryEvents(context.Background(), &models.EventQuery{Limit: 10})
	require.Error(t, err)
	assert.True(t, repository.IsStorageError(err))
	assert.False(t, IsValidationError(err))
}
