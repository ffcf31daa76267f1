package models

import (
	"strings"
	"time"
)

// Event types accepted by the platform. Anything else fails validation.
const (
	EventTypeSecurity  = "security"
	EventTypeIdentity  = "identity"
	EventTypeFinancial = "financial"
	EventTypeEndpoint  = "endpoint"
	EventTypeEmail     = "email"
)

// Severity levels, lowest to highest.
const (
	SeverityInfo     = "info"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert statuses. The status field is a free assignment among these three
// values: re-opening a resolved alert is allowed.
const (
	StatusOpen          = "open"
	StatusInvestigating = "investigating"
	StatusResolved      = "resolved"
)

// Query limit bounds and defaults.
const (
	MaxEventLimit     = 1000
	DefaultEventLimit = 100
	MaxAlertLimit     = 500
	DefaultAlertLimit = 50
	MaxAuditLimit     = 500
	DefaultAuditLimit = 50
)

// Event represents one unit of observed telemetry. Events are created once
// and never updated or deleted.
type Event struct {
	ID           string                 `json:"id"`
	EventType    string                 `json:"event_type"`
	SourceSystem string                 `json:"source_system"`
	Timestamp    time.Time              `json:"timestamp"`
	UserID       *string                `json:"user_id,omitempty"`
	DeviceID     *string                `json:"device_id,omitempty"`
	EventData    map[string]interface{} `json:"event_data,omitempty"`
	Severity     string                 `json:"severity"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Alert represents a correlated investigation unit. RelatedEventIDs are soft
// references: entries may be malformed or point at nothing, and resolution
// must tolerate both.
type Alert struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Status          string    `json:"status"`
	ConfidenceScore *float64  `json:"confidence_score,omitempty"`
	RelatedEventIDs []string  `json:"related_event_ids,omitempty"`
	CreatedAt       time.Time `json:"created_at"`

	// EventCount is derived at read time from RelatedEventIDs: it counts only
	// the entries that currently resolve to a stored event. Never persisted.
	EventCount int `json:"event_count"`
}

// AuditLog is an immutable record of one state-changing action.
type AuditLog struct {
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	UserID        string                 `json:"user_id"`
	ActionType    string                 `json:"action_type"`
	ActionDetails map[string]interface{} `json:"action_details,omitempty"`
	Signature     string                 `json:"signature,omitempty"`
}

// CreateEventRequest is the ingestion payload for a new event.
// Timestamp is optional; when zero the server uses the ingestion time.
type CreateEventRequest struct {
	EventType    string                 `json:"event_type"`
	SourceSystem string                 `json:"source_system"`
	Timestamp    *time.Time             `json:"timestamp,omitempty"`
	UserID       *string                `json:"user_id,omitempty"`
	DeviceID     *string                `json:"device_id,omitempty"`
	EventData    map[string]interface{} `json:"event_data,omitempty"`
	Severity     string                 `json:"severity"`
}

// CreateAlertRequest creates a new investigation unit. Status defaults to open.
type CreateAlertRequest struct {
	Title           string   `json:"title"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
	RelatedEventIDs []string `json:"related_event_ids,omitempty"`
}

// SetStatusRequest changes an alert's status.
type SetStatusRequest struct {
	Status string `json:"status"`
	UserID string `json:"user_id,omitempty"`
}

// SetConfidenceRequest sets an alert's confidence score.
type SetConfidenceRequest struct {
	ConfidenceScore float64 `json:"confidence_score"`
	UserID          string  `json:"user_id,omitempty"`
}

// EventQuery captures the supported event filters. Zero-value fields are
// not applied. DataPath/DataValue express an equality predicate on a dotted
// path inside event_data (e.g. DataPath "geo.country", DataValue "RU").
type EventQuery struct {
	EventType string
	UserID    string
	StartDate *time.Time
	EndDate   *time.Time
	DataPath  string
	DataValue string
	Limit     int
}

// AlertQuery captures the supported alert filters.
type AlertQuery struct {
	Status string
	Limit  int
}

// AuditQuery captures the supported audit trail filters.
type AuditQuery struct {
	UserID     string
	ActionType string
	Limit      int
}

// EventsResponse is a page of events plus the full matching count.
type EventsResponse struct {
	Events []*Event `json:"events"`
	Total  int      `json:"total"`
}

// AlertsResponse is a page of alerts plus the full matching count.
type AlertsResponse struct {
	Alerts []*Alert `json:"alerts"`
	Total  int      `json:"total"`
}

// AlertEventsResponse lists the resolved events for one alert.
type AlertEventsResponse struct {
	AlertID string   `json:"alert_id"`
	Events  []*Event `json:"events"`
	Total   int      `json:"total"`
}

// EventAlertsResponse lists the alerts referencing one event.
type EventAlertsResponse struct {
	EventID string   `json:"event_id"`
	Alerts  []*Alert `json:"alerts"`
	Total   int      `json:"total"`
}

// AuditLogsResponse is a page of audit entries plus the full matching count.
type AuditLogsResponse struct {
	Entries []*AuditLog `json:"entries"`
	Total   int         `json:"total"`
}

// HealthResponse is emitted for liveness probes.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// ValidEventType reports whether t is in the closed event type enumeration.
func ValidEventType(t string) bool {
	switch t {
	case EventTypeSecurity, EventTypeIdentity, EventTypeFinancial, EventTypeEndpoint, EventTypeEmail:
		return true
	}
	return false
}

// ValidSeverity reports whether s is in the closed severity enumeration.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ValidStatus reports whether s is in the closed alert status enumeration.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved:
		return true
	}
	return false
}

// ValidConfidence reports whether score lies in the closed range [0, 100].
// Boundary values are accepted.
func ValidConfidence(score float64) bool {
	return score >= 0 && score <= 100
}

// LookupPath walks a dotted path through a nested JSON object and returns
// the value found there. The second return is false when any segment is
// missing or a non-object is hit before the last segment.
func LookupPath(data map[string]interface{}, path string) (interface{}, bool) {
	if data == nil || path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current interface{} = data
	for _, seg := range segments {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
