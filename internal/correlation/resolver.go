// Package correlation resolves the soft references between alerts and events.
//
// An alert's related_event_ids is an ordered list of identifiers stored as
// data, not as foreign keys. Entries may be malformed or point at events that
// no longer resolve; both are data-quality conditions, never request errors.
package correlation

import (
	"context"

	"github.com/google/uuid"

	"github.com/trailpoint-systems/trailpoint/common/logging"
	"github.com/trailpoint-systems/trailpoint/internal/metrics"
	"github.com/trailpoint-systems/trailpoint/internal/models"
)

// EventSource is the slice of the repository the resolver needs.
type EventSource interface {
	EventsByIDs(ctx context.Context, ids []string) ([]*models.Event, error)
	CountEventsByIDs(ctx context.Context, ids []string) (int, error)
	AlertsReferencing(ctx context.Context, eventID string) ([]*models.Alert, error)
}

// Resolver turns an alert's related_event_ids into live events and answers
// the reverse question of which alerts reference a given event.
type Resolver struct {
	store  EventSource
	logger *logging.Logger
}

func NewResolver(store EventSource, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve bulk-looks-up the given identifiers and returns the events that
// exist, ordered by timestamp ascending, plus the resolved count. Malformed
// identifiers are logged and skipped; dangling identifiers are silently
// dropped. Resolution is total: it never fails because of bad references.
func (r *Resolver) Resolve(ctx context.Context, ids []string) ([]*models.Event, int, error) {
	valid := r.wellFormed(ctx, ids)
	if len(valid) == 0 {
		return []*models.Event{}, 0, nil
	}

	events, err := r.store.EventsByIDs(ctx, valid)
	if err != nil {
		return nil, 0, err
	}
	return events, len(events), nil
}

// CountResolved returns how many of the given identifiers resolve to a
// stored event. This backs the derived event_count attribute, which is
// recomputed on every read and never cached.
func (r *Resolver) CountResolved(ctx context.Context, ids []string) (int, error) {
	valid := r.wellFormed(ctx, ids)
	if len(valid) == 0 {
		return 0, nil
	}
	return r.store.CountEventsByIDs(ctx, valid)
}

// FindAlertsReferencing returns the alerts whose related_event_ids contains
// eventID, newest first.
func (r *Resolver) FindAlertsReferencing(ctx context.Context, eventID string) ([]*models.Alert, error) {
	return r.store.AlertsReferencing(ctx, eventID)
}

// wellFormed filters ids down to parseable UUIDs. Malformed entries are a
// data-quality warning, not an error.
func (r *Resolver) wellFormed(ctx context.Context, ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			metrics.MalformedReferencesTotal.Inc()
			r.logger.WarnContext(ctx, "malformed event reference excluded from resolution",
				"event_id", id, "error", err.Error())
			continue
		}
		valid = append(valid, id)
	}
	return valid
}
