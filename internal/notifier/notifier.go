// Package notifier publishes state-change notifications over NATS so that
// downstream consumers (dashboards, responders) can react without polling.
// Publishing is best-effort: a failed publish is logged and never fails the
// operation that triggered it.
package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/trailpoint-systems/trailpoint/common/logging"
	"github.com/trailpoint-systems/trailpoint/internal/models"
)

// Subjects published by the notifier.
const (
	SubjectEventCreated = "trailpoint.events.created"
	SubjectAlertStatus  = "trailpoint.alerts.status"
)

// AlertStatusMessage is the payload published on SubjectAlertStatus.
type AlertStatusMessage struct {
	Alert    *models.Alert `json:"alert"`
	Previous string        `json:"previous_status"`
}

// NATSNotifier implements service.Notifier over a NATS connection.
type NATSNotifier struct {
	conn   *nats.Conn
	logger *logging.Logger
}

func New(url string, logger *logging.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = logging.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("trailpoint"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}

	return &NATSNotifier{conn: conn, logger: logger}, nil
}

// PublishEventCreated announces a freshly ingested event.
func (n *NATSNotifier) PublishEventCreated(ctx context.Context, event *models.Event) {
	n.publish(ctx, SubjectEventCreated, event)
}

// PublishAlertStatus announces an alert status transition.
func (n *NATSNotifier) PublishAlertStatus(ctx context.Context, alert *models.Alert, previous string) {
	n.publish(ctx, SubjectAlertStatus, &AlertStatusMessage{Alert: alert, Previous: previous})
}

func (n *NATSNotifier) publish(ctx context.Context, subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to marshal notification", "subject", subject, logging.Error(err))
		return
	}
	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.WarnContext(ctx, "failed to publish notification", "subject", subject, logging.Error(err))
	}
}

// Close drains the connection, flushing pending publishes.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Drain()
	}
}
