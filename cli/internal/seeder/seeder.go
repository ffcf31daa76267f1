// Package seeder generates realistic demo data for trailpoint instances.
package seeder

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/trailpoint-systems/trailpoint/cli/internal/client"
	"github.com/trailpoint-systems/trailpoint/internal/models"
)

// Config controls the shape of the generated dataset.
type Config struct {
	Events    int
	Alerts    int
	Seed      int64
	TimeSpan  time.Duration
	EventsPer int // related events per alert
}

func DefaultConfig() Config {
	return Config{
		Events:    100,
		Alerts:    10,
		TimeSpan:  24 * time.Hour,
		EventsPer: 5,
	}
}

// Seeder posts generated events and alerts through the API so they go
// through the same validation and audit path as real traffic.
type Seeder struct {
	client *client.Client
	faker  *gofakeit.Faker
	rng    *rand.Rand
	cfg    Config
}

func New(c *client.Client, cfg Config) *Seeder {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Seeder{
		client: c,
		faker:  gofakeit.New(seed),
		rng:    rand.New(rand.NewSource(seed)),
		cfg:    cfg,
	}
}

// Run generates and posts the dataset, returning the IDs of created events
// and alerts.
func (s *Seeder) Run() (eventIDs, alertIDs []string, err error) {
	for i := 0; i < s.cfg.Events; i++ {
		event, err := s.client.CreateEvent(s.generateEvent())
		if err != nil {
			return eventIDs, alertIDs, fmt.Errorf("seeding event %d: %w", i+1, err)
		}
		eventIDs = append(eventIDs, event.ID)
	}

	for i := 0; i < s.cfg.Alerts; i++ {
		alert, err := s.client.CreateAlert(s.generateAlert(eventIDs))
		if err != nil {
			return eventIDs, alertIDs, fmt.Errorf("seeding alert %d: %w", i+1, err)
		}
		alertIDs = append(alertIDs, alert.ID)
	}

	return eventIDs, alertIDs, nil
}

var eventTypes = []string{
	models.EventTypeSecurity,
	models.EventTypeIdentity,
	models.EventTypeFinancial,
	models.EventTypeEndpoint,
	models.EventTypeEmail,
}

var severities = []string{
	models.SeverityInfo,
	models.SeverityLow,
	models.SeverityMedium,
	models.SeverityHigh,
	models.SeverityCritical,
}

func (s *Seeder) generateEvent() *models.CreateEventRequest {
	eventType := eventTypes[s.rng.Intn(len(eventTypes))]
	userID := s.faker.Username()
	deviceID := fmt.Sprintf("device-%04d", s.rng.Intn(500))
	ts := time.Now().UTC().Add(-time.Duration(s.rng.Int63n(int64(s.cfg.TimeSpan))))

	return &models.CreateEventRequest{
		EventType:    eventType,
		SourceSystem: s.sourceFor(eventType),
		Timestamp:    &ts,
		UserID:       &userID,
		DeviceID:     &deviceID,
		EventData:    s.dataFor(eventType),
		Severity:     severities[s.rng.Intn(len(severities))],
	}
}

func (s *Seeder) sourceFor(eventType string) string {
	switch eventType {
	case models.EventTypeSecurity:
		return "ids-sensor"
	case models.EventTypeIdentity:
		return "sso-gateway"
	case models.EventTypeFinancial:
		return "payments-core"
	case models.EventTypeEndpoint:
		return "edr-agent"
	default:
		return "mail-filter"
	}
}

func (s *Seeder) dataFor(eventType string) map[string]interface{} {
	switch eventType {
	case models.EventTypeSecurity:
		return map[string]interface{}{
			"src_ip":    s.faker.IPv4Address(),
			"dst_ip":    s.faker.IPv4Address(),
			"dst_port":  s.rng.Intn(65535),
			"signature": fmt.Sprintf("SID-%d", 2000000+s.rng.Intn(100000)),
			"geo": map[string]interface{}{
				"country": s.faker.CountryAbr(),
				"city":    s.faker.City(),
			},
		}
	case models.EventTypeIdentity:
		return map[string]interface{}{
			"src_ip":     s.faker.IPv4Address(),
			"user_agent": s.faker.UserAgent(),
			"mfa_used":   s.rng.Intn(2) == 0,
			"result":     []string{"success", "failure"}[s.rng.Intn(2)],
		}
	case models.EventTypeFinancial:
		return map[string]interface{}{
			"amount":     s.faker.Price(1, 50000),
			"currency":   s.faker.CurrencyShort(),
			"merchant":   s.faker.Company(),
			"card_last4": fmt.Sprintf("%04d", s.rng.Intn(10000)),
			"approved":   s.rng.Intn(10) > 1,
		}
	case models.EventTypeEndpoint:
		return map[string]interface{}{
			"process":  s.faker.AppName(),
			"hash":     s.faker.UUID(),
			"parent":   "explorer.exe",
			"hostname": s.faker.DomainName(),
		}
	default:
		return map[string]interface{}{
			"sender":     s.faker.Email(),
			"recipient":  s.faker.Email(),
			"subject":    s.faker.Sentence(6),
			"attachment": s.rng.Intn(3) == 0,
		}
	}
}

func (s *Seeder) generateAlert(eventIDs []string) *models.CreateAlertRequest {
	confidence := float64(s.rng.Intn(10000)) / 100
	related := s.pickEvents(eventIDs)

	return &models.CreateAlertRequest{
		Title:           fmt.Sprintf("%s activity from %s", s.faker.HackerAdjective(), s.faker.Username()),
		ConfidenceScore: &confidence,
		RelatedEventIDs: related,
	}
}

func (s *Seeder) pickEvents(eventIDs []string) []string {
	if len(eventIDs) == 0 {
		return nil
	}
	n := s.cfg.EventsPer
	if n > len(eventIDs) {
		n = len(eventIDs)
	}
	picked := make([]string, 0, n)
	for _, idx := range s.rng.Perm(len(eventIDs))[:n] {
		picked = append(picked, eventIDs[idx])
	}
	return picked
}
