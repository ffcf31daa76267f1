// Package client is a thin HTTP client for the trailpoint API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/trailpoint-systems/trailpoint/internal/models"
)

type Client struct {
	baseURL string
	actor   string
	client  *http.Client
}

func New(baseURL, actor string) *Client {
	return &Client{
		baseURL: baseURL,
		actor:   actor,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) doRequest(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(bodyBytes)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.actor != "" {
		req.Header.Set("X-Actor-ID", c.actor)
	}

	return c.client.Do(req)
}

// decode reads the response, treating any status other than want as an error
// carrying the server's error message.
func decode(resp *http.Response, want int, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var apiErr struct {
			Error string `json:"error"`
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(bodyBytes, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Health() (*models.HealthResponse, error) {
	resp, err := c.doRequest("GET", "/api/health", nil)
	if err != nil {
		return nil, err
	}

	var health models.HealthResponse
	if err := decode(resp, http.StatusOK, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// ListEventsOptions mirrors the supported event query parameters.
type ListEventsOptions struct {
	EventType string
	UserID    string
	StartDate string
	EndDate   string
	DataPath  string
	DataValue string
	Limit     int
}

func (c *Client) ListEvents(opts ListEventsOptions) (*models.EventsResponse, error) {
	params := url.Values{}
	if opts.EventType != "" {
		params.Set("event_type", opts.EventType)
	}
	if opts.UserID != "" {
		params.Set("user_id", opts.UserID)
	}
	if opts.StartDate != "" {
		params.Set("start_date", opts.StartDate)
	}
	if opts.EndDate != "" {
		params.Set("end_date", opts.EndDate)
	}
	if opts.DataPath != "" {
		params.Set("data_path", opts.DataPath)
		params.Set("data_value", opts.DataValue)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	path := "/api/events"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	resp, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var eventsResp models.EventsResponse
	if err := decode(resp, http.StatusOK, &eventsResp); err != nil {
		return nil, err
	}
	return &eventsResp, nil
}

func (c *Client) CreateEvent(req *models.CreateEventRequest) (*models.Event, error) {
	resp, err := c.doRequest("POST", "/api/events", req)
	if err != nil {
		return nil, err
	}

	var event models.Event
	if err := decode(resp, http.StatusCreated, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Client) GetEventAlerts(eventID string) (*models.EventAlertsResponse, error) {
	resp, err := c.doRequest("GET", fmt.Sprintf("/api/events/%s/alerts", eventID), nil)
	if err != nil {
		return nil, err
	}

	var alertsResp models.EventAlertsResponse
	if err := decode(resp, http.StatusOK, &alertsResp); err != nil {
		return nil, err
	}
	return &alertsResp, nil
}

func (c *Client) ListAlerts(status string, limit int) (*models.AlertsResponse, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	path := "/api/alerts"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	resp, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var alertsResp models.AlertsResponse
	if err := decode(resp, http.StatusOK, &alertsResp); err != nil {
		return nil, err
	}
	return &alertsResp, nil
}

func (c *Client) CreateAlert(req *models.CreateAlertRequest) (*models.Alert, error) {
	resp, err := c.doRequest("POST", "/api/alerts", req)
	if err != nil {
		return nil, err
	}

	var alert models.Alert
	if err := decode(resp, http.StatusCreated, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (c *Client) GetAlertEvents(alertID string) (*models.AlertEventsResponse, error) {
	resp, err := c.doRequest("GET", fmt.Sprintf("/api/alerts/%s/events", alertID), nil)
	if err != nil {
		return nil, err
	}

	var eventsResp models.AlertEventsResponse
	if err := decode(resp, http.StatusOK, &eventsResp); err != nil {
		return nil, err
	}
	return &eventsResp, nil
}

func (c *Client) SetAlertStatus(alertID, status string) (*models.Alert, error) {
	resp, err := c.doRequest("PUT", fmt.Sprintf("/api/alerts/%s/status", alertID), &models.SetStatusRequest{Status: status})
	if err != nil {
		return nil, err
	}

	var alert models.Alert
	if err := decode(resp, http.StatusOK, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (c *Client) SetAlertConfidence(alertID string, score float64) (*models.Alert, error) {
	resp, err := c.doRequest("PUT", fmt.Sprintf("/api/alerts/%s/confidence", alertID), &models.SetConfidenceRequest{ConfidenceScore: score})
	if err != nil {
		return nil, err
	}

	var alert models.Alert
	if err := decode(resp, http.StatusOK, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (c *Client) ListAuditLogs(userID, actionType string, limit int) (*models.AuditLogsResponse, error) {
	params := url.Values{}
	if userID != "" {
		params.Set("user_id", userID)
	}
	if actionType != "" {
		params.Set("action_type", actionType)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	path := "/api/audit"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	resp, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var auditResp models.AuditLogsResponse
	if err := decode(resp, http.StatusOK, &auditResp); err != nil {
		return nil, err
	}
	return &auditResp, nil
}
