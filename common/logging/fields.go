package logging

import "log/slog"

// Common field names for consistent logging across components.
const (
	FieldService  = "service"
	FieldUserID   = "user_id"
	FieldIP       = "ip"
	FieldMethod   = "method"
	FieldPath     = "path"
	FieldStatus   = "status"
	FieldDuration = "duration_ms"
	FieldError    = "error"
	FieldEventID  = "event_id"
	FieldAlertID  = "alert_id"
	FieldAction   = "action"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// UserID returns a slog attribute for the acting user.
func UserID(id string) slog.Attr {
	return slog.String(FieldUserID, id)
}

// IP returns a slog attribute for the client IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// EventID returns a slog attribute for an event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// AlertID returns a slog attribute for an alert ID.
func AlertID(id string) slog.Attr {
	return slog.String(FieldAlertID, id)
}

// Action returns a slog attribute for an audit action type.
func Action(action string) slog.Attr {
	return slog.String(FieldAction, action)
}
