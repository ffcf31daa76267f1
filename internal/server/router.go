package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trailpoint-systems/trailpoint/common/httputil"
	"github.com/trailpoint-systems/trailpoint/common/logging"
	"github.com/trailpoint-systems/trailpoint/common/middleware"
	"github.com/trailpoint-systems/trailpoint/internal/handlers"
)

// NewRouter constructs the ServeMux with all API routes registered and wraps
// it in request-id, CORS and access-log middleware.
func NewRouter(h *handlers.Handler, corsOrigins []string, logger *logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", h.HealthCheck)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListEvents(w, r)
		case http.MethodPost:
			h.CreateEvent(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/events/", func(w http.ResponseWriter, r *http.Request) {
		// GET /api/events/:id/alerts
		if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/alerts") {
			h.GetEventAlerts(w, r)
			return
		}
		http.Error(w, "Not found", http.StatusNotFound)
	})

	mux.HandleFunc("/api/alerts", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListAlerts(w, r)
		case http.MethodPost:
			h.CreateAlert(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/alerts/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// GET /api/alerts/:id/events
		if r.Method == http.MethodGet && strings.HasSuffix(path, "/events") {
			h.GetAlertEvents(w, r)
			// PUT /api/alerts/:id/status
		} else if r.Method == http.MethodPut && strings.HasSuffix(path, "/status") {
			h.SetAlertStatus(w, r)
			// PUT /api/alerts/:id/confidence
		} else if r.Method == http.MethodPut && strings.HasSuffix(path, "/confidence") {
			h.SetAlertConfidence(w, r)
		} else {
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	mux.HandleFunc("/api/audit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.ListAuditLogs(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	var handler http.Handler = mux
	handler = accessLog(logger)(handler)
	handler = middleware.CORS(middleware.CORSConfig{AllowedOrigins: corsOrigins})(handler)
	handler = middleware.RequestID(handler)
	return handler
}

// statusWriter captures the response code for access logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func accessLog(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.InfoContext(r.Context(), "request",
				logging.Method(r.Method),
				logging.Path(r.URL.Path),
				logging.Status(sw.status),
				logging.Duration(time.Since(start).Milliseconds()),
				logging.IP(httputil.GetClientIP(r)),
			)
		})
	}
}
