package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// normalizePath converts paths with dynamic segments to route patterns to prevent
// cardinality explosion in metrics. This maps paths like /api/profiles/abc123 to
// /api/profiles/{user_id}.
func normalizePath(path string) string {
	// Exact matches for static routes (no normalization needed)
	staticRoutes := map[string]bool{
		"/":                                    true,
		"/api/locations/update":                true,
		"/api/locations/nearby":                true,
		"/api/locations/nearby_by_coordinates": true,
		"/api/profiles/me":                     true,
		"/api/friends":                         true,
		"/api/friends/requests":                true,
		"/api/favorites":                       true,
		"/api/blocks":                          true,
		"/api/interests":                       true,
		"/api/albums":                          true,
		"/ws/notifications":                    true,
		"/health":                              true,
		"/ready":                               true,
		"/metrics":                             true,
	}

	if staticRoutes[path] {
		return path
	}

	// Pattern-based normalization for dynamic routes

	// /api/profiles/{user_id} and /api/profiles/{user_id}/...
	if strings.HasPrefix(path, "/api/profiles/") {
		parts := strings.Split(path, "/")
		if len(parts) == 4 && parts[3] != "" {
			return "/api/profiles/{user_id}"
		}
		if len(parts) == 5 && parts[4] == "interests" {
			return "/api/profiles/{user_id}/interests"
		}
	}

	// /api/friends/requests/{id}/accept|reject
	if strings.HasPrefix(path, "/api/friends/requests/") {
		parts := strings.Split(path, "/")
		if len(parts) == 6 && (parts[5] == "accept" || parts[5] == "reject") {
			return "/api/friends/requests/{id}/" + parts[5]
		}
		if len(parts) == 5 && parts[4] != "" {
			return "/api/friends/requests/{id}"
		}
	}

	// /api/friends/{user_id}
	if strings.HasPrefix(path, "/api/friends/") {
		parts := strings.Split(path, "/")
		if len(parts) == 4 && parts[3] != "" {
			return "/api/friends/{user_id}"
		}
	}

	// /api/favorites/{user_id}, /api/blocks/{user_id}
	for _, prefix := range []string{"/api/favorites/", "/api/blocks/"} {
		if strings.HasPrefix(path, prefix) {
			parts := strings.Split(path, "/")
			if len(parts) == 4 && parts[3] != "" {
				return prefix + "{user_id}"
			}
		}
	}

	// /api/albums/{id} and /api/albums/{id}/...
	if strings.HasPrefix(path, "/api/albums/") {
		parts := strings.Split(path, "/")
		if len(parts) >= 4 && parts[3] != "" {
			switch {
			case len(parts) == 4:
				return "/api/albums/{id}"
			case len(parts) == 5 && (parts[4] == "photos" || parts[4] == "access"):
				return "/api/albums/{id}/" + parts[4]
			case len(parts) == 6 && parts[4] == "access" &&
				(parts[5] == "grant" || parts[5] == "deny"):
				return "/api/albums/{id}/access/" + parts[5]
			case len(parts) == 6 && parts[4] == "photos":
				return "/api/albums/{id}/photos/{photo_id}"
			}
		}
	}

	// Fallback: return as-is for unknown patterns
	// This ensures we don't accidentally break metrics for new routes
	return path
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// newMetricsResponseWriter creates a new metricsResponseWriter with default 200 status.
func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// It captures duration, request/response sizes, and request counts.
// Health check endpoints (/health, /ready) are excluded from metrics to avoid cardinality issues.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Exclude health check endpoints from metrics
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			// Wrap response writer to capture status and size
			mrw := newMetricsResponseWriter(w)

			// Get request size from Content-Length header
			requestSize := int64(0)
			if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
				if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
					requestSize = size
				}
			}

			// Call the next handler
			next.ServeHTTP(mrw, r)

			// Calculate duration in seconds
			duration := time.Since(start).Seconds()

			// Normalize path to prevent cardinality explosion
			normalizedPath := normalizePath(r.URL.Path)

			// Record metrics
			metrics.ObserveHTTPRequest(
				r.Method,
				normalizedPath,
				strconv.Itoa(mrw.statusCode),
				duration,
				requestSize,
				mrw.size,
			)
		})
	}
}
