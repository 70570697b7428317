package approval

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vaultpair/vaultpair/internal/audit"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// instrumentHandler wraps the API with Prometheus metrics and audit access
// records. A per-request id ties audit entries to server logs. When both
// sinks are nil the handler is returned unchanged.
func instrumentHandler(next http.Handler, metrics *Metrics, auditor *audit.Logger) http.Handler {
	if metrics == nil && auditor == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		if metrics != nil {
			status := strconv.Itoa(rec.status)
			metrics.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.RequestDurationSeconds.WithLabelValues(r.Method, r.URL.Path, status).
				Observe(time.Since(start).Seconds())
		}
		auditor.APIAccess(r.Method, r.URL.Path, rec.status, requestID)
	})
}
