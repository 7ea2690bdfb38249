package api

import (
	"net/http"
	"time"

	"github.com/dialtel/crm-backend/internal/metrics"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument records per-endpoint request metrics around a handler. The
// endpoint label is the logical route, not the raw URL, so query strings
// do not explode the metric cardinality.
func Instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		metrics.Get().RecordHTTPRequest(endpoint, sw.status, time.Since(start))
	}
}
