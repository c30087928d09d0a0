package registry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Sternrassler/registry-cache/pkg/cache"
)

// RequestIDHeader carries the request identifier in both directions.
const RequestIDHeader = "X-Request-ID"

// withRequestContext assigns a request ID, puts a request-scoped logger
// into the context and records request metrics.
func (s *Server) withRequestContext(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		logger := s.logger.With().Str("request_id", id).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		endpoint := endpointOf(r.URL.Path)
		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Str("cache", rec.Header().Get(cache.StatusHeader)).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func endpointOf(path string) string {
	switch path {
	case "/v2", "/v2/":
		return "base"
	case cache.IndexBaseKey:
		return "index"
	}
	if rt, ok := parseRoute(path); ok {
		return string(rt.kind)
	}
	return "other"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
