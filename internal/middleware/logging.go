package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rpattn/sheetpipe/internal/logger"
)

// responseWriter captures HTTP status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(p)
	rw.bytes += n
	return n, err
}

// LoggingMiddleware logs one line per request once the handler returns.
func LoggingMiddleware(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	log = log.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			fields := []any{
				logger.FieldMethod, r.Method,
				logger.FieldPath, r.URL.Path,
				logger.FieldStatus, rw.statusCode,
				"bytes", rw.bytes,
				logger.FieldDurationMS, time.Since(start).Milliseconds(),
				"remote", r.RemoteAddr,
				"request_id", RequestIDFromContext(r.Context()),
			}
			if rw.statusCode >= http.StatusInternalServerError {
				log.Errorw("HTTP request", fields...)
				return
			}
			log.Infow("HTTP request", fields...)
		})
	}
}
