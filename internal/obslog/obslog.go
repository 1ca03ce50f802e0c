// Package obslog builds the process-wide structured logger and the chi
// middleware that logs every HTTP request against it.
package obslog

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger for environment: JSON output in production
// (machine-parseable for log aggregation), human-readable text elsewhere.
func New(environment string) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	if environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// statusWriter captures the status code a handler wrote, defaulting to
// 200 since http.ResponseWriter never reports one if WriteHeader is
// never called explicitly.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware logs method, path, status, and duration for every request
// at Info level, with the error fields filled in only on a non-2xx
// response.
func Middleware(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			entry := log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      sw.status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			if sw.status >= 500 {
				entry.Error("request handled")
			} else {
				entry.Info("request handled")
			}
		})
	}
}
