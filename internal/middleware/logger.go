package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/tarifly/backend/internal/handler"
	"github.com/tarifly/backend/internal/logger"
)

// Logger logs each HTTP request with method, path, status, and duration.
// Place it after chi's RequestID so entries carry the request id.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		fields := logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.status,
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          handler.ClientIP(r),
		}
		if id := chimw.GetReqID(r.Context()); id != "" {
			fields["request_id"] = id
		}

		entry := logger.Log.WithFields(fields)
		switch {
		case ww.status >= 500:
			entry.Error("request")
		case ww.status >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
