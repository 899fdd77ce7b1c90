// Package logging configures logrus and carries a request-scoped entry in
// the request context.
package logging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Field names shared across the codebase.
const (
	FieldRequestID = "request_id"
	FieldOperation = "operation"
	FieldExpenseID = "expense_id"
	FieldUserID    = "user_id"
	FieldComponent = "component"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

type contextKey string

const entryKey contextKey = "log_entry"

// New builds a logger writing to out at the given level and format ("text" or "json").
func New(out io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	switch format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// FromContext returns the request entry, or the standard logger outside a request.
func FromContext(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(entryKey).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// WithEntry stores entry in ctx.
func WithEntry(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, entryKey, entry)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestIDFrom keeps an incoming X-Request-ID only when it is a UUID, in
// canonical form; anything else is replaced with a fresh one.
func requestIDFrom(r *http.Request) string {
	if incoming := r.Header.Get(RequestIDHeader); len(incoming) == 36 {
		if id, err := uuid.Parse(incoming); err == nil {
			return id.String()
		}
	}
	return uuid.NewString()
}

// Middleware tags each request with an id and logs its completion.
func Middleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := requestIDFrom(r)
			w.Header().Set(RequestIDHeader, requestID)

			entry := logger.WithField(FieldRequestID, requestID)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(WithEntry(r.Context(), entry)))

			fields := logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"client_ip":   r.RemoteAddr,
			}
			switch {
			case rec.status >= 500:
				entry.WithFields(fields).Error("HTTP request completed")
			case rec.status >= 400:
				entry.WithFields(fields).Warn("HTTP request completed")
			default:
				entry.WithFields(fields).Info("HTTP request completed")
			}
		})
	}
}
