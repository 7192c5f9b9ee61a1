// Package middleware holds the HTTP middleware that isn't provided by chi.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/dishub/internal/auth"
)

// responseWriter records the status code and body size, which
// http.ResponseWriter doesn't expose after the fact.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

type sinkKey struct{}

// The user ID is resolved by auth middleware further down the chain, after
// Logger has already passed the request on. Logger leaves a pointer in the
// context and RecordUser fills it in.
func withUserSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, sinkKey{}, sink)
}

func userSinkFrom(ctx context.Context) *string {
	sink, _ := ctx.Value(sinkKey{}).(*string)
	return sink
}

// Logger logs one line per request after it completes.
//
// Fields: method, path, status, duration, bytes, request_id (from chi's
// RequestID middleware, which must run first) and userID when the request
// carried a valid session.
//
// Server errors log at ERROR, client errors at WARN, the rest at INFO, so a
// LOG_LEVEL=warn deployment still sees every failure.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			var userID string
			r = r.WithContext(withUserSink(r.Context(), &userID))

			next.ServeHTTP(wrapped, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
			}
			if id := chimiddleware.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if userID != "" {
				attrs = append(attrs, slog.String("userID", userID))
			}

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request completed", attrs...)
		})
	}
}

// RecordUser copies the authenticated user ID (if any) into the slot the
// Logger left in the context. Mount it after auth.RequireAuth or
// auth.OptionalAuth.
func RecordUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sink := userSinkFrom(r.Context()); sink != nil {
			if id, ok := auth.UserIDFromContext(r.Context()); ok {
				*sink = id
			}
		}
		next.ServeHTTP(w, r)
	})
}
