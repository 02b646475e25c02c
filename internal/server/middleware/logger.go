package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// NewRequestLogger logs each request once the rest of the chain has run, so
// the entry carries the identity the auth middleware resolved into the
// request's metadata. userID is empty for rejected or unauthenticated requests.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			var ip, userID string
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				ip = reqMeta.IP
				userID = reqMeta.UserID
			}

			logger.Info("HTTP request",
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.String("ip", ip),
				slog.String("userID", userID),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
