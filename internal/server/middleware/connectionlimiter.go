package middleware

import (
	"log/slog"
	"net/http"

	"github.com/prasadu-1619/synchronos/pkg/config"
)

type UserConnectionCounter func(userID string) int
type UserConnectionCycler func(userID string)

// NewConnectionLimiter caps concurrent websocket connections per user. A
// stable userId legitimately holds several connections (multiple tabs); the
// limiter only guards against runaway reconnect loops.
func NewConnectionLimiter(
	logger *slog.Logger,
	counter UserConnectionCounter,
	cycler UserConnectionCycler,
	cfg config.ConnectionLimitConfig,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.MaxPerUser <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Connection limiter could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if reqMeta.UserID == "" {
				logger.Warn("Connection limiter could not determine userID from metadata; blocking request for safety.")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			if counter(reqMeta.UserID) < cfg.MaxPerUser {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("User connection limit reached", slog.Any("userID", reqMeta.UserID))
			switch cfg.Mode {
			case "reject":
				http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
			case "cycle":
				cycler(reqMeta.UserID)
				next.ServeHTTP(w, r)
			default:
				logger.Error("Invalid connection limit mode configured", slog.Any("mode", cfg.Mode))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		})
	}
}
