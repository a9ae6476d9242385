package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/freightbid-backend/api/responses"
	pkgerrors "github.com/angelmondragon/freightbid-backend/pkg/errors"
	"github.com/angelmondragon/freightbid-backend/pkg/logger"
)

const webhookTokenHeader = "X-Freightbid-Token"

// WebhookToken rejects requests whose shared-secret header does not match.
// An empty token disables the check.
func WebhookToken(token string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(webhookTokenHeader))
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				if logg != nil {
					logg.Warn(logg.WithField(r.Context(), "ip", clientIP(r)), "webhook.token.rejected")
				}
				responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
