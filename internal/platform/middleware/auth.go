package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"casework/pkg/requestcontext"
)

// TokenValidator validates a bearer token and returns the actor it identifies.
// Authentication protocol details live outside this service; handlers only
// need a verified identity for audit trails and the four-eyes rule.
type TokenValidator interface {
	ValidateToken(tokenString string) (*ActorClaims, error)
}

// ActorClaims is the identity extracted from a validated token.
type ActorClaims struct {
	ActorID   string
	ActorName string
}

// RequireAuth rejects requests without a valid bearer token and injects the
// actor identity into the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				unauthorized(w)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				unauthorized(w)
				return
			}
			ctx = requestcontext.WithActor(ctx, claims.ActorID, claims.ActorName)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Invalid or expired token"}`))
}
