package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mediflow/booking-service/internal/booking"
)

const actorKey contextKey = "actor"

// actorClaims is the token shape the identity collaborator issues. The
// service trusts sub and role after HMAC verification; it never re-verifies
// identity beyond the signature.
type actorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware extracts the acting user from the Authorization header and
// stores an explicit booking.Actor in the request context. Handlers pass the
// actor into every service call; nothing downstream reads ambient state.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing_token", "Authorization: Bearer <token> is required")
				return
			}

			raw := strings.TrimPrefix(header, "Bearer ")

			var claims actorClaims
			token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
				return
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", "sub must be a valid UUID")
				return
			}

			role := booking.Role(claims.Role)
			if role != booking.RolePatient && role != booking.RoleDoctor {
				writeError(w, http.StatusUnauthorized, "invalid_token", "role must be patient or doctor")
				return
			}

			actor := booking.Actor{UserID: userID, Role: role}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
		})
	}
}

// ActorFromContext retrieves the authenticated actor set by AuthMiddleware.
func ActorFromContext(ctx context.Context) (booking.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(booking.Actor)
	return actor, ok
}
