package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "esfe/pkg/domain"
	"esfe/pkg/requestcontext"
)

// StaffValidator validates staff bearer tokens.
type StaffValidator interface {
	ValidateStaffToken(tokenString string) (id.StaffID, error)
}

// RequireStaff rejects requests without a valid staff bearer token and puts
// the staff id into the request context.
func RequireStaff(validator StaffValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}
			staffID, err := validator.ValidateStaffToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithStaffID(ctx, staffID)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
