package testutil

import (
	"net/http"
	"time"

	id "esfe/pkg/domain"
	"esfe/pkg/requestcontext"
)

// WithStaff puts a staff id into the request context the way RequireStaff
// does for authenticated staff requests.
func WithStaff(req *http.Request, staffID id.StaffID) *http.Request {
	return req.WithContext(requestcontext.WithStaffID(req.Context(), staffID))
}

// StaffAuth is a stand-in for the staff auth middleware that authenticates
// every request as staffID.
func StaffAuth(staffID id.StaffID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, WithStaff(r, staffID))
		})
	}
}

// WithTime pins the request clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
