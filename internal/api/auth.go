package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireDashboardToken guards write routes with "Authorization: Bearer <token>".
// Without a configured token the routes answer 403.
func (s *Server) requireDashboardToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.DashboardToken == "" {
			respondError(w, http.StatusForbidden, "dashboard writes are disabled")
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.DashboardToken)) != 1 {
			respondError(w, http.StatusUnauthorized, "missing or invalid dashboard token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
