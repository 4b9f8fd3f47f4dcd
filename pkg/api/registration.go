package api

import (
	"net/http"

	"github.com/platinummonkey/joboost/pkg/httputil"
	"github.com/platinummonkey/joboost/pkg/middleware"
	"github.com/platinummonkey/joboost/pkg/observability"
)

// ensureRegistered creates the free balance of a user the first time they are
// seen. Account creation lives in another service; the token is the only proof
// the user exists. Register is idempotent, so the cache only saves round trips.
func (s *Server) ensureRegistered(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r)
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := s.registered.Get(userID); !ok {
			if _, err := s.accounts.Register(r.Context(), userID); err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("Failed to register balance")
				httputil.WriteInternalError(w)
				return
			}
			s.registered.Add(userID, struct{}{})
		}
		next.ServeHTTP(w, r)
	})
}
