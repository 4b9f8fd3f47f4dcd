package api

import (
	"net/http"

	"github.com/platinummonkey/joboost/pkg/generation"
	"github.com/platinummonkey/joboost/pkg/httputil"
	"github.com/platinummonkey/joboost/pkg/middleware"
)

// listPlans returns the catalog. Anonymous callers see purchasable plans
// only; signed-in callers also see the free plan they start on.
func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	list := s.catalog.Purchasable()
	if middleware.UserID(r) != "" {
		list = s.catalog.List()
	}
	httputil.WriteSuccess(w, PlansResponse{Version: s.catalog.Version(), Plans: list})
}

// getCredits returns the caller's balance.
func (s *Server) getCredits(w http.ResponseWriter, r *http.Request) {
	balance, err := s.accounts.GetBalance(r.Context(), middleware.UserID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, creditsResponse(balance))
}

// generate charges one credit from the pool matching the document type and
// returns the generated document. The caller's name and email from the token
// go into the CV header.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ApplicationID, "application_id") {
		return
	}
	kind, err := generation.ParseKind(req.GenerationType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	claims := middleware.GetClaims(r)
	result, err := s.documents.Generate(r.Context(), generation.Request{
		UserID:        claims.UserID,
		ApplicationID: req.ApplicationID,
		Kind:          kind,
		Name:          claims.Name,
		Email:         claims.Email,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, result)
}
