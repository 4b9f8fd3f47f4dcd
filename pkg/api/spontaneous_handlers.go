package api

import (
	"fmt"
	"net/http"

	"github.com/platinummonkey/joboost/pkg/httputil"
	"github.com/platinummonkey/joboost/pkg/middleware"
	"github.com/platinummonkey/joboost/pkg/spontaneous"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

func (s *Server) searchCompanies(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := s.spontaneous.Search(r.Context(), req.query())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// sendApplications charges one spontaneous credit per company.
func (s *Server) sendApplications(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	receipt, err := s.spontaneous.Send(r.Context(), middleware.UserID(r), req.CompanyIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, SendResponse{
		Message:          fmt.Sprintf("%d candidature(s) spontanée(s) envoyée(s) avec succès", receipt.Sent),
		Sent:             receipt.Sent,
		CreditsRemaining: receipt.CreditsRemaining,
		Sends:            receipt.Sends,
	})
}

func (s *Server) listSends(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", defaultHistoryLimit)
	if err != nil || limit <= 0 {
		httputil.WriteBadRequest(w, "limit must be a positive integer")
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	sends, err := s.spontaneous.History(r.Context(), middleware.UserID(r), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if sends == nil {
		sends = []*spontaneous.Send{}
	}
	httputil.WriteSuccess(w, HistoryResponse{Sends: sends})
}
