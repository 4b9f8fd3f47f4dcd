package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/joboost/pkg/applications"
	"github.com/platinummonkey/joboost/pkg/httputil"
	"github.com/platinummonkey/joboost/pkg/middleware"
)

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.applications.GetProfile(r.Context(), middleware.UserID(r))
	if errors.Is(err, applications.ErrProfileNotFound) {
		httputil.WriteSuccess(w, ProfileResponse{})
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ProfileResponse{Profile: profile})
}

func (s *Server) saveProfile(w http.ResponseWriter, r *http.Request) {
	var req applications.Profile
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	profile, err := s.applications.SaveProfile(r.Context(), middleware.UserID(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ProfileResponse{Profile: profile, Message: "Profil enregistré avec succès"})
}

func (s *Server) listApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.applications.List(r.Context(), middleware.UserID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if apps == nil {
		apps = []*applications.Application{}
	}
	httputil.WriteSuccess(w, ApplicationsResponse{Applications: apps})
}

func (s *Server) createApplication(w http.ResponseWriter, r *http.Request) {
	var req applications.Input
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	app, err := s.applications.Create(r.Context(), middleware.UserID(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ApplicationResponse{Application: app, Message: "Candidature créée avec succès"})
}

func (s *Server) getApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "application_id")
	if !ok {
		return
	}
	app, err := s.applications.Get(r.Context(), middleware.UserID(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ApplicationResponse{Application: app})
}

func (s *Server) updateApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "application_id")
	if !ok {
		return
	}
	var req applications.Patch
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	app, err := s.applications.Update(r.Context(), middleware.UserID(r), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ApplicationResponse{Application: app, Message: "Candidature mise à jour"})
}

func (s *Server) deleteApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "application_id")
	if !ok {
		return
	}
	if err := s.applications.Delete(r.Context(), middleware.UserID(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, MessageResponse{Message: "Candidature supprimée"})
}

// setApplicationStatus moves an application on the board. The status comes
// from the query string.
func (s *Server) setApplicationStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "application_id")
	if !ok {
		return
	}
	app, err := s.applications.SetStatus(r.Context(), middleware.UserID(r), id, r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ApplicationResponse{Application: app})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.applications.Stats(r.Context(), middleware.UserID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, StatsResponse{Stats: stats})
}

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := s.applications.Timeline(r.Context(), middleware.UserID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, TimelineResponse{Timeline: timeline})
}

func (s *Server) getRecommendations(w http.ResponseWriter, r *http.Request) {
	res, err := s.recommendations.Recommend(r.Context(), middleware.UserID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}
