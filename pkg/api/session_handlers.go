package api

import (
	"net/http"

	"github.com/platinummonkey/onramp/pkg/httputil"
	"github.com/platinummonkey/onramp/pkg/observability"
	"github.com/platinummonkey/onramp/pkg/orgs"
)

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	agentID, ok := httputil.ParsePathInt64OrError(w, r, "agent_id")
	if !ok {
		return
	}

	var req orgs.CreateSessionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	session, err := s.orgs.CreateSession(r.Context(), agentID, &req)
	if err != nil {
		if orgs.IsQuotaExceeded(err) {
			s.metrics.ObserveAdmission(orgs.ResourceSessions, observability.OutcomeRefused)
		}
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, session)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := httputil.ParsePathInt64OrError(w, r, "session_id")
	if !ok {
		return
	}

	session, err := s.orgs.GetSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, session)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := httputil.ParsePathInt64OrError(w, r, "session_id")
	if !ok {
		return
	}

	if err := s.orgs.DeleteSession(r.Context(), sessionID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) updateSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := httputil.ParsePathInt64OrError(w, r, "session_id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Status == "" {
		httputil.WriteBadRequest(w, "status is required")
		return
	}

	session, err := s.orgs.UpdateSessionStatus(r.Context(), sessionID, req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, session)
}
