package api

import (
	"net/http"

	"github.com/platinummonkey/onramp/pkg/httputil"
	"github.com/platinummonkey/onramp/pkg/observability"
	"github.com/platinummonkey/onramp/pkg/orgs"
)

// createAgent runs behind the agent admission check. The service re-checks
// the limit under the organization lock, so a refusal can still surface here.
func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	siteID, ok := httputil.ParsePathInt64OrError(w, r, "site_id")
	if !ok {
		return
	}

	var req orgs.CreateAgentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	agent, err := s.orgs.CreateAgent(r.Context(), siteID, &req)
	if err != nil {
		if orgs.IsQuotaExceeded(err) {
			s.metrics.ObserveAdmission(orgs.ResourceAgents, observability.OutcomeRefused)
		}
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, agent)
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	siteID, ok := httputil.ParsePathInt64OrError(w, r, "site_id")
	if !ok {
		return
	}

	agents, err := s.orgs.ListAgents(r.Context(), siteID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if agents == nil {
		agents = []*orgs.Agent{}
	}
	httputil.WriteSuccess(w, agents)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	agentID, ok := httputil.ParsePathInt64OrError(w, r, "agent_id")
	if !ok {
		return
	}

	agent, err := s.orgs.GetAgent(r.Context(), agentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, agent)
}

func (s *Server) deleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID, ok := httputil.ParsePathInt64OrError(w, r, "agent_id")
	if !ok {
		return
	}

	if err := s.orgs.DeleteAgent(r.Context(), agentID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) updateAgentSettings(w http.ResponseWriter, r *http.Request) {
	agentID, ok := httputil.ParsePathInt64OrError(w, r, "agent_id")
	if !ok {
		return
	}

	var settings orgs.AgentSettings
	if !httputil.ParseJSONOrError(w, r, &settings) {
		return
	}

	agent, err := s.orgs.UpdateAgentSettings(r.Context(), agentID, settings)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, agent)
}

func (s *Server) setAgentPublished(w http.ResponseWriter, r *http.Request) {
	agentID, ok := httputil.ParsePathInt64OrError(w, r, "agent_id")
	if !ok {
		return
	}

	var req PublishRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	agent, err := s.orgs.SetAgentPublished(r.Context(), agentID, req.Published)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, agent)
}
