package api

import (
	"context"

	"github.com/platinummonkey/onramp/pkg/apperr"
	"github.com/platinummonkey/onramp/pkg/billing"
	"github.com/platinummonkey/onramp/pkg/orgs"
	"github.com/platinummonkey/onramp/pkg/tiers"
	"github.com/platinummonkey/onramp/pkg/usage"
)

// mockOrgService is a mock implementation of orgs.Service. Methods the API
// never calls fall through to the embedded nil interface.
type mockOrgService struct {
	orgs.Service

	getSiteFunc              func(ctx context.Context, id int64) (*orgs.Site, error)
	organizationForAgentFunc func(ctx context.Context, agentID int64) (int64, error)
	checkAgentLimitFunc      func(ctx context.Context, orgID int64) (*orgs.LimitCheck, error)
	checkSessionLimitFunc    func(ctx context.Context, orgID int64) (*orgs.LimitCheck, error)
	getUsageLimitsFunc       func(ctx context.Context, orgID int64) (*orgs.UsageLimits, error)

	createAgentFunc         func(ctx context.Context, siteID int64, req *orgs.CreateAgentRequest) (*orgs.Agent, error)
	getAgentFunc            func(ctx context.Context, id int64) (*orgs.Agent, error)
	listAgentsFunc          func(ctx context.Context, siteID int64) ([]*orgs.Agent, error)
	updateAgentSettingsFunc func(ctx context.Context, id int64, settings orgs.AgentSettings) (*orgs.Agent, error)
	setAgentPublishedFunc   func(ctx context.Context, id int64, published bool) (*orgs.Agent, error)
	deleteAgentFunc         func(ctx context.Context, id int64) error

	createSessionFunc       func(ctx context.Context, agentID int64, req *orgs.CreateSessionRequest) (*orgs.OnboardingSession, error)
	getSessionFunc          func(ctx context.Context, id int64) (*orgs.OnboardingSession, error)
	updateSessionStatusFunc func(ctx context.Context, id int64, status orgs.SessionStatus) (*orgs.OnboardingSession, error)
	deleteSessionFunc       func(ctx context.Context, id int64) error
}

func (m *mockOrgService) GetSite(ctx context.Context, id int64) (*orgs.Site, error) {
	if m.getSiteFunc != nil {
		return m.getSiteFunc(ctx, id)
	}
	return &orgs.Site{ID: id, OrganizationID: 1}, nil
}

func (m *mockOrgService) OrganizationForAgent(ctx context.Context, agentID int64) (int64, error) {
	if m.organizationForAgentFunc != nil {
		return m.organizationForAgentFunc(ctx, agentID)
	}
	return 1, nil
}

func (m *mockOrgService) CheckAgentLimit(ctx context.Context, orgID int64) (*orgs.LimitCheck, error) {
	if m.checkAgentLimitFunc != nil {
		return m.checkAgentLimitFunc(ctx, orgID)
	}
	return &orgs.LimitCheck{CurrentCount: 0, MaxAllowed: 3, CanCreate: true, Tier: tiers.TierBasic}, nil
}

func (m *mockOrgService) CheckSessionLimit(ctx context.Context, orgID int64) (*orgs.LimitCheck, error) {
	if m.checkSessionLimitFunc != nil {
		return m.checkSessionLimitFunc(ctx, orgID)
	}
	return &orgs.LimitCheck{CurrentCount: 0, MaxAllowed: 50, CanCreate: true, Tier: tiers.TierBasic}, nil
}

func (m *mockOrgService) GetUsageLimits(ctx context.Context, orgID int64) (*orgs.UsageLimits, error) {
	if m.getUsageLimitsFunc != nil {
		return m.getUsageLimitsFunc(ctx, orgID)
	}
	return nil, apperr.NotFound("organization", orgID)
}

func (m *mockOrgService) CreateAgent(ctx context.Context, siteID int64, req *orgs.CreateAgentRequest) (*orgs.Agent, error) {
	if m.createAgentFunc != nil {
		return m.createAgentFunc(ctx, siteID, req)
	}
	return &orgs.Agent{ID: 100, SiteID: siteID, Name: req.Name, Settings: req.Settings}, nil
}

func (m *mockOrgService) GetAgent(ctx context.Context, id int64) (*orgs.Agent, error) {
	if m.getAgentFunc != nil {
		return m.getAgentFunc(ctx, id)
	}
	return nil, apperr.NotFound("agent", id)
}

func (m *mockOrgService) ListAgents(ctx context.Context, siteID int64) ([]*orgs.Agent, error) {
	if m.listAgentsFunc != nil {
		return m.listAgentsFunc(ctx, siteID)
	}
	return nil, nil
}

func (m *mockOrgService) UpdateAgentSettings(ctx context.Context, id int64, settings orgs.AgentSettings) (*orgs.Agent, error) {
	if m.updateAgentSettingsFunc != nil {
		return m.updateAgentSettingsFunc(ctx, id, settings)
	}
	return &orgs.Agent{ID: id, Settings: settings}, nil
}

func (m *mockOrgService) SetAgentPublished(ctx context.Context, id int64, published bool) (*orgs.Agent, error) {
	if m.setAgentPublishedFunc != nil {
		return m.setAgentPublishedFunc(ctx, id, published)
	}
	return &orgs.Agent{ID: id, Published: published}, nil
}

func (m *mockOrgService) DeleteAgent(ctx context.Context, id int64) error {
	if m.deleteAgentFunc != nil {
		return m.deleteAgentFunc(ctx, id)
	}
	return nil
}

func (m *mockOrgService) CreateSession(ctx context.Context, agentID int64, req *orgs.CreateSessionRequest) (*orgs.OnboardingSession, error) {
	if m.createSessionFunc != nil {
		return m.createSessionFunc(ctx, agentID, req)
	}
	return &orgs.OnboardingSession{ID: 200, AgentID: agentID, Name: req.Name, Status: orgs.SessionStatusPending}, nil
}

func (m *mockOrgService) GetSession(ctx context.Context, id int64) (*orgs.OnboardingSession, error) {
	if m.getSessionFunc != nil {
		return m.getSessionFunc(ctx, id)
	}
	return nil, apperr.NotFound("session", id)
}

func (m *mockOrgService) UpdateSessionStatus(ctx context.Context, id int64, status orgs.SessionStatus) (*orgs.OnboardingSession, error) {
	if m.updateSessionStatusFunc != nil {
		return m.updateSessionStatusFunc(ctx, id, status)
	}
	return &orgs.OnboardingSession{ID: id, Status: status}, nil
}

func (m *mockOrgService) DeleteSession(ctx context.Context, id int64) error {
	if m.deleteSessionFunc != nil {
		return m.deleteSessionFunc(ctx, id)
	}
	return nil
}

// mockUsageService is a mock implementation of usage.Service
type mockUsageService struct {
	usage.Service

	recordUsageFunc     func(ctx context.Context, userID, sessionID, durationSeconds, messageCount int64) (*usage.UsageLog, error)
	getUsageSummaryFunc func(ctx context.Context, userID int64) (*usage.UsageStats, error)
}

func (m *mockUsageService) RecordUsage(ctx context.Context, userID, sessionID, durationSeconds, messageCount int64) (*usage.UsageLog, error) {
	if m.recordUsageFunc != nil {
		return m.recordUsageFunc(ctx, userID, sessionID, durationSeconds, messageCount)
	}
	return &usage.UsageLog{ID: 1, UserID: userID, SessionID: sessionID, DurationSeconds: durationSeconds, MessageCount: messageCount}, nil
}

func (m *mockUsageService) GetUsageSummary(ctx context.Context, userID int64) (*usage.UsageStats, error) {
	if m.getUsageSummaryFunc != nil {
		return m.getUsageSummaryFunc(ctx, userID)
	}
	return &usage.UsageStats{DailyUsage: []usage.DailyUsage{}}, nil
}

// mockBillingService is a mock implementation of billing.Service
type mockBillingService struct {
	getBillingUsageFunc func(ctx context.Context, userID int64) (*billing.BillingUsage, error)
	handleWebhookFunc   func(ctx context.Context, payload []byte, signature string) (string, error)
}

func (m *mockBillingService) GetBillingUsage(ctx context.Context, userID int64) (*billing.BillingUsage, error) {
	if m.getBillingUsageFunc != nil {
		return m.getBillingUsageFunc(ctx, userID)
	}
	return &billing.BillingUsage{Status: billing.StatusNoBillingIdentity}, nil
}

func (m *mockBillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error) {
	if m.handleWebhookFunc != nil {
		return m.handleWebhookFunc(ctx, payload, signature)
	}
	return billing.WebhookIgnored, nil
}
