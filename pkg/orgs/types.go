package orgs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/onramp/pkg/tiers"
)

// OrgStatus represents organization status
type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
)

// Organization is the tenant root
type Organization struct {
	ID                   int64      `json:"id"`
	Name                 string     `json:"name"`
	Slug                 string     `json:"slug"`
	DisplayName          string     `json:"display_name"`
	Tier                 tiers.Tier `json:"tier"`
	StripeCustomerID     string     `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string     `json:"stripe_subscription_id,omitempty"`
	Status               OrgStatus  `json:"status"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// User is a member of exactly one organization
type User struct {
	ID               int64     `json:"id"`
	OrganizationID   int64     `json:"organization_id"`
	Email            string    `json:"email"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Site is a custom-domain microsite owned by an organization
type Site struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Domain         string    `json:"domain"`
	CreatedAt      time.Time `json:"created_at"`
}

// Agent is an onboarding flow configuration owned by a site
type Agent struct {
	ID        int64         `json:"id"`
	SiteID    int64         `json:"site_id"`
	Name      string        `json:"name"`
	Published bool          `json:"published"`
	Settings  AgentSettings `json:"settings"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SessionStatus represents the lifecycle state of an onboarding session
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusExpired    SessionStatus = "expired"
)

// activeStatuses count against the session limit
var activeStatuses = []string{string(SessionStatusPending), string(SessionStatusInProgress)}

// allowedFrom lists the statuses a session may move out of to reach the key status
var allowedFrom = map[SessionStatus][]string{
	SessionStatusInProgress: {string(SessionStatusPending)},
	SessionStatusCompleted:  {string(SessionStatusPending), string(SessionStatusInProgress)},
	SessionStatusExpired:    {string(SessionStatusPending), string(SessionStatusInProgress)},
}

// OnboardingSession is a single run of an agent's flow by an end user
type OnboardingSession struct {
	ID          int64         `json:"id"`
	AgentID     int64         `json:"agent_id"`
	Name        string        `json:"name"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// LimitCheck is the result of an admission check for one resource
type LimitCheck struct {
	CurrentCount int        `json:"currentCount"`
	MaxAllowed   int        `json:"maxAllowed"`
	CanCreate    bool       `json:"canCreate"`
	Tier         tiers.Tier `json:"tier"`
}

// NearLimit reports the display hint, not an enforcement boundary
func (c *LimitCheck) NearLimit() bool {
	return tiers.NearLimit(c.CurrentCount, c.MaxAllowed)
}

// UsageLimits combines both admission checks for one organization
type UsageLimits struct {
	AgentCount       int        `json:"agentCount"`
	MaxAgents        int        `json:"maxAgents"`
	CanCreateAgent   bool       `json:"canCreateAgent"`
	AgentTier        tiers.Tier `json:"agentTier"`
	SessionCount     int        `json:"sessionCount"`
	MaxSessions      int        `json:"maxSessions"`
	CanCreateSession bool       `json:"canCreateSession"`
	SessionTier      tiers.Tier `json:"sessionTier"`
	IsAtLimit        bool       `json:"isAtLimit"`
	IsNearLimit      bool       `json:"isNearLimit"`
}

// CreateAgentRequest represents request to create an agent
type CreateAgentRequest struct {
	Name     string        `json:"name"`
	Settings AgentSettings `json:"settings"`
}

// CreateSessionRequest represents request to start an onboarding session
type CreateSessionRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Resource names used in QuotaExceededError
const (
	ResourceAgents   = "agents"
	ResourceSessions = "sessions"
)

// QuotaExceededError represents a quota exceeded error
type QuotaExceededError struct {
	Resource string
	Current  int64
	Limit    int64
	Tier     tiers.Tier
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d of %d allowed on tier %s", e.Resource, e.Current, e.Limit, e.Tier)
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var target *QuotaExceededError
	return errors.As(err, &target)
}

var (
	// ErrInvalidStatusTransition is returned when a session cannot move to the requested status
	ErrInvalidStatusTransition = errors.New("invalid session status transition")
	// ErrInvalidRequest is returned for malformed create requests
	ErrInvalidRequest = errors.New("invalid request")
)

// QuotaChecker defines the interface for advisory admission checks
type QuotaChecker interface {
	CheckAgentLimit(ctx context.Context, orgID int64) (*LimitCheck, error)
	CheckSessionLimit(ctx context.Context, orgID int64) (*LimitCheck, error)
	GetUsageLimits(ctx context.Context, orgID int64) (*UsageLimits, error)
}

// Service defines the interface for organization management
type Service interface {
	// Organizations and users
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	GetOrganizationByCustomer(ctx context.Context, customerID string) (*Organization, error)
	ListBillableOrganizations(ctx context.Context) ([]*Organization, error)
	SetOrganizationTier(ctx context.Context, id int64, tier tiers.Tier, subscriptionID string) error
	GetUser(ctx context.Context, id int64) (*User, error)
	ListBillableUsers(ctx context.Context) ([]*User, error)
	GetSite(ctx context.Context, id int64) (*Site, error)

	// Agents
	CreateAgent(ctx context.Context, siteID int64, req *CreateAgentRequest) (*Agent, error)
	GetAgent(ctx context.Context, id int64) (*Agent, error)
	ListAgents(ctx context.Context, siteID int64) ([]*Agent, error)
	UpdateAgentSettings(ctx context.Context, id int64, settings AgentSettings) (*Agent, error)
	SetAgentPublished(ctx context.Context, id int64, published bool) (*Agent, error)
	DeleteAgent(ctx context.Context, id int64) error
	OrganizationForAgent(ctx context.Context, agentID int64) (int64, error)

	// Onboarding sessions
	CreateSession(ctx context.Context, agentID int64, req *CreateSessionRequest) (*OnboardingSession, error)
	GetSession(ctx context.Context, id int64) (*OnboardingSession, error)
	UpdateSessionStatus(ctx context.Context, id int64, status SessionStatus) (*OnboardingSession, error)
	DeleteSession(ctx context.Context, id int64) error

	QuotaChecker
}
