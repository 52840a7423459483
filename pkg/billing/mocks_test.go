package billing

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/onramp/pkg/apperr"
	"github.com/platinummonkey/onramp/pkg/orgs"
	"github.com/platinummonkey/onramp/pkg/tiers"
	"github.com/platinummonkey/onramp/pkg/usage"
)

// mockOrgService is a mock implementation of orgs.Service. Only the methods
// the reconciler uses can be overridden.
type mockOrgService struct {
	orgs.Service

	getUserFunc                   func(ctx context.Context, id int64) (*orgs.User, error)
	listBillableUsersFunc         func(ctx context.Context) ([]*orgs.User, error)
	getOrganizationByCustomerFunc func(ctx context.Context, customerID string) (*orgs.Organization, error)
	listBillableOrgsFunc          func(ctx context.Context) ([]*orgs.Organization, error)
	setOrganizationTierFunc       func(ctx context.Context, id int64, tier tiers.Tier, subscriptionID string) error
}

func (m *mockOrgService) GetUser(ctx context.Context, id int64) (*orgs.User, error) {
	if m.getUserFunc != nil {
		return m.getUserFunc(ctx, id)
	}
	return &orgs.User{ID: id, OrganizationID: 1, StripeCustomerID: "cus_1"}, nil
}

func (m *mockOrgService) ListBillableUsers(ctx context.Context) ([]*orgs.User, error) {
	if m.listBillableUsersFunc != nil {
		return m.listBillableUsersFunc(ctx)
	}
	return nil, nil
}

func (m *mockOrgService) GetOrganizationByCustomer(ctx context.Context, customerID string) (*orgs.Organization, error) {
	if m.getOrganizationByCustomerFunc != nil {
		return m.getOrganizationByCustomerFunc(ctx, customerID)
	}
	return &orgs.Organization{ID: 1, Tier: tiers.TierBasic, StripeCustomerID: customerID}, nil
}

func (m *mockOrgService) ListBillableOrganizations(ctx context.Context) ([]*orgs.Organization, error) {
	if m.listBillableOrgsFunc != nil {
		return m.listBillableOrgsFunc(ctx)
	}
	return nil, nil
}

func (m *mockOrgService) SetOrganizationTier(ctx context.Context, id int64, tier tiers.Tier, subscriptionID string) error {
	if m.setOrganizationTierFunc != nil {
		return m.setOrganizationTierFunc(ctx, id, tier, subscriptionID)
	}
	return nil
}

// mockUsageService is a mock implementation of usage.Service. Report state
// is kept in memory unless a func overrides it.
type mockUsageService struct {
	usage.Service

	secondsSinceFunc    func(ctx context.Context, userID int64, since time.Time) (int64, error)
	secondsBetweenFunc  func(ctx context.Context, userID int64, after, through time.Time) (int64, error)
	reportCutoffFunc    func(ctx context.Context, settle time.Duration) (time.Time, error)
	lockReportsFunc     func(ctx context.Context, userID int64) (func(), bool, error)
	saveReportStateFunc func(ctx context.Context, state usage.ReportState) error

	mu     sync.Mutex
	states map[int64]usage.ReportState
}

func (m *mockUsageService) SecondsSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	if m.secondsSinceFunc != nil {
		return m.secondsSinceFunc(ctx, userID, since)
	}
	return 0, nil
}

func (m *mockUsageService) SecondsBetween(ctx context.Context, userID int64, after, through time.Time) (int64, error) {
	if m.secondsBetweenFunc != nil {
		return m.secondsBetweenFunc(ctx, userID, after, through)
	}
	return 0, nil
}

func (m *mockUsageService) ReportCutoff(ctx context.Context, settle time.Duration) (time.Time, error) {
	if m.reportCutoffFunc != nil {
		return m.reportCutoffFunc(ctx, settle)
	}
	return runAt, nil
}

func (m *mockUsageService) LockReports(ctx context.Context, userID int64) (func(), bool, error) {
	if m.lockReportsFunc != nil {
		return m.lockReportsFunc(ctx, userID)
	}
	return func() {}, true, nil
}

func (m *mockUsageService) GetReportState(ctx context.Context, userID int64) (*usage.ReportState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[userID]
	if !ok {
		return nil, nil
	}
	if state.Pending != nil {
		pending := *state.Pending
		state.Pending = &pending
	}
	return &state, nil
}

func (m *mockUsageService) SaveReportState(ctx context.Context, state usage.ReportState) error {
	if m.saveReportStateFunc != nil {
		if err := m.saveReportStateFunc(ctx, state); err != nil {
			return err
		}
	}
	m.setState(state)
	return nil
}

func (m *mockUsageService) setState(state usage.ReportState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states == nil {
		m.states = make(map[int64]usage.ReportState)
	}
	if state.Pending != nil {
		pending := *state.Pending
		state.Pending = &pending
	}
	m.states[state.UserID] = state
}

func (m *mockUsageService) state(userID int64) (usage.ReportState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[userID]
	return state, ok
}

// mockProvider is a mock implementation of PaymentProvider
type mockProvider struct {
	activeSubscriptionFunc func(ctx context.Context, customerID string) (*Subscription, error)
	getPriceFunc           func(ctx context.Context, priceID string) (*Price, error)
	upcomingInvoiceFunc    func(ctx context.Context, customerID string) (*Invoice, error)
	reportUsageFunc        func(ctx context.Context, record UsageRecord) error
	parseWebhookFunc       func(payload []byte, signature string) (*Event, error)
}

func (m *mockProvider) ActiveSubscription(ctx context.Context, customerID string) (*Subscription, error) {
	if m.activeSubscriptionFunc != nil {
		return m.activeSubscriptionFunc(ctx, customerID)
	}
	return nil, nil
}

func (m *mockProvider) GetPrice(ctx context.Context, priceID string) (*Price, error) {
	if m.getPriceFunc != nil {
		return m.getPriceFunc(ctx, priceID)
	}
	return &Price{ID: priceID, UnitAmount: 5, Currency: "usd", Metered: true}, nil
}

func (m *mockProvider) UpcomingInvoice(ctx context.Context, customerID string) (*Invoice, error) {
	if m.upcomingInvoiceFunc != nil {
		return m.upcomingInvoiceFunc(ctx, customerID)
	}
	return &Invoice{}, nil
}

func (m *mockProvider) ReportUsage(ctx context.Context, record UsageRecord) error {
	if m.reportUsageFunc != nil {
		return m.reportUsageFunc(ctx, record)
	}
	return nil
}

func (m *mockProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if m.parseWebhookFunc != nil {
		return m.parseWebhookFunc(payload, signature)
	}
	return nil, ErrInvalidSignature
}

// memoryEventStore is an in-memory EventStore
type memoryEventStore struct {
	mu      sync.Mutex
	events  map[string]string
	seenErr error
}

func newMemoryEventStore() *memoryEventStore {
	return &memoryEventStore{events: make(map[string]string)}
}

func (s *memoryEventStore) Seen(_ context.Context, eventID string) (bool, error) {
	if s.seenErr != nil {
		return false, s.seenErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.events[eventID]
	return ok, nil
}

func (s *memoryEventStore) Record(_ context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[eventID] = eventType
	return nil
}

var errProviderDown = apperr.Dependency("stripe", "test", context.DeadlineExceeded)
