package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/daffadevhosting/paypal-workers/internal/customer"
	"github.com/daffadevhosting/paypal-workers/internal/paypal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	created      paypal.CreateSubscriptionRequest
	remote       *paypal.Subscription
	cancelledID  string
	cancelReason string
	err          error
}

func (f *fakeProvider) CreateSubscription(_ context.Context, req paypal.CreateSubscriptionRequest) (*paypal.Subscription, error) {
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	return &paypal.Subscription{
		ID:     "I-1",
		Status: string(StatusApprovalPending),
		Links:  []paypal.Link{{Href: "https://www.sandbox.paypal.com/webapps/billing/subscriptions?ba_token=BA-1", Rel: "approve"}},
	}, nil
}

func (f *fakeProvider) GetSubscription(_ context.Context, _ string) (*paypal.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.remote, nil
}

func (f *fakeProvider) CancelSubscription(_ context.Context, providerSubscriptionID, reason string) error {
	if f.err != nil {
		return f.err
	}
	f.cancelledID, f.cancelReason = providerSubscriptionID, reason
	return nil
}

type memStore struct {
	customers []customer.Customer
	subs      map[string]*Subscription
	syncs     int
}

func newMemStore() *memStore {
	return &memStore{subs: make(map[string]*Subscription)}
}

func (m *memStore) UpsertCustomer(_ context.Context, c customer.Customer) error {
	m.customers = append(m.customers, c)
	return nil
}

func (m *memStore) InsertSubscription(_ context.Context, s *Subscription) error {
	cp := *s
	m.subs[s.ID] = &cp
	return nil
}

func (m *memStore) GetSubscription(_ context.Context, subscriptionID string) (*Subscription, error) {
	s, ok := m.subs[subscriptionID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*Details, error) {
	s, err := m.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return &Details{Subscription: *s, Email: "ann@example.com"}, nil
}

func (m *memStore) SyncSubscription(_ context.Context, s *Subscription, status Status, nextBilling *time.Time) error {
	m.syncs++
	m.subs[s.ID].Status = status
	m.subs[s.ID].NextBillingTime = nextBilling
	return nil
}

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestService(provider *fakeProvider, store *memStore) *Service {
	svc := NewService(provider, store, "Acme", slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestCreateSubscription(t *testing.T) {
	provider := &fakeProvider{}
	store := newMemStore()

	res, err := newTestService(provider, store).Create(context.Background(),
		customer.Customer{ID: "c-1", Email: "ann@example.com"},
		CreateRequest{PlanID: " P-5ML4271244454362WXNWU5NQ ", ReturnURL: "https://shop.example.com/ok"})
	require.NoError(t, err)

	assert.Equal(t, "I-1", res.ProviderSubscriptionID)
	assert.Equal(t, "APPROVAL_PENDING", res.Status)
	require.Len(t, res.Links, 1)

	assert.Equal(t, "P-5ML4271244454362WXNWU5NQ", provider.created.PlanID)
	assert.Equal(t, "2024-03-01T10:05:00Z", provider.created.StartTime)
	assert.Equal(t, "SUBSCRIBE_NOW", provider.created.ApplicationContext.UserAction)
	assert.Equal(t, "https://shop.example.com/ok", provider.created.ApplicationContext.ReturnURL)

	stored := store.subs[res.SubscriptionID]
	require.NotNil(t, stored)
	assert.Equal(t, StatusApprovalPending, stored.Status)
	assert.Equal(t, "I-1", stored.ProviderSubscriptionID)
	require.NotNil(t, stored.StartTime)
	assert.True(t, stored.StartTime.Equal(fixedNow.Add(5*time.Minute)))
}

func TestCreateSubscriptionRequiresPlan(t *testing.T) {
	provider := &fakeProvider{}
	store := newMemStore()

	_, err := newTestService(provider, store).Create(context.Background(), customer.Customer{ID: "c-1"}, CreateRequest{PlanID: "  "})
	require.ErrorIs(t, err, ErrInvalidSubscription)
	assert.Empty(t, store.customers)
	assert.Empty(t, provider.created.PlanID)
}

func TestGetSubscriptionRefreshesFromProvider(t *testing.T) {
	next := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	provider := &fakeProvider{remote: &paypal.Subscription{
		ID:          "I-1",
		Status:      string(StatusActive),
		BillingInfo: &paypal.BillingInfo{NextBillingTime: &next},
	}}
	store := newMemStore()
	store.subs["sub-1"] = &Subscription{ID: "sub-1", ProviderSubscriptionID: "I-1", Status: StatusApprovalPending}

	view, err := newTestService(provider, store).Get(context.Background(), "sub-1")
	require.NoError(t, err)

	assert.Equal(t, StatusActive, view.Status)
	assert.Equal(t, &next, view.NextBillingTime)
	assert.Same(t, provider.remote, view.ProviderData)
	assert.Equal(t, StatusActive, store.subs["sub-1"].Status)
	assert.Equal(t, 1, store.syncs)
}

func TestGetSubscriptionProviderFailureKeepsRow(t *testing.T) {
	provider := &fakeProvider{err: &paypal.APIError{StatusCode: 503}}
	store := newMemStore()
	store.subs["sub-1"] = &Subscription{ID: "sub-1", ProviderSubscriptionID: "I-1", Status: StatusActive}

	_, err := newTestService(provider, store).Get(context.Background(), "sub-1")
	require.Error(t, err)
	assert.Zero(t, store.syncs)
	assert.Equal(t, StatusActive, store.subs["sub-1"].Status)
}

func TestCancelSubscription(t *testing.T) {
	provider := &fakeProvider{}
	store := newMemStore()
	store.subs["sub-1"] = &Subscription{ID: "sub-1", ProviderSubscriptionID: "I-1", Status: StatusActive}

	res, err := newTestService(provider, store).Cancel(context.Background(), "sub-1", "Too expensive")
	require.NoError(t, err)

	assert.Equal(t, "I-1", provider.cancelledID)
	assert.Equal(t, "Too expensive", provider.cancelReason)
	assert.Equal(t, &CancelResult{SubscriptionID: "sub-1", Status: StatusCancelled, CancelledAt: fixedNow}, res)
	assert.Equal(t, StatusCancelled, store.subs["sub-1"].Status)
}

func TestCancelSubscriptionNotFound(t *testing.T) {
	provider := &fakeProvider{}
	_, err := newTestService(provider, newMemStore()).Cancel(context.Background(), "missing", "x")
	require.True(t, errors.Is(err, ErrSubscriptionNotFound))
	assert.Empty(t, provider.cancelledID)
}
