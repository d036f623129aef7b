package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/daffadevhosting/paypal-workers/internal/customer"
	"github.com/daffadevhosting/paypal-workers/internal/paypal"

	"github.com/google/uuid"
)

const startDelay = 5 * time.Minute

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidSubscription  = errors.New("invalid subscription")
	ErrSubscriptionExists   = errors.New("subscription already exists")
)

type Provider interface {
	CreateSubscription(ctx context.Context, req paypal.CreateSubscriptionRequest) (*paypal.Subscription, error)
	GetSubscription(ctx context.Context, providerSubscriptionID string) (*paypal.Subscription, error)
	CancelSubscription(ctx context.Context, providerSubscriptionID, reason string) error
}

type Store interface {
	UpsertCustomer(ctx context.Context, c customer.Customer) error
	InsertSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*Details, error)
	SyncSubscription(ctx context.Context, s *Subscription, status Status, nextBilling *time.Time) error
}

type CreateRequest struct {
	PlanID    string `json:"plan_id"`
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type CreateResult struct {
	SubscriptionID         string        `json:"subscription_id"`
	ProviderSubscriptionID string        `json:"paypal_subscription_id"`
	Status                 string        `json:"status"`
	Links                  []paypal.Link `json:"links"`
}

type CancelResult struct {
	SubscriptionID string    `json:"subscription_id"`
	Status         Status    `json:"status"`
	CancelledAt    time.Time `json:"cancelled_at"`
}

type Service struct {
	provider  Provider
	store     Store
	brandName string
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(provider Provider, store Store, brandName string, logger *slog.Logger) *Service {
	return &Service{
		provider:  provider,
		store:     store,
		brandName: brandName,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) Create(ctx context.Context, cust customer.Customer, req CreateRequest) (*CreateResult, error) {
	if err := cust.Normalize(); err != nil {
		return nil, err
	}
	planID := strings.TrimSpace(req.PlanID)
	if planID == "" {
		return nil, fmt.Errorf("%w: plan_id is required", ErrInvalidSubscription)
	}

	if err := s.store.UpsertCustomer(ctx, cust); err != nil {
		return nil, fmt.Errorf("save customer: %w", err)
	}

	start := s.now().UTC().Add(startDelay).Truncate(time.Second)
	created, err := s.provider.CreateSubscription(ctx, paypal.CreateSubscriptionRequest{
		PlanID:    planID,
		StartTime: start.Format(time.RFC3339),
		ApplicationContext: &paypal.ApplicationContext{
			BrandName:          s.brandName,
			Locale:             "en-US",
			ShippingPreference: "NO_SHIPPING",
			UserAction:         "SUBSCRIBE_NOW",
			PaymentMethod: &paypal.PaymentMethod{
				PayerSelected:  "PAYPAL",
				PayeePreferred: "IMMEDIATE_PAYMENT_REQUIRED",
			},
			ReturnURL: req.ReturnURL,
			CancelURL: req.CancelURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create paypal subscription: %w", err)
	}

	sub := &Subscription{
		ID:                     uuid.NewString(),
		CustomerID:             cust.ID,
		ProviderSubscriptionID: created.ID,
		PlanID:                 planID,
		Status:                 Status(created.Status),
		StartTime:              &start,
	}
	if err := s.store.InsertSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}

	s.logger.Info("subscription created", "subscription_id", sub.ID, "paypal_subscription_id", sub.ProviderSubscriptionID)

	return &CreateResult{
		SubscriptionID:         sub.ID,
		ProviderSubscriptionID: created.ID,
		Status:                 created.Status,
		Links:                  created.Links,
	}, nil
}

// Get refreshes status and next billing time from the provider before
// returning the local row.
func (s *Service) Get(ctx context.Context, subscriptionID string) (*View, error) {
	details, err := s.store.GetSubscriptionDetails(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	remote, err := s.provider.GetSubscription(ctx, details.ProviderSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("get paypal subscription: %w", err)
	}

	status := Status(remote.Status)
	next := remote.NextBillingTime()
	if err := s.store.SyncSubscription(ctx, &details.Subscription, status, next); err != nil {
		return nil, fmt.Errorf("sync subscription: %w", err)
	}
	details.Status = status
	details.NextBillingTime = next

	return &View{Details: *details, ProviderData: remote}, nil
}

func (s *Service) Cancel(ctx context.Context, subscriptionID, reason string) (*CancelResult, error) {
	sub, err := s.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if err := s.provider.CancelSubscription(ctx, sub.ProviderSubscriptionID, reason); err != nil {
		return nil, fmt.Errorf("cancel paypal subscription: %w", err)
	}

	if err := s.store.SyncSubscription(ctx, sub, StatusCancelled, sub.NextBillingTime); err != nil {
		return nil, fmt.Errorf("mark subscription cancelled: %w", err)
	}

	return &CancelResult{
		SubscriptionID: sub.ID,
		Status:         StatusCancelled,
		CancelledAt:    s.now().UTC(),
	}, nil
}
