package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/daffadevhosting/paypal-workers/internal/order"
	"github.com/daffadevhosting/paypal-workers/internal/paypal"
	"github.com/daffadevhosting/paypal-workers/internal/subscription"

	"github.com/google/uuid"
)

const StatusProcessed = "processed"

// Provider signature headers. Lookups go through http.Header.Get, so the
// casing used on the wire does not matter.
const (
	HeaderAuthAlgo         = "Paypal-Auth-Algo"
	HeaderCertURL          = "Paypal-Cert-Url"
	HeaderTransmissionID   = "Paypal-Transmission-Id"
	HeaderTransmissionSig  = "Paypal-Transmission-Sig"
	HeaderTransmissionTime = "Paypal-Transmission-Time"
)

// DispatchMode decides what happens when a transition fails after the event
// has been recorded.
type DispatchMode string

const (
	// DispatchStrict fails the whole delivery so the provider redelivers it.
	DispatchStrict DispatchMode = "strict"
	// DispatchBestEffort logs the failure and still reports the event processed.
	DispatchBestEffort DispatchMode = "best_effort"
)

func ParseDispatchMode(raw string) (DispatchMode, error) {
	switch DispatchMode(raw) {
	case DispatchStrict, DispatchBestEffort:
		return DispatchMode(raw), nil
	}
	return DispatchStrict, fmt.Errorf("unknown dispatch mode %q", raw)
}

type SignatureVerifier interface {
	VerifyWebhookSignature(ctx context.Context, req paypal.VerifyWebhookRequest) (*paypal.VerifyWebhookResponse, error)
}

// Record is one stored webhook delivery.
type Record struct {
	ID           string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Summary      string          `json:"summary"`
	Payload      json.RawMessage `json:"event_data"`
	ReceivedAt   time.Time       `json:"received_at"`
}

// Store is the persistence the processor needs. Lookups return
// order.ErrOrderNotFound when no local row matches.
type Store interface {
	InsertWebhookEvent(ctx context.Context, rec Record) error
	FindOrderByProviderID(ctx context.Context, providerOrderID string) (*order.Order, error)
	UpdateOrderStatus(ctx context.Context, o *order.Order, status order.Status, txn *order.Transaction) error
	UpdateSubscriptionStatusByProviderID(ctx context.Context, providerSubscriptionID string, status subscription.Status) (bool, error)
}

type Result struct {
	Status  string `json:"status"`
	EventID string `json:"event_id"`
}

type Processor struct {
	verifier SignatureVerifier
	store    Store
	mode     DispatchMode
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewProcessor(verifier SignatureVerifier, store Store, mode DispatchMode, logger *slog.Logger) *Processor {
	return &Processor{
		verifier: verifier,
		store:    store,
		mode:     mode,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// VerifyAndProcess parses, verifies, records and applies one webhook
// delivery. Returned errors wrap ErrMalformedPayload,
// ErrSignatureVerificationFailed or ErrStorageFailure.
func (p *Processor) VerifyAndProcess(ctx context.Context, body []byte, headers http.Header, webhookID string) (*Result, error) {
	env, evt, err := Parse(body)
	if err != nil {
		return nil, err
	}

	if err := p.verify(ctx, env, headers, webhookID); err != nil {
		return nil, err
	}

	recordID, err := p.Record(ctx, env)
	if err != nil {
		return nil, err
	}

	if err := p.Apply(ctx, evt); err != nil {
		if p.mode != DispatchBestEffort {
			return nil, err
		}
		p.logger.Error("webhook transition failed, acknowledging anyway",
			"event_id", env.ID, "record_id", recordID, "event_type", env.EventType, "err", err)
	}

	return &Result{Status: StatusProcessed, EventID: env.ID}, nil
}

func (p *Processor) verify(ctx context.Context, env *Envelope, headers http.Header, webhookID string) error {
	resp, err := p.verifier.VerifyWebhookSignature(ctx, paypal.VerifyWebhookRequest{
		AuthAlgo:         headers.Get(HeaderAuthAlgo),
		CertURL:          headers.Get(HeaderCertURL),
		TransmissionID:   headers.Get(HeaderTransmissionID),
		TransmissionSig:  headers.Get(HeaderTransmissionSig),
		TransmissionTime: headers.Get(HeaderTransmissionTime),
		WebhookID:        webhookID,
		WebhookEvent:     env.Raw,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureVerificationFailed, err)
	}
	if resp == nil || resp.VerificationStatus != paypal.VerificationSuccess {
		status := ""
		if resp != nil {
			status = resp.VerificationStatus
		}
		return fmt.Errorf("%w: status %q", ErrSignatureVerificationFailed, status)
	}
	return nil
}

// Record stores the event under a fresh id. Redeliveries of the same
// provider event produce additional rows.
func (p *Processor) Record(ctx context.Context, env *Envelope) (string, error) {
	rec := Record{
		ID:           p.newID(),
		EventType:    env.EventType,
		ResourceType: env.ResourceType,
		ResourceID:   env.ResourceID(),
		Summary:      env.Summary,
		Payload:      env.Raw,
		ReceivedAt:   p.now().UTC(),
	}
	if err := p.store.InsertWebhookEvent(ctx, rec); err != nil {
		return "", fmt.Errorf("%w: record event %s: %w", ErrStorageFailure, env.ID, err)
	}
	return rec.ID, nil
}

// Apply runs the transition for evt. Events about resources this service
// does not know are ignored.
func (p *Processor) Apply(ctx context.Context, evt Event) error {
	switch e := evt.(type) {
	case CaptureCompleted:
		return p.captureCompleted(ctx, e)
	case CaptureDenied:
		return p.captureDenied(ctx, e)
	case SubscriptionChanged:
		return p.subscriptionChanged(ctx, e)
	case Unhandled:
		p.logger.Info("unhandled webhook event type", "event_type", e.EventType)
		return nil
	default:
		return fmt.Errorf("unsupported event %T", evt)
	}
}

func (p *Processor) captureCompleted(ctx context.Context, e CaptureCompleted) error {
	o, err := p.findOrder(ctx, e.ProviderOrderID)
	if err != nil || o == nil {
		return err
	}

	// Not idempotent: a redelivered capture inserts another transaction row.
	txn := &order.Transaction{
		ID:                    p.newID(),
		OrderID:               o.ID,
		Amount:                e.Amount.Value,
		Currency:              e.Amount.CurrencyCode,
		Status:                order.TransactionCompleted,
		ProviderTransactionID: e.CaptureID,
	}
	if err := p.store.UpdateOrderStatus(ctx, o, order.StatusCompleted, txn); err != nil {
		return fmt.Errorf("%w: complete order %s: %w", ErrStorageFailure, o.ID, err)
	}
	p.logger.Info("order completed", "order_id", o.ID, "paypal_order_id", o.ProviderOrderID, "capture_id", e.CaptureID)
	return nil
}

func (p *Processor) captureDenied(ctx context.Context, e CaptureDenied) error {
	o, err := p.findOrder(ctx, e.ProviderOrderID)
	if err != nil || o == nil {
		return err
	}

	if err := p.store.UpdateOrderStatus(ctx, o, order.StatusFailed, nil); err != nil {
		return fmt.Errorf("%w: fail order %s: %w", ErrStorageFailure, o.ID, err)
	}
	p.logger.Info("order failed", "order_id", o.ID, "paypal_order_id", o.ProviderOrderID)
	return nil
}

func (p *Processor) subscriptionChanged(ctx context.Context, e SubscriptionChanged) error {
	found, err := p.store.UpdateSubscriptionStatusByProviderID(ctx, e.ProviderSubscriptionID, e.Status)
	if err != nil {
		return fmt.Errorf("%w: update subscription %s: %w", ErrStorageFailure, e.ProviderSubscriptionID, err)
	}
	if !found {
		p.logger.Info("webhook for unknown subscription", "paypal_subscription_id", e.ProviderSubscriptionID, "event_type", e.EventType)
		return nil
	}
	p.logger.Info("subscription status changed", "paypal_subscription_id", e.ProviderSubscriptionID, "status", e.Status)
	return nil
}

// findOrder returns nil, nil when no local order matches.
func (p *Processor) findOrder(ctx context.Context, providerOrderID string) (*order.Order, error) {
	if providerOrderID == "" {
		p.logger.Info("capture event without related order id")
		return nil, nil
	}
	o, err := p.store.FindOrderByProviderID(ctx, providerOrderID)
	if errors.Is(err, order.ErrOrderNotFound) {
		p.logger.Info("webhook for unknown order", "paypal_order_id", providerOrderID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find order %s: %w", ErrStorageFailure, providerOrderID, err)
	}
	return o, nil
}
