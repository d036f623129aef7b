package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/daffadevhosting/paypal-workers/internal/order"
	"github.com/daffadevhosting/paypal-workers/internal/paypal"
	"github.com/daffadevhosting/paypal-workers/internal/subscription"
)

const (
	TypeCaptureCompleted          = "PAYMENT.CAPTURE.COMPLETED"
	TypeCaptureDenied             = "PAYMENT.CAPTURE.DENIED"
	TypeSubscriptionActivated     = "BILLING.SUBSCRIPTION.ACTIVATED"
	TypeSubscriptionCancelled     = "BILLING.SUBSCRIPTION.CANCELLED"
	TypeSubscriptionPaymentFailed = "BILLING.SUBSCRIPTION.PAYMENT.FAILED"
	TypeSubscriptionExpired       = "BILLING.SUBSCRIPTION.EXPIRED"
)

// Envelope is the outer webhook document. Raw keeps the exact bytes that were
// received so they can be forwarded to the verification API and stored.
type Envelope struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Summary      string          `json:"summary"`
	Resource     json.RawMessage `json:"resource"`
	Raw          json.RawMessage `json:"-"`
}

// ResourceID is the id of the nested resource, or the event id when the
// resource carries none.
func (e *Envelope) ResourceID() string {
	var r struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(e.Resource, &r); err == nil && r.ID != "" {
		return r.ID
	}
	return e.ID
}

// Event is the closed set of webhook kinds this service acts on. Every
// implementation lives in this file.
type Event interface {
	Type() string
	isEvent()
}

type CaptureCompleted struct {
	CaptureID       string
	ProviderOrderID string
	Amount          paypal.Money
}

type CaptureDenied struct {
	CaptureID       string
	ProviderOrderID string
}

// SubscriptionChanged covers the four subscription lifecycle events; they
// differ only in the status they set.
type SubscriptionChanged struct {
	EventType              string
	ProviderSubscriptionID string
	Status                 subscription.Status
}

// Unhandled carries any event type without a transition.
type Unhandled struct {
	EventType string
}

func (CaptureCompleted) Type() string      { return TypeCaptureCompleted }
func (CaptureDenied) Type() string         { return TypeCaptureDenied }
func (e SubscriptionChanged) Type() string { return e.EventType }
func (e Unhandled) Type() string           { return e.EventType }

func (CaptureCompleted) isEvent()    {}
func (CaptureDenied) isEvent()       {}
func (SubscriptionChanged) isEvent() {}
func (Unhandled) isEvent()           {}

var subscriptionStatuses = map[string]subscription.Status{
	TypeSubscriptionActivated:     subscription.StatusActive,
	TypeSubscriptionCancelled:     subscription.StatusCancelled,
	TypeSubscriptionPaymentFailed: subscription.StatusPaymentFailed,
	TypeSubscriptionExpired:       subscription.StatusExpired,
}

type captureResource struct {
	ID                string       `json:"id"`
	Amount            paypal.Money `json:"amount"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

// Parse decodes a webhook body into its envelope and typed event. All errors
// wrap ErrMalformedPayload.
func Parse(body []byte) (*Envelope, Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformedPayload)
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	env.Raw = json.RawMessage(trimmed)

	if strings.TrimSpace(env.ID) == "" {
		return nil, nil, fmt.Errorf("%w: missing id", ErrMalformedPayload)
	}
	if strings.TrimSpace(env.EventType) == "" {
		return nil, nil, fmt.Errorf("%w: missing event_type", ErrMalformedPayload)
	}
	resource := bytes.TrimSpace(env.Resource)
	if len(resource) == 0 || resource[0] != '{' {
		return nil, nil, fmt.Errorf("%w: resource must be an object", ErrMalformedPayload)
	}

	evt, err := decodeEvent(env.EventType, resource)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, env.EventType, err)
	}
	return &env, evt, nil
}

func decodeEvent(eventType string, resource []byte) (Event, error) {
	switch eventType {
	case TypeCaptureCompleted:
		var r captureResource
		if err := json.Unmarshal(resource, &r); err != nil {
			return nil, err
		}
		value, err := order.ParseAmount(r.Amount.Value)
		if err != nil {
			return nil, fmt.Errorf("capture amount: %w", err)
		}
		return CaptureCompleted{
			CaptureID:       r.ID,
			ProviderOrderID: r.SupplementaryData.RelatedIDs.OrderID,
			Amount:          paypal.Money{CurrencyCode: r.Amount.CurrencyCode, Value: value},
		}, nil

	case TypeCaptureDenied:
		var r captureResource
		if err := json.Unmarshal(resource, &r); err != nil {
			return nil, err
		}
		return CaptureDenied{
			CaptureID:       r.ID,
			ProviderOrderID: r.SupplementaryData.RelatedIDs.OrderID,
		}, nil

	case TypeSubscriptionActivated, TypeSubscriptionCancelled,
		TypeSubscriptionPaymentFailed, TypeSubscriptionExpired:
		var r struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(resource, &r); err != nil {
			return nil, err
		}
		return SubscriptionChanged{
			EventType:              eventType,
			ProviderSubscriptionID: r.ID,
			Status:                 subscriptionStatuses[eventType],
		}, nil
	}

	return Unhandled{EventType: eventType}, nil
}
