package paypal

import (
	"encoding/json"
	"time"
)

const VerificationSuccess = "SUCCESS"

type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type Item struct {
	Name       string `json:"name"`
	Quantity   string `json:"quantity"`
	UnitAmount Money  `json:"unit_amount"`
}

type PurchaseUnit struct {
	Amount Money  `json:"amount"`
	Items  []Item `json:"items,omitempty"`
}

type PaymentMethod struct {
	PayerSelected  string `json:"payer_selected,omitempty"`
	PayeePreferred string `json:"payee_preferred,omitempty"`
}

type ApplicationContext struct {
	BrandName          string         `json:"brand_name,omitempty"`
	Locale             string         `json:"locale,omitempty"`
	LandingPage        string         `json:"landing_page,omitempty"`
	ShippingPreference string         `json:"shipping_preference,omitempty"`
	UserAction         string         `json:"user_action,omitempty"`
	PaymentMethod      *PaymentMethod `json:"payment_method,omitempty"`
	ReturnURL          string         `json:"return_url,omitempty"`
	CancelURL          string         `json:"cancel_url,omitempty"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type CreateOrderRequest struct {
	Intent             string              `json:"intent"`
	PurchaseUnits      []PurchaseUnit      `json:"purchase_units"`
	ApplicationContext *ApplicationContext `json:"application_context,omitempty"`
}

type Capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount Money  `json:"amount"`
}

type Order struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []Link `json:"links,omitempty"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []Capture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units,omitempty"`
}

// CaptureID returns the id of the first capture on the order, falling back
// to the order id when the response carries no capture details.
func (o *Order) CaptureID() string {
	for _, pu := range o.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			if c.ID != "" {
				return c.ID
			}
		}
	}
	return o.ID
}

type CreateSubscriptionRequest struct {
	PlanID             string              `json:"plan_id"`
	StartTime          string              `json:"start_time,omitempty"`
	ApplicationContext *ApplicationContext `json:"application_context,omitempty"`
}

type BillingInfo struct {
	NextBillingTime *time.Time `json:"next_billing_time,omitempty"`
}

type Subscription struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	PlanID      string       `json:"plan_id,omitempty"`
	StartTime   *time.Time   `json:"start_time,omitempty"`
	BillingInfo *BillingInfo `json:"billing_info,omitempty"`
	Links       []Link       `json:"links,omitempty"`
}

func (s *Subscription) NextBillingTime() *time.Time {
	if s.BillingInfo == nil {
		return nil
	}
	return s.BillingInfo.NextBillingTime
}

type VerifyWebhookRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type VerifyWebhookResponse struct {
	VerificationStatus string `json:"verification_status"`
}
