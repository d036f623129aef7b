package subscription

import (
	"time"

	"github.com/daffadevhosting/paypal-workers/internal/paypal"
)

// Status follows the provider lifecycle. Transitions are not guarded: a
// later ACTIVATED webhook reactivates a CANCELLED or PAYMENT_FAILED row.
type Status string

const (
	StatusApprovalPending Status = "APPROVAL_PENDING"
	StatusCreated         Status = "CREATED"
	StatusActive          Status = "ACTIVE"
	StatusCancelled       Status = "CANCELLED"
	StatusPaymentFailed   Status = "PAYMENT_FAILED"
	StatusExpired         Status = "EXPIRED"
)

type Subscription struct {
	ID                     string     `json:"subscription_id"`
	CustomerID             string     `json:"customer_id"`
	ProviderSubscriptionID string     `json:"paypal_subscription_id"`
	PlanID                 string     `json:"plan_id"`
	Status                 Status     `json:"status"`
	StartTime              *time.Time `json:"start_time"`
	NextBillingTime        *time.Time `json:"next_billing_time"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

type Details struct {
	Subscription
	Email string `json:"email"`
	Name  string `json:"name"`
}

// View is a local subscription together with the provider's current copy.
type View struct {
	Details
	ProviderData *paypal.Subscription `json:"paypal_data"`
}
