package contracts

import "time"

const EventTypeStatusChanged = "payments.status_changed"

type ResourceType string

const (
	ResourceOrder        ResourceType = "order"
	ResourceSubscription ResourceType = "subscription"
)

// StatusChangedEvent is relayed through the payment outbox whenever a local
// order or subscription row changes status.
type StatusChangedEvent struct {
	EventID      string       `json:"event_id"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	ProviderID   string       `json:"provider_id"`
	Status       string       `json:"status"`
	ChangedAt    time.Time    `json:"changed_at"`
}
