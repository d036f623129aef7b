package order

import (
	"encoding/json"
	"time"
)

// Status mirrors the provider order status. The webhook processor only ever
// writes COMPLETED or FAILED; a capture command stores whatever the provider
// reports.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

type Order struct {
	ID              string          `json:"order_id"`
	CustomerID      string          `json:"customer_id"`
	ProviderOrderID string          `json:"paypal_order_id"`
	Status          Status          `json:"status"`
	Amount          string          `json:"amount"`
	Currency        string          `json:"currency"`
	Items           json.RawMessage `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Details is an order joined with its customer and its transactions.
type Details struct {
	Order
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	Transactions []Transaction `json:"transactions"`
}

type Item struct {
	Name     string      `json:"name"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
}

const TransactionCompleted = "COMPLETED"

// Transaction records collected funds. Rows are insert-only.
type Transaction struct {
	ID                    string    `json:"transaction_id"`
	OrderID               string    `json:"order_id"`
	Amount                string    `json:"amount"`
	Currency              string    `json:"currency"`
	Status                string    `json:"status"`
	ProviderTransactionID string    `json:"paypal_transaction_id"`
	CreatedAt             time.Time `json:"created_at"`
}
