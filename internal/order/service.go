package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/daffadevhosting/paypal-workers/internal/customer"
	"github.com/daffadevhosting/paypal-workers/internal/paypal"

	"github.com/google/uuid"
)

const defaultCurrency = "USD"

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidOrder  = errors.New("invalid order")
	ErrOrderExists   = errors.New("order already exists")
)

type Provider interface {
	CreateOrder(ctx context.Context, req paypal.CreateOrderRequest) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, providerOrderID string) (*paypal.Order, error)
}

type Store interface {
	UpsertCustomer(ctx context.Context, c customer.Customer) error
	InsertOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	GetOrderDetails(ctx context.Context, orderID string) (*Details, error)
	UpdateOrderStatus(ctx context.Context, o *Order, status Status, txn *Transaction) error
	ListTransactions(ctx context.Context, orderID string) ([]Transaction, error)
}

type CreateRequest struct {
	Amount    json.Number `json:"amount"`
	Currency  string      `json:"currency"`
	Items     []Item      `json:"items"`
	ReturnURL string      `json:"return_url"`
	CancelURL string      `json:"cancel_url"`
}

type CreateResult struct {
	OrderID         string        `json:"order_id"`
	ProviderOrderID string        `json:"paypal_order_id"`
	Status          string        `json:"status"`
	Links           []paypal.Link `json:"links"`
}

type CaptureResult struct {
	OrderID           string `json:"order_id"`
	Status            string `json:"status"`
	TransactionID     string `json:"transaction_id"`
	ProviderCaptureID string `json:"paypal_capture_id"`
}

type Service struct {
	provider  Provider
	store     Store
	brandName string
	logger    *slog.Logger
}

func NewService(provider Provider, store Store, brandName string, logger *slog.Logger) *Service {
	return &Service{
		provider:  provider,
		store:     store,
		brandName: brandName,
		logger:    logger,
	}
}

func (s *Service) Create(ctx context.Context, cust customer.Customer, req CreateRequest) (*CreateResult, error) {
	if err := cust.Normalize(); err != nil {
		return nil, err
	}
	amount, err := ParseAmount(req.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %w", ErrInvalidOrder, err)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	items, err := providerItems(req.Items, currency)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpsertCustomer(ctx, cust); err != nil {
		return nil, fmt.Errorf("save customer: %w", err)
	}

	created, err := s.provider.CreateOrder(ctx, paypal.CreateOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypal.PurchaseUnit{{
			Amount: paypal.Money{CurrencyCode: currency, Value: amount},
			Items:  items,
		}},
		ApplicationContext: &paypal.ApplicationContext{
			BrandName:   s.brandName,
			LandingPage: "LOGIN",
			UserAction:  "PAY_NOW",
			ReturnURL:   req.ReturnURL,
			CancelURL:   req.CancelURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create paypal order: %w", err)
	}

	rawItems := req.Items
	if rawItems == nil {
		rawItems = []Item{}
	}
	itemsJSON, err := json.Marshal(rawItems)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}

	o := &Order{
		ID:              uuid.NewString(),
		CustomerID:      cust.ID,
		ProviderOrderID: created.ID,
		Status:          StatusCreated,
		Amount:          amount,
		Currency:        currency,
		Items:           itemsJSON,
	}
	if err := s.store.InsertOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	s.logger.Info("order created", "order_id", o.ID, "paypal_order_id", o.ProviderOrderID)

	return &CreateResult{
		OrderID:         o.ID,
		ProviderOrderID: created.ID,
		Status:          created.Status,
		Links:           created.Links,
	}, nil
}

func (s *Service) Capture(ctx context.Context, orderID string) (*CaptureResult, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	captured, err := s.provider.CaptureOrder(ctx, o.ProviderOrderID)
	if err != nil {
		return nil, fmt.Errorf("capture paypal order: %w", err)
	}

	txn := &Transaction{
		ID:                    uuid.NewString(),
		OrderID:               o.ID,
		Amount:                o.Amount,
		Currency:              o.Currency,
		Status:                TransactionCompleted,
		ProviderTransactionID: captured.CaptureID(),
	}
	if err := s.store.UpdateOrderStatus(ctx, o, Status(captured.Status), txn); err != nil {
		return nil, fmt.Errorf("record capture: %w", err)
	}

	return &CaptureResult{
		OrderID:           o.ID,
		Status:            captured.Status,
		TransactionID:     txn.ID,
		ProviderCaptureID: txn.ProviderTransactionID,
	}, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*Details, error) {
	d, err := s.store.GetOrderDetails(ctx, orderID)
	if err != nil {
		return nil, err
	}
	txns, err := s.store.ListTransactions(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if txns == nil {
		txns = []Transaction{}
	}
	d.Transactions = txns
	return d, nil
}

func providerItems(items []Item, currency string) ([]paypal.Item, error) {
	out := make([]paypal.Item, 0, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.Name) == "" || it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d needs a name and a positive quantity", ErrInvalidOrder, i)
		}
		price, err := ParseAmount(it.Price.String())
		if err != nil {
			return nil, fmt.Errorf("%w: item %d price: %w", ErrInvalidOrder, i, err)
		}
		out = append(out, paypal.Item{
			Name:       it.Name,
			Quantity:   strconv.Itoa(it.Quantity),
			UnitAmount: paypal.Money{CurrencyCode: currency, Value: price},
		})
	}
	return out, nil
}

// ParseAmount accepts a positive decimal string and returns it trimmed.
func ParseAmount(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", fmt.Errorf("%q is not a decimal", raw)
	}
	if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return "", fmt.Errorf("%q must be positive", raw)
	}
	return raw, nil
}
