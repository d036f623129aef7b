package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/daffadevhosting/paypal-workers/internal/customer"
	"github.com/daffadevhosting/paypal-workers/internal/order"
	"github.com/daffadevhosting/paypal-workers/internal/paypal"
	"github.com/daffadevhosting/paypal-workers/internal/subscription"
	"github.com/daffadevhosting/paypal-workers/internal/webhook"
)

const (
	maxBodyBytes        = 1 << 20
	recentEventsLimit   = 50
	defaultCancelReason = "Customer requested cancellation"
)

type OrderService interface {
	Create(ctx context.Context, cust customer.Customer, req order.CreateRequest) (*order.CreateResult, error)
	Capture(ctx context.Context, orderID string) (*order.CaptureResult, error)
	Get(ctx context.Context, orderID string) (*order.Details, error)
}

type SubscriptionService interface {
	Create(ctx context.Context, cust customer.Customer, req subscription.CreateRequest) (*subscription.CreateResult, error)
	Get(ctx context.Context, subscriptionID string) (*subscription.View, error)
	Cancel(ctx context.Context, subscriptionID, reason string) (*subscription.CancelResult, error)
}

type WebhookProcessor interface {
	VerifyAndProcess(ctx context.Context, body []byte, headers http.Header, webhookID string) (*webhook.Result, error)
}

type EventLister interface {
	ListWebhookEvents(ctx context.Context, limit int) ([]webhook.Record, error)
}

type Server struct {
	orders        OrderService
	subscriptions SubscriptionService
	webhooks      WebhookProcessor
	events        EventLister
	webhookID     string
	logger        *slog.Logger
	mux           *http.ServeMux
}

func NewServer(
	orders OrderService,
	subscriptions SubscriptionService,
	webhooks WebhookProcessor,
	events EventLister,
	webhookID string,
	logger *slog.Logger,
) *Server {
	s := &Server{
		orders:        orders,
		subscriptions: subscriptions,
		webhooks:      webhooks,
		events:        events,
		webhookID:     webhookID,
		logger:        logger,
		mux:           http.NewServeMux(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.health)

	s.mux.HandleFunc("POST /api/payments/create-order", s.createOrder)
	s.mux.HandleFunc("POST /api/payments/capture-order/{orderID}", s.captureOrder)
	s.mux.HandleFunc("GET /api/payments/order/{orderID}", s.getOrder)

	s.mux.HandleFunc("POST /api/subscriptions/create", s.createSubscription)
	s.mux.HandleFunc("GET /api/subscriptions/{subscriptionID}", s.getSubscription)
	s.mux.HandleFunc("POST /api/subscriptions/{subscriptionID}/cancel", s.cancelSubscription)

	s.mux.HandleFunc("POST /api/webhook/paypal", s.paypalWebhook)
	s.mux.HandleFunc("GET /api/webhook/events", s.listWebhookEvents)
}

// HandleFunc mounts an extra handler, such as the websocket endpoint, on the
// same mux.
func (s *Server) HandleFunc(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, h)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "PayPal workers service is running")
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		customer.Customer
		order.CreateRequest
	}
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.orders.Create(r.Context(), req.Customer, req.CreateRequest)
	if err != nil {
		s.writeServiceError(w, "create order", err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) captureOrder(w http.ResponseWriter, r *http.Request) {
	res, err := s.orders.Capture(r.Context(), r.PathValue("orderID"))
	if err != nil {
		s.writeServiceError(w, "capture order", err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	res, err := s.orders.Get(r.Context(), r.PathValue("orderID"))
	if err != nil {
		s.writeServiceError(w, "get order", err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		customer.Customer
		subscription.CreateRequest
	}
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.subscriptions.Create(r.Context(), req.Customer, req.CreateRequest)
	if err != nil {
		s.writeServiceError(w, "create subscription", err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	res, err := s.subscriptions.Get(r.Context(), r.PathValue("subscriptionID"))
	if err != nil {
		s.writeServiceError(w, "get subscription", err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	// The body is optional.
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultCancelReason
	}

	res, err := s.subscriptions.Cancel(r.Context(), r.PathValue("subscriptionID"), reason)
	if err != nil {
		s.writeServiceError(w, "cancel subscription", err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) paypalWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	res, err := s.webhooks.VerifyAndProcess(r.Context(), body, r.Header, s.webhookID)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrMalformedPayload):
			s.logger.Warn("rejected webhook", "reason", "malformed", "err", err)
			writeError(w, http.StatusBadRequest, "malformed webhook payload")
		case errors.Is(err, webhook.ErrSignatureVerificationFailed):
			s.logger.Warn("rejected webhook", "reason", "signature", "err", err)
			writeError(w, http.StatusBadRequest, "webhook signature verification failed")
		default:
			s.logger.Error("process webhook", "err", err)
			writeError(w, http.StatusInternalServerError, "webhook processing failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listWebhookEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.ListWebhookEvents(r.Context(), recentEventsLimit)
	if err != nil {
		s.logger.Error("list webhook events", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []webhook.Record{}
	}
	writeData(w, http.StatusOK, events)
}

func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	var apiErr *paypal.APIError
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		writeError(w, http.StatusNotFound, "subscription not found")
	case errors.Is(err, order.ErrOrderExists),
		errors.Is(err, subscription.ErrSubscriptionExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrInvalidOrder),
		errors.Is(err, subscription.ErrInvalidSubscription),
		errors.Is(err, customer.ErrInvalidCustomer):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr):
		s.logger.Error(op, "paypal_status", apiErr.StatusCode, "err", err)
		writeError(w, http.StatusBadGateway, "payment provider request failed")
	default:
		s.logger.Error(op, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, envelope{Success: true, Data: v})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}
