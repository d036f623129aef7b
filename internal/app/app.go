package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/daffadevhosting/paypal-workers/internal/config"
	"github.com/daffadevhosting/paypal-workers/internal/httpapi"
	"github.com/daffadevhosting/paypal-workers/internal/order"
	"github.com/daffadevhosting/paypal-workers/internal/paypal"
	"github.com/daffadevhosting/paypal-workers/internal/storage"
	"github.com/daffadevhosting/paypal-workers/internal/subscription"
	"github.com/daffadevhosting/paypal-workers/internal/webhook"
	"github.com/daffadevhosting/paypal-workers/internal/websocket"
	"github.com/daffadevhosting/paypal-workers/pkg/contracts"
	"github.com/daffadevhosting/paypal-workers/pkg/messaging"

	"github.com/rabbitmq/amqp091-go"
)

type App struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	wsHub     *websocket.Hub
	publisher messaging.Publisher
	outbox    *messaging.OutboxDispatcher
	consumer  *messaging.Consumer
	httpSrv   *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	client := paypal.NewClient(paypal.Config{
		BaseURL:      cfg.PayPalBaseURL,
		ClientID:     cfg.PayPalClientID,
		ClientSecret: cfg.PayPalClientSecret,
		Timeout:      cfg.PayPalTimeout,
	})

	orderSvc := order.NewService(client, store, cfg.BrandName, logger)
	subscriptionSvc := subscription.NewService(client, store, cfg.BrandName, logger)
	processor := webhook.NewProcessor(client, store, cfg.DispatchMode, logger)

	wsHub := websocket.NewHub()

	publisher, err := messaging.NewRabbitPublisher(cfg.RabbitURL, cfg.StatusExchange)
	if err != nil {
		store.Close()
		return nil, err
	}

	consumer, err := messaging.NewRabbitConsumer(cfg.RabbitURL, cfg.StatusExchange, cfg.StatusQueue, logger)
	if err != nil {
		store.Close()
		publisher.Close()
		return nil, err
	}

	api := httpapi.NewServer(orderSvc, subscriptionSvc, processor, store, cfg.PayPalWebhookID, logger)
	wsHandler := websocket.NewHandler(wsHub, store, logger)
	api.HandleFunc("GET /api/ws/{resourceID}", wsHandler.ServeWS)
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.WithCORS(httpapi.WithLogging(api, logger)),
	}

	outbox := messaging.NewOutboxDispatcher(store.Pool(), publisher, storage.OutboxTable, cfg.OutboxInterval, cfg.OutboxBatch, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		wsHub:     wsHub,
		publisher: publisher,
		consumer:  consumer,
		outbox:    outbox,
		httpSrv:   httpSrv,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	a.outbox.Start(ctx)

	go a.wsHub.Run(ctx)

	go func() {
		errCh <- a.consumer.Start(ctx, a.handleStatusMessage)
	}()

	go func() {
		a.logger.Info("paypal http server listening", "addr", a.cfg.HTTPAddr, "dispatch_mode", a.cfg.DispatchMode)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownGracePeriod)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "err", err)
	}
	_ = a.consumer.Close()
	_ = a.publisher.Close()
	a.store.Close()
}

// handleStatusMessage forwards relayed status changes to websocket clients
// connected to this instance.
func (a *App) handleStatusMessage(_ context.Context, msg amqp091.Delivery) {
	var evt contracts.StatusChangedEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		a.logger.Error("invalid status event", "message_id", msg.MessageId, "err", err)
		_ = msg.Nack(false, false)
		return
	}

	a.wsHub.Publish(evt)
	_ = msg.Ack(false)
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer app.Close(ctx)

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}
