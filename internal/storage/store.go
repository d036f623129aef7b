package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/daffadevhosting/paypal-workers/pkg/contracts"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxTable receives a StatusChangedEvent in the same transaction as every
// order or subscription status write.
const OutboxTable = "payment_outbox"

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool, now: time.Now}, nil
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Close() {
	s.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) statusEvent(resourceType contracts.ResourceType, resourceID, providerID, status string) contracts.StatusChangedEvent {
	return contracts.StatusChangedEvent{
		EventID:      uuid.NewString(),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ProviderID:   providerID,
		Status:       status,
		ChangedAt:    s.now().UTC(),
	}
}

func insertOutbox(ctx context.Context, tx pgx.Tx, evt contracts.StatusChangedEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payment_outbox (event_id, event_type, payload)
		VALUES ($1, $2, $3)`,
		evt.EventID, contracts.EventTypeStatusChanged, payload,
	)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}
