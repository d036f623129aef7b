package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daffadevhosting/paypal-workers/pkg/contracts"

	"github.com/jackc/pgx/v5"
)

// CurrentStatus finds an order or subscription by local or provider id and
// reports its status. It returns nil when nothing matches.
func (s *Store) CurrentStatus(ctx context.Context, id string) (*contracts.StatusChangedEvent, error) {
	var (
		evt       contracts.StatusChangedEvent
		changedAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT 'order', order_id, paypal_order_id, status, updated_at
		FROM orders
		WHERE order_id = $1 OR paypal_order_id = $1
		UNION ALL
		SELECT 'subscription', subscription_id, paypal_subscription_id, status, updated_at
		FROM subscriptions
		WHERE subscription_id = $1 OR paypal_subscription_id = $1
		LIMIT 1`, id,
	).Scan(&evt.ResourceType, &evt.ResourceID, &evt.ProviderID, &evt.Status, &changedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select current status: %w", err)
	}
	evt.ChangedAt = changedAt.UTC()
	return &evt, nil
}
