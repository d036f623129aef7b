package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daffadevhosting/paypal-workers/internal/subscription"
	"github.com/daffadevhosting/paypal-workers/pkg/contracts"

	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `
	s.subscription_id, s.customer_id, s.paypal_subscription_id, s.plan_id, s.status,
	s.start_time, s.next_billing_time, s.created_at, s.updated_at`

func scanSubscription(row pgx.Row, sub *subscription.Subscription, extra ...any) error {
	dest := []any{
		&sub.ID, &sub.CustomerID, &sub.ProviderSubscriptionID, &sub.PlanID, &sub.Status,
		&sub.StartTime, &sub.NextBillingTime, &sub.CreatedAt, &sub.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func (s *Store) InsertSubscription(ctx context.Context, sub *subscription.Subscription) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (subscription_id, customer_id, paypal_subscription_id, plan_id, status, start_time, next_billing_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		sub.ID, sub.CustomerID, sub.ProviderSubscriptionID, sub.PlanID, sub.Status, sub.StartTime, sub.NextBillingTime,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: paypal subscription %s", subscription.ErrSubscriptionExists, sub.ProviderSubscriptionID)
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subscriptionID string) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	row := s.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions s WHERE s.subscription_id = $1`, subscriptionID)
	if err := scanSubscription(row, &sub); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("select subscription: %w", err)
	}
	return &sub, nil
}

func (s *Store) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*subscription.Details, error) {
	var d subscription.Details
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`, COALESCE(c.email, ''), COALESCE(c.name, '')
		FROM subscriptions s
		LEFT JOIN customers c ON c.customer_id = s.customer_id
		WHERE s.subscription_id = $1`, subscriptionID)
	if err := scanSubscription(row, &d.Subscription, &d.Email, &d.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("select subscription details: %w", err)
	}
	return &d, nil
}

// SyncSubscription stores the provider's view of a subscription. A status
// notification is queued only when the status actually differs.
func (s *Store) SyncSubscription(ctx context.Context, sub *subscription.Subscription, status subscription.Status, nextBilling *time.Time) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var previous subscription.Status
		err := tx.QueryRow(ctx, `
			SELECT status FROM subscriptions
			WHERE subscription_id = $1
			FOR UPDATE`, sub.ID,
		).Scan(&previous)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return subscription.ErrSubscriptionNotFound
			}
			return fmt.Errorf("lock subscription: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE subscriptions
			SET status = $2, next_billing_time = $3, updated_at = NOW()
			WHERE subscription_id = $1`,
			sub.ID, status, nextBilling,
		)
		if err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}

		if previous == status {
			return nil
		}
		evt := s.statusEvent(contracts.ResourceSubscription, sub.ID, sub.ProviderSubscriptionID, string(status))
		return insertOutbox(ctx, tx, evt)
	})
}

// UpdateSubscriptionStatusByProviderID reports false when no local row has
// the provider id.
func (s *Store) UpdateSubscriptionStatusByProviderID(ctx context.Context, providerSubscriptionID string, status subscription.Status) (bool, error) {
	found := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var subscriptionID string
		err := tx.QueryRow(ctx, `
			UPDATE subscriptions
			SET status = $2, updated_at = NOW()
			WHERE paypal_subscription_id = $1
			RETURNING subscription_id`,
			providerSubscriptionID, status,
		).Scan(&subscriptionID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("update subscription status: %w", err)
		}
		found = true

		evt := s.statusEvent(contracts.ResourceSubscription, subscriptionID, providerSubscriptionID, string(status))
		return insertOutbox(ctx, tx, evt)
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
