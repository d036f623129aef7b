package storage

import (
	"context"
	"fmt"

	"github.com/daffadevhosting/paypal-workers/internal/webhook"

	"github.com/jackc/pgx/v5"
)

func (s *Store) InsertWebhookEvent(ctx context.Context, rec webhook.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_events (event_id, event_type, resource_type, resource_id, summary, event_data, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.EventType, rec.ResourceType, rec.ResourceID, rec.Summary, rec.Payload, rec.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// ListWebhookEvents returns the newest events first.
func (s *Store) ListWebhookEvents(ctx context.Context, limit int) ([]webhook.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, event_type, resource_type, resource_id, summary, event_data, received_at
		FROM webhook_events
		ORDER BY received_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query webhook events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (webhook.Record, error) {
		var rec webhook.Record
		err := r.Scan(&rec.ID, &rec.EventType, &rec.ResourceType, &rec.ResourceID, &rec.Summary, &rec.Payload, &rec.ReceivedAt)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan webhook events: %w", err)
	}
	return events, nil
}
