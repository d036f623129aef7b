package storage

import (
	"context"
	"fmt"

	"github.com/daffadevhosting/paypal-workers/internal/customer"
)

// UpsertCustomer inserts the customer once. Later calls with the same id keep
// the stored email and name.
func (s *Store) UpsertCustomer(ctx context.Context, c customer.Customer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (customer_id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id) DO NOTHING`,
		c.ID, c.Email, c.Name,
	)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}
