package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/daffadevhosting/paypal-workers/internal/order"
	"github.com/daffadevhosting/paypal-workers/pkg/contracts"

	"github.com/jackc/pgx/v5"
)

const orderColumns = `
	o.order_id, o.customer_id, o.paypal_order_id, o.status,
	o.amount::text, o.currency, o.items, o.created_at, o.updated_at`

func scanOrder(row pgx.Row, o *order.Order, extra ...any) error {
	dest := []any{
		&o.ID, &o.CustomerID, &o.ProviderOrderID, &o.Status,
		&o.Amount, &o.Currency, &o.Items, &o.CreatedAt, &o.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func (s *Store) InsertOrder(ctx context.Context, o *order.Order) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO orders (order_id, customer_id, paypal_order_id, status, amount, currency, items)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		o.ID, o.CustomerID, o.ProviderOrderID, o.Status, o.Amount, o.Currency, o.Items,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: paypal order %s", order.ErrOrderExists, o.ProviderOrderID)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	return s.getOrder(ctx, `WHERE o.order_id = $1`, orderID)
}

// FindOrderByProviderID looks an order up by the provider's order id.
func (s *Store) FindOrderByProviderID(ctx context.Context, providerOrderID string) (*order.Order, error) {
	return s.getOrder(ctx, `WHERE o.paypal_order_id = $1`, providerOrderID)
}

func (s *Store) getOrder(ctx context.Context, where string, arg string) (*order.Order, error) {
	var o order.Order
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o `+where, arg)
	if err := scanOrder(row, &o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	return &o, nil
}

func (s *Store) GetOrderDetails(ctx context.Context, orderID string) (*order.Details, error) {
	var d order.Details
	row := s.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`, COALESCE(c.email, ''), COALESCE(c.name, '')
		FROM orders o
		LEFT JOIN customers c ON c.customer_id = o.customer_id
		WHERE o.order_id = $1`, orderID)
	if err := scanOrder(row, &d.Order, &d.Email, &d.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order details: %w", err)
	}
	return &d, nil
}

// UpdateOrderStatus sets the order status, stores txn when given and queues
// a status notification, all in one transaction.
func (s *Store) UpdateOrderStatus(ctx context.Context, o *order.Order, status order.Status, txn *order.Transaction) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders
			SET status = $2, updated_at = NOW()
			WHERE order_id = $1`,
			o.ID, status,
		)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrOrderNotFound
		}

		if txn != nil {
			err = tx.QueryRow(ctx, `
				INSERT INTO transactions (transaction_id, order_id, amount, currency, status, paypal_transaction_id)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING created_at`,
				txn.ID, txn.OrderID, txn.Amount, txn.Currency, txn.Status, txn.ProviderTransactionID,
			).Scan(&txn.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert transaction: %w", err)
			}
		}

		evt := s.statusEvent(contracts.ResourceOrder, o.ID, o.ProviderOrderID, string(status))
		return insertOutbox(ctx, tx, evt)
	})
}

// ListTransactions returns the transactions of one order, oldest first.
func (s *Store) ListTransactions(ctx context.Context, orderID string) ([]order.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT transaction_id, order_id, amount::text, currency, status, paypal_transaction_id, created_at
		FROM transactions
		WHERE order_id = $1
		ORDER BY created_at, transaction_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	txns, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (order.Transaction, error) {
		var t order.Transaction
		err := r.Scan(&t.ID, &t.OrderID, &t.Amount, &t.Currency, &t.Status, &t.ProviderTransactionID, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}
	return txns, nil
}
