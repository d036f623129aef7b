package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/daffadevhosting/paypal-workers/pkg/contracts"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("23505")))
}

func TestStatusEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	s := &Store{now: func() time.Time { return at }}

	evt := s.statusEvent(contracts.ResourceOrder, "o-1", "PO1", "COMPLETED")

	assert.NotEmpty(t, evt.EventID)
	assert.Equal(t, contracts.ResourceOrder, evt.ResourceType)
	assert.Equal(t, "o-1", evt.ResourceID)
	assert.Equal(t, "PO1", evt.ProviderID)
	assert.Equal(t, "COMPLETED", evt.Status)
	assert.Equal(t, time.UTC, evt.ChangedAt.Location())
	assert.True(t, evt.ChangedAt.Equal(at))

	other := s.statusEvent(contracts.ResourceOrder, "o-1", "PO1", "COMPLETED")
	assert.NotEqual(t, evt.EventID, other.EventID)
}
