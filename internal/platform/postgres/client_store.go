package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/store"
)

// PostgresClientStore implements the store.ClientStore interface using
// PostgreSQL. The clients table is shared with the dashboard; the core
// only reads it and debits credits.
type PostgresClientStore struct {
	db store.DBTX
}

// NewPostgresClientStore creates a new PostgresClientStore.
func NewPostgresClientStore(db store.DBTX) *PostgresClientStore {
	return &PostgresClientStore{db: db}
}

var _ store.ClientStore = (*PostgresClientStore)(nil)

// Get retrieves a client by ID.
func (s *PostgresClientStore) Get(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	query := `
		SELECT id, name, role, status, credits, partner_key, notify_url, created_at, updated_at
		FROM clients
		WHERE id = $1
	`

	var (
		client     domain.Client
		partnerKey sql.NullString
		notifyURL  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&client.ID,
		&client.Name,
		&client.Role,
		&client.Status,
		&client.Credits,
		&partnerKey,
		&notifyURL,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	client.PartnerKey = partnerKey.String
	client.NotifyURL = notifyURL.String
	return &client, nil
}

// DebitCredits decrements the balance with a conditional update so it
// can never go negative.
func (s *PostgresClientStore) DebitCredits(ctx context.Context, id uuid.UUID, amount int) error {
	if amount <= 0 {
		return nil
	}

	query := `
		UPDATE clients
		SET credits = credits - $1, updated_at = $2
		WHERE id = $3 AND credits >= $1
	`
	result, err := s.db.ExecContext(ctx, query, amount, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to debit credits: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return store.ErrInsufficientCredits
}
