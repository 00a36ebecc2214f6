package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/platform/logger"
	"github.com/promoloop/exchange-api/internal/store"
)

// PostgresAccountStore implements the store.AccountStore interface
// using PostgreSQL.
type PostgresAccountStore struct {
	db store.DBTX
}

// NewPostgresAccountStore creates a new PostgresAccountStore.
func NewPostgresAccountStore(db store.DBTX) *PostgresAccountStore {
	return &PostgresAccountStore{db: db}
}

var _ store.AccountStore = (*PostgresAccountStore)(nil)

// List returns up to limit accounts, oldest first.
func (s *PostgresAccountStore) List(ctx context.Context, limit int) ([]*domain.Account, error) {
	query := `
		SELECT id, username, password, shared_secret, session_cookies, last_comment_at, created_at, updated_at
		FROM accounts
		ORDER BY created_at ASC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []*domain.Account
	for rows.Next() {
		var (
			acct          domain.Account
			sharedSecret  sql.NullString
			cookies       sql.NullString
			lastCommentAt sql.NullTime
		)
		if err := rows.Scan(
			&acct.ID,
			&acct.Username,
			&acct.Password,
			&sharedSecret,
			&cookies,
			&lastCommentAt,
			&acct.CreatedAt,
			&acct.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		acct.SharedSecret = sharedSecret.String
		acct.SessionCookies = cookies.String
		if lastCommentAt.Valid {
			t := lastCommentAt.Time
			acct.LastCommentAt = &t
		}
		accounts = append(accounts, &acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}
	return accounts, nil
}

// UpdateSession persists freshly issued session cookies.
func (s *PostgresAccountStore) UpdateSession(ctx context.Context, id uuid.UUID, cookies string) error {
	return s.exec(ctx, id,
		`UPDATE accounts SET session_cookies = $1, updated_at = $2 WHERE id = $3`,
		cookies, time.Now().UTC(), id)
}

// TouchComment records the account's latest comment time.
func (s *PostgresAccountStore) TouchComment(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.exec(ctx, id,
		`UPDATE accounts SET last_comment_at = $1, updated_at = $2 WHERE id = $3`,
		at, time.Now().UTC(), id)
}

// Delete permanently removes an account from the pool.
func (s *PostgresAccountStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrAccountNotFound
	}

	log.Info("account removed from managed pool", "account_id", id)
	return nil
}

func (s *PostgresAccountStore) exec(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrAccountNotFound
	}
	return nil
}
