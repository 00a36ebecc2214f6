package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/domain"
)

// AccountStore defines persistence for managed automation identities.
type AccountStore interface {
	// List returns up to limit accounts, oldest first. A limit of zero
	// or less returns all accounts.
	List(ctx context.Context, limit int) ([]*domain.Account, error)

	// UpdateSession persists freshly issued session cookies so a future
	// run can resume without a full re-login.
	UpdateSession(ctx context.Context, id uuid.UUID, cookies string) error

	// TouchComment records the time of the account's latest comment.
	TouchComment(ctx context.Context, id uuid.UUID, at time.Time) error

	// Delete permanently removes an account. Used when a login failure
	// is classified as a fatal credential error.
	Delete(ctx context.Context, id uuid.UUID) error
}
