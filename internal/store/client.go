package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/domain"
)

// ClientStore defines read and credit-mutation access to client records.
// All other client fields are owned by the dashboard and are read-only
// here.
type ClientStore interface {
	// Get retrieves a client by ID. Returns ErrClientNotFound if the
	// client does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Client, error)

	// DebitCredits decrements the client's balance by amount using a
	// conditional update. Returns ErrInsufficientCredits when the
	// balance is too low and ErrClientNotFound when the client does not
	// exist.
	DebitCredits(ctx context.Context, id uuid.UUID, amount int) error
}
