package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/store"
)

// AdmissionError rejects a job before execution. The job is terminally
// failed with the reason and never retried.
type AdmissionError struct {
	Reason string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("job rejected: %s", e.Reason)
}

// ClientFilter optionally rejects clients beyond the built-in checks.
// Returning false rejects the client.
type ClientFilter func(client *domain.Client) bool

// admit resolves the job's owner and checks every admission rule. It
// returns the client on success or an AdmissionError describing the
// rejection.
func (s *Scheduler) admit(ctx context.Context, ownerID uuid.UUID) (*domain.Client, error) {
	client, err := s.clients.Get(ctx, ownerID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, &AdmissionError{Reason: "client not found"}
		}
		return nil, fmt.Errorf("failed to resolve client: %w", err)
	}

	switch {
	case client.Status == domain.ClientBlocked:
		return nil, &AdmissionError{Reason: "client is blocked"}
	case s.filter != nil && !s.filter(client):
		return nil, &AdmissionError{Reason: "client rejected by filter"}
	case client.Status != domain.ClientActive:
		return nil, &AdmissionError{Reason: "client is not active"}
	case client.PartnerKey == "":
		return nil, &AdmissionError{Reason: "client has no automation key"}
	case !client.IsAdmin() && client.Credits <= 0:
		return nil, &AdmissionError{Reason: "client has no credits"}
	}

	return client, nil
}
