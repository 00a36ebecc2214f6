package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in
	// the store. Entity-specific variants wrap it.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a
	// duplicate of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrNoPendingJobs is returned by ClaimNext when the queue holds no
	// pending job, including when a concurrent claimer won the race.
	ErrNoPendingJobs = errors.New("no pending jobs")

	// ErrJobNotCancellable is returned when cancellation is attempted on
	// a running job. Running jobs must finish; only pending jobs can be
	// cancelled.
	ErrJobNotCancellable = errors.New("job is running and cannot be cancelled")

	// ErrJobTerminal is returned when a terminal transition is attempted
	// on a job that has already reached a terminal state.
	ErrJobTerminal = errors.New("job already in terminal state")

	// ErrInsufficientCredits is returned when a conditional debit would
	// take a client's balance below zero.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// Entity-specific "not found" errors

	ErrJobNotFound     = fmt.Errorf("%w: job", ErrNotFound)
	ErrClientNotFound  = fmt.Errorf("%w: client", ErrNotFound)
	ErrAccountNotFound = fmt.Errorf("%w: account", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
