package api

import (
	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/store"
)

// EnqueueRunRequest is the body for POST /runs.
type EnqueueRunRequest struct {
	MaxCommentsPerAccount int `json:"max_comments_per_account"`
	AccountLimit          int `json:"account_limit"`
}

// EnqueueRunResponse reports the enqueue outcome.
type EnqueueRunResponse struct {
	Job           *domain.Job `json:"job"`
	AlreadyQueued bool        `json:"already_queued"`
}

// QueueStatusResponse reports an owner's standing in the queue.
type QueueStatusResponse struct {
	Job             *domain.Job `json:"job"`
	Position        int         `json:"position"`
	JobsAhead       int         `json:"jobs_ahead"`
	EstimatedWaitMs int64       `json:"estimated_wait_ms"`
}

// SnapshotResponse is the admin queue view.
type SnapshotResponse struct {
	Active            []*domain.Job `json:"active"`
	RecentTerminal    []*domain.Job `json:"recent_terminal"`
	AverageDurationMs int64         `json:"average_duration_ms"`
}

func newQueueStatusResponse(status *store.OwnerQueueStatus) QueueStatusResponse {
	return QueueStatusResponse{
		Job:             status.Job,
		Position:        status.Position,
		JobsAhead:       status.JobsAhead,
		EstimatedWaitMs: status.EstimatedWait.Milliseconds(),
	}
}

func newSnapshotResponse(snapshot *store.QueueSnapshot) SnapshotResponse {
	return SnapshotResponse{
		Active:            snapshot.Active,
		RecentTerminal:    snapshot.RecentTerminal,
		AverageDurationMs: snapshot.AverageDuration.Milliseconds(),
	}
}
