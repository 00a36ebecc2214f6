// Package scheduler orchestrates job execution: an unconditional
// operator pass followed by a single-worker drain of the job queue,
// gated by admission rules and credit metering.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/exchange"
	"github.com/promoloop/exchange-api/internal/notify"
	"github.com/promoloop/exchange-api/internal/store"
)

// terminalJobsKept is how many finished jobs survive the post-drain
// prune.
const terminalJobsKept = 200

// Scheduler runs the two-phase pass: operator first, then queue drain.
type Scheduler struct {
	jobs     store.JobStore
	clients  store.ClientStore
	pipeline exchange.Runner
	notifier notify.Emitter
	filter   ClientFilter
	logger   *slog.Logger

	// operatorKey is the partner key for the operator's own pool; empty
	// disables the operator pass.
	operatorKey string
}

// New creates a Scheduler.
func New(
	jobs store.JobStore,
	clients store.ClientStore,
	pipeline exchange.Runner,
	notifier notify.Emitter,
	operatorKey string,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		jobs:        jobs,
		clients:     clients,
		pipeline:    pipeline,
		notifier:    notifier,
		operatorKey: operatorKey,
		logger:      logger.With("component", "scheduler"),
	}
}

// SetClientFilter installs an additional admission filter.
func (s *Scheduler) SetClientFilter(filter ClientFilter) {
	s.filter = filter
}

// RunPass executes one full scheduler pass: the operator pass, the
// queue drain, and the terminal-job prune. Per-job failures never abort
// the pass; only context cancellation does.
func (s *Scheduler) RunPass(ctx context.Context) error {
	if err := s.operatorPass(ctx); err != nil {
		return err
	}
	if err := s.drain(ctx); err != nil {
		return err
	}

	if pruned, err := s.jobs.PruneTerminal(ctx, terminalJobsKept); err != nil {
		s.logger.Warn("failed to prune terminal jobs", "error", err)
	} else if pruned > 0 {
		s.logger.Info("pruned terminal jobs", "count", pruned)
	}
	return nil
}

// operatorPass runs the pipeline for the operator's own pool. It is
// never queued and never metered.
func (s *Scheduler) operatorPass(ctx context.Context) error {
	if s.operatorKey == "" {
		return nil
	}

	s.logger.Info("running operator pass")
	report, err := s.pipeline.Run(ctx, exchange.RunParams{
		Key:                   s.operatorKey,
		MaxCommentsPerAccount: domain.MaxCommentsPerAccount,
		AccountLimit:          domain.MaxAccountLimit,
	})

	event := notify.NewEvent(notify.EventOwnerCompleted)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.logger.Error("operator pass failed", "error", err)
		event.Error = err.Error()
		s.notifier.Emit(ctx, event)
		return nil
	}

	s.logger.Info("operator pass finished", "total_comments", report.TotalComments)
	event.Summary = report.Summary
	s.notifier.Emit(ctx, event)

	cleanup := s.pipeline.Cleanup(ctx, s.operatorKey, report.ProfileIDs)
	s.logger.Info("operator cleanup finished",
		"removed", cleanup.Removed, "failed", len(cleanup.Errors))
	return nil
}

// drain claims and executes queued jobs one at a time until the queue
// is empty. Claim order is enqueue order, so no job is skipped: a
// rejected job is still terminally resolved.
func (s *Scheduler) drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := s.jobs.ClaimNext(ctx)
		if errors.Is(err, store.ErrNoPendingJobs) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to claim next job: %w", err)
		}

		if err := s.runJob(ctx, job); err != nil {
			return err
		}
	}
}

// runJob executes one claimed job end to end. All failures terminate
// only this job; the returned error is context cancellation only.
func (s *Scheduler) runJob(ctx context.Context, job *domain.Job) error {
	log := s.logger.With("job_id", job.ID, "owner_id", job.OwnerID)
	log.Info("job claimed")

	client, err := s.admit(ctx, job.OwnerID)
	if err != nil {
		var rejection *AdmissionError
		if errors.As(err, &rejection) {
			log.Info("job rejected", "reason", rejection.Reason)
			s.resolveFailed(ctx, job, client, rejection.Reason)
			return nil
		}
		log.Error("failed to admit job", "error", err)
		s.resolveFailed(ctx, job, client, err.Error())
		return nil
	}

	meter := NewCreditMeter(client.Credits, client.IsAdmin())
	report, err := s.pipeline.Run(ctx, exchange.RunParams{
		Key:                   client.PartnerKey,
		MaxCommentsPerAccount: job.MaxCommentsPerAccount,
		AccountLimit:          job.AccountLimit,
		Hook:                  meter.Allow,
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		log.Error("job pipeline failed", "error", err)
		s.resolveFailed(ctx, job, client, err.Error())
		return nil
	}

	consumed := meter.Consumed(report.TotalComments)
	if consumed > 0 {
		if err := s.clients.DebitCredits(ctx, client.ID, consumed); err != nil {
			log.Error("failed to debit credits", "consumed", consumed, "error", err)
		}
	}

	// Cleanup runs regardless of how the debit went.
	cleanup := s.pipeline.Cleanup(ctx, client.PartnerKey, report.ProfileIDs)

	if err := s.jobs.Complete(ctx, job.ID, store.CompleteParams{
		Summary:         report.Summary,
		Cleanup:         cleanup,
		CreditsConsumed: consumed,
		TotalComments:   report.TotalComments,
	}); err != nil {
		log.Error("failed to mark job completed", "error", err)
	}

	log.Info("job completed",
		"total_comments", report.TotalComments,
		"credits_consumed", consumed)

	event := notify.NewEvent(notify.EventJobCompleted)
	event.Job = job
	event.Client = client
	event.Summary = report.Summary
	s.notifier.Emit(ctx, event)
	return nil
}

// resolveFailed terminally fails the job and notifies. Used for both
// admission rejections and pipeline failures.
func (s *Scheduler) resolveFailed(ctx context.Context, job *domain.Job, client *domain.Client, reason string) {
	if err := s.jobs.Fail(ctx, job.ID, reason); err != nil {
		s.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
	}

	event := notify.NewEvent(notify.EventJobFailed)
	event.Job = job
	event.Client = client
	event.Error = reason
	s.notifier.Emit(ctx, event)
}
