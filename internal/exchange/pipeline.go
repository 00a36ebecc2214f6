package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/partner"
	"github.com/promoloop/exchange-api/internal/steamweb"
	"github.com/promoloop/exchange-api/internal/store"
)

// RunParams bounds one pipeline run.
type RunParams struct {
	// Key is the partner API key the run operates under.
	Key string

	MaxCommentsPerAccount int
	AccountLimit          int

	// Hook runs after each successful post across all accounts;
	// returning false stops the whole run.
	Hook func() bool
}

// RunReport is the outcome of one pipeline run.
type RunReport struct {
	Summary       *domain.JobSummary
	TotalComments int

	// ProfileIDs lists the remote profiles registered during this run,
	// for post-run cleanup.
	ProfileIDs []string
}

// Runner is the pipeline surface the scheduler depends on.
type Runner interface {
	Run(ctx context.Context, params RunParams) (*RunReport, error)
	Cleanup(ctx context.Context, key string, profileIDs []string) *domain.CleanupResult
}

// Pipeline runs the automation flow over the managed account pool:
// authenticate, register the remote profile, then work the task list.
type Pipeline struct {
	accounts store.AccountStore
	partner  partner.API
	sessions steamweb.SessionFactory
	auth     *Authenticator
	delay    time.Duration
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline. delay is the inter-comment pacing.
func NewPipeline(
	accounts store.AccountStore,
	partnerAPI partner.API,
	sessions steamweb.SessionFactory,
	auth *Authenticator,
	delay time.Duration,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		accounts: accounts,
		partner:  partnerAPI,
		sessions: sessions,
		auth:     auth,
		delay:    delay,
		logger:   logger.With("component", "pipeline"),
	}
}

var _ Runner = (*Pipeline)(nil)

// Run executes the pipeline. Account-level failures are recorded in the
// summary and never abort the run; only context cancellation and a
// failed account listing propagate as errors.
func (p *Pipeline) Run(ctx context.Context, params RunParams) (*RunReport, error) {
	accounts, err := p.accounts.List(ctx, params.AccountLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list managed accounts: %w", err)
	}

	report := &RunReport{Summary: &domain.JobSummary{}}

	for _, acct := range accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		posted, ceiling, acctErr := p.runAccount(ctx, params, acct, report)
		result := domain.AccountResult{
			Account:        acct.Username,
			CommentsPosted: posted,
		}
		if acctErr != nil {
			if ctx.Err() != nil {
				return nil, acctErr
			}
			result.Error = acctErr.Error()
		}
		report.Summary.Accounts = append(report.Summary.Accounts, result)
		report.TotalComments += posted

		if ceiling {
			p.logger.Info("credit ceiling reached, stopping run",
				"total_comments", report.TotalComments)
			break
		}
	}

	return report, nil
}

// runAccount authenticates one account and drives its execution loop.
// The bool result reports whether the credit ceiling stopped the run.
func (p *Pipeline) runAccount(
	ctx context.Context,
	params RunParams,
	acct *domain.Account,
	report *RunReport,
) (int, bool, error) {
	log := p.logger.With("account", acct.Username)

	sess, err := p.sessions()
	if err != nil {
		return 0, false, fmt.Errorf("failed to open session: %w", err)
	}

	state, err := p.auth.Login(ctx, sess, acct)
	if state != LoginAuthenticated {
		if err != nil {
			return 0, false, fmt.Errorf("%s: %w", state, err)
		}
		return 0, false, fmt.Errorf("%s", state)
	}

	profileID := sess.ProfileID()
	if profileID == "" {
		return 0, false, fmt.Errorf("session has no profile id")
	}

	if err := p.partner.AddProfile(ctx, params.Key, profileID); err != nil {
		return 0, false, fmt.Errorf("failed to register profile: %w", err)
	}
	report.ProfileIDs = append(report.ProfileIDs, profileID)

	fetch := func(ctx context.Context) ([]partner.Task, error) {
		return p.partner.PendingTasks(ctx, params.Key, profileID)
	}
	post := func(ctx context.Context, task partner.Task) error {
		if err := sess.PostComment(ctx, task.Target, task.Comment); err != nil {
			return err
		}
		if err := p.partner.CompleteTask(ctx, params.Key, task.ID); err != nil {
			// The comment is live; an unconfirmed task only costs exchange
			// credit on the partner side.
			log.Warn("comment posted but task confirmation failed",
				"task_id", task.ID, "error", err)
		}
		if err := p.accounts.TouchComment(ctx, acct.ID, time.Now().UTC()); err != nil {
			log.Warn("failed to record comment time", "error", err)
		}
		return nil
	}

	result, err := RunLoop(ctx, LoopConfig{
		MaxComments: params.MaxCommentsPerAccount,
		Delay:       p.delay,
		Hook:        params.Hook,
	}, fetch, post, log)
	if err != nil {
		return result.CommentsPosted, result.CeilingReached, err
	}

	log.Info("account run finished",
		"comments_posted", result.CommentsPosted,
		"stopped_early", result.StoppedEarly)
	return result.CommentsPosted, result.CeilingReached, nil
}

// Cleanup deprovisions the profiles registered during a run. It is
// best-effort: every failure is recorded and none aborts the rest.
func (p *Pipeline) Cleanup(ctx context.Context, key string, profileIDs []string) *domain.CleanupResult {
	result := &domain.CleanupResult{}
	for _, id := range profileIDs {
		if err := p.partner.RemoveProfile(ctx, key, id); err != nil {
			p.logger.Warn("failed to deprovision profile", "profile_id", id, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		result.Removed++
	}
	return result
}
