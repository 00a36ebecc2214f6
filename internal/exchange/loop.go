package exchange

import (
	"context"
	"log/slog"
	"time"

	"github.com/promoloop/exchange-api/internal/partner"
)

// maxConsecutiveFailures aborts an account's loop after this many post
// failures in a row.
const maxConsecutiveFailures = 3

// FetchFunc returns the current remote task list for the account.
type FetchFunc func(ctx context.Context) ([]partner.Task, error)

// PostFunc executes one task: posts the comment and confirms it.
type PostFunc func(ctx context.Context, task partner.Task) error

// LoopConfig bounds one account's execution loop.
type LoopConfig struct {
	MaxComments int
	Delay       time.Duration

	// Hook runs after each successful post. Returning false stops the
	// loop without an error; the scheduler uses this to enforce credit
	// ceilings.
	Hook func() bool
}

// LoopResult reports how an account's loop ended.
type LoopResult struct {
	CommentsPosted int
	StoppedEarly   bool

	// CeilingReached is set when the completion hook stopped the loop.
	CeilingReached bool
}

// RunLoop works through the account's pending tasks until the comment
// budget is reached, the task list runs dry, the hook declines, or
// three consecutive failures occur. The delay applies between
// successful posts, not after the final one. The only error returned is
// context cancellation.
func RunLoop(ctx context.Context, cfg LoopConfig, fetch FetchFunc, post PostFunc, log *slog.Logger) (LoopResult, error) {
	var result LoopResult
	done := make(map[string]bool)
	failures := 0

	for result.CommentsPosted < cfg.MaxComments && failures < maxConsecutiveFailures {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		tasks, err := fetch(ctx)
		if err != nil {
			log.Warn("failed to fetch task list", "error", err)
			failures++
			if failures >= maxConsecutiveFailures {
				break
			}
			if sleepErr := sleep(ctx, cfg.Delay); sleepErr != nil {
				return result, sleepErr
			}
			continue
		}

		task, ok := selectTask(tasks, done)
		if !ok {
			// Nothing eligible left; a drained task list is not a failure.
			return result, nil
		}

		if err := post(ctx, task); err != nil {
			log.Warn("failed to execute task", "task_id", task.ID, "error", err)
			failures++
			if failures >= maxConsecutiveFailures {
				break
			}
			if sleepErr := sleep(ctx, cfg.Delay); sleepErr != nil {
				return result, sleepErr
			}
			continue
		}

		done[task.ID] = true
		result.CommentsPosted++
		failures = 0

		if cfg.Hook != nil && !cfg.Hook() {
			result.StoppedEarly = true
			result.CeilingReached = true
			return result, nil
		}
		if result.CommentsPosted < cfg.MaxComments {
			if sleepErr := sleep(ctx, cfg.Delay); sleepErr != nil {
				return result, sleepErr
			}
		}
	}

	if failures >= maxConsecutiveFailures {
		result.StoppedEarly = true
	}
	return result, nil
}

// selectTask returns the first task not already completed in this run
// that has both comment text and a target.
func selectTask(tasks []partner.Task, done map[string]bool) (partner.Task, bool) {
	for _, task := range tasks {
		if done[task.ID] {
			continue
		}
		if task.Comment == "" || task.Target == "" {
			continue
		}
		return task, true
	}
	return partner.Task{}, false
}
