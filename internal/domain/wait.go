package domain

import "time"

// Wait estimation constants.
const (
	// DefaultJobDuration is assumed when no completed-job history
	// exists yet.
	DefaultJobDuration = 5 * time.Minute

	// MinRemainingWait is the floor reported for a job that has already
	// been running longer than the historical average.
	MinRemainingWait = 30 * time.Second
)

// EstimateWait computes the expected wait for an owner's queued job.
//
// For a pending job the estimate is jobsAhead times the moving average
// duration of recent completed jobs. For the owner's own running job it
// is the average minus elapsed time, floored at MinRemainingWait.
func EstimateWait(jobsAhead int, avg, runningElapsed time.Duration, ownRunning bool) time.Duration {
	if avg <= 0 {
		avg = DefaultJobDuration
	}

	if ownRunning {
		remaining := avg - runningElapsed
		if remaining < MinRemainingWait {
			remaining = MinRemainingWait
		}
		return remaining
	}

	return time.Duration(jobsAhead) * avg
}
