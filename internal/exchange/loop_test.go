package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/promoloop/exchange-api/internal/partner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticFetch(tasks []partner.Task) FetchFunc {
	return func(ctx context.Context) ([]partner.Task, error) {
		return tasks, nil
	}
}

func countingPost(posted *[]string) PostFunc {
	return func(ctx context.Context, task partner.Task) error {
		*posted = append(*posted, task.ID)
		return nil
	}
}

func TestRunLoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tasks := []partner.Task{
		{ID: "t1", Target: "100", Comment: "nice"},
		{ID: "t2", Target: "101", Comment: "+rep"},
		{ID: "t3", Target: "102", Comment: "great"},
	}

	t.Run("stops at the comment budget", func(t *testing.T) {
		t.Parallel()
		var posted []string

		result, err := RunLoop(ctx, LoopConfig{MaxComments: 2}, staticFetch(tasks), countingPost(&posted), testLogger())

		require.NoError(t, err)
		assert.Equal(t, 2, result.CommentsPosted)
		assert.False(t, result.StoppedEarly)
		assert.Equal(t, []string{"t1", "t2"}, posted, "each task executed once, in order")
	})

	t.Run("drained task list is a normal stop", func(t *testing.T) {
		t.Parallel()
		var posted []string

		result, err := RunLoop(ctx, LoopConfig{MaxComments: 10}, staticFetch(tasks), countingPost(&posted), testLogger())

		require.NoError(t, err)
		assert.Equal(t, 3, result.CommentsPosted)
		assert.False(t, result.StoppedEarly)
	})

	t.Run("hook decline stops the loop as a ceiling", func(t *testing.T) {
		t.Parallel()
		var posted []string
		allowed := 1
		cfg := LoopConfig{
			MaxComments: 10,
			Hook: func() bool {
				allowed--
				return allowed > 0
			},
		}

		result, err := RunLoop(ctx, cfg, staticFetch(tasks), countingPost(&posted), testLogger())

		require.NoError(t, err)
		assert.Equal(t, 1, result.CommentsPosted)
		assert.True(t, result.StoppedEarly)
		assert.True(t, result.CeilingReached)
	})

	t.Run("three consecutive failures abort the loop", func(t *testing.T) {
		t.Parallel()
		calls := 0
		post := func(ctx context.Context, task partner.Task) error {
			calls++
			return errors.New("comment rejected")
		}

		result, err := RunLoop(ctx, LoopConfig{MaxComments: 10}, staticFetch(tasks), post, testLogger())

		require.NoError(t, err)
		assert.Zero(t, result.CommentsPosted)
		assert.True(t, result.StoppedEarly)
		assert.False(t, result.CeilingReached)
		assert.Equal(t, 3, calls)
	})

	t.Run("a success resets the failure streak", func(t *testing.T) {
		t.Parallel()
		calls := 0
		// Fail twice before every success; never three in a row.
		post := func(ctx context.Context, task partner.Task) error {
			calls++
			if calls%3 != 0 {
				return errors.New("comment rejected")
			}
			return nil
		}

		result, err := RunLoop(ctx, LoopConfig{MaxComments: 3}, staticFetch(tasks), post, testLogger())

		require.NoError(t, err)
		assert.Equal(t, 3, result.CommentsPosted)
		assert.False(t, result.StoppedEarly)
	})

	t.Run("skips tasks without a target or comment", func(t *testing.T) {
		t.Parallel()
		var posted []string
		mixed := []partner.Task{
			{ID: "t1", Target: "", Comment: "orphaned"},
			{ID: "t2", Target: "101", Comment: ""},
			{ID: "t3", Target: "102", Comment: "valid"},
		}

		result, err := RunLoop(ctx, LoopConfig{MaxComments: 10}, staticFetch(mixed), countingPost(&posted), testLogger())

		require.NoError(t, err)
		assert.Equal(t, 1, result.CommentsPosted)
		assert.Equal(t, []string{"t3"}, posted)
	})

	t.Run("persistent fetch failures abort the loop", func(t *testing.T) {
		t.Parallel()
		fetch := func(ctx context.Context) ([]partner.Task, error) {
			return nil, errors.New("exchange unreachable")
		}

		result, err := RunLoop(ctx, LoopConfig{MaxComments: 10}, fetch, countingPost(&[]string{}), testLogger())

		require.NoError(t, err)
		assert.Zero(t, result.CommentsPosted)
		assert.True(t, result.StoppedEarly)
	})

	t.Run("cancellation propagates", func(t *testing.T) {
		t.Parallel()
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := RunLoop(cancelCtx, LoopConfig{MaxComments: 10}, staticFetch(tasks), countingPost(&[]string{}), testLogger())
		assert.ErrorIs(t, err, context.Canceled)
	})
}
