package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	t.Parallel()

	t.Run("creates a pending job with valid limits", func(t *testing.T) {
		t.Parallel()
		owner := uuid.New()

		job, err := NewJob(owner, 10, 5)

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, owner, job.OwnerID)
		assert.Equal(t, JobCommandRunTasks, job.Command)
		assert.Equal(t, JobStatusPending, job.Status)
		assert.Equal(t, 10, job.MaxCommentsPerAccount)
		assert.Equal(t, 5, job.AccountLimit)
		assert.False(t, job.EnqueuedAt.IsZero())
	})

	t.Run("clamps limits below the minimum", func(t *testing.T) {
		t.Parallel()

		job, err := NewJob(uuid.New(), 0, -3)

		require.NoError(t, err)
		assert.Equal(t, MinCommentsPerAccount, job.MaxCommentsPerAccount)
		assert.Equal(t, MinAccountLimit, job.AccountLimit)
	})

	t.Run("clamps limits above the maximum", func(t *testing.T) {
		t.Parallel()

		job, err := NewJob(uuid.New(), 5000, 500)

		require.NoError(t, err)
		assert.Equal(t, MaxCommentsPerAccount, job.MaxCommentsPerAccount)
		assert.Equal(t, MaxAccountLimit, job.AccountLimit)
	})

	t.Run("rejects a nil owner", func(t *testing.T) {
		t.Parallel()

		job, err := NewJob(uuid.Nil, 10, 5)

		assert.ErrorIs(t, err, ErrEmptyOwnerID)
		assert.Nil(t, job)
	})
}

func TestJobValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Job {
		return &Job{
			ID:      uuid.New(),
			OwnerID: uuid.New(),
			Status:  JobStatusPending,
		}
	}

	t.Run("accepts a valid job", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects an empty ID", func(t *testing.T) {
		t.Parallel()
		job := valid()
		job.ID = uuid.Nil
		assert.ErrorIs(t, job.Validate(), ErrEmptyJobID)
	})

	t.Run("rejects an empty owner", func(t *testing.T) {
		t.Parallel()
		job := valid()
		job.OwnerID = uuid.Nil
		assert.ErrorIs(t, job.Validate(), ErrEmptyOwnerID)
	})

	t.Run("rejects an unknown status", func(t *testing.T) {
		t.Parallel()
		job := valid()
		job.Status = JobStatus("paused")
		assert.ErrorIs(t, job.Validate(), ErrUnknownStatus)
	})
}

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusPending, false},
		{JobStatusRunning, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
		{JobStatusCancelled, true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.terminal, tc.status.Terminal(), "status %s", tc.status)
		assert.True(t, tc.status.Valid(), "status %s", tc.status)
	}

	assert.False(t, JobStatus("bogus").Valid())
}
