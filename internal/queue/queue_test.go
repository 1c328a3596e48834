package queue

import (
	"testing"
	"time"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueue(t *testing.T, cfg Config) *Queue {
	t.Helper()
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 10
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Second
	}
	return New(cfg, zap.NewNop())
}

func TestNextJobPriorityOrder(t *testing.T) {
	q := newTestQueue(t, Config{})

	q.Add(uuid.New(), "a.mp4", 20)
	q.Add(uuid.New(), "b.mp4", 5)
	q.Add(uuid.New(), "c.mp4", 10)

	first := q.NextJob()
	require.NotNil(t, first)
	assert.Equal(t, 5, first.Priority)

	second := q.NextJob()
	require.NotNil(t, second)
	assert.Equal(t, 10, second.Priority)

	third := q.NextJob()
	require.NotNil(t, third)
	assert.Equal(t, 20, third.Priority)

	assert.Nil(t, q.NextJob())
}

func TestNextJobFIFOAtEqualPriority(t *testing.T) {
	q := newTestQueue(t, Config{})

	firstID := q.Add(uuid.New(), "a.mp4", entity.DefaultPriority)
	secondID := q.Add(uuid.New(), "b.mp4", entity.DefaultPriority)

	job := q.NextJob()
	require.NotNil(t, job)
	assert.Equal(t, firstID, job.ID)

	job = q.NextJob()
	require.NotNil(t, job)
	assert.Equal(t, secondID, job.ID)
}

func TestNextJobRespectsConcurrencyBound(t *testing.T) {
	q := newTestQueue(t, Config{Concurrency: 2})

	q.Add(uuid.New(), "a.mp4", 1)
	q.Add(uuid.New(), "b.mp4", 2)
	q.Add(uuid.New(), "c.mp4", 3)

	first := q.NextJob()
	require.NotNil(t, first)
	require.NotNil(t, q.NextJob())
	assert.Nil(t, q.NextJob(), "processing set is full")

	q.Complete(first.ID)
	assert.NotNil(t, q.NextJob(), "slot freed after completion")
}

func TestJobMarkedProcessingOnDequeue(t *testing.T) {
	q := newTestQueue(t, Config{})
	q.Add(uuid.New(), "a.mp4", 1)

	job := q.NextJob()
	require.NotNil(t, job)
	assert.Equal(t, entity.JobStatusProcessing, job.Status)
	require.NotNil(t, job.StartedAt)

	stats := q.Stats()
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 1, stats.Processing)
}

func TestFailRetriesUntilAttemptsExhausted(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, Config{MaxAttempts: 3, RetryBaseDelay: time.Second})
	q.now = func() time.Time { return now }

	jobID := q.Add(uuid.New(), "a.mp4", 1)

	for attempt := 1; attempt <= 3; attempt++ {
		job := q.NextJob()
		require.NotNil(t, job, "attempt %d should dequeue", attempt)
		q.Fail(job.ID, "transcode boom", true)
		// Step past the backoff stamp.
		now = now.Add(5 * time.Minute)
	}

	final := q.Get(jobID)
	require.NotNil(t, final)
	assert.Equal(t, entity.JobStatusFailed, final.Status)
	assert.Equal(t, 3, final.Attempts)
	assert.Equal(t, "transcode boom", final.LastError)
	assert.Nil(t, q.NextJob(), "terminal job must not be re-dispatched")
}

func TestFailWithoutRetryIsTerminal(t *testing.T) {
	q := newTestQueue(t, Config{MaxAttempts: 3})
	jobID := q.Add(uuid.New(), "a.mp4", 1)

	job := q.NextJob()
	require.NotNil(t, job)
	q.Fail(job.ID, "not worth retrying", false)

	final := q.Get(jobID)
	require.NotNil(t, final)
	assert.Equal(t, entity.JobStatusFailed, final.Status)
	assert.Equal(t, 1, final.Attempts)
}

func TestRetryBackoffDelaysDispatch(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, Config{MaxAttempts: 3, RetryBaseDelay: 10 * time.Second})
	q.now = func() time.Time { return now }

	q.Add(uuid.New(), "a.mp4", 1)
	job := q.NextJob()
	require.NotNil(t, job)
	q.Fail(job.ID, "boom", true)

	assert.Nil(t, q.NextJob(), "retried job must back off")

	now = now.Add(9 * time.Second)
	assert.Nil(t, q.NextJob(), "still inside the backoff window")

	now = now.Add(2 * time.Second)
	retried := q.NextJob()
	require.NotNil(t, retried)
	assert.Equal(t, job.ID, retried.ID)
	assert.Equal(t, 1, retried.Attempts)
}

func TestRetryPreservesPriorityOverNewerJobs(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, Config{MaxAttempts: 3, RetryBaseDelay: time.Second})
	q.now = func() time.Time { return now }

	retriedID := q.Add(uuid.New(), "a.mp4", 1)
	job := q.NextJob()
	require.NotNil(t, job)
	q.Fail(job.ID, "boom", true)
	now = now.Add(time.Minute)

	q.Add(uuid.New(), "b.mp4", 5)

	next := q.NextJob()
	require.NotNil(t, next)
	assert.Equal(t, retriedID, next.ID, "retried job keeps its original priority")
}

func TestCompleteAndFailAreNoopsForUnknownJobs(t *testing.T) {
	q := newTestQueue(t, Config{})

	q.Complete("no-such-job")
	q.Fail("no-such-job", "boom", true)

	jobID := q.Add(uuid.New(), "a.mp4", 1)
	// Still PENDING: neither call may touch it.
	q.Complete(jobID)
	q.Fail(jobID, "boom", true)

	job := q.Get(jobID)
	require.NotNil(t, job)
	assert.Equal(t, entity.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Attempts)
}

func TestDuplicateCompleteIsSafe(t *testing.T) {
	q := newTestQueue(t, Config{})
	q.Add(uuid.New(), "a.mp4", 1)

	job := q.NextJob()
	require.NotNil(t, job)
	q.Complete(job.ID)
	q.Complete(job.ID)

	stats := q.Stats()
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.Processing)
}

func TestStatsSnapshot(t *testing.T) {
	q := newTestQueue(t, Config{MaxAttempts: 1})

	q.Add(uuid.New(), "a.mp4", 1)
	q.Add(uuid.New(), "b.mp4", 2)
	q.Add(uuid.New(), "c.mp4", 3)

	done := q.NextJob()
	require.NotNil(t, done)
	q.Complete(done.ID)

	failed := q.NextJob()
	require.NotNil(t, failed)
	q.Fail(failed.ID, "boom", true) // MaxAttempts 1: goes terminal

	inFlight := q.NextJob()
	require.NotNil(t, inFlight)

	stats := q.Stats()
	assert.Equal(t, Stats{Pending: 0, Processing: 1, Completed: 1, Failed: 1, Total: 3}, stats)
}

func TestCleanupEvictsOldTerminalJobs(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, Config{})
	q.now = func() time.Time { return now }

	q.Add(uuid.New(), "a.mp4", 1)
	q.Add(uuid.New(), "b.mp4", 2)

	done := q.NextJob()
	require.NotNil(t, done)
	q.Complete(done.ID)

	// Inside the retention window nothing is evicted.
	assert.Equal(t, 0, q.Cleanup(24*time.Hour))

	now = now.Add(25 * time.Hour)
	assert.Equal(t, 1, q.Cleanup(24*time.Hour))

	assert.Nil(t, q.Get(done.ID), "terminal job evicted")
	stats := q.Stats()
	assert.Equal(t, 1, stats.Total, "pending job untouched")
	assert.Equal(t, 1, stats.Pending)
}

func TestObserverSeesTransitions(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, Config{MaxAttempts: 2, RetryBaseDelay: time.Second})
	q.now = func() time.Time { return now }

	var events []EventType
	q.OnTransition(func(event JobEvent) {
		events = append(events, event.Type)
	})

	q.Add(uuid.New(), "a.mp4", 1)
	job := q.NextJob()
	require.NotNil(t, job)
	q.Fail(job.ID, "boom", true)
	now = now.Add(time.Minute)

	job = q.NextJob()
	require.NotNil(t, job)
	q.Complete(job.ID)

	assert.Equal(t,
		[]EventType{EventAdded, EventStarted, EventRetried, EventStarted, EventCompleted},
		events,
	)
}
