// Package queue implements the in-memory encoding job table. Jobs are not
// durable: on restart the worker reconstructs lost work from the video store.
package queue

import (
	"container/heap"
	"math"
	"sync"
	"time"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/entity"
	"github.com/UnitedWeRise-org/feed-media-core/internal/infra/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxRetryDelay = 60 * time.Second

// EventType identifies a job lifecycle transition.
type EventType string

const (
	EventAdded     EventType = "added"
	EventStarted   EventType = "started"
	EventCompleted EventType = "completed"
	EventRetried   EventType = "retried"
	EventFailed    EventType = "failed"
)

// JobEvent is delivered to registered observers after a state transition.
// The embedded job is a snapshot; mutating it has no effect on the queue.
type JobEvent struct {
	Type EventType
	Job  entity.EncodingJob
}

type Stats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Total      int
}

type Config struct {
	// Concurrency bounds the processing set; NextJob admits no job beyond it.
	Concurrency int
	MaxAttempts int
	// RetryBaseDelay seeds the exponential backoff stamped on retried jobs.
	RetryBaseDelay time.Duration
}

type record struct {
	job *entity.EncodingJob
	seq uint64
}

// Queue is safe for concurrent use. Every state transition happens under a
// single mutex; observers are invoked outside it.
type Queue struct {
	mu         sync.Mutex
	jobs       map[string]*record
	pending    pendingHeap
	processing map[string]struct{}
	completed  int
	failed     int
	seq        uint64
	cfg        Config
	logger     *zap.Logger
	observers  []func(JobEvent)

	now func() time.Time
}

func New(cfg Config, logger *zap.Logger) *Queue {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Queue{
		jobs:       make(map[string]*record),
		processing: make(map[string]struct{}),
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// OnTransition registers an observer for job lifecycle events.
func (q *Queue) OnTransition(fn func(JobEvent)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observers = append(q.observers, fn)
}

// Add enqueues a PENDING job and returns its id. Equal priorities dequeue in
// creation order.
func (q *Queue) Add(videoID uuid.UUID, inputKey string, priority int) string {
	job := entity.NewEncodingJob(videoID, inputKey, priority, q.cfg.MaxAttempts)

	q.mu.Lock()
	q.seq++
	rec := &record{job: job, seq: q.seq}
	q.jobs[job.ID] = rec
	heap.Push(&q.pending, &pendingEntry{id: job.ID, priority: priority, seq: rec.seq})
	q.updateDepthLocked()
	event := q.snapshotLocked(job, EventAdded)
	q.mu.Unlock()

	q.logger.Info("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("video_id", videoID.String()),
		zap.Int("priority", priority),
	)
	q.notify(event)
	return job.ID
}

// NextJob moves the highest-priority eligible PENDING job to PROCESSING and
// returns a snapshot of it. It returns nil when nothing qualifies: an empty
// queue, every pending job backing off, or a full processing set. That is a
// normal poll-empty condition, not an error.
func (q *Queue) NextJob() *entity.EncodingJob {
	q.mu.Lock()

	if len(q.processing) >= q.cfg.Concurrency {
		q.mu.Unlock()
		return nil
	}

	now := q.now()
	var deferred []*pendingEntry
	var picked *record
	for q.pending.Len() > 0 {
		entry := heap.Pop(&q.pending).(*pendingEntry)
		rec, ok := q.jobs[entry.id]
		if !ok || rec.job.Status != entity.JobStatusPending {
			continue // evicted or superseded entry
		}
		if rec.job.NotBefore.After(now) {
			deferred = append(deferred, entry)
			continue
		}
		picked = rec
		break
	}
	for _, entry := range deferred {
		heap.Push(&q.pending, entry)
	}
	if picked == nil {
		q.mu.Unlock()
		return nil
	}

	picked.job.MarkProcessing()
	q.processing[picked.job.ID] = struct{}{}
	q.updateDepthLocked()
	snapshot := *picked.job
	event := q.snapshotLocked(picked.job, EventStarted)
	q.mu.Unlock()

	q.notify(event)
	return &snapshot
}

// Complete transitions a PROCESSING job to COMPLETED. Unknown ids and jobs
// not in PROCESSING are a logged no-op so duplicate calls are safe.
func (q *Queue) Complete(jobID string) {
	q.mu.Lock()
	rec, ok := q.jobs[jobID]
	if !ok || rec.job.Status != entity.JobStatusProcessing {
		q.mu.Unlock()
		q.logger.Warn("complete ignored for unknown or non-processing job", zap.String("job_id", jobID))
		return
	}
	delete(q.processing, jobID)
	rec.job.MarkCompleted()
	q.completed++
	q.updateDepthLocked()
	event := q.snapshotLocked(rec.job, EventCompleted)
	q.mu.Unlock()

	q.notify(event)
}

// Fail records an attempt failure. With retry true and attempts remaining the
// job re-enters PENDING at its original priority, stamped with an exponential
// not-before delay; otherwise it goes terminal FAILED. Unknown ids and jobs
// not in PROCESSING are a logged no-op.
func (q *Queue) Fail(jobID string, errMsg string, retry bool) {
	q.mu.Lock()
	rec, ok := q.jobs[jobID]
	if !ok || rec.job.Status != entity.JobStatusProcessing {
		q.mu.Unlock()
		q.logger.Warn("fail ignored for unknown or non-processing job", zap.String("job_id", jobID))
		return
	}
	delete(q.processing, jobID)
	rec.job.Attempts++
	rec.job.LastError = errMsg

	var event JobEvent
	if retry && rec.job.CanRetry() {
		rec.job.Status = entity.JobStatusPending
		rec.job.StartedAt = nil
		rec.job.NotBefore = q.now().Add(q.retryDelay(rec.job.Attempts))
		heap.Push(&q.pending, &pendingEntry{id: jobID, priority: rec.job.Priority, seq: rec.seq})
		event = q.snapshotLocked(rec.job, EventRetried)
	} else {
		rec.job.MarkFailed(errMsg)
		q.failed++
		event = q.snapshotLocked(rec.job, EventFailed)
	}
	q.updateDepthLocked()
	attempts := rec.job.Attempts
	status := rec.job.Status
	q.mu.Unlock()

	q.logger.Warn("job attempt failed",
		zap.String("job_id", jobID),
		zap.Int("attempts", attempts),
		zap.String("status", string(status)),
		zap.String("error", errMsg),
	)
	q.notify(event)
}

// Get returns a snapshot of a job, or nil if it is unknown.
func (q *Queue) Get(jobID string) *entity.EncodingJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.jobs[jobID]
	if !ok {
		return nil
	}
	snapshot := *rec.job
	return &snapshot
}

// Stats returns a point-in-time snapshot of queue occupancy.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statsLocked()
}

// Cleanup evicts terminal jobs older than the retention window from the
// in-memory table and returns how many were removed. Durable video records
// are unaffected.
func (q *Queue) Cleanup(retention time.Duration) int {
	cutoff := q.now().Add(-retention)
	removed := 0

	q.mu.Lock()
	for id, rec := range q.jobs {
		if !rec.job.Status.IsTerminal() {
			continue
		}
		if rec.job.FinishedAt != nil && rec.job.FinishedAt.After(cutoff) {
			continue
		}
		switch rec.job.Status {
		case entity.JobStatusCompleted:
			q.completed--
		case entity.JobStatusFailed:
			q.failed--
		}
		delete(q.jobs, id)
		removed++
	}
	q.updateDepthLocked()
	q.mu.Unlock()

	if removed > 0 {
		q.logger.Info("cleaned up terminal jobs", zap.Int("removed", removed))
	}
	return removed
}

func (q *Queue) retryDelay(attempt int) time.Duration {
	delay := q.cfg.RetryBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func (q *Queue) statsLocked() Stats {
	pending := 0
	for _, rec := range q.jobs {
		if rec.job.Status == entity.JobStatusPending {
			pending++
		}
	}
	return Stats{
		Pending:    pending,
		Processing: len(q.processing),
		Completed:  q.completed,
		Failed:     q.failed,
		Total:      len(q.jobs),
	}
}

func (q *Queue) updateDepthLocked() {
	s := q.statsLocked()
	metrics.QueueDepth.WithLabelValues(string(entity.JobStatusPending)).Set(float64(s.Pending))
	metrics.QueueDepth.WithLabelValues(string(entity.JobStatusProcessing)).Set(float64(s.Processing))
	metrics.QueueDepth.WithLabelValues(string(entity.JobStatusCompleted)).Set(float64(s.Completed))
	metrics.QueueDepth.WithLabelValues(string(entity.JobStatusFailed)).Set(float64(s.Failed))
}

func (q *Queue) snapshotLocked(job *entity.EncodingJob, t EventType) JobEvent {
	return JobEvent{Type: t, Job: *job}
}

func (q *Queue) notify(event JobEvent) {
	q.mu.Lock()
	observers := make([]func(JobEvent), len(q.observers))
	copy(observers, q.observers)
	q.mu.Unlock()
	for _, fn := range observers {
		fn(event)
	}
}
