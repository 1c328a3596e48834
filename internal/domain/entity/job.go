package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// IsTerminal reports whether no further transitions apply.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

const DefaultPriority = 10

// EncodingJob is the in-memory bookkeeping record for one transcode.
// It is not durable; the video record is the source of truth across restarts.
type EncodingJob struct {
	ID          string
	VideoID     uuid.UUID
	InputKey    string
	Priority    int // lower runs first
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	LastError   string
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	// NotBefore delays re-dispatch of a retried job.
	NotBefore time.Time
}

func NewEncodingJob(videoID uuid.UUID, inputKey string, priority int, maxAttempts int) *EncodingJob {
	now := time.Now().UTC()
	return &EncodingJob{
		ID:          uuid.NewString(),
		VideoID:     videoID,
		InputKey:    inputKey,
		Priority:    priority,
		Status:      JobStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
	}
}

func (j *EncodingJob) MarkProcessing() {
	now := time.Now().UTC()
	j.Status = JobStatusProcessing
	j.StartedAt = &now
}

func (j *EncodingJob) MarkCompleted() {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.FinishedAt = &now
}

func (j *EncodingJob) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.LastError = errMsg
	j.FinishedAt = &now
}

func (j *EncodingJob) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}
