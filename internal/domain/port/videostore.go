package port

import (
	"context"
	"time"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/entity"
	"github.com/google/uuid"
)

// VideoStatusUpdate carries the fields the worker writes back to the durable
// video record. Nil URL fields are left untouched so a later phase-2 update
// cannot erase the phase-1 result.
type VideoStatusUpdate struct {
	Status         entity.VideoStatus
	MP4URL         *string
	HLSManifestURL *string
	FailureReason  *string
}

// VideoStore is the durable record store. UpdateStatus must be idempotent:
// setting the same terminal status twice is harmless.
type VideoStore interface {
	Get(ctx context.Context, videoID uuid.UUID) (*entity.VideoRecord, error)
	UpdateStatus(ctx context.Context, videoID uuid.UUID, update VideoStatusUpdate) error
	// ListStalePending returns PENDING records created after the cutoff,
	// used to recover orphans after a process restart.
	ListStalePending(ctx context.Context, createdAfter time.Time) ([]*entity.VideoRecord, error)
}
