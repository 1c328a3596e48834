package entity

import (
	"time"

	"github.com/google/uuid"
)

type VideoStatus string

const (
	VideoStatusPending  VideoStatus = "PENDING"
	VideoStatusEncoding VideoStatus = "ENCODING"
	VideoStatusReady    VideoStatus = "READY"
	VideoStatusFailed   VideoStatus = "FAILED"
)

// VideoRecord is the durable row owned by the upload pipeline. It must exist
// before any encoding job referencing it is enqueued: the worker observes
// completion only through status updates keyed by this id.
type VideoRecord struct {
	ID             uuid.UUID
	UploaderID     string
	UploaderEmail  string
	UploadKey      string
	Status         VideoStatus
	MP4URL         string
	HLSManifestURL string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
