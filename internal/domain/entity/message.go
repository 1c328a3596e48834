package entity

import "github.com/google/uuid"

// EncodeDispatchMessage is published when encoding is handed off to an
// external provider. The provider reports completion by updating the video
// record directly, outside this process.
type EncodeDispatchMessage struct {
	JobID    string    `json:"job_id"`
	VideoID  uuid.UUID `json:"video_id"`
	InputKey string    `json:"input_key"`
	Priority int       `json:"priority"`
}
