package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/entity"
	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVideoNotFound is returned when no video row matches the id.
var ErrVideoNotFound = errors.New("video not found")

type VideoStore struct {
	pool *pgxpool.Pool
}

func NewVideoStore(pool *pgxpool.Pool) *VideoStore {
	return &VideoStore{pool: pool}
}

func (s *VideoStore) Get(ctx context.Context, videoID uuid.UUID) (*entity.VideoRecord, error) {
	query := `
		SELECT id, uploader_id, uploader_email, upload_key, status,
		       COALESCE(mp4_url, ''), COALESCE(hls_manifest_url, ''),
		       COALESCE(failure_reason, ''), created_at, updated_at
		FROM videos
		WHERE id = $1`

	video := &entity.VideoRecord{}
	err := s.pool.QueryRow(ctx, query, videoID).Scan(
		&video.ID, &video.UploaderID, &video.UploaderEmail, &video.UploadKey,
		&video.Status, &video.MP4URL, &video.HLSManifestURL,
		&video.FailureReason, &video.CreatedAt, &video.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select video: %w", err)
	}
	return video, nil
}

// UpdateStatus writes the status and only the URLs/reason the update carries;
// COALESCE keeps existing values so a phase-2 manifest update cannot erase
// the phase-1 URL. Re-applying the same terminal status is harmless.
func (s *VideoStore) UpdateStatus(ctx context.Context, videoID uuid.UUID, update port.VideoStatusUpdate) error {
	query := `
		UPDATE videos SET
			status = $2,
			mp4_url = COALESCE($3, mp4_url),
			hls_manifest_url = COALESCE($4, hls_manifest_url),
			failure_reason = COALESCE($5, failure_reason),
			updated_at = now()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		videoID, string(update.Status),
		update.MP4URL, update.HLSManifestURL, update.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("update video status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

func (s *VideoStore) ListStalePending(ctx context.Context, createdAfter time.Time) ([]*entity.VideoRecord, error) {
	query := `
		SELECT id, uploader_id, uploader_email, upload_key, status,
		       COALESCE(mp4_url, ''), COALESCE(hls_manifest_url, ''),
		       COALESCE(failure_reason, ''), created_at, updated_at
		FROM videos
		WHERE status = $1 AND created_at > $2
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, string(entity.VideoStatusPending), createdAfter)
	if err != nil {
		return nil, fmt.Errorf("list stale pending videos: %w", err)
	}
	defer rows.Close()

	var videos []*entity.VideoRecord
	for rows.Next() {
		video := &entity.VideoRecord{}
		if err := rows.Scan(
			&video.ID, &video.UploaderID, &video.UploaderEmail, &video.UploadKey,
			&video.Status, &video.MP4URL, &video.HLSManifestURL,
			&video.FailureReason, &video.CreatedAt, &video.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan video row: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate video rows: %w", err)
	}
	return videos, nil
}
