package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/entity"
	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const videosSchema = `
CREATE TABLE videos (
	id               UUID PRIMARY KEY,
	uploader_id      TEXT NOT NULL DEFAULT '',
	uploader_email   TEXT NOT NULL DEFAULT '',
	upload_key       TEXT NOT NULL,
	status           TEXT NOT NULL,
	mp4_url          TEXT,
	hls_manifest_url TEXT,
	failure_reason   TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func setupVideoStore(t *testing.T, ctx context.Context) (*VideoStore, *pgxpool.Pool) {
	t.Helper()

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("media"),
		tcpostgres.WithUsername("media_user"),
		tcpostgres.WithPassword("media_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, videosSchema)
	require.NoError(t, err)

	return NewVideoStore(pool), pool
}

func insertVideo(t *testing.T, ctx context.Context, pool *pgxpool.Pool, status entity.VideoStatus, createdAt time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO videos (id, uploader_email, upload_key, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		id, "uploader@example.com", "uploads/"+id.String()+".mp4", string(status), createdAt,
	)
	require.NoError(t, err)
	return id
}

func TestVideoStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	store, pool := setupVideoStore(t, ctx)
	now := time.Now().UTC()

	t.Run("get returns inserted record", func(t *testing.T) {
		id := insertVideo(t, ctx, pool, entity.VideoStatusPending, now)

		video, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, video.ID)
		assert.Equal(t, entity.VideoStatusPending, video.Status)
		assert.Empty(t, video.MP4URL)
	})

	t.Run("get unknown id", func(t *testing.T) {
		_, err := store.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrVideoNotFound)
	})

	t.Run("update status unknown id", func(t *testing.T) {
		err := store.UpdateStatus(ctx, uuid.New(), port.VideoStatusUpdate{Status: entity.VideoStatusEncoding})
		assert.ErrorIs(t, err, ErrVideoNotFound)
	})

	t.Run("phase-2 update keeps the phase-1 url", func(t *testing.T) {
		id := insertVideo(t, ctx, pool, entity.VideoStatusPending, now)

		mp4 := "http://media.local/videos/" + id.String() + "/480p.mp4"
		require.NoError(t, store.UpdateStatus(ctx, id, port.VideoStatusUpdate{
			Status: entity.VideoStatusReady,
			MP4URL: &mp4,
		}))

		manifest := "http://media.local/videos/" + id.String() + "/hls/master.m3u8"
		require.NoError(t, store.UpdateStatus(ctx, id, port.VideoStatusUpdate{
			Status:         entity.VideoStatusReady,
			HLSManifestURL: &manifest,
		}))

		video, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entity.VideoStatusReady, video.Status)
		assert.Equal(t, mp4, video.MP4URL, "nil mp4 field must not erase the stored url")
		assert.Equal(t, manifest, video.HLSManifestURL)
	})

	t.Run("terminal update is idempotent", func(t *testing.T) {
		id := insertVideo(t, ctx, pool, entity.VideoStatusEncoding, now)

		reason := "codec not supported"
		update := port.VideoStatusUpdate{Status: entity.VideoStatusFailed, FailureReason: &reason}
		require.NoError(t, store.UpdateStatus(ctx, id, update))
		require.NoError(t, store.UpdateStatus(ctx, id, update))

		video, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entity.VideoStatusFailed, video.Status)
		assert.Equal(t, reason, video.FailureReason)
	})

	t.Run("list stale pending honors status and cutoff", func(t *testing.T) {
		recent := insertVideo(t, ctx, pool, entity.VideoStatusPending, now.Add(-2*time.Hour))
		insertVideo(t, ctx, pool, entity.VideoStatusPending, now.Add(-30*time.Hour))
		insertVideo(t, ctx, pool, entity.VideoStatusReady, now.Add(-2*time.Hour))

		videos, err := store.ListStalePending(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)

		ids := make([]uuid.UUID, 0, len(videos))
		for _, v := range videos {
			ids = append(ids, v.ID)
		}
		assert.Contains(t, ids, recent)
		for _, v := range videos {
			assert.Equal(t, entity.VideoStatusPending, v.Status)
			assert.True(t, v.CreatedAt.After(now.Add(-24*time.Hour)))
		}
	})
}
