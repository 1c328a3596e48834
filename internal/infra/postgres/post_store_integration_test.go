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

var feedSchema = []string{
	`CREATE TABLE users (
		id         UUID PRIMARY KEY,
		reputation DOUBLE PRECISION NOT NULL DEFAULT 50
	)`,
	`CREATE TABLE posts (
		id            UUID PRIMARY KEY,
		author_id     UUID NOT NULL REFERENCES users(id),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		like_count    INT NOT NULL DEFAULT 0,
		comment_count INT NOT NULL DEFAULT 0,
		share_count   INT NOT NULL DEFAULT 0,
		deleted_at    TIMESTAMPTZ
	)`,
	`CREATE TABLE user_interests (user_id UUID, topic TEXT, weight DOUBLE PRECISION)`,
	`CREATE TABLE post_topics (post_id UUID, topic TEXT, weight DOUBLE PRECISION)`,
	`CREATE TABLE subscriptions (subscriber_id UUID, author_id UUID)`,
	`CREATE TABLE friendships (user_id UUID, friend_id UUID)`,
	`CREATE TABLE follows (follower_id UUID, followed_id UUID)`,
	`CREATE TABLE mutes (user_id UUID, muted_id UUID)`,
	`CREATE TABLE blocks (user_id UUID, blocked_id UUID)`,
}

func setupPostStore(t *testing.T, ctx context.Context) (*PostStore, *pgxpool.Pool) {
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

	for _, stmt := range feedSchema {
		_, err := pool.Exec(ctx, stmt)
		require.NoError(t, err)
	}
	return NewPostStore(pool), pool
}

func seedUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, reputation float64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO users (id, reputation) VALUES ($1, $2)`, id, reputation)
	require.NoError(t, err)
	return id
}

func seedPost(t *testing.T, ctx context.Context, pool *pgxpool.Pool, author uuid.UUID, createdAt time.Time, likes int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO posts (id, author_id, created_at, like_count)
		VALUES ($1, $2, $3, $4)`,
		id, author, createdAt, likes,
	)
	require.NoError(t, err)
	return id
}

func TestPostStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	store, pool := setupPostStore(t, ctx)
	now := time.Now().UTC()

	viewer := seedUser(t, ctx, pool, 50)
	subscribedAuthor := seedUser(t, ctx, pool, 80)
	friendAuthor := seedUser(t, ctx, pool, 60)
	followedAuthor := seedUser(t, ctx, pool, 40)
	strangerAuthor := seedUser(t, ctx, pool, 50)
	mutedAuthor := seedUser(t, ctx, pool, 90)
	blockedAuthor := seedUser(t, ctx, pool, 90)
	blockerAuthor := seedUser(t, ctx, pool, 90)

	ownPost := seedPost(t, ctx, pool, viewer, now, 0)
	subscribedPost := seedPost(t, ctx, pool, subscribedAuthor, now, 0)
	friendPost := seedPost(t, ctx, pool, friendAuthor, now, 100)
	followedPost := seedPost(t, ctx, pool, followedAuthor, now, 1)
	strangerPost := seedPost(t, ctx, pool, strangerAuthor, now, 0)
	mutedPost := seedPost(t, ctx, pool, mutedAuthor, now, 1000)
	blockedPost := seedPost(t, ctx, pool, blockedAuthor, now, 900)
	blockerPost := seedPost(t, ctx, pool, blockerAuthor, now, 800)
	oldPost := seedPost(t, ctx, pool, strangerAuthor, now.Add(-8*24*time.Hour), 50)

	deletedPost := seedPost(t, ctx, pool, strangerAuthor, now, 500)
	_, err := pool.Exec(ctx, `UPDATE posts SET deleted_at = now() WHERE id = $1`, deletedPost)
	require.NoError(t, err)

	for _, stmt := range []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO subscriptions (subscriber_id, author_id) VALUES ($1, $2)`, []any{viewer, subscribedAuthor}},
		{`INSERT INTO friendships (user_id, friend_id) VALUES ($1, $2)`, []any{viewer, friendAuthor}},
		{`INSERT INTO follows (follower_id, followed_id) VALUES ($1, $2)`, []any{viewer, followedAuthor}},
		{`INSERT INTO mutes (user_id, muted_id) VALUES ($1, $2)`, []any{viewer, mutedAuthor}},
		{`INSERT INTO blocks (user_id, blocked_id) VALUES ($1, $2)`, []any{viewer, blockedAuthor}},
		{`INSERT INTO blocks (user_id, blocked_id) VALUES ($1, $2)`, []any{blockerAuthor, viewer}},
		{`INSERT INTO user_interests (user_id, topic, weight) VALUES ($1, 'civic', 0.5), ($1, 'video', 0.5)`, []any{viewer}},
		{`INSERT INTO post_topics (post_id, topic, weight) VALUES ($1, 'civic', 0.8)`, []any{subscribedPost}},
	} {
		_, err := pool.Exec(ctx, stmt.sql, stmt.args...)
		require.NoError(t, err)
	}

	query := port.PoolQuery{UserID: viewer.String(), Limit: 50}

	t.Run("personalized excludes muted and blocked authors and own posts", func(t *testing.T) {
		samples, err := store.PersonalizedPoolPosts(ctx, query)
		require.NoError(t, err)

		byID := map[uuid.UUID]entity.PostSample{}
		for _, s := range samples {
			byID[s.PostID] = s
		}

		assert.Contains(t, byID, subscribedPost)
		assert.Contains(t, byID, friendPost)
		assert.Contains(t, byID, followedPost)
		assert.Contains(t, byID, strangerPost)

		assert.NotContains(t, byID, mutedPost, "muted author must never surface")
		assert.NotContains(t, byID, blockedPost, "blocked author must never surface")
		assert.NotContains(t, byID, blockerPost, "a block works in both directions")
		assert.NotContains(t, byID, ownPost)
		assert.NotContains(t, byID, deletedPost)
	})

	t.Run("personalized resolves the closest relationship", func(t *testing.T) {
		samples, err := store.PersonalizedPoolPosts(ctx, query)
		require.NoError(t, err)

		rels := map[uuid.UUID]entity.Relationship{}
		for _, s := range samples {
			rels[s.PostID] = s.Relationship
		}

		assert.Equal(t, entity.RelationshipSubscriber, rels[subscribedPost])
		assert.Equal(t, entity.RelationshipFriend, rels[friendPost])
		assert.Equal(t, entity.RelationshipFollower, rels[followedPost])
		assert.Equal(t, entity.RelationshipNone, rels[strangerPost])
	})

	t.Run("personalized computes the interest dot product", func(t *testing.T) {
		samples, err := store.PersonalizedPoolPosts(ctx, query)
		require.NoError(t, err)

		for _, s := range samples {
			switch s.PostID {
			case subscribedPost:
				assert.InDelta(t, 0.5*0.8, s.Similarity, 1e-9)
			case strangerPost:
				assert.Zero(t, s.Similarity, "no shared topics means zero similarity")
			}
		}
	})

	t.Run("trending windows and orders by engagement", func(t *testing.T) {
		samples, err := store.TrendingPoolPosts(ctx, query)
		require.NoError(t, err)
		require.NotEmpty(t, samples)

		ids := make([]uuid.UUID, 0, len(samples))
		for _, s := range samples {
			ids = append(ids, s.PostID)
		}
		assert.NotContains(t, ids, oldPost, "posts outside the 7-day window are excluded")
		assert.NotContains(t, ids, deletedPost)
		assert.Equal(t, mutedPost, ids[0], "trending does not personalize; highest engagement wins")
	})

	t.Run("random never returns deleted posts", func(t *testing.T) {
		samples, err := store.RandomPoolPosts(ctx, query)
		require.NoError(t, err)
		for _, s := range samples {
			assert.NotEqual(t, deletedPost, s.PostID)
		}
	})
}
