package postgres

import (
	"context"
	"fmt"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/entity"
	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostStore pulls raw candidate rows for the three feed pools. Scores are
// composed in the providers; the SQL only samples and, for the personalized
// pool, hard-filters muted and blocked authors.
type PostStore struct {
	pool *pgxpool.Pool
}

func NewPostStore(pool *pgxpool.Pool) *PostStore {
	return &PostStore{pool: pool}
}

func (s *PostStore) RandomPoolPosts(ctx context.Context, q port.PoolQuery) ([]entity.PostSample, error) {
	query := `
		SELECT p.id, p.created_at, u.reputation,
		       p.like_count, p.comment_count, p.share_count
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.deleted_at IS NULL
		ORDER BY random()
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("random pool query: %w", err)
	}
	return scanSamples(rows)
}

func (s *PostStore) TrendingPoolPosts(ctx context.Context, q port.PoolQuery) ([]entity.PostSample, error) {
	query := `
		SELECT p.id, p.created_at, u.reputation,
		       p.like_count, p.comment_count, p.share_count
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.deleted_at IS NULL
		  AND p.created_at > now() - interval '7 days'
		ORDER BY (p.like_count + 2 * p.comment_count + 3 * p.share_count) DESC,
		         p.created_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("trending pool query: %w", err)
	}
	return scanSamples(rows)
}

// PersonalizedPoolPosts also computes the interest-vector dot product and the
// closest social-graph relationship per row. Muted and blocked authors are
// excluded here, before scoring, never merely down-weighted.
func (s *PostStore) PersonalizedPoolPosts(ctx context.Context, q port.PoolQuery) ([]entity.PostSample, error) {
	query := `
		SELECT p.id, p.created_at, u.reputation,
		       p.like_count, p.comment_count, p.share_count,
		       COALESCE((
		           SELECT SUM(ui.weight * pt.weight)
		           FROM user_interests ui
		           JOIN post_topics pt ON pt.topic = ui.topic
		           WHERE ui.user_id = $1 AND pt.post_id = p.id
		       ), 0) AS similarity,
		       CASE
		           WHEN EXISTS (SELECT 1 FROM subscriptions s
		                        WHERE s.subscriber_id = $1 AND s.author_id = p.author_id)
		               THEN 'subscriber'
		           WHEN EXISTS (SELECT 1 FROM friendships f
		                        WHERE f.user_id = $1 AND f.friend_id = p.author_id)
		               THEN 'friend'
		           WHEN EXISTS (SELECT 1 FROM follows fo
		                        WHERE fo.follower_id = $1 AND fo.followed_id = p.author_id)
		               THEN 'follower'
		           ELSE 'none'
		       END AS relationship
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.deleted_at IS NULL
		  AND p.author_id <> $1
		  AND NOT EXISTS (SELECT 1 FROM mutes m
		                  WHERE m.user_id = $1 AND m.muted_id = p.author_id)
		  AND NOT EXISTS (SELECT 1 FROM blocks b
		                  WHERE (b.user_id = $1 AND b.blocked_id = p.author_id)
		                     OR (b.user_id = p.author_id AND b.blocked_id = $1))
		ORDER BY p.created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, q.UserID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("personalized pool query: %w", err)
	}
	defer rows.Close()

	var samples []entity.PostSample
	for rows.Next() {
		var sample entity.PostSample
		var relationship string
		if err := rows.Scan(
			&sample.PostID, &sample.CreatedAt, &sample.AuthorReputation,
			&sample.LikeCount, &sample.CommentCount, &sample.ShareCount,
			&sample.Similarity, &relationship,
		); err != nil {
			return nil, fmt.Errorf("scan personalized row: %w", err)
		}
		sample.Relationship = entity.Relationship(relationship)
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate personalized rows: %w", err)
	}
	return samples, nil
}

func scanSamples(rows pgx.Rows) ([]entity.PostSample, error) {
	defer rows.Close()
	var samples []entity.PostSample
	for rows.Next() {
		var sample entity.PostSample
		if err := rows.Scan(
			&sample.PostID, &sample.CreatedAt, &sample.AuthorReputation,
			&sample.LikeCount, &sample.CommentCount, &sample.ShareCount,
		); err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		sample.Relationship = entity.RelationshipNone
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post rows: %w", err)
	}
	return samples, nil
}
