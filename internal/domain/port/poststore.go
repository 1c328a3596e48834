package port

import (
	"context"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/entity"
)

// PoolQuery scopes a candidate-pool fetch to one feed request.
type PoolQuery struct {
	// UserID is empty for anonymous requests.
	UserID string
	Limit  int
}

// PostStore pulls raw post samples for each candidate pool. The personalized
// query must exclude posts from authors the user has muted or blocked before
// any row is returned; this is a hard filter, not a score penalty.
type PostStore interface {
	RandomPoolPosts(ctx context.Context, q PoolQuery) ([]entity.PostSample, error)
	TrendingPoolPosts(ctx context.Context, q PoolQuery) ([]entity.PostSample, error)
	PersonalizedPoolPosts(ctx context.Context, q PoolQuery) ([]entity.PostSample, error)
}
