package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/entity"
	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/port"
)

// CandidateProvider produces a freshly scored candidate list for one pool.
type CandidateProvider interface {
	Pool() entity.Pool
	Candidates(ctx context.Context, userID string) ([]entity.Candidate, error)
}

// relationshipWeights boost personalized scores by social-graph proximity.
var relationshipWeights = map[entity.Relationship]float64{
	entity.RelationshipSubscriber: 2.0,
	entity.RelationshipFriend:     1.5,
	entity.RelationshipFollower:   1.0,
	entity.RelationshipNone:       1.0,
}

// scorer holds the score composition shared by the pool providers.
type scorer struct {
	halfLife time.Duration
	now      func() time.Time
}

// recencyDecay halves a post's weight every half-life of age.
func (s scorer) recencyDecay(createdAt time.Time) float64 {
	age := s.now().Sub(createdAt)
	if age < 0 {
		age = 0
	}
	return math.Exp2(-age.Hours() / s.halfLife.Hours())
}

// reputationMultiplier maps the 0-100 author reputation onto [0.5, 1.5].
func (s scorer) reputationMultiplier(reputation float64) float64 {
	if reputation < 0 {
		reputation = 0
	}
	if reputation > 100 {
		reputation = 100
	}
	return 0.5 + reputation/100
}

func (s scorer) engagement(p entity.PostSample) float64 {
	return float64(p.LikeCount) + 2*float64(p.CommentCount) + 3*float64(p.ShareCount)
}

// randomProvider scores on recency and reputation only. Leaving engagement
// out of this pool is the anti-echo-chamber lever: content surfaces here
// regardless of how much interaction it has attracted.
type randomProvider struct {
	store  port.PostStore
	scorer scorer
	limit  int
}

func (p *randomProvider) Pool() entity.Pool { return entity.PoolRandom }

func (p *randomProvider) Candidates(ctx context.Context, userID string) ([]entity.Candidate, error) {
	samples, err := p.store.RandomPoolPosts(ctx, port.PoolQuery{UserID: userID, Limit: p.limit})
	if err != nil {
		return nil, fmt.Errorf("query random pool: %w", err)
	}
	out := make([]entity.Candidate, 0, len(samples))
	for _, s := range samples {
		out = append(out, entity.Candidate{
			ItemID:     s.PostID,
			Score:      p.scorer.recencyDecay(s.CreatedAt) * p.scorer.reputationMultiplier(s.AuthorReputation),
			PoolOrigin: entity.PoolRandom,
		})
	}
	return out, nil
}

type trendingProvider struct {
	store  port.PostStore
	scorer scorer
	limit  int
}

func (p *trendingProvider) Pool() entity.Pool { return entity.PoolTrending }

func (p *trendingProvider) Candidates(ctx context.Context, userID string) ([]entity.Candidate, error) {
	samples, err := p.store.TrendingPoolPosts(ctx, port.PoolQuery{UserID: userID, Limit: p.limit})
	if err != nil {
		return nil, fmt.Errorf("query trending pool: %w", err)
	}
	out := make([]entity.Candidate, 0, len(samples))
	for _, s := range samples {
		score := p.scorer.engagement(s) *
			p.scorer.recencyDecay(s.CreatedAt) *
			p.scorer.reputationMultiplier(s.AuthorReputation)
		out = append(out, entity.Candidate{
			ItemID:     s.PostID,
			Score:      score,
			PoolOrigin: entity.PoolTrending,
		})
	}
	return out, nil
}

// personalizedProvider requires a logged-in user; the store's personalized
// query excludes muted and blocked authors before any row reaches scoring.
type personalizedProvider struct {
	store  port.PostStore
	scorer scorer
	limit  int
}

func (p *personalizedProvider) Pool() entity.Pool { return entity.PoolPersonalized }

func (p *personalizedProvider) Candidates(ctx context.Context, userID string) ([]entity.Candidate, error) {
	if userID == "" {
		return nil, nil
	}
	samples, err := p.store.PersonalizedPoolPosts(ctx, port.PoolQuery{UserID: userID, Limit: p.limit})
	if err != nil {
		return nil, fmt.Errorf("query personalized pool: %w", err)
	}
	out := make([]entity.Candidate, 0, len(samples))
	for _, s := range samples {
		weight, ok := relationshipWeights[s.Relationship]
		if !ok {
			weight = relationshipWeights[entity.RelationshipNone]
		}
		similarity := s.Similarity
		if similarity < 0 {
			similarity = 0
		}
		out = append(out, entity.Candidate{
			ItemID:     s.PostID,
			Score:      similarity * weight * p.scorer.recencyDecay(s.CreatedAt),
			PoolOrigin: entity.PoolPersonalized,
		})
	}
	return out, nil
}

// NewCandidateProviders builds the three pool providers over a post store.
func NewCandidateProviders(store port.PostStore, halfLife time.Duration, limit int) map[entity.Pool]CandidateProvider {
	s := scorer{halfLife: halfLife, now: func() time.Time { return time.Now().UTC() }}
	return map[entity.Pool]CandidateProvider{
		entity.PoolRandom:       &randomProvider{store: store, scorer: s, limit: limit},
		entity.PoolTrending:     &trendingProvider{store: store, scorer: s, limit: limit},
		entity.PoolPersonalized: &personalizedProvider{store: store, scorer: s, limit: limit},
	}
}
