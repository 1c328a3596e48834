package usecase

import (
	"context"
	"math/rand"
	"time"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/entity"
	"github.com/UnitedWeRise-org/feed-media-core/internal/infra/config"
	"github.com/UnitedWeRise-org/feed-media-core/internal/infra/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// FeedInput describes one feed-generation request. An empty UserID means the
// request is anonymous and the personalized pool is never consulted.
type FeedInput struct {
	UserID    string
	SlotCount int
}

// FeedResult is the ordered outcome of a request. Slots the allocator could
// not fill are omitted rather than fabricated; Unfilled counts them.
type FeedResult struct {
	Slots       []entity.Slot
	Unfilled    int
	GeneratedAt time.Time
}

// FeedAllocator fills each feed slot with an independent weighted pool roll.
// There is no global ranking pass: variance between requests is deliberate.
type FeedAllocator struct {
	providers map[entity.Pool]CandidateProvider
	cfg       config.FeedConfig
	logger    *zap.Logger

	newRand func() *rand.Rand
}

func NewFeedAllocator(providers map[entity.Pool]CandidateProvider, cfg config.FeedConfig, logger *zap.Logger) *FeedAllocator {
	return &FeedAllocator{
		providers: providers,
		cfg:       cfg,
		logger:    logger,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// GenerateFeed rolls a pool per slot, draws a candidate by cumulative weight,
// and falls back through the remaining pools when the rolled one is exhausted.
// A failing candidate provider degrades its pool to empty for the remainder
// of the request; it never aborts the feed.
func (a *FeedAllocator) GenerateFeed(ctx context.Context, input FeedInput) *FeedResult {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "FeedAllocator.GenerateFeed")
	defer span.End()

	start := time.Now()
	slotCount := input.SlotCount
	if slotCount <= 0 {
		slotCount = a.cfg.SlotCount
	}
	loggedIn := input.UserID != ""
	span.SetAttributes(
		attribute.Int("feed.slot_count", slotCount),
		attribute.Bool("feed.logged_in", loggedIn),
	)

	rng := a.newRand()
	fetch := newPoolFetcher(a.providers, input.UserID, a.logger)
	seen := make(map[uuid.UUID]struct{}, slotCount)

	result := &FeedResult{GeneratedAt: time.Now().UTC()}
	for i := 0; i < slotCount; i++ {
		roll := rng.Intn(100)
		pool := a.poolFor(roll, loggedIn)
		slot := entity.Slot{Index: i, Roll: roll, Pool: pool}

		selected, servedBy := a.fillSlot(ctx, fetch, rng, pool, loggedIn, seen)
		if selected == nil {
			result.Unfilled++
			metrics.FeedSlotsUnfilledTotal.Inc()
			continue
		}
		seen[selected.ItemID] = struct{}{}
		slot.Pool = servedBy
		slot.Selected = selected
		result.Slots = append(result.Slots, slot)
		metrics.FeedSlotsFilledTotal.WithLabelValues(string(servedBy)).Inc()
	}

	metrics.FeedGenerationDuration.Observe(time.Since(start).Seconds())
	if result.Unfilled > 0 {
		a.logger.Info("feed under-filled",
			zap.Int("requested", slotCount),
			zap.Int("filled", len(result.Slots)),
		)
	}
	return result
}

// poolFor maps a 0-99 roll onto a pool using the configured breakpoints.
func (a *FeedAllocator) poolFor(roll int, loggedIn bool) entity.Pool {
	if loggedIn {
		switch {
		case roll < a.cfg.RandomPct:
			return entity.PoolRandom
		case roll < a.cfg.RandomPct+a.cfg.TrendingPct:
			return entity.PoolTrending
		default:
			return entity.PoolPersonalized
		}
	}
	if roll < a.cfg.AnonRandomPct {
		return entity.PoolRandom
	}
	return entity.PoolTrending
}

// fillSlot draws from the rolled pool, then walks the fixed fallback chain.
// It returns the selection and the pool that actually served it, or nil when
// every eligible pool is exhausted.
func (a *FeedAllocator) fillSlot(
	ctx context.Context,
	fetch *poolFetcher,
	rng *rand.Rand,
	rolled entity.Pool,
	loggedIn bool,
	seen map[uuid.UUID]struct{},
) (*entity.Candidate, entity.Pool) {
	tried := map[entity.Pool]bool{}
	order := make([]entity.Pool, 0, len(entity.FallbackOrder)+1)
	order = append(order, rolled)
	order = append(order, entity.FallbackOrder...)

	for _, pool := range order {
		if tried[pool] {
			continue
		}
		tried[pool] = true
		if pool == entity.PoolPersonalized && !loggedIn {
			continue
		}
		candidates := excludeSeen(fetch.candidates(ctx, pool), seen)
		if len(candidates) == 0 {
			if pool == rolled {
				metrics.FeedPoolFallbackTotal.WithLabelValues(string(pool)).Inc()
			}
			continue
		}
		picked := weightedPick(rng, candidates)
		return &picked, pool
	}
	return nil, rolled
}

// weightedPick samples proportionally to score via a cumulative-weight draw.
// A top-1 pick would collapse the intentional variance. When every score is
// zero the draw is uniform across the zero-score candidates.
func weightedPick(rng *rand.Rand, candidates []entity.Candidate) entity.Candidate {
	total := 0.0
	for _, c := range candidates {
		if c.Score > 0 {
			total += c.Score
		}
	}
	if total <= 0 {
		return candidates[rng.Intn(len(candidates))]
	}
	target := rng.Float64() * total
	cum := 0.0
	for _, c := range candidates {
		if c.Score <= 0 {
			continue
		}
		cum += c.Score
		if target < cum {
			return c
		}
	}
	// Float accumulation can land target at the very top of the range.
	return candidates[len(candidates)-1]
}

func excludeSeen(candidates []entity.Candidate, seen map[uuid.UUID]struct{}) []entity.Candidate {
	out := make([]entity.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.ItemID]; dup {
			continue
		}
		out = append(out, c)
	}
	return out
}

// poolFetcher fetches each pool's candidate list at most once per request.
// A provider failure leaves that pool empty for the rest of the request.
type poolFetcher struct {
	providers map[entity.Pool]CandidateProvider
	userID    string
	logger    *zap.Logger
	cache     map[entity.Pool][]entity.Candidate
}

func newPoolFetcher(providers map[entity.Pool]CandidateProvider, userID string, logger *zap.Logger) *poolFetcher {
	return &poolFetcher{
		providers: providers,
		userID:    userID,
		logger:    logger,
		cache:     make(map[entity.Pool][]entity.Candidate, len(providers)),
	}
}

func (f *poolFetcher) candidates(ctx context.Context, pool entity.Pool) []entity.Candidate {
	if cached, ok := f.cache[pool]; ok {
		return cached
	}
	provider, ok := f.providers[pool]
	if !ok {
		f.cache[pool] = nil
		return nil
	}
	candidates, err := provider.Candidates(ctx, f.userID)
	if err != nil {
		f.logger.Warn("candidate pool unavailable, degrading to empty",
			zap.String("pool", string(pool)),
			zap.Error(err),
		)
		candidates = nil
	}
	f.cache[pool] = candidates
	return candidates
}
