package entity

import (
	"time"

	"github.com/google/uuid"
)

// Pool names one of the three scoring strategies a feed slot draws from.
type Pool string

const (
	PoolRandom       Pool = "RANDOM"
	PoolTrending     Pool = "TRENDING"
	PoolPersonalized Pool = "PERSONALIZED"
)

// FallbackOrder is the fixed order pools are tried when the rolled pool is
// exhausted for a slot.
var FallbackOrder = []Pool{PoolRandom, PoolTrending, PoolPersonalized}

// Candidate is a scored feed item drawn from a pool. Candidates are built
// fresh per request; they are never cached across requests.
type Candidate struct {
	ItemID     uuid.UUID
	Score      float64
	PoolOrigin Pool
}

// Slot is one position of a generated feed. Unfilled slots are omitted from
// the response rather than fabricated.
type Slot struct {
	Index    int
	Roll     int
	Pool     Pool
	Selected *Candidate
}

// Relationship is the social-graph edge between the requesting user and a
// post's author, in decreasing order of weight.
type Relationship string

const (
	RelationshipSubscriber Relationship = "subscriber"
	RelationshipFriend     Relationship = "friend"
	RelationshipFollower   Relationship = "follower"
	RelationshipNone       Relationship = "none"
)

// PostSample is a raw row pulled from the post store for scoring. The store
// applies hard mute/block filtering before these rows are produced.
type PostSample struct {
	PostID           uuid.UUID
	CreatedAt        time.Time
	AuthorReputation float64
	LikeCount        int
	CommentCount     int
	ShareCount       int
	// Similarity is the interest-vector dot product; personalized pool only.
	Similarity   float64
	Relationship Relationship
}
