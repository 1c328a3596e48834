package port

import "context"

// ModerationDecision is the outcome of scoring one media object. A rejection
// is a content decision, not an infrastructure fault, and is never retried.
type ModerationDecision struct {
	Approved bool
	Reason   string
}

type ModerationService interface {
	Evaluate(ctx context.Context, mediaLocation string) (*ModerationDecision, error)
}
