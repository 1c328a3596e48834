package port

import "context"

// Tier selects the transcode pass. The low tier is prioritized so the video
// becomes watchable as early as possible; the high tier upgrades it later.
type Tier string

const (
	TierLow  Tier = "low"
	TierHigh Tier = "high"
)

// EncodeResult describes the local output of one transcode pass.
// ManifestPath is set when the pass produced an HLS manifest; a low-tier
// result that already carries one means both tiers were encoded together
// and the second pass is unnecessary.
type EncodeResult struct {
	OutputPath   string
	ManifestPath string
}

type Transcoder interface {
	Encode(ctx context.Context, inputPath string, outputDir string, tier Tier) (*EncodeResult, error)
}
