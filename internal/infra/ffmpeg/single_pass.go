package ffmpeg

import (
	"context"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/port"
	"go.uber.org/zap"
)

// SinglePassTranscoder is the legacy mode for older configurations: both
// tiers are encoded in the first pass, so the low-tier result already carries
// the HLS manifest and the pipeline skips phase 2.
type SinglePassTranscoder struct {
	inner *Transcoder
}

func NewSinglePassTranscoder(logger *zap.Logger) *SinglePassTranscoder {
	return &SinglePassTranscoder{inner: NewTranscoder(logger)}
}

func (t *SinglePassTranscoder) Encode(ctx context.Context, inputPath string, outputDir string, tier port.Tier) (*port.EncodeResult, error) {
	if tier == port.TierHigh {
		return t.inner.encodeHigh(ctx, inputPath, outputDir)
	}

	low, err := t.inner.encodeLow(ctx, inputPath, outputDir)
	if err != nil {
		return nil, err
	}
	high, err := t.inner.encodeHigh(ctx, inputPath, outputDir)
	if err != nil {
		return nil, err
	}
	return &port.EncodeResult{
		OutputPath:   low.OutputPath,
		ManifestPath: high.ManifestPath,
	}, nil
}
