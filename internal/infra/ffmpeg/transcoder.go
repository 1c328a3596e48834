// Package ffmpeg implements the transcoder port by shelling out to ffmpeg.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/port"
	"go.uber.org/zap"
)

type rendition struct {
	Width     int
	Height    int
	Bitrate   string
	AudioRate string
}

// lowRendition is the phase-1 target: cheap, fast, watchable.
var lowRendition = rendition{Width: 854, Height: 480, Bitrate: "1500k", AudioRate: "128k"}

// hlsLadder is the phase-2 target ladder.
var hlsLadder = []rendition{
	{Width: 854, Height: 480, Bitrate: "1500k", AudioRate: "128k"},
	{Width: 1280, Height: 720, Bitrate: "3000k", AudioRate: "192k"},
	{Width: 1920, Height: 1080, Bitrate: "5000k", AudioRate: "192k"},
}

// Available reports whether an ffmpeg binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// Transcoder runs one ffmpeg pass per tier: an mp4 low tier first, then the
// HLS ladder upgrade.
type Transcoder struct {
	logger *zap.Logger
}

func NewTranscoder(logger *zap.Logger) *Transcoder {
	return &Transcoder{logger: logger}
}

func (t *Transcoder) Encode(ctx context.Context, inputPath string, outputDir string, tier port.Tier) (*port.EncodeResult, error) {
	switch tier {
	case port.TierLow:
		return t.encodeLow(ctx, inputPath, outputDir)
	case port.TierHigh:
		return t.encodeHigh(ctx, inputPath, outputDir)
	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
}

func (t *Transcoder) encodeLow(ctx context.Context, inputPath string, outputDir string) (*port.EncodeResult, error) {
	outputPath := filepath.Join(outputDir, fmt.Sprintf("%dp.mp4", lowRendition.Height))
	args := []string{
		"-i", inputPath,
		"-vf", scaleFilter(lowRendition),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-b:v", lowRendition.Bitrate,
		"-maxrate", lowRendition.Bitrate,
		"-bufsize", lowRendition.Bitrate,
		"-c:a", "aac",
		"-b:a", lowRendition.AudioRate,
		"-movflags", "+faststart",
		"-y",
		outputPath,
	}
	if err := t.run(ctx, args); err != nil {
		return nil, err
	}
	return &port.EncodeResult{OutputPath: outputPath}, nil
}

func (t *Transcoder) encodeHigh(ctx context.Context, inputPath string, outputDir string) (*port.EncodeResult, error) {
	hlsDir := filepath.Join(outputDir, "hls")
	if err := os.MkdirAll(hlsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create hls dir: %w", err)
	}

	var filterComplex strings.Builder
	for _, r := range hlsLadder {
		filterComplex.WriteString(fmt.Sprintf(
			"[0:v]scale=w=%d:h=%d:force_original_aspect_ratio=decrease,pad=w=%d:h=%d:x=(ow-iw)/2:y=(oh-ih)/2[v%d]; ",
			r.Width, r.Height, r.Width, r.Height, r.Height))
	}

	args := []string{
		"-i", inputPath,
		"-filter_complex", strings.TrimSuffix(filterComplex.String(), "; "),
	}
	for _, r := range hlsLadder {
		args = append(args,
			"-map", fmt.Sprintf("[v%d]", r.Height),
			"-map", "0:a:0?",
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-b:v", r.Bitrate,
			"-maxrate", r.Bitrate,
			"-bufsize", r.Bitrate,
			"-c:a", "aac",
			"-b:a", r.AudioRate,
			"-f", "hls",
			"-hls_time", "6",
			"-hls_playlist_type", "vod",
			"-hls_segment_filename", filepath.Join(hlsDir, fmt.Sprintf("%dp_%%03d.ts", r.Height)),
			filepath.Join(hlsDir, fmt.Sprintf("%dp.m3u8", r.Height)),
		)
	}
	args = append(args, "-y")

	if err := t.run(ctx, args); err != nil {
		return nil, err
	}

	manifestPath, err := writeMasterPlaylist(hlsDir)
	if err != nil {
		return nil, err
	}
	return &port.EncodeResult{OutputPath: hlsDir, ManifestPath: manifestPath}, nil
}

func (t *Transcoder) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	t.logger.Debug("running ffmpeg", zap.Strings("args", args))

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg: %w, output: %s", err, truncate(string(output), 2048))
	}
	return nil
}

func writeMasterPlaylist(hlsDir string) (string, error) {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n\n")
	for _, r := range hlsLadder {
		var videoKbps, audioKbps int
		fmt.Sscanf(r.Bitrate, "%dk", &videoKbps)
		fmt.Sscanf(r.AudioRate, "%dk", &audioKbps)
		b.WriteString(fmt.Sprintf(
			"#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d,CODECS=\"avc1.640028,mp4a.40.2\"\n",
			(videoKbps+audioKbps)*1000, r.Width, r.Height))
		b.WriteString(fmt.Sprintf("%dp.m3u8\n", r.Height))
	}

	manifestPath := filepath.Join(hlsDir, "master.m3u8")
	if err := os.WriteFile(manifestPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write master playlist: %w", err)
	}
	return manifestPath, nil
}

func scaleFilter(r rendition) string {
	return fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease,pad=w=%d:h=%d:x=(ow-iw)/2:y=(oh-ih)/2",
		r.Width, r.Height, r.Width, r.Height)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
