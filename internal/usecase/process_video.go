package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/entity"
	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/port"
	"github.com/UnitedWeRise-org/feed-media-core/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// JobQueue is the slice of the queue the pipeline drives: terminal
// transitions for the job it was handed.
type JobQueue interface {
	Complete(jobID string)
	Fail(jobID string, errMsg string, retry bool)
}

type ProcessVideoUseCase struct {
	videos     port.VideoStore
	storage    port.BlobStorage
	transcoder port.Transcoder
	moderation port.ModerationService
	dispatcher port.RemoteDispatcher
	notifier   port.FailureNotifier
	jobs       JobQueue
	logger     *zap.Logger
	cfg        ProcessVideoConfig
}

type ProcessVideoConfig struct {
	TempDir       string
	EncodeTimeout time.Duration
}

// NewProcessVideoUseCase wires the encode pipeline. dispatcher is nil unless
// the process runs in cloud-dispatch mode; transcoder is nil in pass-through
// mode, where the raw upload is published by server-side copy; notifier may
// be nil when no SMTP relay is configured.
func NewProcessVideoUseCase(
	videos port.VideoStore,
	storage port.BlobStorage,
	transcoder port.Transcoder,
	moderation port.ModerationService,
	dispatcher port.RemoteDispatcher,
	notifier port.FailureNotifier,
	jobs JobQueue,
	logger *zap.Logger,
	cfg ProcessVideoConfig,
) *ProcessVideoUseCase {
	return &ProcessVideoUseCase{
		videos:     videos,
		storage:    storage,
		transcoder: transcoder,
		moderation: moderation,
		dispatcher: dispatcher,
		notifier:   notifier,
		jobs:       jobs,
		logger:     logger,
		cfg:        cfg,
	}
}

// Execute drives one dequeued job through the pipeline: low-tier encode,
// moderation gate, READY, then the non-fatal high-tier upgrade. Every
// infrastructure error is translated into a job-state transition; nothing
// escapes to crash the poll loop.
func (uc *ProcessVideoUseCase) Execute(ctx context.Context, job *entity.EncodingJob) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessVideoUseCase.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.video_id", job.VideoID.String()),
		attribute.Int("job.attempts", job.Attempts),
	)

	log := uc.logger.With(
		zap.String("job_id", job.ID),
		zap.String("video_id", job.VideoID.String()),
	)

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()
	totalTimer := time.Now()

	if err := uc.videos.UpdateStatus(ctx, job.VideoID, port.VideoStatusUpdate{Status: entity.VideoStatusEncoding}); err != nil {
		uc.handleEncodeFailure(ctx, job, "update video to ENCODING: "+err.Error(), log)
		return
	}

	if uc.dispatcher != nil {
		uc.dispatchRemote(ctx, job, log)
		return
	}

	if uc.runPipeline(ctx, job, log) {
		metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
		metrics.EncodeStageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	}
}

// dispatchRemote hands the job to the external encoding provider and leaves
// it PROCESSING. The provider's callback updates the video record directly,
// outside this process boundary.
func (uc *ProcessVideoUseCase) dispatchRemote(ctx context.Context, job *entity.EncodingJob, log *zap.Logger) {
	msg := entity.EncodeDispatchMessage{
		JobID:    job.ID,
		VideoID:  job.VideoID,
		InputKey: job.InputKey,
		Priority: job.Priority,
	}
	if err := uc.dispatcher.Dispatch(ctx, msg); err != nil {
		uc.handleEncodeFailure(ctx, job, "dispatch to remote encoder: "+err.Error(), log)
		return
	}
	metrics.JobsProcessedTotal.WithLabelValues("dispatched").Inc()
	log.Info("job dispatched to remote encoder")
}

// runPipeline returns true when the job reached queue-terminal COMPLETED.
func (uc *ProcessVideoUseCase) runPipeline(ctx context.Context, job *entity.EncodingJob, log *zap.Logger) bool {
	if uc.transcoder == nil {
		return uc.publishPassthrough(ctx, job, log)
	}

	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.TempDir, job.ID)
	outDir := filepath.Join(workDir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		uc.handleEncodeFailure(ctx, job, "create workdir: "+err.Error(), log)
		return false
	}
	defer os.RemoveAll(workDir)

	// Download the raw upload.
	dlStart := time.Now()
	dlCtx, spanDl := tracer.Start(ctx, "download_input")
	inputPath := filepath.Join(workDir, "input"+filepath.Ext(job.InputKey))
	err := uc.storage.Download(dlCtx, job.InputKey, inputPath)
	spanDl.End()
	if err != nil {
		uc.handleEncodeFailure(ctx, job, "download input: "+err.Error(), log)
		return false
	}
	metrics.EncodeStageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Phase 1: low tier, prioritized so the video is watchable early.
	p1Start := time.Now()
	p1Ctx, cancelP1 := context.WithTimeout(ctx, uc.cfg.EncodeTimeout)
	p1Ctx, spanP1 := tracer.Start(p1Ctx, "encode_phase1")
	lowResult, err := uc.transcoder.Encode(p1Ctx, inputPath, outDir, port.TierLow)
	spanP1.End()
	cancelP1()
	if err != nil {
		uc.handleEncodeFailure(ctx, job, "phase-1 encode: "+err.Error(), log)
		return false
	}
	metrics.EncodeStageDuration.WithLabelValues("phase1").Observe(time.Since(p1Start).Seconds())

	remotePrefix := fmt.Sprintf("videos/%s", job.VideoID)
	if err := uc.storage.UploadDir(ctx, remotePrefix, outDir); err != nil {
		uc.handleEncodeFailure(ctx, job, "upload phase-1 output: "+err.Error(), log)
		return false
	}
	lowKey := remoteKey(remotePrefix, outDir, lowResult.OutputPath)

	// Moderation gates the READY transition; a rejection is a terminal
	// content decision, not a transcode error.
	modStart := time.Now()
	modCtx, spanMod := tracer.Start(ctx, "moderation")
	decision, err := uc.moderation.Evaluate(modCtx, lowKey)
	spanMod.End()
	if err != nil {
		uc.handleEncodeFailure(ctx, job, "moderation call: "+err.Error(), log)
		return false
	}
	metrics.EncodeStageDuration.WithLabelValues("moderation").Observe(time.Since(modStart).Seconds())

	if !decision.Approved {
		uc.handleModerationRejection(ctx, job, decision.Reason, log)
		return true
	}

	mp4URL := uc.storage.URLFor(lowKey)
	update := port.VideoStatusUpdate{Status: entity.VideoStatusReady, MP4URL: &mp4URL}
	if lowResult.ManifestPath != "" {
		// Single-pass and pass-through modes already produced both tiers.
		manifestURL := uc.storage.URLFor(remoteKey(remotePrefix, outDir, lowResult.ManifestPath))
		update.HLSManifestURL = &manifestURL
	}
	if err := uc.videos.UpdateStatus(ctx, job.VideoID, update); err != nil {
		uc.handleEncodeFailure(ctx, job, "update video to READY: "+err.Error(), log)
		return false
	}
	uc.jobs.Complete(job.ID)
	log.Info("video ready", zap.String("mp4_url", mp4URL))

	if lowResult.ManifestPath == "" {
		uc.upgradeHighTier(ctx, job, inputPath, outDir, remotePrefix, log)
	}
	return true
}

// publishPassthrough serves the raw upload unmodified when no transcoder is
// available. A server-side copy publishes it without pulling the bytes
// through the worker; the moderation gate still applies.
func (uc *ProcessVideoUseCase) publishPassthrough(ctx context.Context, job *entity.EncodingJob, log *zap.Logger) bool {
	tracer := otel.Tracer("usecase")

	destKey := fmt.Sprintf("videos/%s/source%s", job.VideoID, filepath.Ext(job.InputKey))

	copyStart := time.Now()
	copyCtx, spanCopy := tracer.Start(ctx, "passthrough_copy")
	err := uc.storage.Copy(copyCtx, job.InputKey, destKey)
	spanCopy.End()
	if err != nil {
		uc.handleEncodeFailure(ctx, job, "copy upload through: "+err.Error(), log)
		return false
	}
	metrics.EncodeStageDuration.WithLabelValues("copy").Observe(time.Since(copyStart).Seconds())

	modCtx, spanMod := tracer.Start(ctx, "moderation")
	decision, err := uc.moderation.Evaluate(modCtx, destKey)
	spanMod.End()
	if err != nil {
		uc.handleEncodeFailure(ctx, job, "moderation call: "+err.Error(), log)
		return false
	}
	if !decision.Approved {
		uc.handleModerationRejection(ctx, job, decision.Reason, log)
		return true
	}

	mp4URL := uc.storage.URLFor(destKey)
	if err := uc.videos.UpdateStatus(ctx, job.VideoID, port.VideoStatusUpdate{
		Status: entity.VideoStatusReady,
		MP4URL: &mp4URL,
	}); err != nil {
		uc.handleEncodeFailure(ctx, job, "update video to READY: "+err.Error(), log)
		return false
	}
	uc.jobs.Complete(job.ID)
	log.Info("video published without transcoding", zap.String("mp4_url", mp4URL))
	return true
}

// upgradeHighTier runs phase 2. Failure here is logged and swallowed: the
// video stays READY on the low tier and the job stays COMPLETED.
func (uc *ProcessVideoUseCase) upgradeHighTier(ctx context.Context, job *entity.EncodingJob, inputPath, outDir, remotePrefix string, log *zap.Logger) {
	tracer := otel.Tracer("usecase")
	p2Start := time.Now()
	p2Ctx, cancel := context.WithTimeout(ctx, uc.cfg.EncodeTimeout)
	defer cancel()
	p2Ctx, span := tracer.Start(p2Ctx, "encode_phase2")
	defer span.End()

	highResult, err := uc.transcoder.Encode(p2Ctx, inputPath, outDir, port.TierHigh)
	if err != nil {
		metrics.JobsProcessedTotal.WithLabelValues("phase2_skipped").Inc()
		log.Warn("phase-2 encode failed, video stays on low tier", zap.Error(err))
		return
	}
	if err := uc.storage.UploadDir(ctx, remotePrefix, outDir); err != nil {
		metrics.JobsProcessedTotal.WithLabelValues("phase2_skipped").Inc()
		log.Warn("phase-2 upload failed, video stays on low tier", zap.Error(err))
		return
	}
	metrics.EncodeStageDuration.WithLabelValues("phase2").Observe(time.Since(p2Start).Seconds())

	if highResult.ManifestPath == "" {
		return
	}
	manifestURL := uc.storage.URLFor(remoteKey(remotePrefix, outDir, highResult.ManifestPath))
	update := port.VideoStatusUpdate{Status: entity.VideoStatusReady, HLSManifestURL: &manifestURL}
	if err := uc.videos.UpdateStatus(ctx, job.VideoID, update); err != nil {
		log.Warn("manifest update failed, video stays on low tier", zap.Error(err))
		return
	}
	log.Info("high tier manifest published", zap.String("hls_url", manifestURL))
}

// handleEncodeFailure routes a phase-1 or infrastructure error into the
// retry path, going permanent once this attempt exhausts the budget.
func (uc *ProcessVideoUseCase) handleEncodeFailure(ctx context.Context, job *entity.EncodingJob, errMsg string, log *zap.Logger) {
	attemptsAfter := job.Attempts + 1
	if attemptsAfter < job.MaxAttempts {
		metrics.RetryTotal.WithLabelValues(strconv.Itoa(attemptsAfter)).Inc()
		log.Warn("encode attempt failed, will retry",
			zap.Int("attempt", attemptsAfter),
			zap.Int("max_attempts", job.MaxAttempts),
			zap.String("error", errMsg),
		)
		uc.jobs.Fail(job.ID, errMsg, true)
		return
	}

	metrics.JobsProcessedTotal.WithLabelValues("failed").Inc()
	log.Error("encode permanently failed", zap.String("error", errMsg))

	reason := errMsg
	if err := uc.videos.UpdateStatus(ctx, job.VideoID, port.VideoStatusUpdate{
		Status:        entity.VideoStatusFailed,
		FailureReason: &reason,
	}); err != nil {
		log.Error("failed to mark video FAILED", zap.Error(err))
	}
	uc.jobs.Fail(job.ID, errMsg, true)
	uc.notifyFailure(ctx, job, errMsg, log)
}

// handleModerationRejection marks the video FAILED with the content reason
// and completes the job: the transcode itself succeeded.
func (uc *ProcessVideoUseCase) handleModerationRejection(ctx context.Context, job *entity.EncodingJob, reason string, log *zap.Logger) {
	metrics.JobsProcessedTotal.WithLabelValues("rejected").Inc()
	log.Info("video rejected by moderation", zap.String("reason", reason))

	failureReason := "moderation rejected: " + reason
	if err := uc.videos.UpdateStatus(ctx, job.VideoID, port.VideoStatusUpdate{
		Status:        entity.VideoStatusFailed,
		FailureReason: &failureReason,
	}); err != nil {
		log.Error("failed to mark rejected video FAILED", zap.Error(err))
	}
	uc.jobs.Complete(job.ID)
	uc.notifyFailure(ctx, job, failureReason, log)
}

func (uc *ProcessVideoUseCase) notifyFailure(ctx context.Context, job *entity.EncodingJob, errMsg string, log *zap.Logger) {
	if uc.notifier == nil {
		return
	}
	video, err := uc.videos.Get(ctx, job.VideoID)
	if err != nil || video == nil || video.UploaderEmail == "" {
		return
	}
	if err := uc.notifier.NotifyFailure(ctx, video.UploaderEmail, job.VideoID.String(), errMsg); err != nil {
		log.Warn("failure notification not sent", zap.Error(err))
	}
}

// remoteKey maps a local output path to its object key under the prefix.
func remoteKey(remotePrefix, localDir, localPath string) string {
	rel, err := filepath.Rel(localDir, localPath)
	if err != nil {
		rel = filepath.Base(localPath)
	}
	return filepath.ToSlash(filepath.Join(remotePrefix, rel))
}
