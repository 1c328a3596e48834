// Package worker polls the in-memory queue and drives the encode pipeline.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/entity"
	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/port"
	"github.com/UnitedWeRise-org/feed-media-core/internal/infra/config"
	"github.com/UnitedWeRise-org/feed-media-core/internal/queue"
	"go.uber.org/zap"
)

// Processor handles one dequeued job. Implementations must translate every
// failure into a queue transition; Execute never returns an error.
type Processor interface {
	Execute(ctx context.Context, job *entity.EncodingJob)
}

type Worker struct {
	queue     *queue.Queue
	videos    port.VideoStore
	processor Processor
	cfg       config.WorkerConfig
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(q *queue.Queue, videos port.VideoStore, processor Processor, cfg config.WorkerConfig, logger *zap.Logger) *Worker {
	return &Worker{
		queue:     q,
		videos:    videos,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start recovers orphaned videos once, then runs the poll loop and the
// stats/cleanup tickers until Stop is called or the parent context ends.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	if err := w.RecoverOrphanedVideos(ctx); err != nil {
		// Recovery is best-effort: a store outage here must not keep the
		// worker from serving freshly enqueued jobs.
		w.logger.Error("orphan recovery failed", zap.Error(err))
	}

	w.wg.Add(1)
	go w.pollLoop(ctx)
	w.wg.Add(1)
	go w.housekeeping(ctx)

	w.logger.Info("worker started",
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.Int("concurrency", w.cfg.Concurrency),
	)
}

// Stop signals the loops to exit and waits for in-flight jobs to finish.
// Jobs are never aborted mid-transcode.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) pollLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.dispatchAvailable(ctx)
		}
	}
}

// dispatchAvailable drains every currently admissible job. The queue's
// NextJob is the sole concurrency gate; an empty return is the normal
// poll-empty condition and the ticker provides the backoff.
func (w *Worker) dispatchAvailable(ctx context.Context) {
	for {
		job := w.queue.NextJob()
		if job == nil {
			return
		}
		w.wg.Add(1)
		// Detach from the poll context so Stop lets the job finish.
		jobCtx := context.WithoutCancel(ctx)
		go func(job *entity.EncodingJob) {
			defer w.wg.Done()
			w.processor.Execute(jobCtx, job)
		}(job)
	}
}

func (w *Worker) housekeeping(ctx context.Context) {
	defer w.wg.Done()
	statsTicker := time.NewTicker(w.cfg.StatsInterval)
	defer statsTicker.Stop()
	cleanupTicker := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-statsTicker.C:
			stats := w.queue.Stats()
			w.logger.Info("queue stats",
				zap.Int("pending", stats.Pending),
				zap.Int("processing", stats.Processing),
				zap.Int("completed", stats.Completed),
				zap.Int("failed", stats.Failed),
				zap.Int("total", stats.Total),
			)
		case <-cleanupTicker.C:
			w.queue.Cleanup(w.cfg.JobRetention)
		}
	}
}

// RecoverOrphanedVideos re-enqueues durable PENDING videos left behind by a
// prior process. The in-memory queue is empty on a fresh start, so every
// recent PENDING record is an orphan; records older than the recovery window
// are presumed deliberately abandoned and stay untouched.
func (w *Worker) RecoverOrphanedVideos(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-w.cfg.RecoveryWindow)
	orphans, err := w.videos.ListStalePending(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, video := range orphans {
		jobID := w.queue.Add(video.ID, video.UploadKey, entity.DefaultPriority)
		w.logger.Info("recovered orphaned video",
			zap.String("video_id", video.ID.String()),
			zap.String("job_id", jobID),
			zap.Time("created_at", video.CreatedAt),
		)
	}
	if len(orphans) > 0 {
		w.logger.Info("orphan recovery complete", zap.Int("recovered", len(orphans)))
	}
	return nil
}
