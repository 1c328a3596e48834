package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/port"
	"github.com/UnitedWeRise-org/feed-media-core/internal/infra/config"
	"github.com/UnitedWeRise-org/feed-media-core/internal/infra/email"
	"github.com/UnitedWeRise-org/feed-media-core/internal/infra/ffmpeg"
	"github.com/UnitedWeRise-org/feed-media-core/internal/infra/metrics"
	miniostorage "github.com/UnitedWeRise-org/feed-media-core/internal/infra/minio"
	"github.com/UnitedWeRise-org/feed-media-core/internal/infra/moderation"
	"github.com/UnitedWeRise-org/feed-media-core/internal/infra/postgres"
	"github.com/UnitedWeRise-org/feed-media-core/internal/infra/rabbitmq"
	"github.com/UnitedWeRise-org/feed-media-core/internal/infra/tracing"
	"github.com/UnitedWeRise-org/feed-media-core/internal/queue"
	"github.com/UnitedWeRise-org/feed-media-core/internal/usecase"
	"github.com/UnitedWeRise-org/feed-media-core/internal/worker"
	"github.com/UnitedWeRise-org/feed-media-core/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting feed-media-core worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing is non-fatal: the worker runs without a collector.
	tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		UploadBucket: cfg.MinIOUploadBucket,
		MediaBucket:  cfg.MinIOMediaBucket,
		MediaBaseURL: cfg.MediaBaseURL,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	videos := postgres.NewVideoStore(pool)
	moderator := moderation.NewClient(cfg.ModerationURL, cfg.ModerationTimeout)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	jobQueue := queue.New(queue.Config{
		Concurrency:    cfg.Worker.Concurrency,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		RetryBaseDelay: cfg.Worker.RetryBaseDelay,
	}, log)
	jobQueue.OnTransition(func(event queue.JobEvent) {
		log.Debug("job transition",
			zap.String("event", string(event.Type)),
			zap.String("job_id", event.Job.ID),
			zap.String("status", string(event.Job.Status)),
		)
	})

	transcoder, dispatcher, closeDispatch, err := buildEncodeMode(ctx, cfg, log)
	fatalOnErr(err, "select encode mode")
	if closeDispatch != nil {
		defer closeDispatch()
	}

	uc := usecase.NewProcessVideoUseCase(
		videos, storage, transcoder, moderator, dispatcher, notifier,
		jobQueue, log,
		usecase.ProcessVideoConfig{
			TempDir:       cfg.TempDir,
			EncodeTimeout: cfg.Worker.EncodeTimeout,
		},
	)

	metricsSrv := metrics.StartServer(cfg.MetricsPort, log)

	w := worker.New(jobQueue, videos, uc, cfg.Worker, log)
	w.Start(ctx)

	log.Info("feed-media-core worker started")
	<-ctx.Done()
	log.Info("received shutdown signal, draining in-flight jobs")

	w.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("feed-media-core worker stopped")
}

// buildEncodeMode resolves the configured mode to a transcoder or, for cloud
// dispatch, a publisher. Auto probes the environment: ffmpeg when present,
// pass-through (nil transcoder, server-side copy) otherwise.
func buildEncodeMode(ctx context.Context, cfg *config.Config, log *zap.Logger) (port.Transcoder, port.RemoteDispatcher, func(), error) {
	mode := cfg.Worker.EncodeMode
	if mode == config.EncodeModeAuto {
		if ffmpeg.Available() {
			mode = config.EncodeModeTwoPhase
		} else {
			mode = config.EncodeModePassthrough
		}
		log.Info("encode mode resolved", zap.String("mode", string(mode)))
	}

	switch mode {
	case config.EncodeModeTwoPhase:
		return ffmpeg.NewTranscoder(log), nil, nil, nil
	case config.EncodeModeSinglePass:
		return ffmpeg.NewSinglePassTranscoder(log), nil, nil, nil
	case config.EncodeModePassthrough:
		// No local transcoder: the pipeline publishes the raw upload via a
		// server-side copy.
		return nil, nil, nil, nil
	case config.EncodeModeCloud:
		conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQURL, log)
		if err != nil {
			return nil, nil, nil, err
		}
		dispatcher, err := rabbitmq.NewDispatcher(conn, cfg.RabbitMQExchange)
		if err != nil {
			conn.Close()
			return nil, nil, nil, err
		}
		closeFn := func() {
			_ = dispatcher.Close()
			_ = conn.Close()
		}
		return nil, dispatcher, closeFn, nil
	}
	return nil, nil, nil, nil
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
