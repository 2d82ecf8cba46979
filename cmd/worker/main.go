package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-frame-sampler/internal/infra/archive"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/config"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/email"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/imagecodec"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-frame-sampler/internal/infra/minio"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/postgres"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/tracing"
	"github.com/fiapx/fiapx-frame-sampler/internal/inspector"
	"github.com/fiapx/fiapx-frame-sampler/internal/sampler"
	"github.com/fiapx/fiapx-frame-sampler/internal/usecase"
	"github.com/fiapx/fiapx-frame-sampler/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting " + tracing.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing is optional
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, cfg.TraceSampleRatio)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else if tp != nil {
		defer tp.Shutdown(context.Background())
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		UploadBucket:  cfg.MinIOUploadBucket,
		ArchiveBucket: cfg.MinIOArchiveBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	defer pub.Close()

	statusPub := rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusQueue)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Sampling engine
	opener := ffmpeg.NewOpener(cfg.FFmpegBinary, log)
	codec := imagecodec.New()
	insp := inspector.New(opener, log)
	smp := sampler.New(opener, codec, codec, log)

	// Infra adapters
	repo := postgres.NewJobRepository(pool)
	zipper := archive.NewZipper()
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	uc := usecase.NewSampleVideoUseCase(
		repo, storage, insp, smp, zipper,
		statusPub, dlqPub, notifier,
		log,
		usecase.SampleVideoConfig{
			TempDir:             cfg.TempDir,
			MaxRetries:          cfg.MaxRetries,
			DefaultRate:         cfg.DefaultRate(),
			DefaultResolution:   cfg.SamplerResolution,
			DefaultFormat:       cfg.SamplerFormat,
			ProgressStepPercent: cfg.ProgressStepPercent,
		},
	)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if rmqConn.IsClosed() {
			return amqp.ErrClosed
		}
		return pool.Ping(ctx)
	}, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQSamplingQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info(tracing.ServiceName+" started, consuming messages", zap.String("queue", cfg.RabbitMQSamplingQueue))

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info(tracing.ServiceName + " stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
