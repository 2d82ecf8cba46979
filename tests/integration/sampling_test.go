package integration

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/archive"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/email"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/imagecodec"
	miniostorage "github.com/fiapx/fiapx-frame-sampler/internal/infra/minio"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/postgres"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-frame-sampler/internal/inspector"
	"github.com/fiapx/fiapx-frame-sampler/internal/sampler"
	"github.com/fiapx/fiapx-frame-sampler/internal/usecase"
	"github.com/fiapx/fiapx-frame-sampler/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

const (
	exchange      = "fiapx.frames"
	samplingQueue = "frames.sampling"
	statusQueue   = "frames.status"
	dlq           = "frames.sampling.dlq"
)

type stack struct {
	pool        *pgxpool.Pool
	rmqConn     *amqp.Connection
	minioClient *miniogo.Client
}

// startStack runs postgres, rabbitmq and minio containers and a consumer
// wired to the sampling use case.
func startStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(context.Background()) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { rmqContainer.Terminate(context.Background()) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { minioContainer.Terminate(context.Background()) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      minioEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UploadBucket:  "uploads",
		ArchiveBucket: "frames",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { rmqConn.Close() })

	pub, err := rabbitmq.NewPublisher(rmqConn, exchange)
	require.NoError(t, err)

	log, err := logger.New("debug")
	require.NoError(t, err)

	opener := ffmpeg.NewOpener("ffmpeg", log)
	codec := imagecodec.New()
	uc := usecase.NewSampleVideoUseCase(
		postgres.NewJobRepository(pool),
		storage,
		inspector.New(opener, log),
		sampler.New(opener, codec, codec, log),
		archive.NewZipper(),
		rabbitmq.NewStatusPublisher(pub, statusQueue),
		rabbitmq.NewDLQPublisher(pub, dlq),
		email.NewSMTPNotifier("localhost", 1025, "test@test.local", log),
		log,
		usecase.SampleVideoConfig{
			TempDir:             t.TempDir(),
			MaxRetries:          3,
			DefaultRate:         entity.NativeRate(),
			DefaultFormat:       "jpg",
			ProgressStepPercent: 25,
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       samplingQueue,
		Exchange:    exchange,
		DLQ:         dlq,
		StatusQueue: statusQueue,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	go consumer.Start(consumerCtx)
	t.Cleanup(func() {
		consumerCancel()
		consumer.Close()
	})
	time.Sleep(500 * time.Millisecond)

	return &stack{pool: pool, rmqConn: rmqConn, minioClient: minioClient}
}

func (s *stack) publish(t *testing.T, ctx context.Context, body []byte) {
	t.Helper()
	ch, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	err = ch.PublishWithContext(ctx, exchange, samplingQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	require.NoError(t, err)
}

// makeClip renders a 2 second 10 fps test pattern.
func makeClip(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	path := filepath.Join(t.TempDir(), "clip.mp4")
	out, err := exec.Command("ffmpeg", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=duration=2:size=320x240:rate=10",
		"-c:v", "mpeg4", "-q:v", "5", path).CombinedOutput()
	require.NoError(t, err, string(out))
	return path
}

func TestSampleVideoEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	clip := makeClip(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s := startStack(t, ctx)

	videoKey := "testuser/clip.mp4"
	_, err := s.minioClient.FPutObject(ctx, "uploads", videoKey, clip, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	statusCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()
	deliveries, err := statusCh.Consume(statusQueue, "", true, false, false, false, nil)
	require.NoError(t, err)

	jobID := uuid.New()
	body, err := json.Marshal(entity.SamplingJobMessage{
		JobID:      jobID,
		UserID:     "testuser",
		VideoKey:   videoKey,
		RateMode:   entity.RateModeFPS,
		RateValue:  5,
		Resolution: "160x120",
		Format:     "png",
		UserEmail:  "test@test.local",
	})
	require.NoError(t, err)
	s.publish(t, ctx, body)

	var final entity.SamplingStatusMessage
	progressSeen := 0
	timeout := time.After(2 * time.Minute)
wait:
	for {
		select {
		case d := <-deliveries:
			if strings.HasSuffix(d.RoutingKey, ".progress") {
				progressSeen++
				continue
			}
			var msg entity.SamplingStatusMessage
			require.NoError(t, json.Unmarshal(d.Body, &msg))
			if msg.Status == entity.JobStatusCompleted || msg.Status == entity.JobStatusFailed {
				final = msg
				break wait
			}
		case <-timeout:
			t.Fatal("timeout waiting for final status message")
		}
	}

	require.Equal(t, entity.JobStatusCompleted, final.Status, final.ErrorMessage)
	assert.Equal(t, jobID, final.JobID)
	assert.Equal(t, 2, final.Stride)
	assert.Equal(t, 20, final.ProcessedFrames)
	assert.Equal(t, 10, final.SavedFrames)
	assert.Greater(t, progressSeen, 0)

	obj, err := s.minioClient.GetObject(ctx, "frames", final.ArchiveKey, miniogo.GetObjectOptions{})
	require.NoError(t, err)
	tmpZip := filepath.Join(t.TempDir(), "result.zip")
	f, err := os.Create(tmpZip)
	require.NoError(t, err)
	_, err = f.ReadFrom(obj)
	require.NoError(t, err)
	f.Close()

	zr, err := zip.OpenReader(tmpZip)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	require.Len(t, names, 10)
	assert.Equal(t, "frame_00000.png", names[0])
	assert.Equal(t, "frame_00009.png", names[9])

	var dbStatus string
	var saved, stride int
	err = s.pool.QueryRow(ctx,
		"SELECT status, saved_frames, stride FROM sampling_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &saved, &stride)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, 10, saved)
	assert.Equal(t, 2, stride)
}

func TestSampleVideoMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s := startStack(t, ctx)
	s.publish(t, ctx, []byte(`{invalid json`))

	time.Sleep(2 * time.Second)

	ch, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	msg, ok, err := ch.Get(dlq, true)
	require.NoError(t, err)
	require.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(msg.Body))
	assert.Contains(t, msg.Headers["x-dlq-reason"], "unmarshal_error")
}
