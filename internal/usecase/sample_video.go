package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/metrics"
	"github.com/fiapx/fiapx-frame-sampler/internal/inspector"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type SampleVideoUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	inspector port.VideoInspector
	sampler   port.FrameSampler
	archiver  port.Archiver
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	cfg       SampleVideoConfig
}

type SampleVideoConfig struct {
	TempDir    string
	MaxRetries int
	// Defaults for messages that leave the choice open.
	DefaultRate       entity.RateSelector
	DefaultResolution string
	DefaultFormat     string
	// Catalog resolves resolution names; nil means entity.StandardResolutions.
	Catalog []entity.Resolution
	// ProgressStepPercent throttles progress messages; <= 0 disables them.
	ProgressStepPercent float64
}

func NewSampleVideoUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	inspector port.VideoInspector,
	sampler port.FrameSampler,
	archiver port.Archiver,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg SampleVideoConfig,
) *SampleVideoUseCase {
	return &SampleVideoUseCase{
		repo:      repo,
		storage:   storage,
		inspector: inspector,
		sampler:   sampler,
		archiver:  archiver,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

// Execute handles one raw queue message. A nil return acknowledges the
// message: completed jobs, malformed messages and permanent failures. A non-nil
// return asks the consumer to requeue it.
func (uc *SampleVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "SampleVideoUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.SamplingJobMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		uc.sendToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	if err := msg.Validate(); err != nil {
		uc.logger.Error("invalid sampling message", zap.Error(err), zap.ByteString("body", rawMsg))
		uc.sendToDLQ(ctx, rawMsg, "invalid_message: "+err.Error())
		metrics.JobsProcessedTotal.WithLabelValues("invalid").Inc()
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
		attribute.String("job.rate_mode", string(msg.RateMode)),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	switch {
	case errors.Is(err, port.ErrJobNotFound):
		job = entity.NewJob(msg, uc.cfg.MaxRetries)
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	case err != nil:
		log.Error("failed to load job record", zap.Error(err))
		return fmt.Errorf("find job: %w", err)
	}

	if job.Status == entity.JobStatusCompleted {
		log.Info("job already completed, skipping redelivered message")
		return nil
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, entity.ReasonExhausted, "max retries exceeded", log)
	}

	job.MarkSampling()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to SAMPLING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}
	uc.publishStatus(ctx, job, log)

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.samplingPipeline(ctx, job, msg, rawMsg, log); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobStageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return nil
}

func (uc *SampleVideoUseCase) samplingPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.SamplingJobMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download the source video
	dlStart := time.Now()
	dlCtx, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "source"+filepath.Ext(msg.VideoKey))
	if err := uc.storage.DownloadVideo(dlCtx, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, entity.ReasonDownload, err, log)
	}
	spanDl.End()
	metrics.JobStageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Inspect
	inCtx, spanIn := tracer.Start(ctx, "inspect_video")
	info, err := uc.inspector.Inspect(inCtx, videoPath)
	spanIn.End()
	if err != nil {
		if errors.Is(err, entity.ErrUnopenable) {
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, entity.ReasonUnopenable, err.Error(), log)
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, entity.ReasonDecode, err, log)
	}
	job.RecordSource(info.VideoProperties)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Warn("failed to persist source properties", zap.Error(err))
	}

	req := uc.requestFor(msg, videoPath, filepath.Join(workDir, "frames"))
	if err := inspector.CheckResolution(info.VideoProperties, uc.catalog(), req.Resolution); err != nil {
		log.Warn("requested resolution not eligible for source",
			zap.String("resolution", req.Resolution),
			zap.String("native", info.Resolution()),
		)
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, entity.ReasonInvalidMessage, err.Error(), log)
	}

	// Sample
	smStart := time.Now()
	smCtx, spanSm := tracer.Start(ctx, "sample_frames")
	spanSm.SetAttributes(
		attribute.String("sampling.rate", req.Rate.String()),
		attribute.String("sampling.resolution", req.Resolution),
		attribute.String("sampling.format", req.Format),
	)
	sink := newProgressReporter(smCtx, uc.publisher, job.ID, uc.cfg.ProgressStepPercent, log)
	result := uc.sampler.Sample(smCtx, req, sink)
	spanSm.SetAttributes(
		attribute.Int("sampling.stride", result.Stride),
		attribute.Int("sampling.saved_frames", result.SavedFrames),
	)
	spanSm.End()
	uc.recordOutcome(result)
	metrics.JobStageDuration.WithLabelValues("sample").Observe(time.Since(smStart).Seconds())

	job.RecordResult(result)
	switch result.Status {
	case entity.SamplingCancelled:
		// ctx is usually done here; the partial counts are still worth keeping.
		if err := uc.repo.Update(context.WithoutCancel(ctx), job); err != nil {
			log.Warn("failed to persist cancelled pass", zap.Error(err))
		}
		log.Info("sampling cancelled, message will be redelivered", zap.Int("saved_frames", result.SavedFrames))
		return fmt.Errorf("sample frames: %w", result.Failure())
	case entity.SamplingFailed:
		if result.Reason() == entity.ReasonUnopenable {
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, result.Reason(), result.Err.Error(), log)
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, result.Reason(), result.Failure(), log)
	}

	// Archive the kept frames
	zipStart := time.Now()
	zipCtx, spanZip := tracer.Start(ctx, "create_archive")
	zipPath := filepath.Join(workDir, "frames.zip")
	if err := uc.archiver.CreateArchive(zipCtx, result.FramePaths, zipPath); err != nil {
		spanZip.End()
		log.Error("archive creation failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, entity.ReasonArchive, err, log)
	}
	spanZip.End()
	metrics.JobStageDuration.WithLabelValues("archive").Observe(time.Since(zipStart).Seconds())

	// Upload the archive
	upStart := time.Now()
	upCtx, spanUp := tracer.Start(ctx, "upload_archive")
	archiveKey := ArchiveKey(job)
	archiveInfo := port.ArchiveInfo{
		SourceKey:   msg.VideoKey,
		SavedFrames: result.SavedFrames,
		Stride:      result.Stride,
		Format:      string(result.Format),
	}
	if err := uc.uploadArchive(upCtx, archiveKey, zipPath, archiveInfo); err != nil {
		spanUp.End()
		log.Error("archive upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, entity.ReasonUpload, err, log)
	}
	spanUp.End()
	metrics.JobStageDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	job.MarkCompleted(archiveKey)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.Int("saved_frames", result.SavedFrames),
		zap.Int("processed_frames", result.ProcessedFrames),
		zap.Int("stride", result.Stride),
		zap.String("archive_key", archiveKey),
	)
	return nil
}

// ArchiveKey is the object key of a job's frame archive.
func ArchiveKey(job *entity.Job) string {
	return fmt.Sprintf("%s/frames_%s.zip", job.UserID, job.ID.String())
}

func (uc *SampleVideoUseCase) requestFor(msg entity.SamplingJobMessage, source, outputDir string) entity.SamplingRequest {
	req := entity.SamplingRequest{
		SourcePath: source,
		OutputDir:  outputDir,
		Rate:       msg.Rate(),
		Resolution: msg.Resolution,
		Format:     msg.Format,
	}
	if msg.RateMode == "" {
		req.Rate = uc.cfg.DefaultRate
	}
	if req.Resolution == "" {
		req.Resolution = uc.cfg.DefaultResolution
	}
	if req.Format == "" {
		req.Format = uc.cfg.DefaultFormat
	}
	return req
}

func (uc *SampleVideoUseCase) catalog() []entity.Resolution {
	if uc.cfg.Catalog == nil {
		return entity.StandardResolutions
	}
	return uc.cfg.Catalog
}

func (uc *SampleVideoUseCase) uploadArchive(ctx context.Context, key, path string, info port.ArchiveInfo) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	return uc.storage.UploadArchive(ctx, key, f, st.Size(), info)
}

func (uc *SampleVideoUseCase) recordOutcome(result entity.SamplingResult) {
	metrics.FramesDecodedTotal.Add(float64(result.ProcessedFrames))
	metrics.FramesSavedTotal.WithLabelValues(string(result.Format)).Add(float64(result.SavedFrames))
	metrics.SamplingOutcomesTotal.WithLabelValues(string(result.Status), string(result.Reason())).Inc()
}

func (uc *SampleVideoUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.SamplingJobMessage,
	rawMsg []byte,
	reason entity.FailureReason,
	cause error,
	log *zap.Logger,
) error {
	job.MarkFailed(reason, cause.Error())
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Warn("failed to persist job failure", zap.Error(err))
	}

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, reason, cause.Error(), log)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s: %w", job.Attempt, job.MaxAttempts, reason, cause)
}

func (uc *SampleVideoUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.SamplingJobMessage,
	rawMsg []byte,
	reason entity.FailureReason,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(reason, errMsg)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Warn("failed to persist job failure", zap.Error(err))
	}

	uc.sendToDLQ(ctx, rawMsg, string(reason)+": "+errMsg)
	uc.publishStatus(ctx, job, log)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		notice := port.FailureNotice{
			UserEmail: msg.UserEmail,
			JobID:     job.ID.String(),
			VideoKey:  msg.VideoKey,
			Reason:    string(reason),
			Message:   errMsg,
		}
		if err := uc.notifier.NotifyFailure(ctx, notice); err != nil {
			log.Warn("failure notification not delivered", zap.Error(err))
		}
	}
	return nil
}

func (uc *SampleVideoUseCase) sendToDLQ(ctx context.Context, rawMsg []byte, reason string) {
	if err := uc.dlq.PublishToDLQ(ctx, rawMsg, reason); err != nil {
		uc.logger.Error("failed to publish to DLQ", zap.Error(err))
	}
}

func (uc *SampleVideoUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	statusMsg := entity.SamplingStatusMessage{
		JobID:           job.ID,
		UserID:          job.UserID,
		Status:          job.Status,
		VideoKey:        job.VideoKey,
		ArchiveKey:      job.ArchiveKey,
		Stride:          job.Stride,
		SavedFrames:     job.SavedFrames,
		ProcessedFrames: job.ProcessedFrames,
		ErrorReason:     job.ErrorReason,
		ErrorMessage:    job.ErrorMessage,
		Attempt:         job.Attempt,
		MaxAttempts:     job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
