package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, user_id, video_key, archive_key, status, rate_mode, rate_value,
	resolution, format, width, height, frame_rate, total_frames, stride,
	processed_frames, saved_frames, attempt, max_attempts, error_reason,
	error_message, created_at, updated_at, completed_at`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `INSERT INTO sampling_jobs (` + jobColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoKey, job.ArchiveKey, string(job.Status),
		string(job.RateMode), job.RateValue, job.Resolution, job.Format,
		job.Width, job.Height, job.FrameRate, job.TotalFrames, job.Stride,
		job.ProcessedFrames, job.SavedFrames, job.Attempt, job.MaxAttempts,
		string(job.ErrorReason), job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sampling job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE sampling_jobs SET
			archive_key=$2, status=$3, format=$4, width=$5, height=$6,
			frame_rate=$7, total_frames=$8, stride=$9, processed_frames=$10,
			saved_frames=$11, attempt=$12, error_reason=$13, error_message=$14,
			updated_at=$15, completed_at=$16
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, job.ArchiveKey, string(job.Status), job.Format,
		job.Width, job.Height, job.FrameRate, job.TotalFrames, job.Stride,
		job.ProcessedFrames, job.SavedFrames, job.Attempt,
		string(job.ErrorReason), job.ErrorMessage,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update sampling job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update sampling job %s: %w", job.ID, port.ErrJobNotFound)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM sampling_jobs WHERE id=$1`

	job := &entity.Job{}
	var status, rateMode, reason string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoKey, &job.ArchiveKey, &status,
		&rateMode, &job.RateValue, &job.Resolution, &job.Format,
		&job.Width, &job.Height, &job.FrameRate, &job.TotalFrames, &job.Stride,
		&job.ProcessedFrames, &job.SavedFrames, &job.Attempt, &job.MaxAttempts,
		&reason, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, port.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find sampling job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	job.RateMode = entity.RateMode(rateMode)
	job.ErrorReason = entity.FailureReason(reason)
	return job, nil
}
