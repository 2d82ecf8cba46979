package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusSampling  JobStatus = "SAMPLING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Failure reasons for pipeline stages around the sampling pass itself.
const (
	ReasonInvalidMessage FailureReason = "INVALID_MESSAGE"
	ReasonDownload       FailureReason = "DOWNLOAD"
	ReasonArchive        FailureReason = "ARCHIVE"
	ReasonUpload         FailureReason = "UPLOAD"
	ReasonExhausted      FailureReason = "RETRIES_EXHAUSTED"
)

type Job struct {
	ID              uuid.UUID
	UserID          string
	VideoKey        string
	ArchiveKey      string
	Status          JobStatus
	RateMode        RateMode
	RateValue       float64
	Resolution      string
	Format          string
	Width           int
	Height          int
	FrameRate       float64
	TotalFrames     int
	Stride          int
	ProcessedFrames int
	SavedFrames     int
	Attempt         int
	MaxAttempts     int
	ErrorReason     FailureReason
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

func NewJob(msg SamplingJobMessage, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          msg.JobID,
		UserID:      msg.UserID,
		VideoKey:    msg.VideoKey,
		RateMode:    msg.RateMode,
		RateValue:   msg.RateValue,
		Resolution:  msg.Resolution,
		Format:      msg.Format,
		Status:      JobStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *Job) MarkSampling() {
	j.Status = JobStatusSampling
	j.Attempt++
	j.ErrorReason = ""
	j.ErrorMessage = ""
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) RecordSource(info VideoProperties) {
	j.Width = info.Width
	j.Height = info.Height
	j.FrameRate = info.FrameRate
	j.TotalFrames = info.TotalFrames
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) RecordResult(res SamplingResult) {
	j.Stride = res.Stride
	j.ProcessedFrames = res.ProcessedFrames
	j.SavedFrames = res.SavedFrames
	j.Format = string(res.Format)
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(archiveKey string) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ArchiveKey = archiveKey
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(reason FailureReason, errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorReason = reason
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
