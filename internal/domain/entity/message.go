package entity

import (
	"fmt"

	"github.com/google/uuid"
)

// SamplingJobMessage is the inbound message from the sampling queue.
type SamplingJobMessage struct {
	JobID      uuid.UUID `json:"job_id"`
	UserID     string    `json:"user_id"`
	VideoKey   string    `json:"video_key"`
	RateMode   RateMode  `json:"rate_mode"`
	RateValue  float64   `json:"rate_value,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
	Format     string    `json:"format,omitempty"`
	UserEmail  string    `json:"user_email,omitempty"`
}

func (m SamplingJobMessage) Validate() error {
	if m.JobID == uuid.Nil {
		return fmt.Errorf("job_id is required")
	}
	if m.VideoKey == "" {
		return fmt.Errorf("video_key is required")
	}
	mode, err := ParseRateMode(string(m.RateMode))
	if err != nil {
		return err
	}
	if mode != RateModeNative && m.RateValue <= 0 {
		return fmt.Errorf("rate_value must be positive for rate mode %q", mode)
	}
	return nil
}

// Rate returns the selector described by the message. Validate first.
func (m SamplingJobMessage) Rate() RateSelector {
	mode, _ := ParseRateMode(string(m.RateMode))
	switch mode {
	case RateModeFPS:
		return ByTargetRate(m.RateValue)
	case RateModeInterval:
		return ByInterval(m.RateValue)
	}
	return NativeRate()
}

// SamplingStatusMessage is published to the status routing key on every job transition.
type SamplingStatusMessage struct {
	JobID           uuid.UUID     `json:"job_id"`
	UserID          string        `json:"user_id"`
	Status          JobStatus     `json:"status"`
	VideoKey        string        `json:"video_key"`
	ArchiveKey      string        `json:"archive_key,omitempty"`
	Stride          int           `json:"stride,omitempty"`
	SavedFrames     int           `json:"saved_frames,omitempty"`
	ProcessedFrames int           `json:"processed_frames,omitempty"`
	ErrorReason     FailureReason `json:"error_reason,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	Attempt         int           `json:"attempt"`
	MaxAttempts     int           `json:"max_attempts"`
}

// SamplingProgressMessage is published while a pass is running.
type SamplingProgressMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Percent   float64   `json:"percent"`
}
