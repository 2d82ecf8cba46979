package entity

import (
	"errors"
	"fmt"
)

type SamplingStatus string

const (
	SamplingSucceeded SamplingStatus = "SUCCEEDED"
	SamplingFailed    SamplingStatus = "FAILED"
	SamplingCancelled SamplingStatus = "CANCELLED"
)

type FailureReason string

const (
	ReasonUnopenable      FailureReason = "UNOPENABLE"
	ReasonOutputDirectory FailureReason = "OUTPUT_DIRECTORY"
	ReasonDecode          FailureReason = "DECODE"
	ReasonWrite           FailureReason = "WRITE"
	ReasonCancelled       FailureReason = "CANCELLED"
)

var (
	ErrUnopenable      = errors.New("video source cannot be opened")
	ErrOutputDirectory = errors.New("output directory cannot be created")
	ErrDecode          = errors.New("video decode failed")
	ErrWrite           = errors.New("frame write failed")
	ErrCancelled       = errors.New("sampling cancelled")
)

func (r FailureReason) sentinel() error {
	switch r {
	case ReasonUnopenable:
		return ErrUnopenable
	case ReasonOutputDirectory:
		return ErrOutputDirectory
	case ReasonDecode:
		return ErrDecode
	case ReasonWrite:
		return ErrWrite
	case ReasonCancelled:
		return ErrCancelled
	}
	return nil
}

// SamplingError carries the failure reason of a pass together with its cause.
type SamplingError struct {
	Reason FailureReason
	Err    error
}

func NewSamplingError(reason FailureReason, err error) *SamplingError {
	return &SamplingError{Reason: reason, Err: err}
}

func (e *SamplingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Reason.sentinel())
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *SamplingError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the reason, so errors.Is(err, ErrWrite) works
// whatever the underlying cause.
func (e *SamplingError) Is(target error) bool {
	return target != nil && target == e.Reason.sentinel()
}

// SamplingResult is the terminal outcome of one sampling pass. Frames listed
// in FramePaths are on disk whatever the status.
type SamplingResult struct {
	Status           SamplingStatus
	SavedFrames      int
	ProcessedFrames  int
	TotalFrames      int
	Stride           int
	Format           OutputFormat
	// FormatDowngraded is set when the requested format was not recognized.
	FormatDowngraded bool
	FramePaths       []string
	Err              *SamplingError
}

func (r SamplingResult) Succeeded() bool {
	return r.Status == SamplingSucceeded
}

func (r SamplingResult) Reason() FailureReason {
	if r.Err == nil {
		return ""
	}
	return r.Err.Reason
}

// Failure returns nil on success.
func (r SamplingResult) Failure() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}
