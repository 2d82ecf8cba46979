package port

import (
	"context"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
)

// ProgressSink receives (processed, total) once per decoded frame, on the
// sampler's goroutine.
type ProgressSink interface {
	Progress(processed, total int)
}

// ProgressFunc adapts a plain function to ProgressSink.
type ProgressFunc func(processed, total int)

func (f ProgressFunc) Progress(processed, total int) {
	f(processed, total)
}

type VideoInspector interface {
	Inspect(ctx context.Context, path string) (*entity.VideoInfo, error)
}

type FrameSampler interface {
	Sample(ctx context.Context, req entity.SamplingRequest, sink ProgressSink) entity.SamplingResult
}
