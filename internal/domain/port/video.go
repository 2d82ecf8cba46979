package port

import (
	"context"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
)

// VideoHandle is an opened, forward-only frame stream. It is owned by the
// caller that opened it and must be closed exactly once.
type VideoHandle interface {
	Properties() entity.VideoProperties
	// ReadFrame returns the next decoded frame or io.EOF once the stream is
	// exhausted. The returned frame is only valid until the next call.
	ReadFrame(ctx context.Context) (*entity.Frame, error)
	Close() error
}

// VideoOpener opens video sources. Open fails with an error wrapping
// entity.ErrUnopenable when the path is missing, unreadable or unsupported.
type VideoOpener interface {
	Open(ctx context.Context, path string) (VideoHandle, error)
}
