package port

import (
	"image"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
)

type FrameResizer interface {
	Resize(img image.Image, width, height int) image.Image
}

type FrameWriter interface {
	WriteFrame(path string, img image.Image, format entity.OutputFormat) error
}
