// Package imagecodec resizes decoded frames and encodes them to image files.
package imagecodec

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
)

const (
	JPEGQuality = 95
	WebPQuality = 90
)

// Codec implements port.FrameResizer and port.FrameWriter.
type Codec struct {
	filter imaging.ResampleFilter
}

func New() *Codec {
	return &Codec{filter: imaging.Linear}
}

// Resize scales img to exactly width x height without preserving aspect ratio.
func (c *Codec) Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, c.filter)
}

// WriteFrame encodes img to path. A partially written file is removed on failure.
func (c *Codec) WriteFrame(path string, img image.Image, format entity.OutputFormat) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create frame file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close frame file: %w", cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	w := bufio.NewWriter(f)
	if err := Encode(w, img, format); err != nil {
		return err
	}
	return w.Flush()
}

// Encode writes img to w using the quality settings for format.
func Encode(w io.Writer, img image.Image, format entity.OutputFormat) error {
	var err error
	switch format {
	case entity.FormatJPEG:
		err = imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality))
	case entity.FormatPNG:
		err = imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed))
	case entity.FormatWebP:
		err = webp.Encode(w, img, &webp.Options{Quality: WebPQuality})
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return nil
}
