package entity

import (
	"fmt"
	"image"
)

// VideoProperties are the static properties reported by the decoder for an opened source.
// Any field may be zero when the container does not expose it.
type VideoProperties struct {
	Width        int
	Height       int
	FrameRate    float64
	TotalFrames  int
	DurationSecs float64
	Codec        string
}

func (p VideoProperties) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// VideoInfo is what the inspector reports about a source path.
type VideoInfo struct {
	Path string
	VideoProperties
}

// Frame is one decoded picture as packed RGB24 pixels.
// Pix may be reused by the decoder on the next read.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// Image converts the packed RGB24 buffer into an opaque RGBA image.
func (f *Frame) Image() (*image.RGBA, error) {
	expected := f.Width * f.Height * 3
	if f.Width <= 0 || f.Height <= 0 || len(f.Pix) != expected {
		return nil, fmt.Errorf("invalid rgb24 frame: %dx%d with %d bytes, expected %d",
			f.Width, f.Height, len(f.Pix), expected)
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i < f.Width*f.Height; i++ {
		img.Pix[i*4+0] = f.Pix[i*3+0]
		img.Pix[i*4+1] = f.Pix[i*3+1]
		img.Pix[i*4+2] = f.Pix[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img, nil
}
