// Package inspector reports the static properties of a video source and the
// sampling options it can support.
package inspector

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"go.uber.org/zap"
)

// ErrIneligibleResolution marks a requested output size the source cannot
// provide without upscaling, or a name that resolves to no size at all.
var ErrIneligibleResolution = errors.New("resolution not eligible for source")

type Inspector struct {
	opener port.VideoOpener
	logger *zap.Logger
}

func New(opener port.VideoOpener, logger *zap.Logger) *Inspector {
	return &Inspector{opener: opener, logger: logger}
}

// Inspect opens path, reads its properties and releases it before returning.
// Properties the container does not expose are reported as zero.
func (i *Inspector) Inspect(ctx context.Context, path string) (*entity.VideoInfo, error) {
	h, err := i.opener.Open(ctx, path)
	if err != nil {
		if !errors.Is(err, entity.ErrUnopenable) {
			err = fmt.Errorf("%w: %w", entity.ErrUnopenable, err)
		}
		i.logger.Warn("video source cannot be opened", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			i.logger.Warn("release video source", zap.String("path", path), zap.Error(cerr))
		}
	}()

	info := &entity.VideoInfo{Path: path, VideoProperties: h.Properties()}

	i.logger.Debug("video inspected",
		zap.String("path", path),
		zap.String("resolution", info.Resolution()),
		zap.Float64("fps", info.FrameRate),
		zap.Int("total_frames", info.TotalFrames),
	)
	return info, nil
}

// EligibleResolutions returns the catalog entries that fit within the native
// dimensions, in catalog order.
func EligibleResolutions(props entity.VideoProperties, catalog []entity.Resolution) []entity.Resolution {
	eligible := make([]entity.Resolution, 0, len(catalog))
	for _, r := range catalog {
		if r.Width <= props.Width && r.Height <= props.Height {
			eligible = append(eligible, r)
		}
	}
	return eligible
}

// CheckResolution accepts native output, and any catalog name or "WxH" size
// that fits within the native dimensions.
func CheckResolution(props entity.VideoProperties, catalog []entity.Resolution, name string) error {
	r, native, err := entity.ParseResolution(catalog, name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIneligibleResolution, err)
	}
	if native {
		return nil
	}
	if r.Width > props.Width || r.Height > props.Height {
		return fmt.Errorf("%w: %dx%d exceeds native %s", ErrIneligibleResolution, r.Width, r.Height, props.Resolution())
	}
	return nil
}

// EligibleRates returns 1..floor(fps). It is empty when fps is not a usable
// positive number, leaving native sampling as the only option.
func EligibleRates(fps float64) []int {
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps < 1 {
		return nil
	}
	n := int(math.Floor(fps))
	rates := make([]int, n)
	for r := 1; r <= n; r++ {
		rates[r-1] = r
	}
	return rates
}
