// Package sampler walks a video's frame stream once, keeps every stride-th
// decoded frame, optionally rescales it and writes it as an image file.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"go.uber.org/zap"
)

// FrameName returns the file name for the savedIndex-th kept frame.
// Indices are zero padded to five digits so lexical and numeric order agree.
func FrameName(savedIndex int, format entity.OutputFormat) string {
	return fmt.Sprintf("frame_%05d.%s", savedIndex, format.Ext())
}

type Sampler struct {
	opener  port.VideoOpener
	resizer port.FrameResizer
	writer  port.FrameWriter
	catalog []entity.Resolution
	logger  *zap.Logger
}

func New(opener port.VideoOpener, resizer port.FrameResizer, writer port.FrameWriter, logger *zap.Logger) *Sampler {
	return &Sampler{
		opener:  opener,
		resizer: resizer,
		writer:  writer,
		catalog: entity.StandardResolutions,
		logger:  logger,
	}
}

// WithCatalog replaces the named resolution catalog used to resolve requests.
func (s *Sampler) WithCatalog(catalog []entity.Resolution) *Sampler {
	s.catalog = catalog
	return s
}

// Sample runs one blocking pass over req.SourcePath. Cancelling ctx stops the
// pass at the next decoded frame with a SamplingCancelled result. Frames
// written before a failure or cancellation are left on disk.
func (s *Sampler) Sample(ctx context.Context, req entity.SamplingRequest, sink port.ProgressSink) entity.SamplingResult {
	log := s.logger.With(zap.String("source", req.SourcePath), zap.String("output_dir", req.OutputDir))

	format, ok := entity.ParseOutputFormat(req.Format)
	res := entity.SamplingResult{Format: format, FormatDowngraded: !ok && req.Format != ""}
	if res.FormatDowngraded {
		log.Warn("unsupported output format requested, using default",
			zap.String("requested", req.Format),
			zap.String("format", string(format)),
		)
	}

	if err := ctx.Err(); err != nil {
		return s.cancelled(log, res, err)
	}

	h, err := s.opener.Open(ctx, req.SourcePath)
	if err != nil {
		if !errors.Is(err, entity.ErrUnopenable) {
			err = fmt.Errorf("%w: %w", entity.ErrUnopenable, err)
		}
		return s.fail(log, res, entity.ReasonUnopenable, err)
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			log.Warn("release video source", zap.Error(cerr))
		}
	}()

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return s.fail(log, res, entity.ReasonOutputDirectory, fmt.Errorf("create %s: %w", req.OutputDir, err))
	}

	props := h.Properties()
	res.TotalFrames = props.TotalFrames
	res.Stride = req.Rate.Stride(props.FrameRate)
	target := s.resolveTarget(req.Resolution, log)

	log.Info("sampling started",
		zap.String("rate", req.Rate.String()),
		zap.Int("stride", res.Stride),
		zap.String("resolution", targetName(target)),
		zap.String("format", string(format)),
		zap.Float64("fps", props.FrameRate),
		zap.Int("total_frames", props.TotalFrames),
	)
	started := time.Now()

	for decoded := 0; ; decoded++ {
		if err := ctx.Err(); err != nil {
			return s.cancelled(log, res, err)
		}

		frame, err := h.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return s.cancelled(log, res, ctx.Err())
			}
			return s.fail(log, res, entity.ReasonDecode, fmt.Errorf("frame %d: %w", decoded, err))
		}

		if decoded%res.Stride == 0 {
			img, err := frame.Image()
			if err != nil {
				return s.fail(log, res, entity.ReasonDecode, fmt.Errorf("frame %d: %w", decoded, err))
			}
			path, err := s.writeFrame(img, target, req.OutputDir, res.SavedFrames, format)
			if err != nil {
				return s.fail(log, res, entity.ReasonWrite, err)
			}
			res.FramePaths = append(res.FramePaths, path)
			res.SavedFrames++
		}

		res.ProcessedFrames++
		if sink != nil {
			sink.Progress(res.ProcessedFrames, props.TotalFrames)
		}
	}

	res.Status = entity.SamplingSucceeded
	log.Info("sampling finished",
		zap.Int("saved_frames", res.SavedFrames),
		zap.Int("processed_frames", res.ProcessedFrames),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res
}

// resolveTarget returns nil for native output. Unknown names fall back to
// native, matching requests built from a stale resolution list.
func (s *Sampler) resolveTarget(name string, log *zap.Logger) *entity.Resolution {
	r, native, err := entity.ParseResolution(s.catalog, name)
	if err != nil {
		log.Warn("unknown resolution requested, keeping native size", zap.String("resolution", name), zap.Error(err))
		return nil
	}
	if native {
		return nil
	}
	return &r
}

func (s *Sampler) writeFrame(src *image.RGBA, target *entity.Resolution, dir string, savedIndex int, format entity.OutputFormat) (string, error) {
	var img image.Image = src
	if target != nil && (target.Width != src.Rect.Dx() || target.Height != src.Rect.Dy()) {
		img = s.resizer.Resize(src, target.Width, target.Height)
	}

	path := filepath.Join(dir, FrameName(savedIndex, format))
	if err := s.writer.WriteFrame(path, img, format); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func (s *Sampler) fail(log *zap.Logger, res entity.SamplingResult, reason entity.FailureReason, err error) entity.SamplingResult {
	res.Status = entity.SamplingFailed
	res.Err = entity.NewSamplingError(reason, err)
	log.Error("sampling failed",
		zap.String("reason", string(reason)),
		zap.Int("saved_frames", res.SavedFrames),
		zap.Error(err),
	)
	return res
}

func (s *Sampler) cancelled(log *zap.Logger, res entity.SamplingResult, cause error) entity.SamplingResult {
	res.Status = entity.SamplingCancelled
	res.Err = entity.NewSamplingError(entity.ReasonCancelled, cause)
	log.Info("sampling cancelled, frames saved so far remain on disk",
		zap.Int("saved_frames", res.SavedFrames),
		zap.Int("processed_frames", res.ProcessedFrames),
	)
	return res
}

func targetName(r *entity.Resolution) string {
	if r == nil {
		return entity.ResolutionNative
	}
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}
