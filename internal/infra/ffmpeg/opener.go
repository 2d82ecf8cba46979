// Package ffmpeg opens video sources with ffprobe and decodes them through an
// ffmpeg rawvideo pipe.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

const (
	pipeBufferSize = 1 << 20
	// probeTimeout bounds ffprobe when the caller's context has no deadline.
	probeTimeout = 30 * time.Second
)

// ProbeFunc returns ffprobe's JSON description of path. It must give up after
// timeout.
type ProbeFunc func(path string, timeout time.Duration) (string, error)

// Opener implements port.VideoOpener on top of the ffmpeg and ffprobe binaries.
type Opener struct {
	binary string
	probe  ProbeFunc
	logger *zap.Logger
}

func NewOpener(binary string, logger *zap.Logger) *Opener {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Opener{
		binary: binary,
		probe:  ffprobe,
		logger: logger,
	}
}

func ffprobe(path string, timeout time.Duration) (string, error) {
	return ffmpeggo.ProbeWithTimeout(path, timeout, ffmpeggo.KwArgs{})
}

// WithProbe overrides how container metadata is read.
func (o *Opener) WithProbe(probe ProbeFunc) *Opener {
	o.probe = probe
	return o
}

// Open probes path. The decoder process is only started on the first ReadFrame,
// so opening for inspection is cheap.
func (o *Opener) Open(ctx context.Context, path string) (port.VideoHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrUnopenable, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", entity.ErrUnopenable, path)
	}

	out, err := o.probe(path, probeBudget(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %w", entity.ErrUnopenable, err)
	}
	props, err := parseProbe(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrUnopenable, err)
	}

	o.logger.Debug("video opened",
		zap.String("path", path),
		zap.String("codec", props.Codec),
		zap.String("resolution", props.Resolution()),
		zap.Float64("fps", props.FrameRate),
		zap.Int("total_frames", props.TotalFrames),
	)

	return &handle{
		binary: o.binary,
		path:   path,
		props:  props,
		logger: o.logger,
	}, nil
}

// probeBudget is the time left before ctx's deadline, capped at probeTimeout.
func probeBudget(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return probeTimeout
	}
	left := time.Until(deadline)
	if left <= 0 {
		return time.Millisecond
	}
	return min(left, probeTimeout)
}

type handle struct {
	binary string
	path   string
	props  entity.VideoProperties
	logger *zap.Logger

	cmd     *exec.Cmd
	cancel  context.CancelFunc
	reader  *bufio.Reader
	stderr  bytes.Buffer
	frame   entity.Frame
	started bool
	done    bool
	closed  bool
}

func (h *handle) Properties() entity.VideoProperties {
	return h.props
}

func (h *handle) ReadFrame(ctx context.Context) (*entity.Frame, error) {
	if h.closed {
		return nil, fmt.Errorf("%w: handle closed", entity.ErrDecode)
	}
	if h.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !h.started {
		if err := h.start(ctx); err != nil {
			return nil, err
		}
	}

	_, err := io.ReadFull(h.reader, h.frame.Pix)
	switch {
	case err == nil:
		return &h.frame, nil
	case errors.Is(err, io.EOF):
		return nil, h.finish()
	case errors.Is(err, io.ErrUnexpectedEOF):
		if ferr := h.finish(); !errors.Is(ferr, io.EOF) {
			return nil, ferr
		}
		h.logger.Warn("dropping truncated trailing frame", zap.String("path", h.path))
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("%w: read frame: %w", entity.ErrDecode, err)
	}
}

func (h *handle) start(ctx context.Context) error {
	if h.props.Width <= 0 || h.props.Height <= 0 {
		return fmt.Errorf("%w: unknown frame dimensions %s", entity.ErrDecode, h.props.Resolution())
	}

	args := ffmpeggo.Input(h.path).
		Output("pipe:", ffmpeggo.KwArgs{
			"map":     "0:v:0",
			"format":  "rawvideo",
			"pix_fmt": "rgb24",
			"vsync":   "passthrough",
		}).
		GlobalArgs("-nostdin", "-loglevel", "error").
		GetArgs()

	pctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(pctx, h.binary, args...)
	cmd.Stderr = &h.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: stdout pipe: %w", entity.ErrDecode, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: start %s: %w", entity.ErrDecode, h.binary, err)
	}

	h.logger.Debug("decoder started", zap.String("path", h.path), zap.Strings("args", args))

	h.cmd = cmd
	h.cancel = cancel
	h.reader = bufio.NewReaderSize(stdout, pipeBufferSize)
	h.frame = entity.Frame{
		Width:  h.props.Width,
		Height: h.props.Height,
		Pix:    make([]byte, h.props.Width*h.props.Height*3),
	}
	h.started = true
	return nil
}

// finish reaps the decoder after its output is exhausted. A non-zero exit is a
// decode failure; a clean exit ends the stream.
func (h *handle) finish() error {
	h.done = true
	if err := h.cmd.Wait(); err != nil {
		msg := strings.TrimSpace(h.stderr.String())
		return fmt.Errorf("%w: ffmpeg: %w: %s", entity.ErrDecode, err, msg)
	}
	return io.EOF
}

func (h *handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if !h.started {
		return nil
	}
	h.cancel()
	if !h.done {
		h.done = true
		// The process was killed mid-stream; its exit status carries no information.
		_ = h.cmd.Wait()
	}
	return nil
}
