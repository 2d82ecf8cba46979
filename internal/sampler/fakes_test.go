package sampler

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"sync"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
)

var errCorrupt = errors.New("corrupt packet")

type fakeHandle struct {
	props  entity.VideoProperties
	frames int
	failAt int
	read   int
	closed int
	frame  entity.Frame
}

func newFakeHandle(props entity.VideoProperties, frames int) *fakeHandle {
	const w, h = 16, 9
	return &fakeHandle{
		props:  props,
		frames: frames,
		failAt: -1,
		frame:  entity.Frame{Width: w, Height: h, Pix: make([]byte, w*h*3)},
	}
}

func (h *fakeHandle) Properties() entity.VideoProperties { return h.props }

func (h *fakeHandle) ReadFrame(context.Context) (*entity.Frame, error) {
	if h.read == h.failAt {
		return nil, errCorrupt
	}
	if h.read >= h.frames {
		return nil, io.EOF
	}
	h.frame.Pix[0] = byte(h.read)
	h.read++
	return &h.frame, nil
}

func (h *fakeHandle) Close() error {
	h.closed++
	return nil
}

type fakeOpener struct {
	handle *fakeHandle
	err    error
	opens  int
}

func (o *fakeOpener) Open(context.Context, string) (port.VideoHandle, error) {
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	return o.handle, nil
}

type fakeResizer struct {
	calls int
}

func (r *fakeResizer) Resize(_ image.Image, width, height int) image.Image {
	r.calls++
	return image.Rect(0, 0, width, height)
}

// recordingWriter writes a marker file per frame and remembers output sizes.
type recordingWriter struct {
	mu     sync.Mutex
	sizes  []image.Point
	failOn int
	err    error
}

func (w *recordingWriter) WriteFrame(path string, img image.Image, format entity.OutputFormat) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil && len(w.sizes) == w.failOn {
		return w.err
	}
	w.sizes = append(w.sizes, img.Bounds().Size())
	return os.WriteFile(path, []byte(format), 0644)
}

type progressLog struct {
	events []entity.ProgressEvent
}

func (p *progressLog) Progress(processed, total int) {
	p.events = append(p.events, entity.ProgressEvent{Processed: processed, Total: total})
}
