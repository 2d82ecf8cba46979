package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpenMissingFile(t *testing.T) {
	o := NewOpener("", zaptest.NewLogger(t))
	_, err := o.Open(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	assert.ErrorIs(t, err, entity.ErrUnopenable)
}

func TestOpenDirectory(t *testing.T) {
	o := NewOpener("", zaptest.NewLogger(t))
	_, err := o.Open(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, entity.ErrUnopenable)
}

func TestOpenProbeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a video"), 0644))

	o := NewOpener("", zaptest.NewLogger(t)).WithProbe(func(string, time.Duration) (string, error) {
		return "", errors.New("Invalid data found when processing input")
	})
	_, err := o.Open(context.Background(), path)
	assert.ErrorIs(t, err, entity.ErrUnopenable)
}

func TestOpenUsesProbedProperties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte{0}, 0644))

	var budget time.Duration
	o := NewOpener("", zaptest.NewLogger(t)).WithProbe(func(_ string, timeout time.Duration) (string, error) {
		budget = timeout
		return mp4Probe, nil
	})
	h, err := o.Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1920, h.Properties().Width)
	assert.Equal(t, probeTimeout, budget)
	assert.NoError(t, h.Close())
	assert.NoError(t, h.Close())
}

func TestProbeBudgetFollowsDeadline(t *testing.T) {
	assert.Equal(t, probeTimeout, probeBudget(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	budget := probeBudget(ctx)
	assert.LessOrEqual(t, budget, 5*time.Second)
	assert.Greater(t, budget, 4*time.Second)

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	assert.Equal(t, time.Millisecond, probeBudget(expired))
}

// makeClip renders a short test pattern with the local ffmpeg binary.
func makeClip(t *testing.T, frames int) string {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	path := filepath.Join(t.TempDir(), "clip.mp4")
	out, err := exec.Command("ffmpeg", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=10",
		"-frames:v", fmt.Sprint(frames), "-c:v", "mpeg4", "-q:v", "5", path).CombinedOutput()
	require.NoError(t, err, string(out))
	return path
}

func TestDecodeRealClip(t *testing.T) {
	path := makeClip(t, 12)
	o := NewOpener("ffmpeg", zaptest.NewLogger(t))

	h, err := o.Open(context.Background(), path)
	require.NoError(t, err)
	defer h.Close()

	props := h.Properties()
	assert.Equal(t, 64, props.Width)
	assert.Equal(t, 48, props.Height)
	assert.InDelta(t, 10, props.FrameRate, 0.01)

	count := 0
	for {
		frame, err := h.ReadFrame(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Len(t, frame.Pix, 64*48*3)
		count++
	}
	assert.Equal(t, 12, count)

	_, err = h.ReadFrame(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestCloseStopsDecoderMidStream(t *testing.T) {
	path := makeClip(t, 50)
	h, err := NewOpener("ffmpeg", zaptest.NewLogger(t)).Open(context.Background(), path)
	require.NoError(t, err)

	_, err = h.ReadFrame(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Close())

	_, err = h.ReadFrame(context.Background())
	assert.ErrorIs(t, err, entity.ErrDecode)
}
