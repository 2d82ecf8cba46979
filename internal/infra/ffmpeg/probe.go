package ffmpeg

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
)

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
	Tags         struct {
		Rotate string `json:"rotate"`
	} `json:"tags"`
	SideDataList []struct {
		Rotation float64 `json:"rotation"`
	} `json:"side_data_list"`
}

// rotation returns the display rotation in degrees, normalised to [0, 360).
// Newer ffprobe reports it as display matrix side data, older builds as a
// "rotate" tag.
func (s *probeStream) rotation() int {
	deg := 0.0
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			deg = sd.Rotation
			break
		}
	}
	if deg == 0 {
		deg = parseSigned(s.Tags.Rotate)
	}
	r := int(math.Round(deg)) % 360
	if r < 0 {
		r += 360
	}
	return r
}

// parseProbe extracts the first video stream's properties from ffprobe JSON.
func parseProbe(data string) (entity.VideoProperties, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return entity.VideoProperties{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var vs *probeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "video" {
			vs = &out.Streams[i]
			break
		}
	}
	if vs == nil {
		return entity.VideoProperties{}, fmt.Errorf("no video stream found")
	}

	props := entity.VideoProperties{
		Width:  vs.Width,
		Height: vs.Height,
		Codec:  vs.CodecName,
	}
	// ffmpeg applies the display rotation while decoding, so frames come out
	// in display orientation.
	if r := vs.rotation(); r == 90 || r == 270 {
		props.Width, props.Height = vs.Height, vs.Width
	}

	props.FrameRate = parseRate(vs.AvgFrameRate)
	if props.FrameRate == 0 {
		props.FrameRate = parseRate(vs.RFrameRate)
	}

	props.DurationSecs = parseFloat(vs.Duration)
	if props.DurationSecs == 0 {
		props.DurationSecs = parseFloat(out.Format.Duration)
	}

	if n, err := strconv.Atoi(vs.NbFrames); err == nil && n > 0 {
		props.TotalFrames = n
	} else if props.DurationSecs > 0 && props.FrameRate > 0 {
		// Containers without a frame index only allow an estimate.
		props.TotalFrames = int(math.Round(props.DurationSecs * props.FrameRate))
	}

	return props, nil
}

// parseRate parses ffprobe rationals such as "30000/1001". Invalid or
// undefined rates ("0/0") yield 0.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found {
		return parseFloat(num)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if n <= 0 || d <= 0 {
		return 0
	}
	return n / d
}

func parseSigned(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
