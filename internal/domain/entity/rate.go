package entity

import (
	"fmt"
	"math"
	"strings"
)

type RateMode string

const (
	RateModeNative   RateMode = "native"
	RateModeFPS      RateMode = "fps"
	RateModeInterval RateMode = "interval"
)

// RateSelector chooses which decoded frames are kept. It is resolved to a fixed
// stride once per pass.
type RateSelector struct {
	Mode  RateMode
	Value float64
}

func NativeRate() RateSelector {
	return RateSelector{Mode: RateModeNative}
}

// ByTargetRate keeps roughly fps frames per second of video.
func ByTargetRate(fps float64) RateSelector {
	return RateSelector{Mode: RateModeFPS, Value: fps}
}

// ByInterval keeps one frame every seconds of video.
func ByInterval(seconds float64) RateSelector {
	return RateSelector{Mode: RateModeInterval, Value: seconds}
}

func ParseRateMode(s string) (RateMode, error) {
	switch RateMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RateModeNative:
		return RateModeNative, nil
	case RateModeFPS:
		return RateModeFPS, nil
	case RateModeInterval:
		return RateModeInterval, nil
	}
	return "", fmt.Errorf("unknown rate mode %q", s)
}

// Stride returns the decoded-frame interval at which frames are kept.
// It never drops below 1, so sampling never duplicates frames.
func (r RateSelector) Stride(nominalFPS float64) int {
	if !usableRate(nominalFPS) || !usableRate(r.Value) {
		return 1
	}

	var stride float64
	switch r.Mode {
	case RateModeFPS:
		stride = math.Floor(nominalFPS / r.Value)
	case RateModeInterval:
		stride = math.Round(nominalFPS * r.Value)
	default:
		return 1
	}

	if stride < 1 {
		return 1
	}
	if stride > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(stride)
}

func (r RateSelector) String() string {
	switch r.Mode {
	case RateModeFPS:
		return fmt.Sprintf("%g fps", r.Value)
	case RateModeInterval:
		return fmt.Sprintf("every %gs", r.Value)
	}
	return "native"
}

func usableRate(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
