package entity

import (
	"fmt"
	"strconv"
	"strings"
)

type Resolution struct {
	Name   string
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d)", r.Name, r.Width, r.Height)
}

// StandardResolutions is the named catalog offered for downscaling, smallest first.
var StandardResolutions = []Resolution{
	{Name: "250", Width: 250, Height: 250},
	{Name: "480p", Width: 854, Height: 480},
	{Name: "720p", Width: 1280, Height: 720},
	{Name: "1080p", Width: 1920, Height: 1080},
	{Name: "2K", Width: 2560, Height: 1440},
	{Name: "4K", Width: 3840, Height: 2160},
}

// ResolutionNative keeps decoded frames at their source dimensions.
const ResolutionNative = "native"

func LookupResolution(catalog []Resolution, name string) (Resolution, bool) {
	for _, r := range catalog {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return Resolution{}, false
}

// ParseResolution resolves a catalog name or a "WxH" pair. An empty value or
// "native" returns ok=true with a zero Resolution.
func ParseResolution(catalog []Resolution, s string) (Resolution, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, ResolutionNative) || strings.EqualFold(s, "original") {
		return Resolution{}, true, nil
	}

	if r, ok := LookupResolution(catalog, s); ok {
		return r, false, nil
	}

	w, h, found := strings.Cut(strings.ToLower(s), "x")
	if !found {
		return Resolution{}, false, fmt.Errorf("unknown resolution %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return Resolution{}, false, fmt.Errorf("invalid width in resolution %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return Resolution{}, false, fmt.Errorf("invalid height in resolution %q", s)
	}
	return Resolution{Name: s, Width: width, Height: height}, false, nil
}
