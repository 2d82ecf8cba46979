package entity

import "strings"

type OutputFormat string

const (
	FormatJPEG OutputFormat = "jpg"
	FormatPNG  OutputFormat = "png"
	FormatWebP OutputFormat = "webp"

	DefaultFormat = FormatJPEG
)

// ParseOutputFormat normalizes s. Unrecognized values fall back to
// DefaultFormat with ok=false.
func ParseOutputFormat(s string) (OutputFormat, bool) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "jpg", "jpeg":
		return FormatJPEG, true
	case "png":
		return FormatPNG, true
	case "webp":
		return FormatWebP, true
	}
	return DefaultFormat, false
}

func (f OutputFormat) Ext() string {
	return string(f)
}
