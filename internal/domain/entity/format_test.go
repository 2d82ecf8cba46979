package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in   string
		want OutputFormat
		ok   bool
	}{
		{"jpg", FormatJPEG, true},
		{"JPEG", FormatJPEG, true},
		{".png", FormatPNG, true},
		{"webp", FormatWebP, true},
		{"bmp", DefaultFormat, false},
		{"", DefaultFormat, false},
	}
	for _, tt := range tests {
		got, ok := ParseOutputFormat(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
	assert.Equal(t, "jpg", DefaultFormat.Ext())
}
