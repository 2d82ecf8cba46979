package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressEventPercent(t *testing.T) {
	assert.Equal(t, 0.0, ProgressEvent{Processed: 10, Total: 0}.Percent())
	assert.Equal(t, 0.0, ProgressEvent{Processed: 10, Total: -1}.Percent())
	assert.InDelta(t, 50.0, ProgressEvent{Processed: 150, Total: 300}.Percent(), 1e-9)
	assert.Equal(t, 100.0, ProgressEvent{Processed: 310, Total: 300}.Percent())
}

func TestProgressThrottle(t *testing.T) {
	th := &ProgressThrottle{Step: 25, UnknownTotalEvery: 100}
	var due []int
	for i := 1; i <= 100; i++ {
		if th.Due(ProgressEvent{Processed: i, Total: 100}) {
			due = append(due, i)
		}
	}
	assert.Equal(t, []int{1, 26, 51, 76, 100}, due)

	unknown := &ProgressThrottle{Step: 25, UnknownTotalEvery: 100}
	due = nil
	for i := 1; i <= 250; i++ {
		if unknown.Due(ProgressEvent{Processed: i}) {
			due = append(due, i)
		}
	}
	assert.Equal(t, []int{100, 200}, due)

	off := &ProgressThrottle{}
	assert.False(t, off.Due(ProgressEvent{Processed: 1, Total: 1}))
}
