package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tinkertrain/sv/internal/vad"
)

func TestSampleRange_ClampsToBufferBounds(t *testing.T) {
	start, end := sampleRange(0.5, 100.0, 16000, 20000)
	assert.Equal(t, 8000, start)
	assert.Equal(t, 20000, end)
}

func TestSampleRange_NegativeStartClampsToZero(t *testing.T) {
	start, end := sampleRange(-1, 0.5, 16000, 20000)
	assert.Equal(t, 0, start)
	assert.Equal(t, 8000, end)
}

func TestContinuousCommit_CommitsFirstSegmentOnly(t *testing.T) {
	segments := []vad.Segment{
		{Start: 0.1, End: 1.0, Final: true},
		{Start: 2.5, End: 3.2, Final: true},
		{Start: 5.0, End: 5.8, Final: false},
	}

	toCommit, cutIdx := continuousCommit(segments, 16000, 100000)

	assert.Equal(t, segments[0], toCommit, "only the first of at least two segments is committed per tick")
	assert.Equal(t, int(2.5*16000), cutIdx, "buffer is trimmed to the start of the second segment")
}

func TestContinuousCommit_CutIndexClampedToBufferLength(t *testing.T) {
	segments := []vad.Segment{
		{Start: 0, End: 1, Final: true},
		{Start: 1000, End: 1001, Final: true}, // far beyond the buffer
	}

	_, cutIdx := continuousCommit(segments, 16000, 5000)
	assert.Equal(t, 5000, cutIdx)
}
