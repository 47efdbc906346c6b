package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesToFloat32RoundTrip(t *testing.T) {
	want := []float32{0, 1, -1, 0.5, -0.5, 3.14159}
	buf := make([]byte, len(want)*4)
	for i, v := range want {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}

	got := bytesToFloat32(buf)
	assert.Equal(t, want, got)
	returnFloat32Buffer(got)
}

func TestRawRingPreservesOrderUntilFull(t *testing.T) {
	rr := newRawRing()

	for i := 0; i < rawRingSize; i++ {
		ok := rr.push([]float32{float32(i)})
		assert.True(t, ok, "push %d should fit in an empty ring", i)
	}

	// Ring is now full; the next push must be rejected rather than
	// silently overwriting an unread slot.
	ok := rr.push([]float32{999})
	assert.False(t, ok)
	assert.Equal(t, uint64(1), rr.dropCount.Load())

	for i := 0; i < rawRingSize; i++ {
		got := rr.pop()
		assert.Equal(t, []float32{float32(i)}, got)
	}
	assert.Nil(t, rr.pop())
}
