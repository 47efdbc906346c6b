package audio

import (
	"sync/atomic"
)

// RingBuffer is a fixed-capacity, lock-free single-producer
// single-consumer circular buffer of float32 samples (spec §4.2).
//
// The audio callback thread is the sole producer (Write); the daemon
// loop is the sole consumer (Drain). Capacity is preallocated on
// construction and never resized.
type RingBuffer struct {
	samples []float32
	head    atomic.Uint64 // write position, producer-owned
	tail    atomic.Uint64 // read position, consumer-owned

	dropped atomic.Uint64 // samples discarded because the buffer was full
}

// NewRingBuffer preallocates a ring buffer able to hold capacity samples.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{samples: make([]float32, capacity)}
}

// Write appends samples to the buffer and returns how many were accepted.
// If there isn't room for all of them, the incoming chunk is discarded in
// full — spec §4.1 forbids partial overwrite of the producer's chunk, and
// the driver thread must never block, so a partial accept that still
// leaves the caller half-written is not an option either.
func (rb *RingBuffer) Write(in []float32) int {
	head := rb.head.Load()
	tail := rb.tail.Load()
	capacity := uint64(len(rb.samples))

	free := capacity - (head - tail)
	if uint64(len(in)) > free {
		rb.dropped.Add(uint64(len(in)))
		return 0
	}

	for i, s := range in {
		rb.samples[(head+uint64(i))%capacity] = s
	}
	rb.head.Add(uint64(len(in)))
	return len(in)
}

// Drain copies all currently available samples into dst, growing it if
// necessary, and returns the slice actually filled. It never blocks.
func (rb *RingBuffer) Drain(dst []float32) []float32 {
	head := rb.head.Load()
	tail := rb.tail.Load()
	capacity := uint64(len(rb.samples))

	available := head - tail
	if available == 0 {
		return dst[:0]
	}

	if uint64(cap(dst)) < available {
		dst = make([]float32, available)
	}
	dst = dst[:available]

	for i := uint64(0); i < available; i++ {
		dst[i] = rb.samples[(tail+i)%capacity]
	}
	rb.tail.Store(tail + available)
	return dst
}

// Dropped returns the cumulative number of samples discarded due to
// overflow (spec §7 BufferOverflow).
func (rb *RingBuffer) Dropped() uint64 {
	return rb.dropped.Load()
}

// Len reports the number of samples currently buffered.
func (rb *RingBuffer) Len() int {
	return int(rb.head.Load() - rb.tail.Load())
}

// Capacity reports the fixed sample capacity of the buffer.
func (rb *RingBuffer) Capacity() int {
	return len(rb.samples)
}
