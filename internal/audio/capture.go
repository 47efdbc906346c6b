// Package audio implements C1 (capture) and C2 (ring buffer) of the
// daemon's audio pipeline, plus the resampling and cue-tone playback
// that sit alongside them.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// rawRingSize is the number of raw callback chunks buffered between the
// audio driver thread and the resampling goroutine. At 16kHz with 32ms
// chunks this is a few seconds of headroom — resampling and the copy
// into the public ring buffer are cheap relative to a chunk period.
const rawRingSize = 128

// rawChunk is one fixed-capacity slot in the driver-to-resampler handoff.
type rawChunk struct {
	samples []float32
	len     int
}

// rawRing is a lock-free single-producer single-consumer ring of raw
// capture chunks, used only internally between the malgo callback and
// the resampling goroutine — distinct from the public RingBuffer (C2),
// which holds post-resample 16kHz samples for the daemon loop to drain.
type rawRing struct {
	chunks    [rawRingSize]rawChunk
	head      atomic.Uint64
	tail      atomic.Uint64
	dropCount atomic.Uint64
}

func newRawRing() *rawRing {
	rr := &rawRing{}
	for i := range rr.chunks {
		rr.chunks[i].samples = make([]float32, maxSamplesPerChunk)
	}
	return rr
}

const maxSamplesPerChunk = 2048

func (rr *rawRing) push(samples []float32) bool {
	head := rr.head.Load()
	tail := rr.tail.Load()

	if head-tail >= rawRingSize {
		rr.dropCount.Add(1)
		return false
	}

	slot := &rr.chunks[head%rawRingSize]
	n := copy(slot.samples, samples)
	slot.len = n

	rr.head.Add(1)
	return true
}

func (rr *rawRing) pop() []float32 {
	head := rr.head.Load()
	tail := rr.tail.Load()

	if head == tail {
		return nil
	}

	slot := &rr.chunks[tail%rawRingSize]
	samples := slot.samples[:slot.len]

	rr.tail.Add(1)
	return samples
}

// Capturer owns the default input device and writes 16kHz mono float
// samples into a RingBuffer (spec §4.1).
type Capturer struct {
	ctx              *malgo.AllocatedContext
	device           *malgo.Device
	sampleRate       uint32
	deviceSampleRate uint32
	sink             *RingBuffer
	running          atomic.Bool
	raw              *rawRing
	stopChan         chan struct{}
	wg               sync.WaitGroup
	resampler        *PolyphaseResampler
}

// NewCapturer opens the audio context (but not the device — that happens
// in Start) and arranges for captured, resampled samples to be written
// into sink.
func NewCapturer(sampleRate int, sink *RingBuffer) (*Capturer, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	return &Capturer{
		ctx:        ctx,
		sampleRate: uint32(sampleRate),
		sink:       sink,
		raw:        newRawRing(),
		stopChan:   make(chan struct{}),
	}, nil
}

// Start begins capture from the default input device. It returns an error
// if no default input exists or the requested format cannot be
// negotiated; the daemon reports such a failure as DeviceUnavailable.
func (c *Capturer) Start() error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = c.sampleRate
	deviceConfig.PeriodSizeInMilliseconds = 32

	tempDevice, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{})
	if err != nil {
		return fmt.Errorf("no usable capture device: %w", err)
	}
	c.deviceSampleRate = tempDevice.SampleRate()
	tempDevice.Uninit()

	if c.deviceSampleRate != c.sampleRate && c.deviceSampleRate > c.sampleRate {
		c.resampler = NewPolyphaseResampler(int(c.deviceSampleRate), int(c.sampleRate))
	}

	// Audio callback: runs on the driver thread. Must not block or
	// allocate beyond the pooled buffer, and must never call into the
	// VAD, transcriber, or output sink (spec §4.1, §5).
	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		if !c.running.Load() {
			return
		}
		pooled := bytesToFloat32(pInputSamples)
		if len(pooled) > 0 {
			c.raw.push(pooled)
		}
		returnFloat32Buffer(pooled)
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}

	c.device = device
	c.running.Store(true)

	c.wg.Add(1)
	go c.resampleLoop()

	if err := device.Start(); err != nil {
		device.Uninit()
		c.device = nil
		return fmt.Errorf("start capture device: %w", err)
	}

	return nil
}

// resampleLoop drains raw chunks, resamples them to the target rate, and
// writes the result into the public ring buffer. It runs off the driver
// thread so resampling cost never risks an audio glitch.
func (c *Capturer) resampleLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		samples := c.raw.pop()
		if samples == nil {
			select {
			case <-c.stopChan:
				return
			case <-time.After(100 * time.Microsecond):
			}
			continue
		}

		out := make([]float32, len(samples))
		copy(out, samples)

		if c.resampler != nil {
			out = c.resampler.Resample(out)
		} else if c.deviceSampleRate != c.sampleRate {
			out = ResampleInPlace(out, int(c.deviceSampleRate), int(c.sampleRate))
		}

		c.sink.Write(out)
	}
}

// Stop halts capture. After Stop returns, no further writes to the ring
// buffer occur. Idempotent.
func (c *Capturer) Stop() {
	if !c.running.Swap(false) && c.device == nil {
		return
	}

	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}
	c.wg.Wait()

	if c.device != nil {
		c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	c.stopChan = make(chan struct{})
}

// Close releases the audio context. Call once the capturer is no longer
// needed at all (not between recording sessions).
func (c *Capturer) Close() {
	c.Stop()
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
}

// float32Pool reduces allocations in the audio callback hot path.
var float32Pool = sync.Pool{
	New: func() interface{} {
		buf := make([]float32, 2048)
		return &buf
	},
}

// bytesToFloat32 converts raw little-endian float32 bytes to samples.
// The returned slice is only valid until returnFloat32Buffer is called.
func bytesToFloat32(data []byte) []float32 {
	numSamples := len(data) / 4
	pBuf := float32Pool.Get().(*[]float32)

	if cap(*pBuf) < numSamples {
		*pBuf = make([]float32, numSamples)
	}
	samples := (*pBuf)[:numSamples]

	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}

func returnFloat32Buffer(samples []float32) {
	if samples == nil {
		return
	}
	buf := samples[:cap(samples)]
	float32Pool.Put(&buf)
}
