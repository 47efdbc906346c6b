package audio

import (
	"fmt"
	"math"

	"github.com/gen2brain/malgo"
)

const (
	cueStartHz = 880.0
	cueStopHz  = 440.0
	cueMs      = 120
)

// CuePlayer plays the short start/stop tones used for audio feedback
// (spec §4.8). It opens the playback context once; each cue opens the
// default output device, plays, and closes it again. Callers should treat
// playback failures as non-fatal.
type CuePlayer struct {
	ctx        *malgo.AllocatedContext
	sampleRate uint32
}

// NewCuePlayer opens a playback context at the given sample rate.
func NewCuePlayer(sampleRate int) (*CuePlayer, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init playback context: %w", err)
	}
	return &CuePlayer{ctx: ctx, sampleRate: uint32(sampleRate)}, nil
}

// PlayStart plays the recording-started cue.
func (c *CuePlayer) PlayStart() error { return c.playTone(cueStartHz) }

// PlayStop plays the recording-stopped cue.
func (c *CuePlayer) PlayStop() error { return c.playTone(cueStopHz) }

// playTone synthesizes a short sine-wave tone with a linear fade at both
// ends (to avoid a click) and blocks until it finishes.
func (c *CuePlayer) playTone(freqHz float64) error {
	numSamples := int(c.sampleRate) * cueMs / 1000
	tone := make([]float32, numSamples)
	fade := numSamples / 10
	if fade == 0 {
		fade = 1
	}

	for i := range tone {
		t := float64(i) / float64(c.sampleRate)
		sample := float32(0.2 * math.Sin(2*math.Pi*freqHz*t))

		switch {
		case i < fade:
			sample *= float32(i) / float32(fade)
		case i >= numSamples-fade:
			sample *= float32(numSamples-1-i) / float32(fade)
		}
		tone[i] = sample
	}

	done := make(chan struct{})
	pos := 0

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = c.sampleRate
	deviceConfig.PeriodSizeInMilliseconds = 32

	onSendFrames := func(pOutputSamples, pInputSamples []byte, framecount uint32) {
		frames := len(pOutputSamples) / 4
		for i := 0; i < frames; i++ {
			var sample float32
			if pos < len(tone) {
				sample = tone[pos]
				pos++
			}
			bits := math.Float32bits(sample)
			pOutputSamples[i*4] = byte(bits)
			pOutputSamples[i*4+1] = byte(bits >> 8)
			pOutputSamples[i*4+2] = byte(bits >> 16)
			pOutputSamples[i*4+3] = byte(bits >> 24)
		}
		if pos >= len(tone) {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSendFrames})
	if err != nil {
		return fmt.Errorf("init playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("start playback device: %w", err)
	}
	defer device.Stop()

	<-done
	return nil
}

// Close releases the playback context.
func (c *CuePlayer) Close() {
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
}
