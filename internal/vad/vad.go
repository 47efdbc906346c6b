// Package vad implements C3: offline voice-activity segmentation over an
// accumulated sample buffer.
package vad

import (
	"fmt"
	"sync"

	"github.com/tinkertrain/sv/internal/daemonerr"
	"github.com/tinkertrain/sv/internal/sherpa"
)

const (
	windowSize        = 512 // samples per VAD frame at 16kHz (32ms)
	minSpeechDuration = 0.1
	maxSpeechDuration = 30.0
	bufferSizeSeconds = 60.0
	detectorThreshold = 0.5
)

// Segment is a speech span within the buffer passed to DetectSegments,
// expressed in seconds from the start of that buffer (spec §4.3).
//
// Final is false for a trailing segment still in progress when the
// buffer ended — the daemon must not commit it yet, since more speech
// may extend it on the next tick.
type Segment struct {
	Start float64
	End   float64
	Final bool
}

// Engine runs Silero VAD segmentation. The detector (and the model it
// loads from disk) is created once, at daemon startup, and reused for
// every DetectSegments call; detector.Clear() resets its internal
// buffering state before each run so segment timestamps stay relative to
// the slice passed in rather than carrying over from the previous call
// (spec §9: "never caches timestamps across truncations"). The
// underlying sherpa-onnx detector is not safe for concurrent use, so
// calls are serialized by mu.
type Engine struct {
	mu         sync.Mutex
	detector   *sherpa.VoiceActivityDetector
	sampleRate int
}

// NewEngine loads the Silero VAD model at modelPath and builds the
// detector. A failure is fatal at startup (spec §7 ModelLoadFailed),
// mirroring how transcribe.New eagerly loads the Whisper model instead
// of deferring the failure to first use.
func NewEngine(modelPath string, sampleRate, minSilenceMs int) (*Engine, error) {
	cfg := &sherpa.VadModelConfig{}
	cfg.SileroVad.Model = modelPath
	cfg.SileroVad.Threshold = detectorThreshold
	cfg.SileroVad.MinSilenceDuration = float32(minSilenceMs) / 1000.0
	cfg.SileroVad.MinSpeechDuration = minSpeechDuration
	cfg.SileroVad.MaxSpeechDuration = maxSpeechDuration
	cfg.SileroVad.WindowSize = windowSize
	cfg.SampleRate = sampleRate
	cfg.NumThreads = 1

	detector := sherpa.NewVoiceActivityDetector(cfg, bufferSizeSeconds)
	if detector == nil {
		return nil, daemonerr.New(daemonerr.ModelLoadFailed, "vad.NewEngine", fmt.Errorf("failed to load vad model from %s", modelPath))
	}

	return &Engine{detector: detector, sampleRate: sampleRate}, nil
}

// DetectSegments re-runs voice-activity detection over the full buffer
// and returns the speech segments found. A non-nil error means the VAD
// engine itself failed (the caller should fall back to treating the
// whole buffer as a single unsegmented utterance, spec §4.3); a nil
// error with zero segments means the VAD ran cleanly and found no
// speech at all.
//
// At most one trailing segment may have Final == false, representing
// speech still underway when samples ran out.
func (e *Engine) DetectSegments(samples []float32) ([]Segment, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.detector.Clear()

	var segments []Segment
	speaking := false
	speechStartSample := 0

	for offset := 0; offset < len(samples); offset += windowSize {
		end := offset + windowSize
		if end > len(samples) {
			end = len(samples)
		}
		window := samples[offset:end]
		if len(window) < windowSize {
			padded := make([]float32, windowSize)
			copy(padded, window)
			window = padded
		}

		e.detector.AcceptWaveform(window)
		isSpeech := e.detector.IsSpeech()

		if isSpeech && !speaking {
			speaking = true
			speechStartSample = offset
		} else if !isSpeech && speaking {
			speaking = false
		}

		for !e.detector.IsEmpty() {
			seg := e.detector.Front()
			e.detector.Pop()
			if len(seg.Samples) == 0 {
				continue
			}
			// The detector's own segment only carries samples, not a
			// timestamp (the teacher's recognizer.go never reads anything
			// off it but .Samples either) — start is whatever sample offset
			// this engine saw speech begin at.
			start := float64(speechStartSample) / float64(e.sampleRate)
			dur := float64(len(seg.Samples)) / float64(e.sampleRate)
			segments = append(segments, Segment{Start: start, End: start + dur, Final: true})
		}
	}

	// Speech still ongoing when the buffer ran out: report a tentative,
	// non-final segment rather than force-closing it with Flush, which
	// would discard the in-progress state the next tick needs.
	if speaking {
		start := float64(speechStartSample) / float64(e.sampleRate)
		end := float64(len(samples)) / float64(e.sampleRate)
		segments = append(segments, Segment{Start: start, End: end, Final: false})
	}

	return segments, nil
}

// Close releases the underlying detector and the model it holds.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detector != nil {
		sherpa.DeleteVoiceActivityDetector(e.detector)
		e.detector = nil
	}
}
