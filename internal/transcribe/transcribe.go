// Package transcribe implements C4: synchronous offline speech-to-text
// over a finished segment of audio.
package transcribe

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tinkertrain/sv/internal/daemonerr"
	"github.com/tinkertrain/sv/internal/sherpa"
)

// Config holds the model paths and decoding options for a Transcriber.
type Config struct {
	Encoder    string
	Decoder    string
	Tokens     string
	Language   string // "" triggers Whisper's own language auto-detection
	Provider   string // "cpu", "cuda", "coreml"
	NumThreads int
}

// Transcriber wraps a loaded Whisper model. The underlying sherpa-onnx
// recognizer is not thread-safe, so calls are serialized (spec §4.6: "C4
// is serialized — only one transcription in flight at a time").
type Transcriber struct {
	mu         sync.Mutex
	recognizer *sherpa.OfflineRecognizer
	sampleRate int
}

// New loads the Whisper model described by cfg.
func New(cfg Config, sampleRate int) (*Transcriber, error) {
	language := cfg.Language
	if strings.EqualFold(language, "auto") {
		language = ""
	}

	recognizerConfig := &sherpa.OfflineRecognizerConfig{}
	recognizerConfig.ModelConfig.Whisper.Encoder = cfg.Encoder
	recognizerConfig.ModelConfig.Whisper.Decoder = cfg.Decoder
	recognizerConfig.ModelConfig.Whisper.Language = language
	recognizerConfig.ModelConfig.Whisper.Task = "transcribe"
	recognizerConfig.ModelConfig.Whisper.TailPaddings = -1
	recognizerConfig.ModelConfig.Tokens = cfg.Tokens
	recognizerConfig.ModelConfig.NumThreads = cfg.NumThreads
	recognizerConfig.ModelConfig.Provider = cfg.Provider
	recognizerConfig.DecodingMethod = "greedy_search"

	recognizer := sherpa.NewOfflineRecognizer(recognizerConfig)
	if recognizer == nil {
		return nil, daemonerr.New(daemonerr.ModelLoadFailed, "transcribe.New", fmt.Errorf("failed to load whisper model from %s", cfg.Encoder))
	}

	return &Transcriber{recognizer: recognizer, sampleRate: sampleRate}, nil
}

// Transcribe decodes samples (mono, at the transcriber's sample rate)
// into text. An empty input yields an empty string with no error.
func (t *Transcriber) Transcribe(samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	stream := sherpa.NewOfflineStream(t.recognizer)
	if stream == nil {
		return "", daemonerr.New(daemonerr.InferenceFailed, "Transcriber.Transcribe", fmt.Errorf("failed to create offline stream"))
	}
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(t.sampleRate, samples)
	t.recognizer.Decode(stream)

	result := stream.GetResult()
	return strings.TrimSpace(result.Text), nil
}

// Close releases the underlying model.
func (t *Transcriber) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(t.recognizer)
		t.recognizer = nil
	}
}
