// Package config holds the daemon's immutable configuration record and
// the flag parsing that builds one for "sv daemon start".
//
// Config-file parsing and layered merging are out of scope for the
// daemon core (spec §1); this package only covers what the daemon needs
// at boot: the flags of §6 and the validation of §3.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

// VADMode selects how the VAD engine participates in a recording session.
type VADMode string

const (
	VADOff        VADMode = "off"
	VADOn         VADMode = "on"
	VADContinuous VADMode = "continuous"
)

func parseVADMode(s string) (VADMode, error) {
	switch VADMode(s) {
	case VADOff, VADOn, VADContinuous:
		return VADMode(s), nil
	default:
		return "", fmt.Errorf("invalid vad mode %q (want off, on, or continuous)", s)
	}
}

// OutputMode selects where finished transcripts go.
type OutputMode string

const (
	ModeInject OutputMode = "inject"
	ModeStdout OutputMode = "stdout"
)

func parseOutputMode(s string) (OutputMode, error) {
	switch OutputMode(s) {
	case ModeInject, ModeStdout:
		return OutputMode(s), nil
	default:
		return "", fmt.Errorf("invalid mode %q (want inject or stdout)", s)
	}
}

// InjectBackend selects the keystroke-synthesis program C5 dispatches to.
type InjectBackend string

const (
	BackendAuto    InjectBackend = "auto"
	BackendYdotool InjectBackend = "ydotool"
	BackendWtype   InjectBackend = "wtype"
	BackendXdotool InjectBackend = "xdotool"
)

func parseInjectBackend(s string) (InjectBackend, error) {
	switch InjectBackend(s) {
	case BackendAuto, BackendYdotool, BackendWtype, BackendXdotool:
		return InjectBackend(s), nil
	default:
		return "", fmt.Errorf("invalid inject backend %q (want auto, ydotool, wtype, or xdotool)", s)
	}
}

// Config is the daemon's immutable configuration record (spec §3). It is
// built once in cmd/sv and never mutated after daemon.New.
type Config struct {
	Mode          OutputMode
	VAD           VADMode
	VADSilenceMs  int
	InjectBackend InjectBackend
	Language      string
	ModelPath     string // directory holding the whisper encoder/decoder/tokens
	VADModelPath  string // path to the silero VAD onnx file
	SampleRate    int
	AudioFeedback bool
	Verbose       bool
}

// Default returns a configuration with the spec's documented defaults.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Mode:          ModeInject,
		VAD:           VADOn,
		VADSilenceMs:  800,
		InjectBackend: BackendAuto,
		Language:      "en",
		ModelPath:     filepath.Join(homeDir, ".sv", "models", "whisper"),
		VADModelPath:  filepath.Join(homeDir, ".sv", "models", "silero_vad.onnx"),
		SampleRate:    16000,
		AudioFeedback: false,
		Verbose:       false,
	}
}

// ParseFlags parses "sv daemon start" flags from args (excluding the
// "daemon start" words themselves) and returns a validated Config.
func ParseFlags(args []string) (*Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("daemon start", pflag.ContinueOnError)

	modeStr := fs.String("mode", string(cfg.Mode), "output mode: inject or stdout")
	vadStr := fs.String("vad", string(cfg.VAD), "voice activity detection mode: off, on, or continuous")
	fs.IntVar(&cfg.VADSilenceMs, "vad-silence-ms", cfg.VADSilenceMs, "minimum silence in milliseconds to end a segment")
	backendStr := fs.String("inject-backend", string(cfg.InjectBackend), "injection backend: auto, ydotool, wtype, or xdotool")
	fs.BoolVar(&cfg.AudioFeedback, "audio-feedback", cfg.AudioFeedback, "play a start/stop tone cue")
	fs.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "path to the whisper model directory")
	fs.StringVar(&cfg.Language, "language", cfg.Language, "language code passed to the transcriber")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	mode, err := parseOutputMode(*modeStr)
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode

	vad, err := parseVADMode(*vadStr)
	if err != nil {
		return nil, err
	}
	cfg.VAD = vad

	backend, err := parseInjectBackend(*backendStr)
	if err != nil {
		return nil, err
	}
	cfg.InjectBackend = backend

	if cfg.VADSilenceMs <= 0 {
		return nil, fmt.Errorf("vad-silence-ms must be positive, got %d", cfg.VADSilenceMs)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces the existence of model paths required by the
// configured VAD mode (spec §3: "existence enforced at start").
func (c *Config) validate() error {
	if _, err := os.Stat(c.WhisperEncoder()); os.IsNotExist(err) {
		return fmt.Errorf("whisper encoder not found under %s", c.ModelPath)
	}
	if _, err := os.Stat(c.WhisperDecoder()); os.IsNotExist(err) {
		return fmt.Errorf("whisper decoder not found under %s", c.ModelPath)
	}
	if _, err := os.Stat(c.WhisperTokens()); os.IsNotExist(err) {
		return fmt.Errorf("whisper tokens file not found under %s", c.ModelPath)
	}

	if c.VAD == VADOn || c.VAD == VADContinuous {
		if _, err := os.Stat(c.VADModelPath); os.IsNotExist(err) {
			return fmt.Errorf("vad model not found: %s", c.VADModelPath)
		}
	}

	return nil
}

// WhisperEncoder, WhisperDecoder, and WhisperTokens derive the three
// Whisper model file paths from ModelPath, following the layout the
// model-acquisition step (out of scope here) is expected to produce.
func (c *Config) WhisperEncoder() string { return filepath.Join(c.ModelPath, "encoder.onnx") }
func (c *Config) WhisperDecoder() string { return filepath.Join(c.ModelPath, "decoder.onnx") }
func (c *Config) WhisperTokens() string  { return filepath.Join(c.ModelPath, "tokens.txt") }
