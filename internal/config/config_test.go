package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModelFiles(t *testing.T, dir string) {
	t.Helper()
	for _, name := range []string{"encoder.onnx", "decoder.onnx", "tokens.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("stub"), 0644))
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir)

	cfg, err := ParseFlags([]string{"--model", dir, "--vad", "off"})
	require.NoError(t, err)

	assert.Equal(t, ModeInject, cfg.Mode)
	assert.Equal(t, VADOff, cfg.VAD)
	assert.Equal(t, 800, cfg.VADSilenceMs)
	assert.Equal(t, BackendAuto, cfg.InjectBackend)
	assert.Equal(t, 16000, cfg.SampleRate)
}

func TestParseFlags_RejectsInvalidMode(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir)

	_, err := ParseFlags([]string{"--model", dir, "--mode", "bogus"})
	assert.Error(t, err)
}

func TestParseFlags_RejectsInvalidVADSilence(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir)

	_, err := ParseFlags([]string{"--model", dir, "--vad", "off", "--vad-silence-ms", "0"})
	assert.Error(t, err)
}

func TestParseFlags_MissingWhisperModelFails(t *testing.T) {
	dir := t.TempDir() // empty, no model files written

	_, err := ParseFlags([]string{"--model", dir, "--vad", "off"})
	assert.Error(t, err)
}

func TestParseFlags_VADOnRequiresVADModel(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir)

	_, err := ParseFlags([]string{"--model", dir, "--vad", "on"})
	assert.Error(t, err, "vad=on without an existing VAD model path should fail validation")
}

func TestParseFlags_VADOffSkipsVADModelCheck(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir)

	cfg, err := ParseFlags([]string{"--model", dir, "--vad", "off"})
	require.NoError(t, err)
	assert.Equal(t, VADOff, cfg.VAD)
}

func TestConfig_ModelFilePaths(t *testing.T) {
	cfg := &Config{ModelPath: "/models/whisper"}
	assert.Equal(t, "/models/whisper/encoder.onnx", cfg.WhisperEncoder())
	assert.Equal(t, "/models/whisper/decoder.onnx", cfg.WhisperDecoder())
	assert.Equal(t, "/models/whisper/tokens.txt", cfg.WhisperTokens())
}
