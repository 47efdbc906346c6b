package inject

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkertrain/sv/internal/config"
	"github.com/tinkertrain/sv/internal/daemonerr"
)

// fakeBinary writes a script that records its arguments to a file, one
// argument per line, and exits 0.
func fakeBinary(t *testing.T, dir, name string) (binPath, recordPath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake shell scripts require a POSIX shell")
	}
	recordPath = filepath.Join(dir, name+".args")
	binPath = filepath.Join(dir, name)
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > \"" + recordPath + "\"\n"
	require.NoError(t, os.WriteFile(binPath, []byte(script), 0755))
	return binPath, recordPath
}

func TestSink_StdoutMode(t *testing.T) {
	var buf bytes.Buffer
	s := New(config.ModeStdout, config.BackendAuto)
	s.stdout = &buf

	err := s.Deliver(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", buf.String())
}

func TestSink_EmptyTextIsNoop(t *testing.T) {
	var buf bytes.Buffer
	s := New(config.ModeStdout, config.BackendAuto)
	s.stdout = &buf

	err := s.Deliver(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestSink_ForcedBackendInvokesCorrectArgv(t *testing.T) {
	dir := t.TempDir()
	_, recordPath := fakeBinary(t, dir, "xdotool")
	t.Setenv("PATH", dir)

	s := New(config.ModeInject, config.BackendXdotool)

	err := s.Deliver(context.Background(), "hello world")
	require.NoError(t, err)

	recorded, err := os.ReadFile(recordPath)
	require.NoError(t, err)
	assert.Equal(t, "type\n--delay\n1\n--\nhello world\n", string(recorded))
}

func TestSink_ForcedBackendMissingReturnsInjectionFailed(t *testing.T) {
	t.Setenv("PATH", t.TempDir()) // empty PATH: no backend is found

	s := New(config.ModeInject, config.BackendWtype)
	err := s.Deliver(context.Background(), "hello")

	require.Error(t, err)
	kind, ok := daemonerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, daemonerr.InjectionFailed, kind)
}

// Assumes no /tmp/.ydotool_socket exists on the test host, matching the
// sandboxed CI environment this was written against.
func TestSink_AutoDetectSkipsAbsentBackends(t *testing.T) {
	dir := t.TempDir()
	_, recordPath := fakeBinary(t, dir, "xdotool")
	t.Setenv("PATH", dir)
	t.Setenv("WAYLAND_DISPLAY", "")
	t.Setenv("DISPLAY", ":0")

	s := New(config.ModeInject, config.BackendAuto)
	err := s.Deliver(context.Background(), "hi")
	require.NoError(t, err)

	recorded, err := os.ReadFile(recordPath)
	require.NoError(t, err)
	assert.Equal(t, "type\n--delay\n1\n--\nhi\n", string(recorded))
}

func TestSink_NoBackendAvailable(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	t.Setenv("WAYLAND_DISPLAY", "")
	t.Setenv("DISPLAY", "")

	s := New(config.ModeInject, config.BackendAuto)
	err := s.Deliver(context.Background(), "hi")

	require.Error(t, err)
	kind, ok := daemonerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, daemonerr.InjectionFailed, kind)
}
