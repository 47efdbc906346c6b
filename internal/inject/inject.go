// Package inject implements C5: delivering finished transcripts either to
// stdout or to the focused window via an external keystroke-synthesis
// program.
package inject

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/tinkertrain/sv/internal/config"
	"github.com/tinkertrain/sv/internal/daemonerr"
)

const invokeTimeout = 5 * time.Second

// backend is one external keystroke-synthesis program.
type backend struct {
	name    string
	argv    func(text string) []string
	present func() bool
}

var backends = map[config.InjectBackend]backend{
	config.BackendYdotool: {
		name: "ydotool",
		argv: func(text string) []string { return []string{"ydotool", "type", "--", text} },
		present: func() bool {
			return fileExists("/run/user/"+currentUID()+"/.ydotool_socket") || fileExists("/tmp/.ydotool_socket")
		},
	},
	config.BackendWtype: {
		name:    "wtype",
		argv:    func(text string) []string { return []string{"wtype", "--", text} },
		present: func() bool { return os.Getenv("WAYLAND_DISPLAY") != "" },
	},
	config.BackendXdotool: {
		name:    "xdotool",
		argv:    func(text string) []string { return []string{"xdotool", "type", "--delay", "1", "--", text} },
		present: func() bool { return os.Getenv("DISPLAY") != "" },
	},
}

// autoOrder is the backend preference order for inject_backend=auto
// (spec §4.5).
var autoOrder = []config.InjectBackend{config.BackendYdotool, config.BackendWtype, config.BackendXdotool}

// Sink delivers finished transcripts per the daemon's configured output
// mode.
type Sink struct {
	mode     config.OutputMode
	forced   config.InjectBackend
	stdout   io.Writer
	lookPath func(string) (string, error)
}

// New builds a Sink for the given mode and backend selection. When
// backend is config.BackendAuto, the concrete backend is chosen lazily
// on each Deliver call (a desktop session can change between calls,
// e.g. Wayland started after the daemon).
func New(mode config.OutputMode, backend config.InjectBackend) *Sink {
	return &Sink{mode: mode, forced: backend, stdout: os.Stdout, lookPath: exec.LookPath}
}

// Deliver sends text to the configured sink. Empty text is a no-op.
func (s *Sink) Deliver(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	if s.mode == config.ModeStdout {
		_, err := fmt.Fprintln(s.stdout, text)
		return err
	}

	b, ok := s.selectBackend()
	if !ok {
		return daemonerr.New(daemonerr.InjectionFailed, "inject.Sink.Deliver", fmt.Errorf("no injection backend available"))
	}

	if _, err := s.lookPath(b.name); err != nil {
		return daemonerr.New(daemonerr.InjectionFailed, "inject.Sink.Deliver", fmt.Errorf("%s not found: %w", b.name, err))
	}

	callCtx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	argv := b.argv(text)
	cmd := exec.CommandContext(callCtx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return daemonerr.New(daemonerr.InjectionFailed, "inject.Sink.Deliver", fmt.Errorf("%s timed out after %s", b.name, invokeTimeout))
		}
		return daemonerr.New(daemonerr.InjectionFailed, "inject.Sink.Deliver", fmt.Errorf("%s failed: %w: %s", b.name, err, stderr.String()))
	}

	return nil
}

// selectBackend picks the backend to invoke for this call. A forced
// selection is never overridden or retried; auto-detection walks
// autoOrder and takes the first backend whose presence check passes.
func (s *Sink) selectBackend() (backend, bool) {
	if s.forced != config.BackendAuto {
		b, ok := backends[s.forced]
		return b, ok
	}

	for _, name := range autoOrder {
		b := backends[name]
		if b.present() {
			return b, true
		}
	}
	return backend{}, false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func currentUID() string {
	return fmt.Sprintf("%d", os.Getuid())
}
