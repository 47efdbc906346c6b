package daemonerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_UnwrapsWrappedError(t *testing.T) {
	base := New(DeviceUnavailable, "audio.Start", errors.New("no such device"))
	wrapped := fmt.Errorf("starting daemon: %w", base)

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, DeviceUnavailable, kind)
}

func TestKindOf_PlainErrorIsNotFound(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		ConfigError:           "config_error",
		DeviceUnavailable:     "device_unavailable",
		ModelLoadFailed:       "model_load_failed",
		InferenceFailed:       "inference_failed",
		InjectionFailed:       "injection_failed",
		ControlProtocolError:  "control_protocol_error",
		BufferOverflow:        "buffer_overflow",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestError_MessageIncludesOpAndCause(t *testing.T) {
	err := New(InjectionFailed, "inject.Sink.Deliver", errors.New("xdotool not found"))
	assert.Contains(t, err.Error(), "inject.Sink.Deliver")
	assert.Contains(t, err.Error(), "injection_failed")
	assert.Contains(t, err.Error(), "xdotool not found")
}
