package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkertrain/sv/internal/control"
)

// These exercise the control-message dispatch table directly, without a
// live audio device or transcriber, by driving handle() on a Daemon
// whose state is fixed at construction and never actually starts a
// recording session (Stop-while-Idle, Start-while-Recording, and Quit
// never reach startRecording).

func TestHandle_StopWhileIdleIsNoop(t *testing.T) {
	d := &Daemon{state: StateIdle{}}
	reply := make(chan control.Response, 1)

	quit := d.handle(control.Request{Msg: control.MsgStop, Reply: reply})

	assert.False(t, quit)
	resp := <-reply
	assert.True(t, resp.OK)
	assert.IsType(t, StateIdle{}, d.state)
}

func TestHandle_StartWhileRecordingIsNoop(t *testing.T) {
	d := &Daemon{state: StateRecording{}}
	reply := make(chan control.Response, 1)

	quit := d.handle(control.Request{Msg: control.MsgStart, Reply: reply})

	assert.False(t, quit)
	resp := <-reply
	assert.True(t, resp.OK)
	assert.IsType(t, StateRecording{}, d.state)
}

func TestHandle_QuitSignalsExit(t *testing.T) {
	d := &Daemon{state: StateIdle{}}
	reply := make(chan control.Response, 1)

	quit := d.handle(control.Request{Msg: control.MsgQuit, Reply: reply})

	require.True(t, quit)
	resp := <-reply
	assert.True(t, resp.OK)
}

func TestHandle_UnrecognizedMessageIsControlProtocolError(t *testing.T) {
	d := &Daemon{state: StateIdle{}}
	reply := make(chan control.Response, 1)

	quit := d.handle(control.Request{Msg: control.Message("BOGUS"), Reply: reply})

	assert.False(t, quit)
	resp := <-reply
	assert.False(t, resp.OK)
	assert.Equal(t, "control_protocol_error", resp.Reason)
}
