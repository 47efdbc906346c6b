package control

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func socketPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "sv.sock")
}

func TestListen_StaleSocketIsRemovedAndReplaced(t *testing.T) {
	path := socketPath(t)

	// A leftover socket file with nothing listening behind it.
	require.NoError(t, os.WriteFile(path, nil, 0600))

	s, err := Listen(path)
	require.NoError(t, err)
	defer s.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestListen_RefusesWhenAlreadyRunning(t *testing.T) {
	path := socketPath(t)

	first, err := Listen(path)
	require.NoError(t, err)
	defer first.Close()

	// The server answers PING itself, so Listen's probe succeeds without
	// this goroutine; it only answers any other request that arrives.
	go func() {
		for req := range first.Requests() {
			req.Reply <- Response{OK: true}
		}
	}()

	_, err = Listen(path)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestSendAndRequest_RoundTrip(t *testing.T) {
	path := socketPath(t)

	s, err := Listen(path)
	require.NoError(t, err)
	defer s.Close()

	go func() {
		req := <-s.Requests()
		assert.Equal(t, MsgToggle, req.Msg)
		req.Reply <- Response{OK: true}
	}()

	resp, err := Send(path, MsgToggle, time.Second)
	require.NoError(t, err)
	assert.True(t, resp.OK)
}

func TestSend_ErrorResponseCarriesReason(t *testing.T) {
	path := socketPath(t)

	s, err := Listen(path)
	require.NoError(t, err)
	defer s.Close()

	go func() {
		req := <-s.Requests()
		req.Reply <- Response{OK: false, Reason: "device_unavailable"}
	}()

	resp, err := Send(path, MsgStart, time.Second)
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, "device_unavailable", resp.Reason)
}

func TestPing_RespondsWithoutTouchingRequestQueue(t *testing.T) {
	path := socketPath(t)

	s, err := Listen(path)
	require.NoError(t, err)
	defer s.Close()

	alive := Ping(path, time.Second)
	assert.True(t, alive)

	select {
	case <-s.Requests():
		t.Fatal("PING must not be forwarded to the daemon's request queue")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPing_NoListenerReturnsFalse(t *testing.T) {
	alive := Ping(socketPath(t), 100*time.Millisecond)
	assert.False(t, alive)
}
