// Command sv is the offline dictation daemon and its toggle client.
//
//	sv                          send TOGGLE to a running daemon
//	sv daemon start [flags]     run the daemon in the foreground
//	sv daemon stop              send QUIT to a running daemon
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tinkertrain/sv/internal/config"
	"github.com/tinkertrain/sv/internal/control"
	"github.com/tinkertrain/sv/internal/daemon"
	"github.com/tinkertrain/sv/internal/daemonerr"
	"github.com/tinkertrain/sv/internal/logging"
)

const (
	exitOK = iota
	exitFailure
	exitUsage
	exitUnreachable
	exitAlreadyRunning
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	sockPath := socketPath()

	if len(args) == 0 {
		return toggle(sockPath)
	}

	switch args[0] {
	case "daemon":
		return daemonCmd(sockPath, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "sv: unrecognized command %q\n", args[0])
		return exitUsage
	}
}

func daemonCmd(sockPath string, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "sv daemon: expected \"start\" or \"stop\"")
		return exitUsage
	}

	switch args[0] {
	case "start":
		return daemonStart(sockPath, args[1:])
	case "stop":
		return daemonStop(sockPath)
	default:
		fmt.Fprintf(os.Stderr, "sv daemon: unrecognized subcommand %q\n", args[0])
		return exitUsage
	}
}

func daemonStart(sockPath string, args []string) int {
	cfg, err := config.ParseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sv daemon start: %v\n", err)
		return exitUsage
	}

	logger := logging.New(cfg.Verbose)

	ctrl, err := control.Listen(sockPath)
	if err != nil {
		if err == control.ErrAlreadyRunning {
			fmt.Fprintln(os.Stderr, "sv daemon start: a daemon is already running")
			return exitAlreadyRunning
		}
		logger.Error("failed to open control socket", "error", err)
		return exitFailure
	}
	defer ctrl.Close()

	d, err := daemon.New(cfg, logger, ctrl)
	if err != nil {
		if kind, ok := daemonerr.KindOf(err); ok && kind == daemonerr.ModelLoadFailed {
			logger.Error("failed to load models", "error", err)
		} else {
			logger.Error("failed to start daemon", "error", err)
		}
		return exitFailure
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	logger.Info("daemon ready", "socket", sockPath, "mode", cfg.Mode, "vad", cfg.VAD)

	select {
	case <-sigChan:
		logger.Info("shutting down")
		cancel()
	case err := <-done:
		if err != nil && err != context.Canceled {
			logger.Error("daemon exited with error", "error", err)
			return exitFailure
		}
		return exitOK
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("shutdown timed out, forcing exit")
	}
	return exitOK
}

func daemonStop(sockPath string) int {
	resp, err := control.Send(sockPath, control.MsgQuit, 2*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sv daemon stop: %v\n", err)
		return exitUnreachable
	}
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "sv daemon stop: %s\n", resp.Reason)
		return exitFailure
	}
	return exitOK
}

func toggle(sockPath string) int {
	resp, err := control.Send(sockPath, control.MsgToggle, 2*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sv: daemon unreachable: %v\n", err)
		return exitUnreachable
	}
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "sv: %s\n", resp.Reason)
		return exitFailure
	}
	return exitOK
}

func socketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "sv.sock")
}
