// Package logging configures the daemon-wide logger.
//
// Lines go to stderr prefixed with a severity level and a timestamp,
// per the control/observability requirements of the daemon: the operator
// has no GUI, only a terminal or a service journal to read.
package logging

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// New builds the daemon's logger. verbose raises the level to Debug;
// otherwise Info and above are emitted.
func New(verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           level,
	})
	return logger
}
