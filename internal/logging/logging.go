// Package logging wraps a process-wide zerolog.Logger, replacing the
// teacher's log.Printf("[INFO] ...") / "[ERROR] ..." calls with structured,
// leveled logging at the same call sites.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds a console-friendly zerolog.Logger writing to stderr with
// timestamps, matching the teacher's one-line-per-event posture.
func New() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().
		Timestamp().
		Logger()
}
