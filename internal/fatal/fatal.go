// Package fatal terminates the process after an unrecoverable failure at
// the native boundary.
package fatal

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// GracePeriod is how long the process keeps running after a fatal failure
// has been logged, so log sinks can flush.
const GracePeriod = 5 * time.Second

// Aborter logs a fatal failure, waits GracePeriod and raises SIGABRT.
type Aborter struct {
	logger zerolog.Logger
	sleep  func(time.Duration)
	kill   func() error
	exit   func(code int)
}

// New creates an Aborter logging to logger.
func New(logger zerolog.Logger) *Aborter {
	return &Aborter{
		logger: logger.With().Str("component", "fatal").Logger(),
		sleep:  time.Sleep,
		kill:   func() error { return unix.Kill(unix.Getpid(), unix.SIGABRT) },
		exit:   os.Exit,
	}
}

// Abort never returns in production use.
func (a *Aborter) Abort(reason error) {
	a.logger.Error().
		Err(reason).
		Dur("grace_period", GracePeriod).
		Msg("The program will now exit to prevent further issues or corruption")

	a.sleep(GracePeriod)

	if err := a.kill(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to raise SIGABRT")
	}
	// SIGABRT may be caught by a signal handler; make sure we stop.
	a.sleep(100 * time.Millisecond)
	a.exit(134)
}
