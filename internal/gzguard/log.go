package gzguard

import (
	"io"
	"log"
	"os"
)

// newLogger returns the engine's diagnostic logger. Guard mode exists to
// catch timing-dependent bugs, so its own instrumentation stays off by
// default (io.Discard) and opt-in via Config.Verbose rather than always
// writing to stderr the way a normal service logger would.
func newLogger(verbose bool) *log.Logger {
	out := io.Writer(io.Discard)
	if verbose {
		out = os.Stderr
	}

	return log.New(out, "gzguard: ", log.LstdFlags)
}
