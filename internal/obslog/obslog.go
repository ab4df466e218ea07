// Package obslog holds the module's single shared zerolog.Logger.
//
// Library code never logs on a success path. The only user is non-strict
// expansion downgrading an error to a warning (mars); sidecar and gribjump
// return their failures as errors and do not log.
package obslog

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the package-wide logger. Replace it (e.g. in tests, or to wire
// a host application's own logger) by assigning a new value before use;
// the zero value is never used directly.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
	With().Timestamp().Logger().Level(zerolog.InfoLevel)
