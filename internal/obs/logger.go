// Package obs carries the module's ambient logging, grounded on the
// teacher's pkg/logger: a single overridable zerolog.Logger rather
// than a build-tag-selected empty/real split, since a library should
// not force a build-tag contract on its consumers.
package obs

import (
	"os"

	"github.com/rs/zerolog"
)

// Log is the package-wide logger. Callers may replace it wholesale
// via SetLogger, e.g. with zerolog.Nop() to silence output entirely.
var Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// SetLogger overrides the package-wide logger.
func SetLogger(l zerolog.Logger) {
	Log = l
}
