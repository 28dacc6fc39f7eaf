package observability

import (
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: false}).With().Timestamp().Logger()

// Logger returns the package-wide zerolog logger used by every layer and
// extension for best-effort diagnostics (a failed back-population, a failed
// fire-and-forget publish) -- the same role config.GetLogger plays in the
// teacher.
func Logger() *zerolog.Logger { return &logger }

// SetLevel adjusts the global log verbosity; cmd/cachetowerd applies an
// operator-chosen level at start-up through this.
func SetLevel(level zerolog.Level) { zerolog.SetGlobalLevel(level) }
