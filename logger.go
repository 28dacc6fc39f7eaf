package cachetower

// Logger is the minimal structured-logging surface an embedding application
// can hand this package for best-effort diagnostics (a failed
// back-population, a failed fire-and-forget publish). The package's own
// code logs through internal/observability's zerolog wrapper directly;
// this interface exists for callers who want to redirect those messages
// into their own logging stack instead.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
