package cachetower

import "time"

// Clock supplies the time the stack uses for its own read-path expiry
// checks; WithClock substitutes another implementation. Layers compute
// their TTLs from the wall clock directly and do not consult it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// FloorToSecond truncates t to second resolution in UTC. Expiries carry no
// sub-second meaning anywhere in this package; flooring here means a
// round-tripped entry always compares equal regardless of where it was
// constructed.
func FloorToSecond(t time.Time) time.Time { return t.UTC().Truncate(time.Second) }
