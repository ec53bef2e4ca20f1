package clock

import "time"

// NowFunc resolves the current moment. Core functions take one so tests can
// pin time.
type NowFunc func() time.Time

// Estate returns a NowFunc anchored to the estate's wall clock.
func Estate(loc *time.Location) NowFunc {
	return func() time.Time {
		return time.Now().In(loc)
	}
}
