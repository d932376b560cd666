// Package clock abstracts wall time so billing date math is testable.
package clock

import (
	"time"

	"go.uber.org/fx"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func NewSystemClock() Clock { return systemClock{} }

// Today truncates the clock's current time to a UTC calendar date.
func Today(c Clock) time.Time {
	return Date(c.Now())
}

// Date truncates t to midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b (negative when b
// precedes a).
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
