package timing

import (
	"math"
	"time"
)

// EarthTime is a point on the secondary calendar. It follows the primary
// calendar through the same real-second conversion but keeps its own epoch,
// units and formatting, so it is a distinct type from MarsTime.
type EarthTime struct {
	t time.Time
}

// NewEarthTime wraps a wall-calendar instant. The instant is kept in UTC.
func NewEarthTime(t time.Time) EarthTime {
	return EarthTime{t: t.UTC()}
}

// AddSeconds returns the time that is the given number of seconds after e.
func (e EarthTime) AddSeconds(seconds float64) EarthTime {
	return EarthTime{t: e.t.Add(time.Duration(math.Round(seconds * float64(time.Second))))}
}

// Sub returns e-u in seconds.
func (e EarthTime) Sub(u EarthTime) float64 {
	return e.t.Sub(u.t).Seconds()
}

// Time returns the underlying instant.
func (e EarthTime) Time() time.Time {
	return e.t
}

// Before reports whether e is strictly before u.
func (e EarthTime) Before(u EarthTime) bool { return e.t.Before(u.t) }

// After reports whether e is strictly after u.
func (e EarthTime) After(u EarthTime) bool { return e.t.After(u.t) }

// Equal reports whether e and u are the same instant.
func (e EarthTime) Equal(u EarthTime) bool { return e.t.Equal(u.t) }

func (e EarthTime) String() string {
	return e.t.Format("2006-01-02 15:04:05 MST")
}
