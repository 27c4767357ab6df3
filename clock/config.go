package clock

import (
	"time"

	"github.com/mars-sim/mars-sim-sub082/timing"
)

// Config holds the settings of a MasterClock.
type Config struct {
	// Ratio is the initial time ratio.
	Ratio timing.Ratio

	// RatioBounds limits every ratio the clock accepts.
	RatioBounds timing.RatioBounds

	// Interval is the sleep between two control loop iterations. It bounds
	// latency and CPU use; any positive value is correct.
	Interval time.Duration

	// MaxElapsed caps the real time a single pulse may cover, so a host
	// suspend does not turn into one enormous jump.
	MaxElapsed time.Duration

	// MarsStart and EarthStart are the calendars at the start of the run.
	MarsStart  timing.MarsTime
	EarthStart timing.EarthTime
}

// DefaultConfig returns a configuration that runs at MidTimeRatio starting
// from orbit 3.
func DefaultConfig() Config {
	marsStart, _ := timing.NewMarsDate(3, 1, 1, 0)

	return Config{
		Ratio:       timing.MidTimeRatio,
		RatioBounds: timing.DefaultRatioBounds(),
		Interval:    25 * time.Millisecond,
		MaxElapsed:  30 * time.Second,
		MarsStart:   marsStart,
		EarthStart: timing.NewEarthTime(
			time.Date(2043, 9, 30, 0, 0, 0, 0, time.UTC)),
	}
}

// Validate rejects a configuration that cannot be run.
func (c Config) Validate() error {
	if err := c.RatioBounds.Validate(); err != nil {
		return err
	}

	if err := c.RatioBounds.Check(c.Ratio); err != nil {
		return err
	}

	if c.Interval <= 0 {
		return &timing.ConfigError{
			Field:  "interval",
			Value:  c.Interval,
			Reason: "must be positive",
		}
	}

	if c.MaxElapsed < c.Interval {
		return &timing.ConfigError{
			Field:  "max elapsed",
			Value:  c.MaxElapsed,
			Reason: "must not be shorter than the interval",
		}
	}

	return nil
}
