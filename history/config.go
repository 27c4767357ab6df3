package history

import "github.com/mars-sim/mars-sim-sub082/timing"

// Config holds the settings of a Log.
type Config struct {
	// Capacity is the maximum number of retained records.
	Capacity int `yaml:"capacity"`

	// Transient lists categories that are stamped but never retained.
	Transient []Category `yaml:"transient"`
}

// DefaultConfig retains 1000 records and drops nothing.
func DefaultConfig() Config {
	return Config{Capacity: 1000}
}

// Validate rejects a configuration that cannot be used.
func (c Config) Validate() error {
	return validateCapacity(c.Capacity)
}

func validateCapacity(n int) error {
	if n < 1 {
		return &timing.ConfigError{
			Field:  "history capacity",
			Value:  n,
			Reason: "must be at least 1",
		}
	}

	return nil
}
