package timing

import "math"

// Ratio is the number of simulated seconds that pass per real second.
type Ratio float64

// Speed stepping thresholds.
var (
	MidTimeRatio  = Ratio(math.Pow(2, 8))
	HighTimeRatio = MidTimeRatio * Ratio(math.Pow(1.5, 14-8))
	MaxTimeRatio  = HighTimeRatio * Ratio(math.Pow(1.25, 20-14))
)

// RatioBounds is the closed range a Ratio must fall in.
type RatioBounds struct {
	Min Ratio `yaml:"min"`
	Max Ratio `yaml:"max"`
}

// DefaultRatioBounds returns [1, MaxTimeRatio].
func DefaultRatioBounds() RatioBounds {
	return RatioBounds{Min: 1, Max: MaxTimeRatio}
}

// Validate checks that the bounds themselves are usable.
func (b RatioBounds) Validate() error {
	if b.Min <= 0 || math.IsNaN(float64(b.Min)) {
		return &ConfigError{Field: "ratio min", Value: b.Min, Reason: "must be positive"}
	}

	if b.Max < b.Min || math.IsNaN(float64(b.Max)) {
		return &ConfigError{Field: "ratio max", Value: b.Max, Reason: "must not be below min"}
	}

	return nil
}

// Check rejects a ratio outside the bounds.
func (b RatioBounds) Check(r Ratio) error {
	if math.IsNaN(float64(r)) || r < b.Min || r > b.Max {
		return &ConfigError{
			Field:  "time ratio",
			Value:  r,
			Reason: "outside bounds",
		}
	}

	return nil
}

// Faster returns the next speed step above r, clamped to the bounds. Steps
// double below MidTimeRatio, grow by half up to HighTimeRatio, and by a
// quarter beyond.
func (b RatioBounds) Faster(r Ratio) Ratio {
	next := r
	switch {
	case r >= MaxTimeRatio:
	case r >= HighTimeRatio:
		next = Ratio(math.Trunc(float64(r) * 1.25))
	case r >= MidTimeRatio:
		next = Ratio(math.Trunc(float64(r) * 1.5))
	default:
		next = r * 2
	}

	return b.clamp(next)
}

// Slower returns the next speed step below r, clamped to the bounds.
func (b RatioBounds) Slower(r Ratio) Ratio {
	next := r
	switch {
	case r > HighTimeRatio:
		next = Ratio(math.Round(float64(r) / 1.25))
	case r > MidTimeRatio:
		next = Ratio(math.Round(float64(r) / 1.5))
	case r > 1:
		next = Ratio(math.Round(float64(r) / 2))
	}

	return b.clamp(next)
}

func (b RatioBounds) clamp(r Ratio) Ratio {
	if r < b.Min {
		return b.Min
	}

	if r > b.Max {
		return b.Max
	}

	return r
}
