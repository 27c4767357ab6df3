package clock

import (
	"sync"
	"time"
)

// TimeSource supplies real time to the control loop. Implementations must
// be monotonic.
type TimeSource interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realSource struct{}

// RealTimeSource returns a TimeSource backed by the time package. time.Now
// carries a monotonic reading, so differences are immune to wall clock jumps.
func RealTimeSource() TimeSource {
	return realSource{}
}

func (realSource) Now() time.Time {
	return time.Now()
}

func (realSource) Sleep(d time.Duration) {
	time.Sleep(d)
}

// ManualTimeSource is a TimeSource that only moves when told to. Sleep
// advances it by the requested duration without blocking, so a control loop
// driven by it runs deterministically.
type ManualTimeSource struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualTimeSource creates a ManualTimeSource starting at start.
func NewManualTimeSource(start time.Time) *ManualTimeSource {
	return &ManualTimeSource{now: start}
}

// Now returns the current manual time.
func (s *ManualTimeSource) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.now
}

// Advance moves the source forward by d.
func (s *ManualTimeSource) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

// Sleep advances the source by d.
func (s *ManualTimeSource) Sleep(d time.Duration) {
	s.Advance(d)
}
