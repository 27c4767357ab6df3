// Package clock drives simulated time. A MasterClock measures real time
// between iterations of its control loop, scales it by the time ratio, moves
// both calendars forward, and delivers a Pulse to every registered listener.
package clock

import (
	"github.com/mars-sim/mars-sim-sub082/hooking"
	"github.com/mars-sim/mars-sim-sub082/timing"
)

// TimeTeller can be used to get the current simulated time.
type TimeTeller interface {
	CurrentTime() timing.MarsTime
}

// A PulseListener reacts to the passage of simulated time.
//
// All calls to a listener come from the clock's control loop and never
// overlap. Listeners are identified by equality, so implementations are
// normally pointers.
type PulseListener interface {
	// OnTimePulse is called once per pulse, in registration order.
	OnTimePulse(pulse Pulse)

	// OnPauseChanged is called once per pause state transition.
	OnPauseChanged(isPaused bool)
}

// Pulse is one notification cycle.
type Pulse struct {
	// ID increases by one for every pulse the clock produces.
	ID uint64

	// Elapsed is the simulated time covered by this pulse.
	Elapsed timing.Millisols

	// MarsTime and EarthTime are the calendars after the advance.
	MarsTime  timing.MarsTime
	EarthTime timing.EarthTime

	// Boundary flags, set when the advance crossed the named boundary.
	IsNewSol          bool
	IsNewHalfSol      bool
	IsNewIntMillisol  bool
	IsNewHalfMillisol bool
}

// addElapsed returns a copy covering additional skipped time.
func (p Pulse) addElapsed(skipped timing.Millisols) Pulse {
	p.Elapsed += skipped
	return p
}

// Hook positions raised by a MasterClock.
var (
	HookPosBeforePulse     = &hooking.HookPos{Name: "BeforePulse"}
	HookPosAfterPulse      = &hooking.HookPos{Name: "AfterPulse"}
	HookPosListenerFailure = &hooking.HookPos{Name: "ListenerFailure"}
	HookPosPauseChanged    = &hooking.HookPos{Name: "PauseChanged"}
)
