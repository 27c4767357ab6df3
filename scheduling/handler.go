// Package scheduling provides the deferred event queue: code asks to be
// called back at a simulated time instead of polling every pulse.
package scheduling

import (
	"fmt"
	"sync/atomic"

	"github.com/mars-sim/mars-sim-sub082/idgen"
	"github.com/mars-sim/mars-sim-sub082/timing"
)

// A Handler is the work behind a deferred entry.
type Handler interface {
	// Describe returns a short human readable description.
	Describe() string

	// Execute runs the work at the given simulated time. A positive return
	// value schedules the handler again that many millisols after now; zero
	// or a negative value ends the series.
	Execute(now timing.MarsTime) timing.Millisols
}

// FuncHandler adapts a function to the Handler interface.
type FuncHandler struct {
	Description string
	Fn          func(now timing.MarsTime) timing.Millisols
}

// Describe returns the description.
func (h FuncHandler) Describe() string {
	return h.Description
}

// Execute calls Fn.
func (h FuncHandler) Execute(now timing.MarsTime) timing.Millisols {
	return h.Fn(now)
}

// Every returns a handler that runs fn every period millisols.
func Every(
	description string,
	period timing.Millisols,
	fn func(now timing.MarsTime),
) Handler {
	return FuncHandler{
		Description: description,
		Fn: func(now timing.MarsTime) timing.Millisols {
			fn(now)
			return period
		},
	}
}

// Once returns a handler that runs fn a single time.
func Once(description string, fn func(now timing.MarsTime)) Handler {
	return Every(description, 0, fn)
}

// series is shared by every entry a repeating handler produces, so one
// cancellation ends all of them.
type series struct {
	cancelled atomic.Bool
}

// A Handle identifies one pending entry.
type Handle struct {
	id      idgen.ID
	trigger timing.MarsTime
	handler Handler
	series  *series

	seq uint64
}

// ID returns the unique ID of the entry.
func (h *Handle) ID() idgen.ID {
	return h.id
}

// Trigger returns the simulated time the entry becomes due.
func (h *Handle) Trigger() timing.MarsTime {
	return h.trigger
}

// Description returns the description of the handler, or its type name if
// Describe panics.
func (h *Handle) Description() (desc string) {
	defer func() {
		if r := recover(); r != nil {
			desc = fmt.Sprintf("%T", h.handler)
		}
	}()

	return h.handler.Describe()
}

// Handler returns the handler of the entry.
func (h *Handle) Handler() Handler {
	return h.handler
}

// IsCancelled reports whether the entry, or the series it belongs to, has
// been cancelled.
func (h *Handle) IsCancelled() bool {
	return h.series.cancelled.Load()
}
