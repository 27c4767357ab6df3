package scheduling

import (
	"log/slog"

	"github.com/mars-sim/mars-sim-sub082/clock"
	"github.com/mars-sim/mars-sim-sub082/hooking"
	"github.com/mars-sim/mars-sim-sub082/idgen"
)

// Builder can build deferred event queues.
type Builder struct {
	teller   clock.TimeTeller
	logger   *slog.Logger
	idGen    idgen.Generator
	maxDrain int
}

// MakeBuilder creates a new builder with no per-pulse drain limit.
func MakeBuilder() Builder {
	return Builder{}
}

// WithTimeTeller sets the source of the current simulated time.
func (b Builder) WithTimeTeller(t clock.TimeTeller) Builder {
	b.teller = t
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l *slog.Logger) Builder {
	b.logger = l
	return b
}

// WithIDGenerator sets the generator of entry IDs.
func (b Builder) WithIDGenerator(g idgen.Generator) Builder {
	b.idGen = g
	return b
}

// WithMaxDrainPerPulse caps how many entries one pulse may execute. Due
// entries above the cap run on the following pulses. Zero means no cap.
func (b Builder) WithMaxDrainPerPulse(n int) Builder {
	b.maxDrain = n
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.teller == nil {
		panic("time teller is not set")
	}

	if b.maxDrain < 0 {
		panic("max drain per pulse cannot be negative")
	}
}

// Build creates the queue.
func (b Builder) Build() *Queue {
	b.parametersMustBeValid()

	q := &Queue{
		HookableBase: hooking.NewHookableBase(),
		teller:       b.teller,
		logger:       b.logger,
		idGen:        b.idGen,
		maxDrain:     b.maxDrain,
	}

	if q.logger == nil {
		q.logger = slog.Default()
	}

	if q.idGen == nil {
		q.idGen = idgen.New()
	}

	return q
}
