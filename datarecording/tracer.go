package datarecording

import (
	"github.com/mars-sim/mars-sim-sub082/clock"
	"github.com/mars-sim/mars-sim-sub082/hooking"
	"github.com/mars-sim/mars-sim-sub082/scheduling"
)

// A Tracer is a hook that records clock pulses and deferred event
// executions. Attach it to a MasterClock, a Queue, or both.
type Tracer struct {
	recorder DataRecorder
	teller   clock.TimeTeller
}

// NewTracer creates the pulse and event tables on the recorder. The teller
// stamps event executions.
func NewTracer(recorder DataRecorder, teller clock.TimeTeller) *Tracer {
	recorder.CreateTable(PulseTable, PulseRow{})
	recorder.CreateTable(EventTable, EventRow{})

	return &Tracer{
		recorder: recorder,
		teller:   teller,
	}
}

// Func records the hook site.
func (t *Tracer) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case clock.HookPosAfterPulse:
		t.recordPulse(ctx.Item.(clock.Pulse))
	case scheduling.HookPosAfterEvent:
		result, _ := ctx.Detail.(scheduling.Execution)
		t.recordEvent(ctx.Item.(*scheduling.Handle), result)
	}
}

func (t *Tracer) recordPulse(p clock.Pulse) {
	t.recorder.InsertData(PulseTable, PulseRow{
		ID:        p.ID,
		MarsTime:  p.MarsTime.String(),
		EarthTime: p.EarthTime.String(),
		Elapsed:   float64(p.Elapsed),
		NewSol:    p.IsNewSol,
	})
}

func (t *Tracer) recordEvent(h *scheduling.Handle, result scheduling.Execution) {
	t.recorder.InsertData(EventTable, EventRow{
		EntryID:     uint64(h.ID()),
		Description: h.Description(),
		Trigger:     h.Trigger().String(),
		ExecutedAt:  t.teller.CurrentTime().String(),
		Repeat:      float64(result.Repeat),
		Failed:      result.Failure != nil,
	})
}
