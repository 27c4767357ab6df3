package scheduling

import (
	"cmp"
	"container/heap"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/mars-sim/mars-sim-sub082/clock"
	"github.com/mars-sim/mars-sim-sub082/hooking"
	"github.com/mars-sim/mars-sim-sub082/idgen"
	"github.com/mars-sim/mars-sim-sub082/timing"
)

// ErrNegativeDelay is returned when an entry is scheduled in the past.
var ErrNegativeDelay = errors.New("scheduling: delay must not be negative")

// Hook positions raised by a Queue.
var (
	HookPosBeforeEvent    = &hooking.HookPos{Name: "BeforeEvent"}
	HookPosAfterEvent     = &hooking.HookPos{Name: "AfterEvent"}
	HookPosHandlerFailure = &hooking.HookPos{Name: "HandlerFailure"}
)

// Execution is the Detail of an AfterEvent hook.
type Execution struct {
	// Repeat is the delay the handler asked to be run again after.
	Repeat timing.Millisols

	// Failure is set when the handler panicked.
	Failure *clock.ListenerFailure
}

// A Queue holds deferred entries and executes them as pulses move simulated
// time past their trigger.
//
// Schedule may be called from any goroutine. The lock guarding the entries
// is held for a single insert or remove only, never while a handler runs.
type Queue struct {
	*hooking.HookableBase

	teller   clock.TimeTeller
	logger   *slog.Logger
	idGen    idgen.Generator
	maxDrain int

	lock     sync.Mutex
	entries  entryHeap
	staged   []*Handle
	sweeping bool
	nextSeq  uint64

	executed atomic.Uint64
	failures atomic.Uint64
}

var _ clock.PulseListener = (*Queue)(nil)

// Schedule inserts an entry that becomes due delay millisols from now.
func (q *Queue) Schedule(delay timing.Millisols, h Handler) (*Handle, error) {
	if delay < 0 || math.IsNaN(float64(delay)) {
		return nil, fmt.Errorf("%w: %v", ErrNegativeDelay, delay)
	}

	if h == nil {
		panic("scheduling a nil handler")
	}

	entry := &Handle{
		id:      q.idGen.Generate(),
		trigger: q.teller.CurrentTime().Add(delay),
		handler: h,
		series:  &series{},
	}

	q.insert(entry)

	return entry, nil
}

// ScheduleAt inserts an entry that becomes due at the given time. A time
// already in the past is due on the next pulse.
func (q *Queue) ScheduleAt(at timing.MarsTime, h Handler) *Handle {
	if h == nil {
		panic("scheduling a nil handler")
	}

	entry := &Handle{
		id:      q.idGen.Generate(),
		trigger: at,
		handler: h,
		series:  &series{},
	}

	q.insert(entry)

	return entry
}

// Entries inserted while a sweep is running wait in the staging area and
// only become eligible on the next pulse.
func (q *Queue) insert(entry *Handle) {
	q.lock.Lock()
	defer q.lock.Unlock()

	entry.seq = q.nextSeq
	q.nextSeq++

	if q.sweeping {
		q.staged = append(q.staged, entry)
		return
	}

	heap.Push(&q.entries, entry)
}

// Cancel removes the entry, or the pending entry that continues its
// repeating series, and stops any further repetition. It reports whether a
// pending entry was removed. Cancelling an entry that is executing prevents
// it from being rescheduled.
func (q *Queue) Cancel(h *Handle) bool {
	h.series.cancelled.Store(true)

	q.lock.Lock()
	defer q.lock.Unlock()

	removed := false

	q.staged = slices.DeleteFunc(q.staged, func(e *Handle) bool {
		if e.series == h.series {
			removed = true
			return true
		}

		return false
	})

	for i := 0; i < len(q.entries); {
		if q.entries[i].series != h.series {
			i++
			continue
		}

		heap.Remove(&q.entries, i)
		removed = true
		i = 0
	}

	return removed
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()

	return len(q.entries) + len(q.staged)
}

// ListPending returns a snapshot of the pending entries ordered by trigger.
func (q *Queue) ListPending() []*Handle {
	q.lock.Lock()
	list := make([]*Handle, 0, len(q.entries)+len(q.staged))
	list = append(list, q.entries...)
	list = append(list, q.staged...)
	q.lock.Unlock()

	slices.SortFunc(list, func(a, b *Handle) int {
		if c := a.trigger.Compare(b.trigger); c != 0 {
			return c
		}

		return cmp.Compare(a.seq, b.seq)
	})

	return list
}

// Executed returns how many entries have run.
func (q *Queue) Executed() uint64 {
	return q.executed.Load()
}

// Failures returns how many handler executions failed.
func (q *Queue) Failures() uint64 {
	return q.failures.Load()
}

// OnTimePulse executes every entry whose trigger is not after the pulse's
// simulated time, earliest first.
func (q *Queue) OnTimePulse(pulse clock.Pulse) {
	now := pulse.MarsTime

	q.lock.Lock()
	q.sweeping = true
	q.lock.Unlock()

	drained := 0
	defer func() {
		backlog := q.endSweep(now)
		if backlog > 0 {
			q.logger.Warn("deferred entries carried to next pulse",
				slog.Int("executed", drained),
				slog.Int("backlog", backlog),
			)
		}
	}()

	for q.maxDrain <= 0 || drained < q.maxDrain {
		entry := q.popDue(now)
		if entry == nil {
			break
		}

		drained++
		q.execute(entry, now, pulse.ID)
	}
}

// OnPauseChanged does nothing; a paused clock produces no pulses.
func (q *Queue) OnPauseChanged(bool) {}

func (q *Queue) popDue(now timing.MarsTime) *Handle {
	q.lock.Lock()
	defer q.lock.Unlock()

	if len(q.entries) == 0 || q.entries[0].trigger.After(now) {
		return nil
	}

	return heap.Pop(&q.entries).(*Handle)
}

// endSweep moves staged entries into the heap and returns how many entries
// are already due but were left for the next pulse.
func (q *Queue) endSweep(now timing.MarsTime) int {
	q.lock.Lock()
	defer q.lock.Unlock()

	backlog := 0
	for _, e := range q.entries {
		if !e.trigger.After(now) {
			backlog++
		}
	}

	for _, e := range q.staged {
		heap.Push(&q.entries, e)
	}

	q.staged = nil
	q.sweeping = false

	return backlog
}

func (q *Queue) execute(entry *Handle, now timing.MarsTime, pulseID uint64) {
	if entry.IsCancelled() {
		return
	}

	ctx := hooking.HookCtx{
		Domain: q,
		Pos:    HookPosBeforeEvent,
		Item:   entry,
	}
	q.invokeHooks(ctx, pulseID)

	result := q.run(entry, now, pulseID)
	q.executed.Add(1)

	ctx.Pos = HookPosAfterEvent
	ctx.Detail = result
	q.invokeHooks(ctx, pulseID)

	repeat := result.Repeat
	if result.Failure != nil || repeat <= 0 || entry.IsCancelled() {
		return
	}

	q.insert(&Handle{
		id:      q.idGen.Generate(),
		trigger: now.Add(repeat),
		handler: entry.handler,
		series:  entry.series,
	})
}

func (q *Queue) run(
	entry *Handle,
	now timing.MarsTime,
	pulseID uint64,
) (result Execution) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		failure := clock.Recovered(entry.Description(), pulseID, r)
		q.failures.Add(1)

		q.logger.Error("deferred handler failed",
			slog.String("handler", failure.Listener),
			slog.Uint64("entry", uint64(entry.id)),
			slog.Uint64("pulse", pulseID),
			slog.String("error", failure.Cause.Error()),
		)

		q.invokeHooks(hooking.HookCtx{
			Domain: q,
			Pos:    HookPosHandlerFailure,
			Item:   entry,
			Detail: failure,
		}, pulseID)

		result = Execution{Failure: failure}
	}()

	return Execution{Repeat: entry.handler.Execute(now)}
}

// invokeHooks runs the hooks of one site. A hook that panics is logged and
// does not stop the sweep or the hooks after it.
func (q *Queue) invokeHooks(ctx hooking.HookCtx, pulseID uint64) {
	q.InvokeHookRecovered(ctx, func(h hooking.Hook, r any) {
		failure := clock.Recovered(fmt.Sprintf("%T", h), pulseID, r)

		q.logger.Error("deferred event hook failed",
			slog.String("hook", failure.Listener),
			slog.String("position", ctx.Pos.Name),
			slog.Uint64("pulse", pulseID),
			slog.String("error", failure.Cause.Error()),
		)
	})
}
