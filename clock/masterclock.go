package clock

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mars-sim/mars-sim-sub082/hooking"
	"github.com/mars-sim/mars-sim-sub082/timing"
)

const pulseLogSize = 40

// MillisolsPerHalfSol is the millisol at which a sol is half over.
const MillisolsPerHalfSol = timing.MillisolsPerSol / 2

type listenerEntry struct {
	listener    PulseListener
	minInterval time.Duration

	// Touched only while dispatchLock is held.
	lastDelivered time.Time
	skipped       timing.Millisols
}

// A MasterClock is the single source of simulated "now" and the only
// producer of pulses.
type MasterClock struct {
	*hooking.HookableBase

	logger     *slog.Logger
	source     TimeSource
	bounds     timing.RatioBounds
	interval   time.Duration
	maxElapsed time.Duration

	timeLock         sync.RWMutex
	marsTime         timing.MarsTime
	earthTime        timing.EarthTime
	initialMarsTime  timing.MarsTime
	initialEarthTime timing.EarthTime
	desiredRatio     timing.Ratio
	actualRatio      float64
	isPaused         bool
	lastTick         time.Time
	nextPulseID      uint64
	uptime           time.Duration
	pulseLog         [pulseLogSize]time.Time
	lastPulse        Pulse
	lastSol          int64
	lastIntMillisol  int64
	lastMillisol     float64

	listenersLock sync.Mutex
	listeners     []*listenerEntry

	// dispatchLock is held while listeners are being called, so pulses and
	// pause notifications never overlap.
	dispatchLock  sync.Mutex
	pendingLock   sync.Mutex
	pendingPauses []bool

	failures      atomic.Uint64
	stopRequested atomic.Bool
	running       atomic.Bool
}

// NewMasterClock creates a clock from a validated configuration. A nil
// source means real time, a nil logger means slog.Default().
func NewMasterClock(
	cfg Config,
	source TimeSource,
	logger *slog.Logger,
) (*MasterClock, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("clock: %w", err)
	}

	if source == nil {
		source = RealTimeSource()
	}

	if logger == nil {
		logger = slog.Default()
	}

	c := &MasterClock{
		HookableBase:     hooking.NewHookableBase(),
		logger:           logger,
		source:           source,
		bounds:           cfg.RatioBounds,
		interval:         cfg.Interval,
		maxElapsed:       cfg.MaxElapsed,
		marsTime:         cfg.MarsStart,
		earthTime:        cfg.EarthStart,
		initialMarsTime:  cfg.MarsStart,
		initialEarthTime: cfg.EarthStart,
		desiredRatio:     cfg.Ratio,
		actualRatio:      float64(cfg.Ratio),
		lastSol:          cfg.MarsStart.SolsSinceEpoch(),
		lastIntMillisol:  cfg.MarsStart.WholeMillisols(),
		lastMillisol:     cfg.MarsStart.Millisol(),
	}
	c.lastTick = source.Now()

	c.logger.Info("clock configured",
		slog.Float64("ratio", float64(cfg.Ratio)),
		slog.Float64("ratio_min", float64(cfg.RatioBounds.Min)),
		slog.Float64("ratio_max", float64(cfg.RatioBounds.Max)),
		slog.Duration("interval", cfg.Interval),
		slog.String("mars_start", cfg.MarsStart.String()),
		slog.String("earth_start", cfg.EarthStart.String()),
	)

	return c, nil
}

// CurrentTime returns the primary calendar.
func (c *MasterClock) CurrentTime() timing.MarsTime {
	c.timeLock.RLock()
	defer c.timeLock.RUnlock()

	return c.marsTime
}

// EarthTime returns the secondary calendar.
func (c *MasterClock) EarthTime() timing.EarthTime {
	c.timeLock.RLock()
	defer c.timeLock.RUnlock()

	return c.earthTime
}

// InitialMarsTime returns the primary calendar at the start of the run.
func (c *MasterClock) InitialMarsTime() timing.MarsTime {
	return c.initialMarsTime
}

// InitialEarthTime returns the secondary calendar at the start of the run.
func (c *MasterClock) InitialEarthTime() timing.EarthTime {
	return c.initialEarthTime
}

// MissionSol returns the 1-based sol since the start of the run.
func (c *MasterClock) MissionSol() int {
	return c.CurrentTime().MissionSol(c.initialMarsTime)
}

// LastPulse returns the most recently delivered pulse.
func (c *MasterClock) LastPulse() Pulse {
	c.timeLock.RLock()
	defer c.timeLock.RUnlock()

	return c.lastPulse
}

// TotalPulses returns the number of pulses produced so far.
func (c *MasterClock) TotalPulses() uint64 {
	c.timeLock.RLock()
	defer c.timeLock.RUnlock()

	return c.nextPulseID
}

// Uptime returns the real time the clock spent running unpaused.
func (c *MasterClock) Uptime() time.Duration {
	c.timeLock.RLock()
	defer c.timeLock.RUnlock()

	return c.uptime
}

// ListenerFailures returns how many listener notifications failed.
func (c *MasterClock) ListenerFailures() uint64 {
	return c.failures.Load()
}

// Configure sets the time ratio. A ratio outside the configured bounds is
// rejected and the clock is left unchanged. An accepted ratio is used from
// the next pulse on.
func (c *MasterClock) Configure(ratio timing.Ratio) error {
	if err := c.bounds.Check(ratio); err != nil {
		return err
	}

	c.setDesiredRatio(ratio)

	return nil
}

// Ratio returns the time ratio the next pulse will use.
func (c *MasterClock) Ratio() timing.Ratio {
	c.timeLock.RLock()
	defer c.timeLock.RUnlock()

	return c.desiredRatio
}

// RatioBounds returns the accepted ratio range.
func (c *MasterClock) RatioBounds() timing.RatioBounds {
	return c.bounds
}

// ActualRatio returns the smoothed ratio between simulated and real time
// actually achieved by recent pulses.
func (c *MasterClock) ActualRatio() float64 {
	c.timeLock.RLock()
	defer c.timeLock.RUnlock()

	return c.actualRatio
}

// IncreaseSpeed moves the ratio one speed step up.
func (c *MasterClock) IncreaseSpeed() timing.Ratio {
	c.timeLock.Lock()
	c.desiredRatio = c.bounds.Faster(c.desiredRatio)
	r := c.desiredRatio
	c.timeLock.Unlock()

	c.logger.Info("time ratio increased", slog.Float64("ratio", float64(r)))

	return r
}

// DecreaseSpeed moves the ratio one speed step down.
func (c *MasterClock) DecreaseSpeed() timing.Ratio {
	c.timeLock.Lock()
	c.desiredRatio = c.bounds.Slower(c.desiredRatio)
	r := c.desiredRatio
	c.timeLock.Unlock()

	c.logger.Info("time ratio decreased", slog.Float64("ratio", float64(r)))

	return r
}

func (c *MasterClock) setDesiredRatio(r timing.Ratio) {
	c.timeLock.Lock()
	changed := c.desiredRatio != r
	c.desiredRatio = r
	c.timeLock.Unlock()

	if changed {
		c.logger.Info("time ratio set", slog.Float64("ratio", float64(r)))
	}
}

// AddListener registers a listener that receives every pulse. Registering a
// listener twice has no effect. Changes made while a pulse is being
// delivered apply from the next pulse.
func (c *MasterClock) AddListener(l PulseListener) {
	c.AddListenerWithMinInterval(l, 0)
}

// AddListenerWithMinInterval registers a listener that receives at most one
// pulse per minInterval of real time. Skipped pulses are folded into the
// Elapsed of the next delivered one.
//
// Listeners are identified by ==, so l is usually a pointer. A listener whose
// dynamic type is not comparable, such as a func or a map, panics.
func (c *MasterClock) AddListenerWithMinInterval(
	l PulseListener,
	minInterval time.Duration,
) {
	mustBeComparable(l)

	c.listenersLock.Lock()
	defer c.listenersLock.Unlock()

	for _, e := range c.listeners {
		if e.listener == l {
			return
		}
	}

	newList := make([]*listenerEntry, len(c.listeners), len(c.listeners)+1)
	copy(newList, c.listeners)
	c.listeners = append(newList, &listenerEntry{
		listener:      l,
		minInterval:   minInterval,
		lastDelivered: c.source.Now(),
	})
}

func mustBeComparable(l PulseListener) {
	if l == nil {
		panic("listener is nil")
	}

	if !reflect.TypeOf(l).Comparable() {
		panic(fmt.Sprintf("listener of type %T is not comparable", l))
	}
}

// RemoveListener unregisters a listener. Removing an unknown listener has no
// effect.
func (c *MasterClock) RemoveListener(l PulseListener) {
	c.listenersLock.Lock()
	defer c.listenersLock.Unlock()

	newList := make([]*listenerEntry, 0, len(c.listeners))
	for _, e := range c.listeners {
		if e.listener != l {
			newList = append(newList, e)
		}
	}

	c.listeners = newList
}

// NumListeners returns the number of registered listeners.
func (c *MasterClock) NumListeners() int {
	c.listenersLock.Lock()
	defer c.listenersLock.Unlock()

	return len(c.listeners)
}

// The listener slice is replaced, never mutated, so a snapshot stays valid
// while callbacks register or remove listeners.
func (c *MasterClock) listenerSnapshot() []*listenerEntry {
	c.listenersLock.Lock()
	defer c.listenersLock.Unlock()

	return c.listeners
}

// IsPaused reports whether the clock is paused.
func (c *MasterClock) IsPaused() bool {
	c.timeLock.RLock()
	defer c.timeLock.RUnlock()

	return c.isPaused
}

// SetPaused pauses or resumes the clock. Every transition notifies the
// listeners exactly once. The notification is synchronous unless a pulse is
// being delivered at that moment, in which case it follows right after that
// pulse.
func (c *MasterClock) SetPaused(paused bool) {
	c.timeLock.Lock()
	if c.isPaused == paused {
		c.timeLock.Unlock()
		return
	}

	c.isPaused = paused
	if !paused {
		// Time spent paused must not count as elapsed time.
		c.lastTick = c.source.Now()
	}
	c.timeLock.Unlock()

	c.logger.Info("clock pause changed", slog.Bool("paused", paused))

	c.pendingLock.Lock()
	c.pendingPauses = append(c.pendingPauses, paused)
	c.pendingLock.Unlock()

	if c.dispatchLock.TryLock() {
		c.releaseDispatch()
	}
}

// releaseDispatch delivers queued pause notifications and releases the
// dispatch lock. Notifications queued after the drain are picked up by
// whoever holds the lock next, or by this call if the lock is free.
func (c *MasterClock) releaseDispatch() {
	for {
		for _, paused := range c.takePendingPauses() {
			c.firePauseChange(paused)
		}

		c.dispatchLock.Unlock()

		if !c.hasPendingPauses() || !c.dispatchLock.TryLock() {
			return
		}
	}
}

func (c *MasterClock) takePendingPauses() []bool {
	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()

	p := c.pendingPauses
	c.pendingPauses = nil

	return p
}

func (c *MasterClock) hasPendingPauses() bool {
	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()

	return len(c.pendingPauses) > 0
}

func (c *MasterClock) firePauseChange(paused bool) {
	c.invokeHooks(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosPauseChanged,
		Item:   paused,
	}, c.TotalPulses())

	for _, e := range c.listenerSnapshot() {
		c.notifyPause(e.listener, paused)
	}
}

func (c *MasterClock) notifyPause(l PulseListener, paused bool) {
	defer func() {
		if r := recover(); r != nil {
			c.reportFailure(l, c.TotalPulses(), r)
		}
	}()

	l.OnPauseChanged(paused)
}

// RequestStop asks the control loop to exit. The loop checks the request
// once per iteration; a pulse that has started is always completed.
func (c *MasterClock) RequestStop() {
	c.stopRequested.Store(true)
}

// IsRunning reports whether Run is active.
func (c *MasterClock) IsRunning() bool {
	return c.running.Load()
}

// Run executes the control loop until RequestStop is called or ctx is done.
// It blocks, and is meant to own one goroutine for the life of the clock.
func (c *MasterClock) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)
	defer c.stopRequested.Store(false)

	c.timeLock.Lock()
	c.lastTick = c.source.Now()
	c.timeLock.Unlock()

	c.logger.Info("clock started", slog.String("mars_time", c.CurrentTime().String()))

	for {
		c.source.Sleep(c.interval)

		if c.stopRequested.Load() {
			break
		}

		if err := ctx.Err(); err != nil {
			c.logger.Info("clock stopped", slog.String("reason", err.Error()))
			return err
		}

		c.Tick()
	}

	c.logger.Info("clock stopped",
		slog.String("reason", "stop requested"),
		slog.Uint64("pulses", c.TotalPulses()),
	)

	return nil
}

// Tick runs one iteration of the control loop without sleeping: it measures
// the real time since the previous iteration and, unless paused, produces
// and delivers one pulse. It reports whether a pulse was delivered.
func (c *MasterClock) Tick() bool {
	c.dispatchLock.Lock()
	defer c.releaseDispatch()

	now := c.source.Now()

	pulse, ok := c.advance(now)
	if !ok {
		return false
	}

	ctx := hooking.HookCtx{
		Domain: c,
		Pos:    HookPosBeforePulse,
		Item:   pulse,
	}
	c.invokeHooks(ctx, pulse.ID)

	c.deliver(pulse, now)

	ctx.Pos = HookPosAfterPulse
	c.invokeHooks(ctx, pulse.ID)

	return true
}

func (c *MasterClock) advance(now time.Time) (Pulse, bool) {
	c.timeLock.Lock()
	defer c.timeLock.Unlock()

	realElapsed := now.Sub(c.lastTick)
	c.lastTick = now

	if c.isPaused {
		return Pulse{}, false
	}

	if realElapsed < 0 {
		realElapsed = 0
	}

	if realElapsed > c.maxElapsed {
		c.logger.Warn("real elapsed time clamped",
			slog.Duration("elapsed", realElapsed),
			slog.Duration("max", c.maxElapsed),
		)
		realElapsed = c.maxElapsed
	}

	simSeconds := realElapsed.Seconds() * float64(c.desiredRatio)
	delta := timing.RealSecondsToMillisols(simSeconds)

	c.marsTime = c.marsTime.Add(delta)
	c.earthTime = c.earthTime.AddSeconds(simSeconds)
	c.uptime += realElapsed

	if realElapsed > 0 {
		c.actualRatio = 0.9*c.actualRatio + 0.1*simSeconds/realElapsed.Seconds()
	}

	c.nextPulseID++
	c.pulseLog[c.nextPulseID%pulseLogSize] = now

	pulse := c.makePulse(delta)
	c.lastPulse = pulse

	return pulse, true
}

func (c *MasterClock) makePulse(delta timing.Millisols) Pulse {
	mt := c.marsTime
	sol := mt.SolsSinceEpoch()
	intMillisol := mt.WholeMillisols()
	millisol := mt.Millisol()

	p := Pulse{
		ID:        c.nextPulseID,
		Elapsed:   delta,
		MarsTime:  mt,
		EarthTime: c.earthTime,
	}

	p.IsNewSol = sol != c.lastSol
	p.IsNewHalfSol = p.IsNewSol ||
		(c.lastMillisol < MillisolsPerHalfSol && millisol >= MillisolsPerHalfSol)

	p.IsNewIntMillisol = intMillisol != c.lastIntMillisol
	p.IsNewHalfMillisol = p.IsNewIntMillisol ||
		(c.lastMillisol-float64(int(c.lastMillisol)) < 0.5 && mt.Fraction() >= 0.5)

	c.lastSol = sol
	c.lastIntMillisol = intMillisol
	c.lastMillisol = millisol

	return p
}

func (c *MasterClock) deliver(pulse Pulse, now time.Time) {
	for _, e := range c.listenerSnapshot() {
		p := pulse

		if e.minInterval > 0 {
			if now.Sub(e.lastDelivered) < e.minInterval {
				e.skipped += pulse.Elapsed
				continue
			}

			p = pulse.addElapsed(e.skipped)
			e.skipped = 0
			e.lastDelivered = now
		}

		c.notifyPulse(e.listener, p)
	}
}

func (c *MasterClock) notifyPulse(l PulseListener, p Pulse) {
	defer func() {
		if r := recover(); r != nil {
			c.reportFailure(l, p.ID, r)
		}
	}()

	l.OnTimePulse(p)
}

func (c *MasterClock) reportFailure(l PulseListener, pulseID uint64, r any) {
	failure := Recovered(fmt.Sprintf("%T", l), pulseID, r)
	c.failures.Add(1)

	c.logger.Error("pulse listener failed",
		slog.String("listener", failure.Listener),
		slog.Uint64("pulse", pulseID),
		slog.String("error", failure.Cause.Error()),
	)

	c.invokeHooks(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosListenerFailure,
		Item:   l,
		Detail: failure,
	}, pulseID)
}

// invokeHooks runs the hooks of one site. A hook that panics is reported like
// a failed listener and does not stop the hooks after it or the pulse.
func (c *MasterClock) invokeHooks(ctx hooking.HookCtx, pulseID uint64) {
	c.InvokeHookRecovered(ctx, func(h hooking.Hook, r any) {
		c.reportHookFailure(h, ctx.Pos, pulseID, r)
	})
}

func (c *MasterClock) reportHookFailure(
	h hooking.Hook,
	pos *hooking.HookPos,
	pulseID uint64,
	r any,
) {
	failure := Recovered(fmt.Sprintf("%T", h), pulseID, r)
	c.failures.Add(1)

	c.logger.Error("hook failed",
		slog.String("hook", failure.Listener),
		slog.String("position", pos.Name),
		slog.Uint64("pulse", pulseID),
		slog.String("error", failure.Cause.Error()),
	)

	// A failing failure hook is only logged.
	if pos == HookPosListenerFailure {
		return
	}

	c.invokeHooks(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosListenerFailure,
		Item:   h,
		Detail: failure,
	}, pulseID)
}

// CurrentPulsesPerSecond returns the pulse rate measured between the two
// most recent pulses.
func (c *MasterClock) CurrentPulsesPerSecond() float64 {
	c.timeLock.RLock()
	defer c.timeLock.RUnlock()

	if c.nextPulseID < 2 {
		return 0
	}

	recent := c.pulseLog[c.nextPulseID%pulseLogSize]
	previous := c.pulseLog[(c.nextPulseID-1)%pulseLogSize]

	return ratePerSecond(1, recent.Sub(previous))
}

// AveragePulsesPerSecond returns the pulse rate averaged over the pulse log.
func (c *MasterClock) AveragePulsesPerSecond() float64 {
	c.timeLock.RLock()
	defer c.timeLock.RUnlock()

	if c.nextPulseID < pulseLogSize {
		return 0
	}

	recent := c.pulseLog[c.nextPulseID%pulseLogSize]
	oldest := c.pulseLog[(c.nextPulseID+1)%pulseLogSize]

	return ratePerSecond(pulseLogSize-1, recent.Sub(oldest))
}

func ratePerSecond(count int, span time.Duration) float64 {
	if span <= 0 {
		return 0
	}

	return float64(count) / span.Seconds()
}
