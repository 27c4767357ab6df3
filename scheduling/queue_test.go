package scheduling

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/mars-sim/mars-sim-sub082/clock"
	"github.com/mars-sim/mars-sim-sub082/hooking"
	"github.com/mars-sim/mars-sim-sub082/timing"
)

type fakeTeller struct {
	mu      sync.Mutex
	now     timing.MarsTime
	pulseID uint64
}

func (t *fakeTeller) CurrentTime() timing.MarsTime {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.now
}

func (t *fakeTeller) advance(d timing.Millisols) clock.Pulse {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.now = t.now.Add(d)
	t.pulseID++

	return clock.Pulse{ID: t.pulseID, Elapsed: d, MarsTime: t.now}
}

var _ = Describe("Queue", func() {
	var (
		mockCtrl *gomock.Controller
		teller   *fakeTeller
		queue    *Queue
		t0       timing.MarsTime
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())

		t0, _ = timing.NewMarsDate(3, 1, 1, 100)
		teller = &fakeTeller{now: t0}
		queue = MakeBuilder().
			WithTimeTeller(teller).
			WithLogger(slog.New(slog.DiscardHandler)).
			Build()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should execute an entry only once its trigger has elapsed", func() {
		h := NewMockHandler(mockCtrl)
		h.EXPECT().Execute(t0.Add(120)).Return(timing.Millisols(0)).Times(1)

		handle, err := queue.Schedule(100, h)
		Expect(err).NotTo(HaveOccurred())
		Expect(handle.Trigger()).To(Equal(t0.Add(100)))

		queue.OnTimePulse(teller.advance(50))
		Expect(queue.Len()).To(Equal(1))

		queue.OnTimePulse(teller.advance(70))
		Expect(queue.Len()).To(Equal(0))

		queue.OnTimePulse(teller.advance(70))
		Expect(queue.Executed()).To(Equal(uint64(1)))
	})

	It("should execute an entry due exactly now", func() {
		h := NewMockHandler(mockCtrl)
		h.EXPECT().Execute(gomock.Any()).Return(timing.Millisols(0))

		_, _ = queue.Schedule(10, h)
		queue.OnTimePulse(teller.advance(10))
	})

	It("should execute in trigger order", func() {
		h1 := NewMockHandler(mockCtrl)
		h2 := NewMockHandler(mockCtrl)
		h3 := NewMockHandler(mockCtrl)

		gomock.InOrder(
			h2.EXPECT().Execute(gomock.Any()).Return(timing.Millisols(0)),
			h3.EXPECT().Execute(gomock.Any()).Return(timing.Millisols(0)),
			h1.EXPECT().Execute(gomock.Any()).Return(timing.Millisols(0)),
		)

		_, _ = queue.Schedule(30, h1)
		_, _ = queue.Schedule(10, h2)
		_, _ = queue.Schedule(20, h3)

		queue.OnTimePulse(teller.advance(50))
	})

	It("should keep insertion order for equal triggers", func() {
		handlers := make([]*MockHandler, 10)
		calls := make([]any, 10)
		for i := range handlers {
			handlers[i] = NewMockHandler(mockCtrl)
			calls[i] = handlers[i].EXPECT().Execute(gomock.Any()).
				Return(timing.Millisols(0))
		}
		gomock.InOrder(calls...)

		for _, h := range handlers {
			_, _ = queue.Schedule(5, h)
		}

		queue.OnTimePulse(teller.advance(5))
	})

	It("should list pending entries by trigger", func() {
		a, _ := queue.Schedule(30, Once("a", func(timing.MarsTime) {}))
		b, _ := queue.Schedule(10, Once("b", func(timing.MarsTime) {}))
		c, _ := queue.Schedule(10, Once("c", func(timing.MarsTime) {}))

		pending := queue.ListPending()

		Expect(pending).To(Equal([]*Handle{b, c, a}))
		Expect(pending[0].Description()).To(Equal("b"))
		Expect(a.ID()).NotTo(Equal(b.ID()))
	})

	It("should reject a negative delay", func() {
		h := NewMockHandler(mockCtrl)

		_, err := queue.Schedule(-1, h)

		Expect(err).To(MatchError(ErrNegativeDelay))
		Expect(queue.Len()).To(Equal(0))
	})

	It("should reschedule a repeating handler for a later pulse", func() {
		var runs []timing.MarsTime
		handle, _ := queue.Schedule(10, Every("repeat", 10,
			func(now timing.MarsTime) { runs = append(runs, now) }))

		queue.OnTimePulse(teller.advance(100))

		Expect(runs).To(Equal([]timing.MarsTime{t0.Add(100)}))
		pending := queue.ListPending()
		Expect(pending).To(HaveLen(1))
		Expect(pending[0].Trigger()).To(Equal(t0.Add(110)))
		Expect(pending[0].ID()).NotTo(Equal(handle.ID()))

		queue.OnTimePulse(teller.advance(5))
		Expect(runs).To(HaveLen(1))

		queue.OnTimePulse(teller.advance(5))
		Expect(runs).To(HaveLen(2))
		Expect(queue.ListPending()[0].Trigger()).To(Equal(t0.Add(120)))
	})

	It("should defer entries scheduled during a sweep", func() {
		inner := NewMockHandler(mockCtrl)
		outer := NewMockHandler(mockCtrl)

		outer.EXPECT().Execute(gomock.Any()).
			DoAndReturn(func(timing.MarsTime) timing.Millisols {
				_, err := queue.Schedule(0, inner)
				Expect(err).NotTo(HaveOccurred())
				Expect(queue.Len()).To(Equal(1))
				return 0
			})

		_, _ = queue.Schedule(1, outer)
		queue.OnTimePulse(teller.advance(1))
		Expect(queue.Len()).To(Equal(1))

		inner.EXPECT().Execute(t0.Add(2)).Return(timing.Millisols(0))
		queue.OnTimePulse(teller.advance(1))
		Expect(queue.Len()).To(Equal(0))
	})

	It("should isolate a failing handler", func() {
		var failures []*clock.ListenerFailure
		queue.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == HookPosHandlerFailure {
				failures = append(failures, ctx.Detail.(*clock.ListenerFailure))
			}
		}))

		healthy := NewMockHandler(mockCtrl)
		healthy.EXPECT().Execute(gomock.Any()).Return(timing.Millisols(0))

		_, _ = queue.Schedule(1, FuncHandler{
			Description: "broken",
			Fn: func(timing.MarsTime) timing.Millisols {
				panic("broken handler")
			},
		})
		_, _ = queue.Schedule(2, healthy)

		queue.OnTimePulse(teller.advance(5))

		Expect(queue.Failures()).To(Equal(uint64(1)))
		Expect(queue.Len()).To(Equal(0))
		Expect(failures).To(HaveLen(1))
		Expect(failures[0].Listener).To(Equal("broken"))
		Expect(failures[0].PulseID).To(Equal(uint64(1)))
	})

	It("should contain a handler whose description also fails", func() {
		var failures []*clock.ListenerFailure
		queue.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == HookPosHandlerFailure {
				failures = append(failures, ctx.Detail.(*clock.ListenerFailure))
			}
		}))

		h := NewMockHandler(mockCtrl)
		h.EXPECT().Describe().
			DoAndReturn(func() string { panic("describe broken") }).
			AnyTimes()
		h.EXPECT().Execute(gomock.Any()).
			DoAndReturn(func(timing.MarsTime) timing.Millisols {
				panic("execute broken")
			})

		_, _ = queue.Schedule(1, h)

		Expect(func() { queue.OnTimePulse(teller.advance(1)) }).NotTo(Panic())
		Expect(queue.Failures()).To(Equal(uint64(1)))
		Expect(failures).To(HaveLen(1))
		Expect(failures[0].Listener).To(Equal("*scheduling.MockHandler"))
		Expect(failures[0].Cause).To(MatchError("panic: execute broken"))
	})

	It("should keep a repeating series when a hook fails", func() {
		failed := false
		queue.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == HookPosAfterEvent && !failed {
				failed = true
				panic("tracer broken")
			}
		}))

		runs := 0
		_, _ = queue.Schedule(10, Every("sol report", 10,
			func(timing.MarsTime) { runs++ }))

		Expect(func() { queue.OnTimePulse(teller.advance(10)) }).NotTo(Panic())
		Expect(runs).To(Equal(1))
		Expect(queue.Len()).To(Equal(1))

		for range 5 {
			queue.OnTimePulse(teller.advance(10))
		}

		Expect(runs).To(Equal(6))
		Expect(queue.Len()).To(Equal(1))
	})

	It("should leave an entry scheduled from another goroutine during a sweep for the next pulse", func() {
		started := make(chan struct{})
		release := make(chan struct{})
		_, _ = queue.Schedule(1, Once("blocking", func(timing.MarsTime) {
			close(started)
			<-release
		}))

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			queue.OnTimePulse(teller.advance(1))
		}()

		Eventually(started).Should(BeClosed())

		var ran atomic.Bool
		_, err := queue.Schedule(0, Once("late", func(timing.MarsTime) {
			ran.Store(true)
		}))
		Expect(err).NotTo(HaveOccurred())

		close(release)
		Eventually(done).Should(BeClosed())

		Expect(ran.Load()).To(BeFalse())
		Expect(queue.Len()).To(Equal(1))

		queue.OnTimePulse(teller.advance(1))
		Expect(ran.Load()).To(BeTrue())
		Expect(queue.Len()).To(Equal(0))
	})

	It("should cancel a pending entry", func() {
		h := NewMockHandler(mockCtrl)

		handle, _ := queue.Schedule(10, h)

		Expect(queue.Cancel(handle)).To(BeTrue())
		Expect(queue.Cancel(handle)).To(BeFalse())
		Expect(handle.IsCancelled()).To(BeTrue())
		Expect(queue.Len()).To(Equal(0))

		queue.OnTimePulse(teller.advance(20))
	})

	It("should cancel a repeating series through its first handle", func() {
		runs := 0
		handle, _ := queue.Schedule(10, Every("repeat", 10,
			func(timing.MarsTime) { runs++ }))

		queue.OnTimePulse(teller.advance(10))
		Expect(queue.Len()).To(Equal(1))

		Expect(queue.Cancel(handle)).To(BeTrue())
		Expect(queue.Len()).To(Equal(0))

		queue.OnTimePulse(teller.advance(10))
		Expect(runs).To(Equal(1))
	})

	It("should not reschedule an entry cancelled while executing", func() {
		var handle *Handle
		handle, _ = queue.Schedule(1, Every("self cancel", 10,
			func(timing.MarsTime) { queue.Cancel(handle) }))

		queue.OnTimePulse(teller.advance(1))

		Expect(queue.Len()).To(Equal(0))
	})

	It("should raise hooks around every execution", func() {
		var positions []string
		var repeat any
		queue.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			positions = append(positions, ctx.Pos.Name)
			if ctx.Pos == HookPosAfterEvent {
				repeat = ctx.Detail
			}
		}))

		_, _ = queue.Schedule(1, Every("tick", 7, func(timing.MarsTime) {}))
		queue.OnTimePulse(teller.advance(1))

		Expect(positions).To(Equal([]string{"BeforeEvent", "AfterEvent"}))
		Expect(repeat).To(Equal(Execution{Repeat: 7}))
	})

	It("should accept entries from many goroutines", func() {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = queue.Schedule(1, Once("concurrent", func(timing.MarsTime) {}))
			}()
		}
		wg.Wait()

		Expect(queue.Len()).To(Equal(50))
		queue.OnTimePulse(teller.advance(1))
		Expect(queue.Executed()).To(Equal(uint64(50)))
	})

	Context("with a drain limit", func() {
		BeforeEach(func() {
			queue = MakeBuilder().
				WithTimeTeller(teller).
				WithLogger(slog.New(slog.DiscardHandler)).
				WithMaxDrainPerPulse(2).
				Build()
		})

		It("should carry the backlog to the next pulses", func() {
			for i := 0; i < 5; i++ {
				_, _ = queue.Schedule(timing.Millisols(i), Once("backlog", func(timing.MarsTime) {}))
			}

			queue.OnTimePulse(teller.advance(10))
			Expect(queue.Executed()).To(Equal(uint64(2)))

			queue.OnTimePulse(teller.advance(0))
			Expect(queue.Executed()).To(Equal(uint64(4)))

			queue.OnTimePulse(teller.advance(0))
			Expect(queue.Executed()).To(Equal(uint64(5)))
		})
	})

	It("should panic when built without a time teller", func() {
		Expect(func() { MakeBuilder().Build() }).To(Panic())
	})
})

var _ = Describe("Queue driven by a MasterClock", func() {
	It("should run scheduled work from clock pulses", func() {
		source := clock.NewManualTimeSource(time.Unix(0, 0))

		cfg := clock.DefaultConfig()
		cfg.Ratio = 500
		clk, err := clock.NewMasterClock(cfg, source, slog.New(slog.DiscardHandler))
		Expect(err).NotTo(HaveOccurred())

		queue := MakeBuilder().
			WithTimeTeller(clk).
			WithLogger(slog.New(slog.DiscardHandler)).
			Build()
		clk.AddListener(queue)

		var runs []timing.MarsTime
		_, _ = queue.Schedule(0.5, Every("half millisol", 0.5,
			func(now timing.MarsTime) { runs = append(runs, now) }))

		// 40 ms at 500x moves the clock by about 0.225 millisols.
		for i := 0; i < 10; i++ {
			source.Advance(40 * time.Millisecond)
			clk.Tick()
		}

		Expect(runs).To(HaveLen(3))
		for i := 1; i < len(runs); i++ {
			Expect(float64(runs[i].Sub(runs[i-1]))).To(BeNumerically(">=", 0.5))
		}
	})
})
