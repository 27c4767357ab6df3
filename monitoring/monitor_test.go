package monitoring

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mars-sim/mars-sim-sub082/clock"
	"github.com/mars-sim/mars-sim-sub082/history"
	"github.com/mars-sim/mars-sim-sub082/scheduling"
	"github.com/mars-sim/mars-sim-sub082/timing"
)

var _ = Describe("Monitor", func() {
	var (
		source  *clock.ManualTimeSource
		clk     *clock.MasterClock
		queue   *scheduling.Queue
		log     *history.Log
		metrics *Metrics
		m       *Monitor
		server  *httptest.Server
	)

	BeforeEach(func() {
		logger := slog.New(slog.DiscardHandler)
		source = clock.NewManualTimeSource(time.Unix(0, 0))

		cfg := clock.DefaultConfig()
		cfg.Ratio = 500

		var err error
		clk, err = clock.NewMasterClock(cfg, source, logger)
		Expect(err).NotTo(HaveOccurred())

		queue = scheduling.MakeBuilder().
			WithTimeTeller(clk).
			WithLogger(logger).
			Build()
		clk.AddListener(queue)

		log, err = history.NewLog(clk, history.Config{Capacity: 5}, logger)
		Expect(err).NotTo(HaveOccurred())

		metrics = NewMetrics(clk, queue)
		clk.AcceptHook(metrics)
		queue.AcceptHook(metrics)
		log.AddObserver(metrics)

		m = NewMonitor(logger)
		m.RegisterClock(clk)
		m.RegisterQueue(queue)
		m.RegisterHistory(log)
		m.RegisterMetrics(metrics)

		server = httptest.NewServer(m.Router())
	})

	AfterEach(func() {
		server.Close()
	})

	get := func(path string) (*http.Response, []byte) {
		rsp, err := http.Get(server.URL + path)
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		body, err := io.ReadAll(rsp.Body)
		Expect(err).NotTo(HaveOccurred())

		return rsp, body
	}

	post := func(path string) *http.Response {
		rsp, err := http.Post(server.URL+path, "text/plain", nil)
		Expect(err).NotTo(HaveOccurred())
		rsp.Body.Close()

		return rsp
	}

	tick := func() {
		source.Advance(40 * time.Millisecond)
		clk.Tick()
	}

	It("should pause and continue the clock", func() {
		rsp, _ := get("/api/pause")
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
		Expect(clk.IsPaused()).To(BeTrue())

		rsp, _ = get("/api/continue")
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
		Expect(clk.IsPaused()).To(BeFalse())
	})

	It("should report the current time", func() {
		tick()

		_, body := get("/api/now")

		var now nowRsp
		Expect(json.Unmarshal(body, &now)).To(Succeed())
		Expect(now.MarsTime).To(Equal(clk.CurrentTime().String()))
		Expect(now.EarthTime).To(Equal(clk.EarthTime().String()))
	})

	It("should report the status", func() {
		tick()
		tick()

		_, body := get("/api/status")

		var status clock.Status
		Expect(json.Unmarshal(body, &status)).To(Succeed())
		Expect(status.TotalPulses).To(Equal(uint64(2)))
		Expect(status.Ratio).To(Equal(500.0))
	})

	It("should serialize the clock details", func() {
		rsp, body := get("/api/clock")

		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).NotTo(BeEmpty())
	})

	It("should read and change the ratio", func() {
		_, body := get("/api/ratio")

		var ratio ratioRsp
		Expect(json.Unmarshal(body, &ratio)).To(Succeed())
		Expect(ratio.Ratio).To(Equal(500.0))
		Expect(ratio.Min).To(Equal(1.0))

		rsp := post("/api/ratio?value=1000")
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
		Expect(clk.Ratio()).To(Equal(timing.Ratio(1000)))
	})

	It("should reject an invalid ratio", func() {
		Expect(post("/api/ratio?value=0.1").StatusCode).
			To(Equal(http.StatusBadRequest))
		Expect(post("/api/ratio?value=fast").StatusCode).
			To(Equal(http.StatusBadRequest))
		Expect(clk.Ratio()).To(Equal(timing.Ratio(500)))
	})

	It("should step the speed", func() {
		_, body := get("/api/speed/up")

		var ratio ratioRsp
		Expect(json.Unmarshal(body, &ratio)).To(Succeed())
		Expect(ratio.Ratio).To(Equal(750.0))

		_, _ = get("/api/speed/down")
		Expect(clk.Ratio()).To(Equal(timing.Ratio(500)))

		rsp, _ := get("/api/speed/sideways")
		Expect(rsp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("should list pending events", func() {
		_, _ = queue.Schedule(10, scheduling.Once("late", func(timing.MarsTime) {}))
		_, _ = queue.Schedule(5, scheduling.Once("early", func(timing.MarsTime) {}))

		_, body := get("/api/pending")

		var pending []pendingRsp
		Expect(json.Unmarshal(body, &pending)).To(Succeed())
		Expect(pending).To(HaveLen(2))
		Expect(pending[0].Description).To(Equal("early"))
		Expect(pending[1].Description).To(Equal("late"))
	})

	It("should list the history", func() {
		log.Record(history.Medical, "first")
		log.Record(history.Hazard, "second")
		log.Record(history.Supply, "third")

		_, body := get("/api/history?limit=2")

		var records []historyRsp
		Expect(json.Unmarshal(body, &records)).To(Succeed())
		Expect(records).To(HaveLen(2))
		Expect(records[0].Payload).To(Equal("third"))
		Expect(records[1].Category).To(Equal("hazard"))

		rsp, _ := get("/api/history?limit=-1")
		Expect(rsp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("should list progress bars", func() {
		bar := m.CreateProgressBar("run", 10)
		bar.IncrementFinished(3)
		done := m.CreateProgressBar("done", 1)
		m.CompleteProgressBar(done)

		_, body := get("/api/progress")

		var bars []progressBarRsp
		Expect(json.Unmarshal(body, &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("run"))
		Expect(bars[0].Finished).To(Equal(uint64(3)))
	})

	It("should serve metrics", func() {
		_, _ = queue.Schedule(0, scheduling.Once("now", func(timing.MarsTime) {}))
		tick()
		tick()

		_, body := get("/metrics")

		Expect(string(body)).To(ContainSubstring("marsclock_pulses_total 2"))
		Expect(string(body)).To(ContainSubstring(
			`marsclock_deferred_events_total{outcome="ok"} 1`))
		Expect(string(body)).To(ContainSubstring("marsclock_time_ratio 500"))
	})

	It("should count history metrics", func() {
		for i := 0; i < 7; i++ {
			log.Record(history.Mission, i)
		}

		Expect(testutil.ToFloat64(metrics.historyEvicted)).To(Equal(2.0))
		Expect(testutil.ToFloat64(
			metrics.historyRecords.WithLabelValues("mission"))).To(Equal(7.0))
	})

	It("should count failures", func() {
		_, _ = queue.Schedule(0, scheduling.FuncHandler{
			Description: "broken",
			Fn:          func(timing.MarsTime) timing.Millisols { panic("broken") },
		})
		tick()

		Expect(testutil.ToFloat64(
			metrics.eventsTotal.WithLabelValues("failed"))).To(Equal(1.0))
	})
})

var _ = Describe("Monitor without a clock", func() {
	It("should answer 503", func() {
		m := NewMonitor(slog.New(slog.DiscardHandler))
		rec := httptest.NewRecorder()

		m.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/now", nil))

		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
	})
})
