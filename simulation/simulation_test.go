package simulation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mars-sim/mars-sim-sub082/clock"
	"github.com/mars-sim/mars-sim-sub082/datarecording"
	"github.com/mars-sim/mars-sim-sub082/history"
	"github.com/mars-sim/mars-sim-sub082/scheduling"
	"github.com/mars-sim/mars-sim-sub082/timing"
)

var _ = Describe("Builder", func() {
	It("should panic if the monitor port is set without monitoring", func() {
		Expect(func() {
			_, _ = MakeBuilder().WithMonitorPort(8080).Build()
		}).To(Panic())
	})

	It("should panic if the output file is set without recording", func() {
		Expect(func() {
			_, _ = MakeBuilder().WithOutputFileName("run").Build()
		}).To(Panic())
	})

	It("should reject an invalid clock configuration", func() {
		cfg := clock.DefaultConfig()
		cfg.Ratio = 0

		_, err := MakeBuilder().
			WithClockConfig(cfg).
			WithLogger(slog.New(slog.DiscardHandler)).
			Build()

		Expect(err).To(HaveOccurred())
	})

	It("should reject an invalid history capacity", func() {
		_, err := MakeBuilder().
			WithHistoryConfig(history.Config{Capacity: 0}).
			WithLogger(slog.New(slog.DiscardHandler)).
			Build()

		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Simulation", func() {
	var (
		source *clock.ManualTimeSource
		logger *slog.Logger
	)

	BeforeEach(func() {
		source = clock.NewManualTimeSource(time.Unix(0, 0))
		logger = slog.New(slog.DiscardHandler)
	})

	It("should wire the queue to the clock", func() {
		sim, err := MakeBuilder().
			WithTimeSource(source).
			WithLogger(logger).
			Build()
		Expect(err).NotTo(HaveOccurred())
		defer sim.Terminate()

		Expect(sim.ID()).NotTo(BeEmpty())
		Expect(sim.Clock().NumListeners()).To(Equal(1))
		Expect(sim.DataRecorder()).To(BeNil())
		Expect(sim.Monitor()).To(BeNil())

		ran := 0
		_, err = sim.Queue().Schedule(0.1, scheduling.Once("report",
			func(now timing.MarsTime) {
				ran++
				sim.History().Record(history.Mission, "report at "+now.String())
			}))
		Expect(err).NotTo(HaveOccurred())

		source.Advance(40 * time.Millisecond)
		Expect(sim.Clock().Tick()).To(BeTrue())

		Expect(ran).To(Equal(1))
		Expect(sim.History().Size()).To(Equal(1))
		Expect(testutil.CollectAndCount(sim.Metrics(),
			"marsclock_deferred_events_total")).To(Equal(1))
	})

	It("should record pulses, events and history", func() {
		output := filepath.Join(GinkgoT().TempDir(), "run")

		sim, err := MakeBuilder().
			WithTimeSource(source).
			WithLogger(logger).
			WithRecording().
			WithOutputFileName(output).
			Build()
		Expect(err).NotTo(HaveOccurred())

		_, err = sim.Queue().Schedule(0.1, scheduling.Once("report",
			func(timing.MarsTime) {
				sim.History().Record(history.Mission, "reported")
			}))
		Expect(err).NotTo(HaveOccurred())

		for range 3 {
			source.Advance(40 * time.Millisecond)
			sim.Clock().Tick()
		}

		filename := sim.DataRecorder().Filename()
		sim.Terminate()

		reader, err := datarecording.NewReader(filename)
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		reader.MapTable(datarecording.PulseTable, datarecording.PulseRow{})
		reader.MapTable(datarecording.EventTable, datarecording.EventRow{})
		reader.MapTable(datarecording.HistoryTable, datarecording.HistoryRow{})

		ctx := context.Background()

		_, pulses, err := reader.Query(ctx, datarecording.PulseTable,
			datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(pulses).To(Equal(3))

		events, _, err := reader.Query(ctx, datarecording.EventTable,
			datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].(*datarecording.EventRow).Description).
			To(Equal("report"))

		records, _, err := reader.Query(ctx, datarecording.HistoryTable,
			datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].(*datarecording.HistoryRow).Category).
			To(Equal("mission"))
	})

	It("should serve the clock status when monitoring", func() {
		sim, err := MakeBuilder().
			WithTimeSource(source).
			WithLogger(logger).
			WithMonitoring().
			Build()
		Expect(err).NotTo(HaveOccurred())
		defer sim.Terminate()

		source.Advance(40 * time.Millisecond)
		sim.Clock().Tick()

		rsp, err := http.Get(sim.MonitorURL() + "/api/status")
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		body, err := io.ReadAll(rsp.Body)
		Expect(err).NotTo(HaveOccurred())

		var status clock.Status
		Expect(json.Unmarshal(body, &status)).To(Succeed())
		Expect(status.TotalPulses).To(Equal(uint64(1)))
		Expect(status.Listeners).To(Equal(1))
	})

	It("should end a run when the context is cancelled", func() {
		sim, err := MakeBuilder().
			WithTimeSource(source).
			WithLogger(logger).
			Build()
		Expect(err).NotTo(HaveOccurred())
		defer sim.Terminate()

		ctx, cancel := context.WithTimeout(context.Background(),
			20*time.Millisecond)
		defer cancel()

		Expect(sim.Run(ctx)).To(Succeed())
		Expect(sim.Clock().TotalPulses()).To(BeNumerically(">", 0))
	})
})
