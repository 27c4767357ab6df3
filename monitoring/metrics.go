package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mars-sim/mars-sim-sub082/clock"
	"github.com/mars-sim/mars-sim-sub082/history"
	"github.com/mars-sim/mars-sim-sub082/hooking"
	"github.com/mars-sim/mars-sim-sub082/scheduling"
)

// StatusProvider reports the state of a clock.
type StatusProvider interface {
	Status() clock.Status
}

// Lengther reports how many entries something holds.
type Lengther interface {
	Len() int
}

// Metrics exposes the temporal backbone as Prometheus metrics. Counters are
// driven by hooks and history notifications, gauges are read from the clock
// at scrape time.
type Metrics struct {
	clock   StatusProvider
	pending Lengther

	pulsesTotal      prometheus.Counter
	listenerFailures prometheus.Counter
	eventsTotal      *prometheus.CounterVec
	historyRecords   *prometheus.CounterVec
	historyEvicted   prometheus.Counter

	timeRatio   prometheus.Gauge
	actualRatio prometheus.Gauge
	paused      prometheus.Gauge
	missionSol  prometheus.Gauge
	pendingSize prometheus.Gauge
}

// NewMetrics creates the metrics. The clock and the pending entries are
// optional; missing sources leave their gauges at zero.
func NewMetrics(clk StatusProvider, pending Lengther) *Metrics {
	return &Metrics{
		clock:   clk,
		pending: pending,
		pulsesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marsclock_pulses_total",
			Help: "Total number of clock pulses delivered",
		}),
		listenerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marsclock_listener_failures_total",
			Help: "Total number of pulse listener failures",
		}),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marsclock_deferred_events_total",
				Help: "Total number of deferred event executions by outcome",
			},
			[]string{"outcome"},
		),
		historyRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marsclock_history_records_total",
				Help: "Total number of retained history records by category",
			},
			[]string{"category"},
		),
		historyEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marsclock_history_evicted_total",
			Help: "Total number of history records evicted by capacity",
		}),
		timeRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marsclock_time_ratio",
			Help: "Configured time ratio",
		}),
		actualRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marsclock_actual_time_ratio",
			Help: "Smoothed time ratio achieved by recent pulses",
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marsclock_paused",
			Help: "1 if the clock is paused",
		}),
		missionSol: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marsclock_mission_sol",
			Help: "Current sol of the mission",
		}),
		pendingSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marsclock_pending_events",
			Help: "Number of deferred events waiting to run",
		}),
	}
}

// Func counts the hook site.
func (m *Metrics) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case clock.HookPosAfterPulse:
		m.pulsesTotal.Inc()
	case clock.HookPosListenerFailure:
		m.listenerFailures.Inc()
	case scheduling.HookPosAfterEvent:
		outcome := "ok"
		if result, _ := ctx.Detail.(scheduling.Execution); result.Failure != nil {
			outcome = "failed"
		}
		m.eventsTotal.WithLabelValues(outcome).Inc()
	}
}

// OnRecordInserted counts a retained history record.
func (m *Metrics) OnRecordInserted(_ int, rec history.Record) {
	m.historyRecords.WithLabelValues(rec.Category.String()).Inc()
}

// OnRecordsEvicted counts evicted history records.
func (m *Metrics) OnRecordsEvicted(_, _ int, recs []history.Record) {
	m.historyEvicted.Add(float64(len(recs)))
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.pulsesTotal.Describe(ch)
	m.listenerFailures.Describe(ch)
	m.eventsTotal.Describe(ch)
	m.historyRecords.Describe(ch)
	m.historyEvicted.Describe(ch)
	m.timeRatio.Describe(ch)
	m.actualRatio.Describe(ch)
	m.paused.Describe(ch)
	m.missionSol.Describe(ch)
	m.pendingSize.Describe(ch)
}

// Collect implements prometheus.Collector and refreshes the gauges.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.collectClock()

	if m.pending != nil {
		m.pendingSize.Set(float64(m.pending.Len()))
	}

	m.pulsesTotal.Collect(ch)
	m.listenerFailures.Collect(ch)
	m.eventsTotal.Collect(ch)
	m.historyRecords.Collect(ch)
	m.historyEvicted.Collect(ch)
	m.timeRatio.Collect(ch)
	m.actualRatio.Collect(ch)
	m.paused.Collect(ch)
	m.missionSol.Collect(ch)
	m.pendingSize.Collect(ch)
}

func (m *Metrics) collectClock() {
	if m.clock == nil {
		return
	}

	s := m.clock.Status()

	m.timeRatio.Set(s.Ratio)
	m.actualRatio.Set(s.ActualRatio)
	m.missionSol.Set(float64(s.MissionSol))

	if s.Paused {
		m.paused.Set(1)
	} else {
		m.paused.Set(0)
	}
}
