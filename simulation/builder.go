package simulation

import (
	"fmt"
	"log/slog"

	"github.com/rs/xid"

	"github.com/mars-sim/mars-sim-sub082/clock"
	"github.com/mars-sim/mars-sim-sub082/datarecording"
	"github.com/mars-sim/mars-sim-sub082/history"
	"github.com/mars-sim/mars-sim-sub082/monitoring"
	"github.com/mars-sim/mars-sim-sub082/scheduling"
)

// Builder can be used to build a simulation.
type Builder struct {
	clockConfig   clock.Config
	historyConfig history.Config
	maxDrain      int
	source        clock.TimeSource
	logger        *slog.Logger

	monitorOn   bool
	monitorPort int
	openBrowser bool

	recordOn       bool
	outputFileName string
}

// MakeBuilder creates a new builder with default configurations, no
// monitoring and no recording.
func MakeBuilder() Builder {
	return Builder{
		clockConfig:   clock.DefaultConfig(),
		historyConfig: history.DefaultConfig(),
	}
}

// WithClockConfig sets the configuration of the clock.
func (b Builder) WithClockConfig(cfg clock.Config) Builder {
	b.clockConfig = cfg
	return b
}

// WithHistoryConfig sets the configuration of the history log.
func (b Builder) WithHistoryConfig(cfg history.Config) Builder {
	b.historyConfig = cfg
	return b
}

// WithMaxDrainPerPulse caps the deferred events executed per pulse.
func (b Builder) WithMaxDrainPerPulse(n int) Builder {
	b.maxDrain = n
	return b
}

// WithTimeSource replaces the real time source of the clock.
func (b Builder) WithTimeSource(s clock.TimeSource) Builder {
	b.source = s
	return b
}

// WithLogger sets the logger shared by all parts of the simulation.
func (b Builder) WithLogger(l *slog.Logger) Builder {
	b.logger = l
	return b
}

// WithMonitoring starts the monitoring server on Build.
func (b Builder) WithMonitoring() Builder {
	b.monitorOn = true
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithOpenBrowser opens the monitor in a browser once it is up.
func (b Builder) WithOpenBrowser() Builder {
	b.openBrowser = true
	return b
}

// WithRecording records pulses, deferred events and history into SQLite.
func (b Builder) WithRecording() Builder {
	b.recordOn = true
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && (b.monitorPort != 0 || b.openBrowser) {
		panic("monitor options cannot be set when monitoring is disabled")
	}

	if !b.recordOn && b.outputFileName != "" {
		panic("output file cannot be set when recording is disabled")
	}
}

// Build builds the simulation.
func (b Builder) Build() (*Simulation, error) {
	b.parametersMustBeValid()

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Simulation{
		id:     xid.New().String(),
		logger: logger,
	}
	s.logger = logger.With(slog.String("run", s.id))

	var err error

	s.clock, err = clock.NewMasterClock(b.clockConfig, b.source, s.logger)
	if err != nil {
		return nil, err
	}

	s.queue = scheduling.MakeBuilder().
		WithTimeTeller(s.clock).
		WithLogger(s.logger).
		WithMaxDrainPerPulse(b.maxDrain).
		Build()
	s.clock.AddListener(s.queue)

	s.history, err = history.NewLog(s.clock, b.historyConfig, s.logger)
	if err != nil {
		return nil, err
	}

	s.metrics = monitoring.NewMetrics(s.clock, s.queue)
	s.clock.AcceptHook(s.metrics)
	s.queue.AcceptHook(s.metrics)
	s.history.AddObserver(s.metrics)

	if b.recordOn {
		if err := s.startRecording(b.outputFileName); err != nil {
			return nil, err
		}
	}

	if b.monitorOn {
		s.startMonitor(b.monitorPort, b.openBrowser)
	}

	return s, nil
}

func (s *Simulation) startRecording(outputPath string) error {
	if outputPath == "" {
		outputPath = "marsclock_run_" + s.id
	}

	recorder, err := datarecording.New(outputPath)
	if err != nil {
		return fmt.Errorf("simulation: %w", err)
	}

	s.dataRecorder = recorder

	tracer := datarecording.NewTracer(recorder, s.clock)
	s.clock.AcceptHook(tracer)
	s.queue.AcceptHook(tracer)
	s.history.AddObserver(datarecording.NewHistoryRecorder(recorder))

	s.logger.Info("recording run", slog.String("file", recorder.Filename()))

	return nil
}

func (s *Simulation) startMonitor(port int, openBrowser bool) {
	s.monitor = monitoring.NewMonitor(s.logger)
	if port > 0 {
		s.monitor.WithPortNumber(port)
	}

	if openBrowser {
		s.monitor.WithOpenBrowser()
	}

	s.monitor.RegisterClock(s.clock)
	s.monitor.RegisterQueue(s.queue)
	s.monitor.RegisterHistory(s.history)
	s.monitor.RegisterMetrics(s.metrics)
	s.monitorURL = s.monitor.StartServer()
}
