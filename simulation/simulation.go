// Package simulation wires the clock, the deferred event queue, the history
// log and their instrumentation into one run.
package simulation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mars-sim/mars-sim-sub082/clock"
	"github.com/mars-sim/mars-sim-sub082/datarecording"
	"github.com/mars-sim/mars-sim-sub082/history"
	"github.com/mars-sim/mars-sim-sub082/monitoring"
	"github.com/mars-sim/mars-sim-sub082/scheduling"
)

// A Simulation owns the temporal backbone of one run.
type Simulation struct {
	id     string
	logger *slog.Logger

	clock   *clock.MasterClock
	queue   *scheduling.Queue
	history *history.Log
	metrics *monitoring.Metrics

	dataRecorder *datarecording.SQLiteRecorder
	monitor      *monitoring.Monitor
	monitorURL   string
}

// ID returns the unique ID of the run.
func (s *Simulation) ID() string {
	return s.id
}

// Clock returns the master clock.
func (s *Simulation) Clock() *clock.MasterClock {
	return s.clock
}

// Queue returns the deferred event queue.
func (s *Simulation) Queue() *scheduling.Queue {
	return s.queue
}

// History returns the history log.
func (s *Simulation) History() *history.Log {
	return s.history
}

// Metrics returns the Prometheus metrics of the run.
func (s *Simulation) Metrics() *monitoring.Metrics {
	return s.metrics
}

// DataRecorder returns the recorder, or nil when recording is disabled.
func (s *Simulation) DataRecorder() *datarecording.SQLiteRecorder {
	return s.dataRecorder
}

// Monitor returns the monitor, or nil when monitoring is disabled.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorURL returns the address of the monitoring server.
func (s *Simulation) MonitorURL() string {
	return s.monitorURL
}

// Run drives the clock until ctx is done or the clock is asked to stop.
// Cancellation is a normal way to end a run and is not reported as an error.
func (s *Simulation) Run(ctx context.Context) error {
	err := s.clock.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	return err
}

// Terminate stops the clock, flushes the recording and stops the monitor.
func (s *Simulation) Terminate() {
	s.clock.RequestStop()

	if s.dataRecorder != nil {
		if err := s.dataRecorder.Close(); err != nil {
			s.logger.Error("cannot close recording",
				slog.String("error", err.Error()))
		}
	}

	if s.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := s.monitor.StopServer(ctx); err != nil {
			s.logger.Error("cannot stop monitor",
				slog.String("error", err.Error()))
		}
	}

	s.logger.Info("simulation terminated",
		slog.Uint64("pulses", s.clock.TotalPulses()),
		slog.Uint64("events", s.queue.Executed()),
		slog.Int("history", s.history.Size()),
	)
}
