package clock

import "time"

// Status is a point-in-time summary of a MasterClock.
type Status struct {
	MarsTime        string  `json:"mars_time"`
	MarsDate        string  `json:"mars_date"`
	EarthTime       string  `json:"earth_time"`
	MissionSol      int     `json:"mission_sol"`
	Paused          bool    `json:"paused"`
	Running         bool    `json:"running"`
	Ratio           float64 `json:"ratio"`
	ActualRatio     float64 `json:"actual_ratio"`
	TotalPulses     uint64  `json:"total_pulses"`
	PulsesPerSecond float64 `json:"pulses_per_second"`
	AveragePPS      float64 `json:"average_pulses_per_second"`
	Listeners       int     `json:"listeners"`
	Failures        uint64  `json:"listener_failures"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// Status collects the current state of the clock.
func (c *MasterClock) Status() Status {
	mt := c.CurrentTime()

	return Status{
		MarsTime:        mt.String(),
		MarsDate:        mt.DateString(),
		EarthTime:       c.EarthTime().String(),
		MissionSol:      mt.MissionSol(c.initialMarsTime),
		Paused:          c.IsPaused(),
		Running:         c.IsRunning(),
		Ratio:           float64(c.Ratio()),
		ActualRatio:     c.ActualRatio(),
		TotalPulses:     c.TotalPulses(),
		PulsesPerSecond: c.CurrentPulsesPerSecond(),
		AveragePPS:      c.AveragePulsesPerSecond(),
		Listeners:       c.NumListeners(),
		Failures:        c.ListenerFailures(),
		UptimeSeconds:   c.Uptime().Round(time.Millisecond).Seconds(),
	}
}
