package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mars-sim/mars-sim-sub082/clock"
	"github.com/mars-sim/mars-sim-sub082/config"
	"github.com/mars-sim/mars-sim-sub082/history"
	"github.com/mars-sim/mars-sim-sub082/monitoring"
	"github.com/mars-sim/mars-sim-sub082/scheduling"
	"github.com/mars-sim/mars-sim-sub082/simulation"
	"github.com/mars-sim/mars-sim-sub082/timing"
)

const (
	shiftPeriod  = timing.Millisols(250)
	summaryLimit = 20
)

type runOptions struct {
	configFile  string
	envFile     string
	ratio       float64
	duration    time.Duration
	monitor     bool
	monitorPort int
	openBrowser bool
	record      string
}

func runCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the clock until the duration elapses or it is interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), logFormat, logLevel)
			if err != nil {
				return err
			}

			settings, err := config.Load(opts.configFile, opts.envFile)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("ratio") {
				settings.Clock.Ratio = timing.Ratio(opts.ratio)
				if err := settings.Validate(); err != nil {
					return err
				}
			}

			return run(cmd.Context(), cmd.OutOrStdout(), logger, settings, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configFile, "config", "",
		"YAML configuration file")
	cmd.Flags().StringVar(&opts.envFile, "env-file", "",
		"File of MARSCLOCK_* variables to overlay")
	cmd.Flags().Float64Var(&opts.ratio, "ratio", float64(timing.MidTimeRatio),
		"Time ratio, simulated seconds per real second")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0,
		"Real time to run for, 0 runs until interrupted")
	cmd.Flags().BoolVar(&opts.monitor, "monitor", false,
		"Serve the monitoring API")
	cmd.Flags().IntVar(&opts.monitorPort, "monitor-port", 0,
		"Port of the monitoring API, implies --monitor")
	cmd.Flags().BoolVar(&opts.openBrowser, "open-browser", false,
		"Open the monitoring API in a browser, implies --monitor")
	cmd.Flags().StringVar(&opts.record, "record", "",
		"Record pulses, events and history into this SQLite file")

	return cmd
}

func run(
	ctx context.Context,
	out io.Writer,
	logger *slog.Logger,
	settings config.Settings,
	opts runOptions,
) error {
	builder := simulation.MakeBuilder().
		WithClockConfig(settings.Clock).
		WithHistoryConfig(settings.History).
		WithMaxDrainPerPulse(settings.MaxDrainPerPulse).
		WithLogger(logger)

	if opts.monitor || opts.monitorPort > 0 || opts.openBrowser {
		builder = builder.WithMonitoring().WithMonitorPort(opts.monitorPort)
		if opts.openBrowser {
			builder = builder.WithOpenBrowser()
		}
	}

	if opts.record != "" {
		builder = builder.WithRecording().WithOutputFileName(opts.record)
	}

	sim, err := builder.Build()
	if err != nil {
		return err
	}

	printHeader(sim, settings)

	if err := scheduleReports(sim); err != nil {
		sim.Terminate()
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()

		if sim.Monitor() != nil {
			trackProgress(sim, opts.duration)
		}
	}

	err = sim.Run(ctx)
	sim.Terminate()

	if summaryErr := printSummary(out, sim); err == nil {
		err = summaryErr
	}

	return err
}

func printHeader(sim *simulation.Simulation, settings config.Settings) {
	pterm.DefaultHeader.WithBackgroundStyle(pterm.NewStyle(pterm.BgDarkGray)).
		WithTextStyle(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold)).
		Println("MARSCLOCK RUN " + sim.ID())

	pterm.Info.Printfln("Mars time:  %s (%s)",
		settings.Clock.MarsStart, settings.Clock.MarsStart.DateString())
	pterm.Info.Printfln("Earth time: %s", settings.Clock.EarthStart)
	pterm.Info.Printfln("Ratio:      %.0fx", float64(settings.Clock.Ratio))

	if sim.Monitor() != nil {
		pterm.Info.Printfln("Monitor:    %s", sim.MonitorURL())
	}

	if r := sim.DataRecorder(); r != nil {
		pterm.Info.Printfln("Recording:  %s", r.Filename())
	}
}

// scheduleReports writes a mission report at every new sol and a settlement
// record at every shift change.
func scheduleReports(sim *simulation.Simulation) error {
	now := sim.Clock().CurrentTime()
	toNextSol := timing.Millisols(timing.MillisolsPerSol - now.Millisol())

	_, err := sim.Queue().Schedule(toNextSol, scheduling.Every(
		"sol report", timing.MillisolsPerSol,
		func(t timing.MarsTime) {
			sim.History().Record(history.Mission, fmt.Sprintf(
				"mission sol %d began on %s",
				t.MissionSol(sim.Clock().InitialMarsTime()), t.DateString()))
		}))
	if err != nil {
		return err
	}

	_, err = sim.Queue().Schedule(shiftPeriod, scheduling.Every(
		"shift change", shiftPeriod,
		func(t timing.MarsTime) {
			sim.History().Record(history.Settlement,
				fmt.Sprintf("shift change at millisol %03d", t.MillisolInt()))
		}))

	return err
}

// progressListener reports elapsed real time to a monitor progress bar.
type progressListener struct {
	bar   *monitoring.ProgressBar
	start time.Time
	total time.Duration
}

func (p *progressListener) OnTimePulse(clock.Pulse) {
	elapsed := min(time.Since(p.start), p.total)
	p.bar.SetFinished(uint64(elapsed / time.Second))
}

func (p *progressListener) OnPauseChanged(bool) {}

func trackProgress(sim *simulation.Simulation, total time.Duration) {
	bar := sim.Monitor().CreateProgressBar("run",
		uint64(total/time.Second))

	sim.Clock().AddListenerWithMinInterval(&progressListener{
		bar:   bar,
		start: time.Now(),
		total: total,
	}, time.Second)
}

func printSummary(out io.Writer, sim *simulation.Simulation) error {
	clk := sim.Clock()

	if _, err := fmt.Fprintf(out, "\nStopped at %s, mission sol %d, %d pulses, %d events run\n",
		clk.CurrentTime(), clk.MissionSol(), clk.TotalPulses(),
		sim.Queue().Executed()); err != nil {
		return err
	}

	if _, err := fmt.Fprintln(out, "\nPending events"); err != nil {
		return err
	}

	pending := tablewriter.NewWriter(out)
	pending.Header("ID", "Trigger", "Description")
	for _, h := range sim.Queue().ListPending() {
		if err := pending.Append([]string{
			fmt.Sprint(h.ID()), h.Trigger().String(), h.Description(),
		}); err != nil {
			return err
		}
	}
	if err := pending.Render(); err != nil {
		return fmt.Errorf("rendering pending events: %w", err)
	}

	if _, err := fmt.Fprintln(out, "\nHistory"); err != nil {
		return err
	}

	records := sim.History().Records()
	if len(records) > summaryLimit {
		records = records[:summaryLimit]
	}

	table := tablewriter.NewWriter(out)
	table.Header("Seq", "Time", "Category", "Event")
	for _, rec := range records {
		if err := table.Append([]string{
			fmt.Sprint(rec.Seq), rec.Timestamp.String(),
			rec.Category.String(), fmt.Sprint(rec.Payload),
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering history: %w", err)
	}

	return nil
}
