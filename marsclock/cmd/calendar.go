package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mars-sim/mars-sim-sub082/clock"
	"github.com/mars-sim/mars-sim-sub082/timing"
)

func calendarCmd() *cobra.Command {
	var (
		from      string
		earthFrom string
		add       float64
	)

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Add millisols to a Mars time and show both calendars",
		Example: "  marsclock calendar --from 0003-01-01:000.000 --add 1500\n" +
			"  marsclock calendar --add 668000",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defaults := clock.DefaultConfig()

			start := defaults.MarsStart
			if from != "" {
				t, err := timing.ParseMarsTime(from)
				if err != nil {
					return err
				}
				start = t
			}

			earthStart := defaults.EarthStart
			if earthFrom != "" {
				t, err := time.Parse(time.RFC3339, earthFrom)
				if err != nil {
					return fmt.Errorf("invalid earth time: %w", err)
				}
				earthStart = timing.NewEarthTime(t.UTC())
			}

			return renderCalendar(cmd.OutOrStdout(),
				start, earthStart, timing.Millisols(add))
		},
	}

	cmd.Flags().StringVar(&from, "from", "",
		"Start Mars time, orbit-month-sol:millisol (default orbit 3 start)")
	cmd.Flags().StringVar(&earthFrom, "earth-from", "",
		"Earth time matching --from, RFC 3339")
	cmd.Flags().Float64Var(&add, "add", 0, "Millisols to add, may be negative")

	return cmd
}

func renderCalendar(
	out io.Writer,
	start timing.MarsTime,
	earthStart timing.EarthTime,
	d timing.Millisols,
) error {
	end := start.Add(d)
	earthEnd := earthStart.AddSeconds(d.Seconds())

	table := tablewriter.NewWriter(out)
	table.Header("", "From", "To")

	rows := [][]string{
		{"Mars time", start.String(), end.String()},
		{"Date", start.DateString(), end.DateString()},
		{"Orbit", fmt.Sprint(start.Orbit()), fmt.Sprint(end.Orbit())},
		{"Month", start.MonthName(), end.MonthName()},
		{"Sol of month", fmt.Sprint(start.SolOfMonth()), fmt.Sprint(end.SolOfMonth())},
		{"Millisol", fmt.Sprintf("%.3f", start.Millisol()), fmt.Sprintf("%.3f", end.Millisol())},
		{"Earth time", earthStart.String(), earthEnd.String()},
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}

	if err := table.Render(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "Mission sol at end: %d\n", end.MissionSol(start))

	return err
}
