package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wsp-sniper/timing"
)

const highDrift = 2 * time.Millisecond

func newClockCheckCommand() *cobra.Command {
	var (
		probes int
		lead   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "clockcheck",
		Short: "Measure the NTP clock offset and how precisely this machine wakes up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			sched := timing.NewScheduler(e.timeSource, e.cfg.NTPServer, e.log.Logger)
			offset := sched.Sync(ctx)
			fmt.Fprintf(e.out, "Clock offset vs %s: %+.3f ms\n", e.cfg.NTPServer, float64(offset.Microseconds())/1000)

			for i := 1; i <= probes; i++ {
				target := sched.Now().Add(lead)
				fmt.Fprintf(e.out, "\n[Probe %d] Sleeping until: %s\n", i, target.Format("15:04:05.000000"))

				drift, err := sched.Wait(ctx, target)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "   -> Woke up at: %s\n", sched.Now().Format("15:04:05.000000"))
				fmt.Fprintln(e.out, "   "+timing.FormatDrift(drift))
				if drift > highDrift {
					fmt.Fprintln(e.out, color.YellowString("   [!] High drift detected. The CPU may be overloaded or a GC pause hit."))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&probes, "probes", 3, "Number of wake probes")
	cmd.Flags().DurationVar(&lead, "lead", time.Second, "How far ahead each probe target is")
	cmd.Flags().String("ntp-server", "", "NTP server used for clock synchronization")
	return cmd
}
