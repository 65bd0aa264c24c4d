package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/docdiff/pkg/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List diff files published in a time range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		from, to, err := timeRange(cmd)
		if err != nil {
			return err
		}

		evs, err := events.ListAll(cfg.DiffDirs(), from, to)
		if err != nil {
			return err
		}
		if len(evs) == 0 {
			fmt.Println("No diff files in range.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tPAGES\tSOURCE\tPATH")
		for _, ev := range evs {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", ev.Time.Local().Format("2006-01-02 15:04:05"), ev.Pages, ev.Source, ev.Path)
		}
		return w.Flush()
	},
}

// timeRange reads --since, --from and --to. --from wins over --since; a zero
// upper bound means now and later.
func timeRange(cmd *cobra.Command) (from, to time.Time, err error) {
	since, _ := cmd.Flags().GetDuration("since")
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")

	from = time.Now().Add(-since)
	if fromStr != "" {
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			return from, to, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if toStr != "" {
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			return from, to, fmt.Errorf("invalid --to: %w", err)
		}
	}
	return from, to, nil
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("since", 24*time.Hour, "Look back this far")
	cmd.Flags().String("from", "", "Start of the range (RFC3339), overrides --since")
	cmd.Flags().String("to", "", "End of the range (RFC3339, exclusive)")
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	addRangeFlags(eventsCmd)
}
