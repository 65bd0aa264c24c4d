package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/docdiff/internal/utils"
	"github.com/sw33tLie/docdiff/pkg/polling"
	"github.com/sw33tLie/docdiff/pkg/storage"
	"github.com/sw33tLie/docdiff/pkg/tracker"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compare every configured location once and exit",
	Long: `Scans every configured location a single time. Each new or updated document is
compared with its baseline; changed documents get a diff file in the location's
diff directory and become the new baseline.

The command exits with a non-zero status if any document failed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := requireLocations(cfg); err != nil {
			return err
		}

		eng, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer eng.Close()

		var db *storage.DB
		if record, _ := cmd.Flags().GetBool("db"); record {
			var cleanup func()
			db, cleanup, err = openDB(cfg.DB.Path, true)
			if err != nil {
				return err
			}
			defer cleanup()
		}

		poller := polling.New(polling.Config{
			Trackers: newTrackers(cfg, eng),
			DB:       db,
			Lock:     lockLocation,
			Log:      utils.Log,
		})

		failed := printResults(poller.Poll(context.Background()))
		if failed > 0 {
			return fmt.Errorf("%d document(s) failed", failed)
		}
		return nil
	},
}

func lockLocation(loc tracker.Location) (func(), bool, error) {
	return utils.TryLockLocation(loc.Baseline)
}

// printResults writes one line per document and returns the number of
// failures, counting unscannable locations.
func printResults(results []polling.LocationResult) int {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	failed := 0
	for _, lr := range results {
		switch {
		case lr.Skipped:
			utils.Log.Warnf("Location %s is busy, skipped", lr.Location.Current)
			continue
		case lr.Err != nil:
			utils.Log.Errorf("Unable to initialize document scan for %s: %v", lr.Location.Current, lr.Err)
			failed++
			continue
		}
		for _, r := range sortedResults(lr.Results) {
			detail := r.Output
			if r.Err != nil {
				detail = r.Err.Error()
				failed++
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Status(), r.Current, detail)
		}
	}
	return failed
}

func sortedResults(rs tracker.Results) []tracker.Result {
	out := make([]tracker.Result, 0, len(rs))
	for _, r := range rs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Current < out[j].Current })
	return out
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("db", false, "Record outcomes in the history database")
}
