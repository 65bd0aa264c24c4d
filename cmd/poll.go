package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/docdiff/internal/utils"
	"github.com/sw33tLie/docdiff/internal/watch"
	"github.com/sw33tLie/docdiff/pkg/polling"
	"github.com/sw33tLie/docdiff/pkg/storage"
)

// pollCmd represents the poll command
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Track configured locations until interrupted",
	Long: `Runs a comparison pass over every configured location, then waits for the poll
interval (or, with --watch, for writes under a current directory) and starts again.

Locations are locked while they are processed: a location already handled by
another docdiff process is skipped for that pass.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := requireLocations(cfg); err != nil {
			return err
		}
		if d, _ := cmd.Flags().GetDuration("interval"); d > 0 {
			cfg.PollInterval = d
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

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
			Interval: cfg.PollInterval,
			Lock:     lockLocation,
			Log:      utils.Log,
		})

		trigger := make(chan struct{}, 1)
		if watchDirs, _ := cmd.Flags().GetBool("watch"); watchDirs {
			roots := make([]string, 0, len(cfg.Locations))
			for _, loc := range cfg.Locations {
				roots = append(roots, loc.CurrentPath)
			}
			debounce, _ := cmd.Flags().GetDuration("debounce")
			w, err := watch.New(roots, debounce)
			if err != nil {
				return err
			}
			defer w.Close()
			go w.Run(ctx, trigger)
		}

		utils.Log.Infof("Tracking %d location(s), polling every %s", len(cfg.Locations), cfg.PollInterval)
		for {
			delay := poller.Run(ctx)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				utils.Log.Info("Shutting down")
				return nil
			case <-trigger:
				timer.Stop()
				utils.Log.Debug("Change detected, polling early")
			case <-timer.C:
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().Duration("interval", 0, "Delay between passes (overrides poll_interval from the config)")
	pollCmd.Flags().BoolP("watch", "w", false, "Also start a pass when files under a current directory change")
	pollCmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before a watched change triggers a pass")
	pollCmd.Flags().Bool("db", false, "Record outcomes in the history database")
}
