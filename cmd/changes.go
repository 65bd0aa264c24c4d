package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/docdiff/internal/utils"
	"github.com/sw33tLie/docdiff/pkg/storage"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recent document outcomes from the history database (default 50)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")
		location, _ := cmd.Flags().GetString("location")
		since, _ := cmd.Flags().GetDuration("since")

		if dbPath == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dbPath = cfg.DB.Path
		}
		absPath, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return err
		}
		if _, err := os.Stat(absPath); err != nil {
			return fmt.Errorf("database not found: %s", absPath)
		}
		db, err := storage.Open(absPath)
		if err != nil {
			return err
		}
		defer db.Close()

		opts := storage.ListOptions{Location: location, Status: status, Limit: limit}
		if since > 0 {
			opts.Since = time.Now().Add(-since)
		}
		outcomes, err := db.ListOutcomes(context.Background(), opts)
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			ts := o.OccurredAt.Local().Format("2006-01-02 15:04:05")
			switch o.Status {
			case "failed":
				fmt.Printf("%s  %-9s  %s  %s: %s\n", ts, o.Status, o.CurrentPath, o.Stage, o.Error)
			case "changed":
				fmt.Printf("%s  %-9s  %s  pages=%d dropped=%d  %s\n", ts, o.Status, o.CurrentPath, o.Pages, o.Dropped, o.DiffPath)
			default:
				fmt.Printf("%s  %-9s  %s\n", ts, o.Status, o.CurrentPath)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: db.path from the config)")
	changesCmd.Flags().Int("limit", 50, "Number of recent outcomes to show")
	changesCmd.Flags().String("status", "", "Only show outcomes with this status (changed, unchanged, failed)")
	changesCmd.Flags().String("location", "", "Only show outcomes of this current directory")
	changesCmd.Flags().Duration("since", 0, "Only show outcomes this recent")
}
