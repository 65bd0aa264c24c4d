package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/docdiff/internal/server"
	"github.com/sw33tLie/docdiff/internal/utils"
	"github.com/sw33tLie/docdiff/pkg/signing"
	"github.com/sw33tLie/docdiff/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve diff events and signed diff files over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		signer, err := signing.LoadPrivateKey(cfg.KeyPath)
		if err != nil {
			return err
		}

		var db *storage.DB
		if history, _ := cmd.Flags().GetBool("db"); history {
			var cleanup func()
			db, cleanup, err = openDB(cfg.DB.Path, false)
			if err != nil {
				return err
			}
			defer cleanup()
		}

		listenAddr := cfg.Server.Listen
		if l, _ := cmd.Flags().GetString("listen"); l != "" {
			listenAddr = l
		}

		srv := server.New(cfg.DiffDirs(), signer, db, cfg.Server.Username, cfg.Server.Password)
		srv.MaxConnections = cfg.Server.MaxConnections
		if cfg.Server.Username == "" && cfg.Server.Password == "" {
			utils.Log.Warn("No server credentials configured, the API is open to anyone who can reach it")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return srv.Start(ctx, listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides server.listen from the config)")
	serveCmd.Flags().Bool("db", false, "Expose the history database under /api/stats and /api/history")
}
