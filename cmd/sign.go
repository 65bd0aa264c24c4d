package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/docdiff/internal/server"
	"github.com/sw33tLie/docdiff/pkg/signing"
)

var signCmd = &cobra.Command{
	Use:   "sign <file>...",
	Short: "Print the signature and signed download link of diff files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		signer, err := signing.LoadPrivateKey(cfg.KeyPath)
		if err != nil {
			return err
		}
		base, _ := cmd.Flags().GetString("base-url")

		for _, arg := range args {
			path, err := filepath.Abs(arg)
			if err != nil {
				return err
			}
			sig, err := signer.Sign(path)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", sig, base+server.FileURL(path, sig))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().String("base-url", "", "Prefix for the printed links, e.g. https://diffs.example.com")
}
