package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/docdiff/internal/utils"
	"github.com/sw33tLie/docdiff/pkg/fileutil"
	"github.com/sw33tLie/docdiff/pkg/signing"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the RSA key used to sign file links",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, _ := cmd.Flags().GetString("out")
		bits, _ := cmd.Flags().GetInt("bits")
		force, _ := cmd.Flags().GetBool("force")

		if out == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out = cfg.KeyPath
		}
		if _, err := os.Stat(out); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to replace it", out)
		}

		if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
			return err
		}
		pemBytes, err := signing.GenerateKey(bits)
		if err != nil {
			return err
		}
		err = fileutil.WriteAtomic(out, 0o600, func(w io.Writer) error {
			_, err := w.Write(pemBytes)
			return err
		})
		if err != nil {
			return err
		}
		utils.Log.Infof("Signing key written to %s", out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringP("out", "o", "", "Where to write the key (default: key_path from the config)")
	keygenCmd.Flags().Int("bits", signing.DefaultBits, "RSA key size")
	keygenCmd.Flags().BoolP("force", "f", false, "Replace an existing key")
}
