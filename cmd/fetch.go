package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/docdiff/internal/utils"
	"github.com/sw33tLie/docdiff/pkg/fetch"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <server-url>",
	Short: "Download the diff files a docdiff server published in a time range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		pass, _ := cmd.Flags().GetString("password")
		outDir, _ := cmd.Flags().GetString("out")
		listOnly, _ := cmd.Flags().GetBool("list")
		retries, _ := cmd.Flags().GetInt("retries")

		from, to, err := timeRange(cmd)
		if err != nil {
			return err
		}

		client, err := fetch.New(args[0], fetch.Options{Username: user, Password: pass, RetryMax: retries})
		if err != nil {
			return err
		}

		ctx := context.Background()
		evs, err := client.Events(ctx, from, to)
		if err != nil {
			return err
		}
		utils.Log.Infof("%d diff file(s) in range", len(evs))

		var failed int
		for _, ev := range evs {
			if listOnly {
				fmt.Printf("%s  pages=%d  %s\n", ev.Time.Local().Format("2006-01-02 15:04:05"), ev.Pages, ev.Path)
				continue
			}
			dest, err := client.Download(ctx, ev, outDir)
			if err != nil {
				utils.Log.Errorf("Could not download %s: %v", ev.Path, err)
				failed++
				continue
			}
			fmt.Println(dest)
		}
		if failed > 0 {
			return fmt.Errorf("%d download(s) failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	addRangeFlags(fetchCmd)
	fetchCmd.Flags().StringP("user", "u", "", "Basic auth username")
	fetchCmd.Flags().StringP("password", "p", "", "Basic auth password")
	fetchCmd.Flags().StringP("out", "o", ".", "Directory to download into")
	fetchCmd.Flags().Bool("list", false, "Only list the events, don't download")
	fetchCmd.Flags().Int("retries", 5, "Retries per request")
}
