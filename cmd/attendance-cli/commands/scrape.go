package commands

import (
	"attendance-backend/internal/acquisition"
	"attendance-backend/internal/scheduler"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	scrapeSecret *string
	scrapeFrom   *string
	scrapeTo     *string
	scrapeWait   *time.Duration
)

func init() {
	scrapeSecret = scrapeCmd.Flags().String("secret", "", "The portal password, defaults to $PORTAL_SECRET.")
	scrapeFrom = scrapeCmd.Flags().String("from", "", "The first day of the report as DD-MM-YYYY.")
	scrapeTo = scrapeCmd.Flags().String("to", "", "The last day of the report as DD-MM-YYYY, defaults to today.")
	scrapeWait = scrapeCmd.Flags().Duration("wait", 0, "How long to wait for the result before leaving it running, defaults to the config.")
	rootCmd.AddCommand(scrapeCmd)
}

func secretFor(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv("PORTAL_SECRET")
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <identity> [--secret <password>] [--from DD-MM-YYYY] [--to DD-MM-YYYY]",
	Short: "Runs one acquisition cycle for an identity and prints the outcome.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e := openEnv(ctx, true)
		defer e.Close()

		wait := *scrapeWait
		if wait <= 0 {
			wait = e.config.Wait()
		}

		job := e.scheduler.Trigger(ctx, acquisition.Request{
			Identity: args[0],
			Secret:   secretFor(*scrapeSecret),
			FromDate: *scrapeFrom,
			ToDate:   *scrapeTo,
		})
		slog.Debug("triggered", "identity", job.Identity, "job", job.ID)

		result, ok := scheduler.AwaitBounded(job, wait)
		if !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: still running after %s, waiting for it to finish\n", job.Identity, wait)
			err := e.scheduler.Drain(ctx)
			if err != nil {
				slog.Warn("interrupted before the cycle finished", "err", err)
				return
			}
			result, _, _ = job.Result()
		}
		renderResult(cmd.OutOrStdout(), result)
	},
}
