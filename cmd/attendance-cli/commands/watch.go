package commands

import (
	"attendance-backend/internal/acquisition"
	"attendance-backend/internal/components/chrono"
	"attendance-backend/internal/components/serviceutil"
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

var (
	watchCron   *string
	watchSecret *string
)

func init() {
	watchCron = watchCmd.Flags().String("cron", "@every 6h", "How often to acquire, in robfig/cron syntax.")
	watchSecret = watchCmd.Flags().String("secret", "", "The portal password, defaults to $PORTAL_SECRET.")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch <identity> [--cron <spec>]",
	Short: "Acquires attendance for an identity now and then on a schedule until interrupted.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e := openEnv(ctx, true)
		defer e.Close()

		req := acquisition.Request{
			Identity: args[0],
			Secret:   secretFor(*watchSecret),
		}
		trigger := func() {
			if previous, ok := e.scheduler.Lookup(req.Identity); ok {
				result, finishedAt, done := previous.Result()
				if !done {
					slog.Info("previous cycle still running, skipping", "identity", req.Identity, "job", previous.ID)
					return
				}
				slog.Info("previous cycle", "identity", req.Identity, "outcome", result.Outcome, "reason", result.Reason, "finished", finishedAt)
			}
			job := e.scheduler.Trigger(ctx, req)
			slog.Info("triggered", "identity", job.Identity, "job", job.ID)
		}

		cron := chrono.NewStandardCron(e.clock.Location(), e.tel)
		err := cron.Cron(*watchCron, trigger)
		if err != nil {
			serviceutil.Fatal("invalid cron spec", err)
		}
		trigger()

		<-ctx.Done()
		slog.Info("stopping, waiting for running cycles...")

		stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		cron.Stop(stopCtx)
		err = e.scheduler.Drain(stopCtx)
		if err != nil {
			slog.Warn("cycles were still running on exit", "err", err)
		}
	},
}
