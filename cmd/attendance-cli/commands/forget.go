package commands

import (
	"attendance-backend/internal/components/serviceutil"
	"log/slog"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(forgetCmd)
}

var forgetCmd = &cobra.Command{
	Use:   "forget <identity>",
	Short: "Deletes everything stored for an identity.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv(cmd.Context(), false)
		defer e.Close()

		err := e.store.Forget(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("failed to forget identity", err)
		}
		slog.Info("forgot identity", "identity", args[0])
	},
}
