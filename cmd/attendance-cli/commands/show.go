package commands

import (
	"attendance-backend/internal/components/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show <identity>",
	Short: "Prints what is stored for an identity.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv(cmd.Context(), false)
		defer e.Close()

		snapshot, err := e.store.Read(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("failed to read snapshot", err)
		}
		renderSnapshot(cmd.OutOrStdout(), snapshot)
	},
}
