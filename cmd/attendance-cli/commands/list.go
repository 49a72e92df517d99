package commands

import (
	"attendance-backend/internal/components/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists every identity with a completed acquisition.",
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv(cmd.Context(), false)
		defer e.Close()

		snapshots, err := e.store.List(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list snapshots", err)
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Identity", "Name", "State", "Fetched"})
		for _, s := range snapshots {
			t.AppendRow(table.Row{s.Identity, s.DisplayName, s.State, formatTime(s.FetchedAt)})
		}
		t.Render()
	},
}
