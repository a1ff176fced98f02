package cmd

import (
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tys-asm/asmctl/internal/config"
	"github.com/tys-asm/asmctl/internal/history"
	"github.com/tys-asm/asmctl/internal/ui"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past operations",
		Long:  `Show the journal of past operations: what ran, when, and how it ended.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := history.Open(cmd.Context(), cfg.Paths.HistoryDB)
			if err != nil {
				ui.PrintError("open history database: %v", err)
				return err
			}
			defer journal.Close()

			entries, err := journal.List(cmd.Context(), limit)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}
			if len(entries) == 0 {
				ui.PrintInfo("no operations recorded yet")
				return nil
			}

			table := tablewriter.NewTable(cmd.OutOrStdout(),
				tablewriter.WithHeader([]string{"When", "Operation", "Backend", "Target", "Outcome"}),
				tablewriter.WithAlignment(tw.MakeAlign(5, tw.AlignLeft)),
				tablewriter.WithSymbols(tw.NewSymbols(tw.StyleNone)),
			)
			for _, e := range entries {
				outcome := e.Status
				switch e.Status {
				case "success":
					outcome = ui.SprintSuccess("success")
				case "failed":
					outcome = ui.CrossMark + " " + truncate(e.Detail, 40)
				case "":
					outcome = "interrupted"
				}
				table.Append(
					e.SubmittedAt.Local().Format("2006-01-02 15:04"),
					e.Kind,
					ui.ColorizeBackend(e.Backend),
					e.Target,
					outcome,
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "maximum entries to show")

	return cmd
}
