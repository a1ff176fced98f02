package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tys-asm/asmctl/internal/config"
	"github.com/tys-asm/asmctl/internal/diagnostics"
	"github.com/tys-asm/asmctl/internal/ui"
)

// NewDoctorCmd creates the doctor command
func NewDoctorCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var (
		fix     bool
		yes     bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system health",
		Long: `Run read-only system health checks: disk space, pacman keyring,
orphaned packages, package cache size, failed services, broken symlinks
and a stale pacman lock. With --fix, offer to run the remediation for
each failing check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}
			defer app.Close()

			ui.PrintHeader("System health")
			checks := app.engine.RunChecks(cmd.Context())

			table := tablewriter.NewTable(cmd.OutOrStdout(),
				tablewriter.WithHeader([]string{"Check", "Status", "Detail"}),
				tablewriter.WithAlignment(tw.MakeAlign(3, tw.AlignLeft)),
				tablewriter.WithSymbols(tw.NewSymbols(tw.StyleNone)),
			)
			var failing []diagnostics.Check
			for _, c := range checks {
				table.Append(c.Name, ui.ColorizeHealth(string(c.Status)), c.Detail)
				if c.Status != diagnostics.StatusOk && c.Remediation != nil {
					failing = append(failing, c)
				}
			}
			table.Render()
			fmt.Println()

			if len(failing) == 0 {
				ui.PrintSuccess("no fixable issues found")
				return nil
			}

			if !fix {
				ui.PrintInfo("%d issue(s) can be fixed automatically; run with --fix", len(failing))
				return nil
			}

			for _, c := range failing {
				if !yes {
					ok, err := ui.ConfirmPrompt(fmt.Sprintf("%s: %s", c.Name, c.FixLabel))
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				}
				if err := app.runOperation(cmd, *c.Remediation, verbose); err != nil {
					ui.PrintWarning("fix for %q did not complete: %v", c.Name, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "offer to run remediations for failing checks")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "apply fixes without per-fix confirmation")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "echo raw tool output while fixing")

	return cmd
}
