package cmd

import (
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tys-asm/asmctl/internal/config"
	"github.com/tys-asm/asmctl/internal/helpers"
	"github.com/tys-asm/asmctl/internal/toolprobe"
	"github.com/tys-asm/asmctl/internal/ui"
)

// probedTools is the set the tools command reports on
var probedTools = []string{
	"pacman", "pacman-key", "paru", "yay", "flatpak", "snap",
	"debtap", "rpmextract", "rpm2cpio", "bsdtar",
	"reflector", "paccache", "pkexec",
}

// NewToolsCmd creates the tools command
func NewToolsCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Show which external tools are available",
		Long:  `Probe every external tool the application can use and report its presence and version, with installation hints for anything missing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := helpers.NewOSCommandRunner()
			probe := toolprobe.New(runner, cfg.Timeouts.Probe, log)

			results := probe.ProbeAll(cmd.Context(), probedTools...)

			names := make([]string, 0, len(results))
			for name := range results {
				names = append(names, name)
			}
			sort.Strings(names)

			table := tablewriter.NewTable(cmd.OutOrStdout(),
				tablewriter.WithHeader([]string{"Tool", "Status", "Version", "Hint"}),
				tablewriter.WithAlignment(tw.MakeAlign(4, tw.AlignLeft)),
				tablewriter.WithSymbols(tw.NewSymbols(tw.StyleNone)),
			)

			missing := 0
			for _, name := range names {
				av := results[name]
				status := ui.CheckMark
				hint := ""
				if !av.Installed {
					status = ui.CrossMark
					hint = av.Hint
					missing++
				}
				version := av.Version
				if version == "" {
					version = "-"
				}
				table.Append(av.Tool, status, version, hint)
			}
			table.Render()

			if missing > 0 {
				ui.PrintInfo("%d tool(s) missing; operations that need them will say so before running", missing)
			}
			return nil
		},
	}

	return cmd
}
