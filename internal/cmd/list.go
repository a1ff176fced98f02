package cmd

import (
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tys-asm/asmctl/internal/config"
	"github.com/tys-asm/asmctl/internal/helpers"
	"github.com/tys-asm/asmctl/internal/pacman"
	"github.com/tys-asm/asmctl/internal/ui"
)

// NewListCmd creates the list command
func NewListCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		Long:  `List packages installed through pacman, optionally filtered with fuzzy matching.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := helpers.NewOSCommandRunner()
			pkgs, err := pacman.NewQuery(runner).ListInstalled(cmd.Context())
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}

			if filter != "" {
				filtered := pkgs[:0]
				for _, p := range pkgs {
					if fuzzy.MatchNormalizedFold(filter, p.Name) {
						filtered = append(filtered, p)
					}
				}
				pkgs = filtered
			}

			if len(pkgs) == 0 {
				ui.PrintInfo("no packages matched")
				return nil
			}

			table := tablewriter.NewTable(cmd.OutOrStdout(),
				tablewriter.WithHeader([]string{"Name", "Version"}),
				tablewriter.WithAlignment(tw.MakeAlign(2, tw.AlignLeft)),
				tablewriter.WithSymbols(tw.NewSymbols(tw.StyleNone)),
			)
			for _, p := range pkgs {
				table.Append(p.Name, p.Version)
			}
			table.Render()

			log.Debug().Int("count", len(pkgs)).Msg("listed installed packages")
			return nil
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", "", "fuzzy filter on package names")

	return cmd
}
