package cmd

import (
	"fmt"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tys-asm/asmctl/internal/aur"
	"github.com/tys-asm/asmctl/internal/config"
	"github.com/tys-asm/asmctl/internal/helpers"
	"github.com/tys-asm/asmctl/internal/pacman"
	"github.com/tys-asm/asmctl/internal/ui"
)

// NewSearchCmd creates the search command
func NewSearchCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var (
		repoOnly bool
		aurOnly  bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the official repositories and the AUR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			ctx := cmd.Context()

			runner := helpers.NewOSCommandRunner()

			if !aurOnly {
				results, err := pacman.NewQuery(runner).Search(ctx, query)
				if err != nil {
					log.Warn().Err(err).Msg("repository search failed")
					ui.PrintWarning("repository search failed: %v", err)
				} else {
					printRepoResults(cmd, results, limit)
				}
			}

			if !repoOnly {
				pkgs, err := aur.NewClient().Search(ctx, query, "name-desc")
				if err != nil {
					log.Warn().Err(err).Msg("AUR search failed")
					ui.PrintWarning("AUR search failed: %v", err)
				} else {
					printAURResults(cmd, query, pkgs, limit)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&repoOnly, "repo", false, "search only the official repositories")
	cmd.Flags().BoolVar(&aurOnly, "aur", false, "search only the AUR")
	cmd.Flags().IntVarP(&limit, "limit", "n", 30, "maximum results per source")

	return cmd
}

func printRepoResults(cmd *cobra.Command, results []pacman.SearchResult, limit int) {
	ui.PrintHeader("Official repositories")
	if len(results) == 0 {
		ui.Muted.Fprintln(cmd.OutOrStdout(), "no matches")
		return
	}
	if len(results) > limit {
		results = results[:limit]
	}

	table := tablewriter.NewTable(cmd.OutOrStdout(),
		tablewriter.WithHeader([]string{"Repo", "Name", "Version", "Description"}),
		tablewriter.WithAlignment(tw.MakeAlign(4, tw.AlignLeft)),
		tablewriter.WithSymbols(tw.NewSymbols(tw.StyleNone)),
	)
	for _, r := range results {
		name := r.Name
		if r.Installed {
			name = name + " " + ui.CheckMark
		}
		table.Append(r.Repository, name, r.Version, truncate(r.Description, 60))
	}
	table.Render()
}

func printAURResults(cmd *cobra.Command, query string, pkgs []aur.Package, limit int) {
	ui.PrintHeader("AUR")
	if len(pkgs) == 0 {
		ui.Muted.Fprintln(cmd.OutOrStdout(), "no matches")
		return
	}

	// The RPC matches loosely; rank by fuzzy closeness to the query
	ranked := make([]aur.Package, 0, len(pkgs))
	for _, p := range pkgs {
		if fuzzy.MatchNormalizedFold(query, p.Name) || fuzzy.MatchNormalizedFold(query, p.Description) {
			ranked = append(ranked, p)
		}
	}
	if len(ranked) == 0 {
		ranked = pkgs
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	table := tablewriter.NewTable(cmd.OutOrStdout(),
		tablewriter.WithHeader([]string{"Name", "Version", "Votes", "Description"}),
		tablewriter.WithAlignment(tw.MakeAlign(4, tw.AlignLeft)),
		tablewriter.WithSymbols(tw.NewSymbols(tw.StyleNone)),
	)
	for _, p := range ranked {
		name := p.Name
		if p.OutOfDate != nil {
			name = name + " " + ui.CrossMark
		}
		table.Append(name, p.Version, fmt.Sprintf("%d", p.Votes), truncate(p.Description, 60))
	}
	table.Render()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
