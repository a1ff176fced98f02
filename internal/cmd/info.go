package cmd

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tys-asm/asmctl/internal/aur"
	"github.com/tys-asm/asmctl/internal/config"
	"github.com/tys-asm/asmctl/internal/helpers"
	"github.com/tys-asm/asmctl/internal/pacman"
	"github.com/tys-asm/asmctl/internal/ui"
)

// NewInfoCmd creates the info command
func NewInfoCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info [package]",
		Short: "Show detailed package information",
		Long:  `Show detailed information about a package, checking the local database, the sync databases and finally the AUR.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx := cmd.Context()

			runner := helpers.NewOSCommandRunner()
			query := pacman.NewQuery(runner)

			if query.IsInstalled(ctx, name) {
				info, err := query.Info(ctx, name, true)
				if err != nil {
					ui.PrintError("%v", err)
					return err
				}
				printPackageInfo(info)
				return nil
			}

			if info, err := query.Info(ctx, name, false); err == nil {
				printPackageInfo(info)
				return nil
			}

			// Not in the repos, try the AUR
			pkgs, err := aur.NewClient().Info(ctx, name)
			if err != nil {
				ui.PrintError("AUR lookup failed: %v", err)
				return err
			}
			if len(pkgs) == 0 {
				ui.PrintError("package %q not found in repositories or the AUR", name)
				return fmt.Errorf("package not found")
			}
			printAURInfo(pkgs[0])
			return nil
		},
	}

	return cmd
}

func printPackageInfo(info *pacman.PackageInfo) {
	ui.PrintHeader(info.Name)
	ui.PrintKeyValue("Version", info.Version)
	ui.PrintKeyValue("Description", info.Description)
	if info.Repository != "" {
		ui.PrintKeyValue("Repository", info.Repository)
	}
	if info.URL != "" {
		ui.PrintKeyValue("URL", info.URL)
	}
	if info.Size != "" {
		ui.PrintKeyValue("Size", info.Size)
	}
	if info.InstallDate != "" {
		ui.PrintKeyValue("Installed", info.InstallDate)
	}
	if len(info.Depends) > 0 {
		ui.PrintKeyValue("Depends", strings.Join(info.Depends, " "))
	}
	status := "not installed"
	if info.Installed {
		status = ui.SprintSuccess("installed")
	}
	ui.PrintKeyValue("Status", status)
}

func printAURInfo(p aur.Package) {
	ui.PrintHeader(p.Name + " (AUR)")
	ui.PrintKeyValue("Version", p.Version)
	ui.PrintKeyValue("Description", p.Description)
	if p.Maintainer != "" {
		ui.PrintKeyValue("Maintainer", p.Maintainer)
	}
	ui.PrintKeyValue("Votes", fmt.Sprintf("%d", p.Votes))
	ui.PrintKeyValue("Popularity", fmt.Sprintf("%.2f", p.Popularity))
	if p.URL != "" {
		ui.PrintKeyValue("Upstream", p.URL)
	}
	ui.PrintKeyValue("AUR page", p.PageURL())
	if p.OutOfDate != nil {
		ui.PrintWarning("this package is flagged out of date")
	}
}
