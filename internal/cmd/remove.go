package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tys-asm/asmctl/internal/config"
	"github.com/tys-asm/asmctl/internal/core"
	"github.com/tys-asm/asmctl/internal/ui"
)

// NewRemoveCmd creates the remove command
func NewRemoveCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var (
		backend string
		verbose bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:     "remove [package]",
		Aliases: []string{"uninstall"},
		Short:   "Remove an installed package",
		Long:    `Remove a package installed through pacman, an AUR helper, Flatpak or Snap, including its unneeded dependencies.`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]

			desc, err := removeDescriptor(target, backend)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}

			log.Info().
				Str("target", desc.Target).
				Str("backend", string(desc.Backend)).
				Msg("starting removal")

			if !yes {
				ok, err := ui.ConfirmDangerousAction("remove", target)
				if err != nil {
					return err
				}
				if !ok {
					ui.PrintInfo("removal aborted")
					return nil
				}
			}

			app, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}
			defer app.Close()

			return app.runOperation(cmd, desc, verbose)
		},
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", "repo", "package source: repo, aur, flatpak or snap")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "echo raw tool output while removing")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func removeDescriptor(target, backend string) (core.Descriptor, error) {
	switch core.Backend(backend) {
	case core.BackendRepo:
		return core.Descriptor{Kind: core.KindRemove, Backend: core.BackendRepo, Target: target, Privileged: true}, nil
	case core.BackendAUR:
		return core.Descriptor{Kind: core.KindRemove, Backend: core.BackendAUR, Target: target}, nil
	case core.BackendFlatpak:
		return core.Descriptor{Kind: core.KindRemove, Backend: core.BackendFlatpak, Target: target}, nil
	case core.BackendSnap:
		return core.Descriptor{Kind: core.KindRemove, Backend: core.BackendSnap, Target: target, Privileged: true}, nil
	default:
		return core.Descriptor{}, fmt.Errorf("unknown backend %q (expected repo, aur, flatpak or snap)", backend)
	}
}
