package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tys-asm/asmctl/internal/config"
	"github.com/tys-asm/asmctl/internal/core"
	"github.com/tys-asm/asmctl/internal/ui"
)

// NewInstallCmd creates the install command
func NewInstallCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var (
		backend string
		verbose bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "install [package]",
		Short: "Install a package",
		Long: `Install a package from the official repositories, the AUR, Flathub or the
Snap store. A path to a local .pkg.tar file installs that file directly;
other package formats (deb, rpm, tarballs, AppImages) go through "convert".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]

			desc, err := installDescriptor(target, backend)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}

			log.Info().
				Str("target", desc.Target).
				Str("backend", string(desc.Backend)).
				Msg("starting installation")

			if !yes {
				ok, err := ui.ConfirmPrompt(fmt.Sprintf("Install %s from %s", desc.Target, ui.ColorizeBackend(string(desc.Backend))))
				if err != nil {
					return err
				}
				if !ok {
					ui.PrintInfo("installation aborted")
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

	cmd.Flags().StringVarP(&backend, "backend", "b", "", "package source: repo, aur, flatpak or snap (default: repo, or file for local paths)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "echo raw tool output while installing")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

// installDescriptor builds the install descriptor from the target and
// an optional backend override. Local file paths select the file backend.
func installDescriptor(target, backend string) (core.Descriptor, error) {
	if backend == "" {
		if _, err := os.Stat(target); err == nil {
			backend = "file"
		} else {
			backend = "repo"
		}
	}

	switch core.Backend(backend) {
	case core.BackendRepo:
		return core.Descriptor{Kind: core.KindInstall, Backend: core.BackendRepo, Target: target, Privileged: true}, nil
	case core.BackendAUR:
		// AUR helpers refuse to run as root; they escalate on their own
		return core.Descriptor{Kind: core.KindInstall, Backend: core.BackendAUR, Target: target}, nil
	case core.BackendFlatpak:
		return core.Descriptor{Kind: core.KindInstall, Backend: core.BackendFlatpak, Target: target}, nil
	case core.BackendSnap:
		return core.Descriptor{Kind: core.KindInstall, Backend: core.BackendSnap, Target: target, Privileged: true}, nil
	case core.BackendFile:
		return core.Descriptor{Kind: core.KindInstall, Backend: core.BackendFile, Target: target, Privileged: true}, nil
	default:
		return core.Descriptor{}, fmt.Errorf("unknown backend %q (expected repo, aur, flatpak, snap or file)", backend)
	}
}
