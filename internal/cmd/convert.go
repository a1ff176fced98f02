package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tys-asm/asmctl/internal/config"
	"github.com/tys-asm/asmctl/internal/core"
	"github.com/tys-asm/asmctl/internal/helpers"
	"github.com/tys-asm/asmctl/internal/security"
	"github.com/tys-asm/asmctl/internal/ui"
)

// NewConvertCmd creates the convert command
func NewConvertCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var (
		verbose bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "convert [file]",
		Short: "Convert and install a foreign package file",
		Long: `Convert a foreign package file to a native installation. Supported
formats: .deb (via debtap), .rpm (extracted to /opt), tarballs (built
from source when a build system is found), AppImages (moved to the
applications directory) and .flatpak bundles.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			if err := security.ValidatePackagePath(path); err != nil {
				ui.PrintError("%v", err)
				return err
			}

			ftype, err := helpers.DetectFileType(path)
			if err != nil {
				ui.PrintError("cannot detect file type: %v", err)
				return err
			}
			if ftype == helpers.FileTypeUnknown {
				ui.PrintError("unrecognized package format: %s", path)
				return fmt.Errorf("unrecognized package format")
			}

			log.Info().Str("file", path).Str("type", string(ftype)).Msg("starting conversion")
			ui.PrintInfo("detected package type: %s", ftype)

			if !yes {
				ok, err := ui.ConfirmPrompt(fmt.Sprintf("Convert and install %s", path))
				if err != nil {
					return err
				}
				if !ok {
					ui.PrintInfo("conversion aborted")
					return nil
				}
			}

			app, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}
			defer app.Close()

			desc := core.Descriptor{
				Kind:       core.KindConvert,
				Backend:    core.BackendFile,
				Target:     path,
				Privileged: true,
			}
			return app.runOperation(cmd, desc, verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "echo raw tool output while converting")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}
