package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tys-asm/asmctl/internal/config"
	"github.com/tys-asm/asmctl/internal/core"
	"github.com/tys-asm/asmctl/internal/security"
	"github.com/tys-asm/asmctl/internal/ui"
)

// NewMoveCmd creates the move command
func NewMoveCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "move [file]",
		Short: "Move a portable application into the applications directory",
		Long: `Move a portable application file (an AppImage or a standalone binary)
into the applications directory so it survives download-folder cleanups.
The destination is paths.applications_dir in the configuration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			if err := security.ValidatePackagePath(path); err != nil {
				ui.PrintError("%v", err)
				return err
			}

			if err := os.MkdirAll(cfg.Paths.ApplicationsDir, 0o755); err != nil {
				ui.PrintError("%v", err)
				return err
			}

			log.Info().Str("file", path).Str("dest", cfg.Paths.ApplicationsDir).Msg("starting move")

			app, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}
			defer app.Close()

			desc := core.Descriptor{
				Kind:    core.KindMove,
				Backend: core.BackendFile,
				Target:  path,
			}
			return app.runOperation(cmd, desc, verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "echo raw tool output while moving")

	return cmd
}
