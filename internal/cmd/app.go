package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tys-asm/asmctl/internal/config"
	"github.com/tys-asm/asmctl/internal/core"
	"github.com/tys-asm/asmctl/internal/diagnostics"
	"github.com/tys-asm/asmctl/internal/eta"
	"github.com/tys-asm/asmctl/internal/executor"
	"github.com/tys-asm/asmctl/internal/helpers"
	"github.com/tys-asm/asmctl/internal/history"
	"github.com/tys-asm/asmctl/internal/privilege"
	"github.com/tys-asm/asmctl/internal/queue"
	"github.com/tys-asm/asmctl/internal/toolprobe"
	"github.com/tys-asm/asmctl/internal/ui"
)

// app holds the wired orchestration core for one command invocation
type app struct {
	runner  helpers.CommandRunner
	probe   *toolprobe.Probe
	broker  *privilege.Broker
	queue   *queue.Queue
	journal *history.Store
	engine  *diagnostics.Engine
	log     *zerolog.Logger
}

// newApp wires runner, probe, broker, executor, journal and queue from
// the configuration. Callers must Close it.
func newApp(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	runner := helpers.NewOSCommandRunner()
	probe := toolprobe.New(runner, cfg.Timeouts.Probe, log)
	broker := privilege.NewBroker(runner, cfg.Tools.Terminals, log)

	fs := afero.NewOsFs()
	tracker := eta.New(fs, cfg.Paths.ETAHistory)

	exec := executor.New(runner, probe, tracker, log, executor.Options{
		AURHelper: cfg.Tools.AURHelper,
		MoveDir:   cfg.Paths.ApplicationsDir,
		Authorize: cfg.Timeouts.Authorize,
		Stall:     cfg.Timeouts.Stall,
		KillGrace: cfg.Timeouts.KillGrace,
	})

	journal, err := history.Open(ctx, cfg.Paths.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	return &app{
		runner:  runner,
		probe:   probe,
		broker:  broker,
		queue:   queue.New(exec, broker, journal, log),
		journal: journal,
		engine:  diagnostics.NewEngine(runner, fs, log),
		log:     log,
	}, nil
}

func (a *app) Close() {
	a.queue.Close()
	if err := a.journal.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing history database")
	}
}

// runOperation submits one descriptor, renders its progress until the
// operation retires, and reports the terminal result. Ctrl-C cancels
// the operation instead of killing the process outright; a second
// Ctrl-C exits immediately.
func (a *app) runOperation(cmd *cobra.Command, desc core.Descriptor, verbose bool) error {
	ticket, err := a.queue.Submit(desc)
	if err != nil {
		return fmt.Errorf("submit operation: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	go func() {
		<-sig
		ui.PrintWarning("cancelling, waiting for cleanup (Ctrl-C again to force quit)")
		a.queue.Cancel(ticket.ID)
		<-sig
		os.Exit(130)
	}()

	ui.RenderProgress(ticket.Progress, verbose)
	res := <-ticket.Result
	return reportResult(desc, res)
}

// reportResult prints the terminal result and maps failure to a non-nil
// error so the process exit code reflects the outcome
func reportResult(desc core.Descriptor, res core.Result) error {
	switch res.Status {
	case core.StatusSuccess:
		ui.PrintSuccess("%s %s completed in %s", desc.Kind, desc.Target, res.Duration.Round(100*time.Millisecond))
		return nil

	case core.StatusCancelled:
		ui.PrintWarning("%s %s was cancelled", desc.Kind, desc.Target)
		return fmt.Errorf("operation cancelled")

	default:
		ui.PrintError("%s %s failed: %s", desc.Kind, desc.Target, res.Detail)
		if res.Reason == core.ReasonToolMissing {
			ui.PrintInfo("install the missing tool(s) listed above and retry")
			return fmt.Errorf("%s %s: %w", desc.Kind, desc.Target, core.ErrToolMissing)
		}
		return fmt.Errorf("operation failed (%s)", res.Reason)
	}
}
