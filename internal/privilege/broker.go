package privilege

import (
	"context"
	"fmt"
	"os"

	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"
	"github.com/tys-asm/asmctl/internal/core"
	"github.com/tys-asm/asmctl/internal/helpers"
)

// Mode describes how an authorized command acquires its privileges
type Mode string

const (
	// ModeNone runs the command directly, no elevation involved
	ModeNone Mode = "none"
	// ModeAgent prefixes the command with pkexec; the polkit agent
	// shows the authorization dialog
	ModeAgent Mode = "agent"
	// ModeAgentUser runs the command as the invoking user through
	// pkexec --user, so unprivileged AUR helpers still get a visible
	// polkit dialog for their internal sudo calls
	ModeAgentUser Mode = "agent-user"
	// ModeTerminal embeds the command in an interactive terminal
	// emulator so the user can authenticate by hand
	ModeTerminal Mode = "terminal"
)

// Authorization is the handle returned by a successful Authorize call.
// Wrap rewrites a command line so it runs under the granted mechanism.
type Authorization struct {
	Mode Mode

	prefix   []string
	terminal string
	termArgs []string
}

// Wrap rewrites argv to run under this authorization
func (a Authorization) Wrap(argv []string) []string {
	switch a.Mode {
	case ModeAgent, ModeAgentUser:
		return append(append([]string{}, a.prefix...), argv...)
	case ModeTerminal:
		// The shell line keeps the terminal open so the user can read
		// the outcome before the window goes away.
		line := shellquote.Join(argv...) + "; echo; read -p 'Press Enter to close'"
		full := append([]string{a.terminal}, a.termArgs...)
		return append(full, line)
	default:
		return argv
	}
}

// terminalArgs maps a terminal emulator to the flags that make it run a
// shell command, tried in the order configured on the broker.
var terminalArgs = map[string][]string{
	"gnome-terminal": {"--", "bash", "-c"},
	"konsole":        {"-e", "bash", "-c"},
	"xfce4-terminal": {"-e", "bash", "-c"},
	"xterm":          {"-e", "bash", "-c"},
}

// Broker obtains elevated execution for operations that require it.
// Strategy: polkit agent (pkexec) first, interactive terminal fallback,
// immediate no-op handle for unprivileged descriptors.
type Broker struct {
	runner    helpers.CommandRunner
	terminals []string
	log       *zerolog.Logger
}

// NewBroker creates a Broker trying the given terminal emulators in order
func NewBroker(runner helpers.CommandRunner, terminals []string, log *zerolog.Logger) *Broker {
	return &Broker{runner: runner, terminals: terminals, log: log}
}

// Authorize resolves the privilege mechanism for a descriptor. Denial
// and timeout are reported at execution time through pkexec's exit
// codes; this call fails only when no mechanism exists at all.
func (b *Broker) Authorize(ctx context.Context, desc core.Descriptor) (Authorization, error) {
	if err := ctx.Err(); err != nil {
		return Authorization{}, err
	}

	if !desc.Privileged {
		// AUR helpers elevate themselves mid-run; give them a visible
		// polkit dialog (or a terminal) so their sudo prompt is not
		// swallowed by a GUI parent.
		if desc.Backend == core.BackendAUR && desc.Kind.Mutating() {
			return b.authorizeAURHelper()
		}
		return Authorization{Mode: ModeNone}, nil
	}

	if b.runner.CommandExists("pkexec") {
		b.log.Debug().Str("target", desc.Target).Msg("authorizing via polkit agent")
		return Authorization{Mode: ModeAgent, prefix: []string{"pkexec"}}, nil
	}

	if term, args, ok := b.findTerminal(); ok {
		b.log.Debug().Str("terminal", term).Str("target", desc.Target).Msg("no polkit agent, falling back to terminal")
		return Authorization{Mode: ModeTerminal, terminal: term, termArgs: args}, nil
	}

	return Authorization{}, fmt.Errorf("cannot authorize %s %q: %w", desc.Kind, desc.Target, core.ErrNoPrivilegeMechanism)
}

func (b *Broker) authorizeAURHelper() (Authorization, error) {
	if b.runner.CommandExists("pkexec") {
		user := os.Getenv("USER")
		if user == "" {
			user = "root"
		}
		return Authorization{
			Mode:   ModeAgentUser,
			prefix: []string{"pkexec", "--user", user, "--"},
		}, nil
	}

	if term, args, ok := b.findTerminal(); ok {
		return Authorization{Mode: ModeTerminal, terminal: term, termArgs: args}, nil
	}

	// Last resort: run directly and hope a tty is attached
	return Authorization{Mode: ModeNone}, nil
}

func (b *Broker) findTerminal() (string, []string, bool) {
	for _, term := range b.terminals {
		args, known := terminalArgs[term]
		if !known {
			args = []string{"-e", "bash", "-c"}
		}
		if b.runner.CommandExists(term) {
			return term, args, true
		}
	}
	return "", nil, false
}
