package executor

import (
	"fmt"

	"github.com/tys-asm/asmctl/internal/core"
)

// step is one external command inside an operation. wrap marks steps
// that must run under the operation's privilege authorization.
type step struct {
	phase string
	argv  []string
	dir   string
	wrap  bool
	// interactive marks steps waiting on a human (terminal privilege
	// fallback); the stall watchdog leaves those alone
	interactive bool
}

// resolve maps (kind, backend) to the required tools and command line.
// Convert operations are planned dynamically in convert.go because
// their steps depend on the file type and on intermediate results.
func (e *Executor) resolve(desc core.Descriptor) (requires []string, st step, err error) {
	switch desc.Kind {
	case core.KindInstall:
		switch desc.Backend {
		case core.BackendRepo:
			return []string{"pacman"},
				step{phase: core.PhaseInstalling, argv: []string{"pacman", "-S", "--noconfirm", desc.Target}, wrap: true}, nil
		case core.BackendAUR:
			return []string{e.aurHelper},
				step{phase: core.PhaseInstalling, argv: []string{e.aurHelper, "-S", "--noconfirm", "--skipreview", desc.Target}, wrap: true}, nil
		case core.BackendFlatpak:
			return []string{"flatpak"},
				step{phase: core.PhaseInstalling, argv: []string{"flatpak", "install", "--user", "-y", "flathub", desc.Target}, wrap: true}, nil
		case core.BackendSnap:
			return []string{"snap"},
				step{phase: core.PhaseInstalling, argv: []string{"snap", "install", desc.Target}, wrap: true}, nil
		case core.BackendFile:
			// A pre-built pacman package installs directly
			return []string{"pacman"},
				step{phase: core.PhaseInstalling, argv: []string{"pacman", "-U", "--noconfirm", desc.Target}, wrap: true}, nil
		}

	case core.KindRemove:
		switch desc.Backend {
		case core.BackendRepo:
			return []string{"pacman"},
				step{phase: core.PhaseRemoving, argv: []string{"pacman", "-Rns", "--noconfirm", desc.Target}, wrap: true}, nil
		case core.BackendAUR:
			return []string{e.aurHelper},
				step{phase: core.PhaseRemoving, argv: []string{e.aurHelper, "-Rns", "--noconfirm", desc.Target}, wrap: true}, nil
		case core.BackendFlatpak:
			return []string{"flatpak"},
				step{phase: core.PhaseRemoving, argv: []string{"flatpak", "uninstall", "--user", "-y", desc.Target}, wrap: true}, nil
		case core.BackendSnap:
			return []string{"snap"},
				step{phase: core.PhaseRemoving, argv: []string{"snap", "remove", desc.Target}, wrap: true}, nil
		}

	case core.KindMove:
		if desc.Backend == core.BackendFile {
			return []string{"mv"},
				step{phase: "moving", argv: []string{"mv", desc.Target, e.moveDir}, wrap: true}, nil
		}

	case core.KindDiagnosticFix:
		if len(desc.FixArgv) == 0 {
			return nil, step{}, fmt.Errorf("diagnostic fix %q has no remediation command", desc.Target)
		}
		return []string{desc.FixArgv[0]},
			step{phase: core.PhaseChecking, argv: desc.FixArgv, wrap: true}, nil
	}

	return nil, step{}, fmt.Errorf("no command template for %s on %s backend", desc.Kind, desc.Backend)
}
