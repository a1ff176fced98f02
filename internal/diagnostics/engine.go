package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/tys-asm/asmctl/internal/core"
	"github.com/tys-asm/asmctl/internal/helpers"
)

// Status grades a single health check
type Status string

const (
	StatusOk       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Check is the outcome of one health check. Remediation, when present,
// is a DiagnosticFix descriptor meant for the operation queue; the
// engine itself never mutates anything.
type Check struct {
	Name        string
	Status      Status
	Detail      string
	FixLabel    string
	Remediation *core.Descriptor
}

const checkTimeout = 10 * time.Second

// Engine runs a battery of independent, read-only system health checks
type Engine struct {
	runner helpers.CommandRunner
	fs     afero.Fs
	log    *zerolog.Logger

	cacheDir    string
	lockPath    string
	keyringPath string
	symlinkDirs []string
	diskFree    func(path string) (free, total uint64, err error)
}

// NewEngine creates an Engine with the standard Arch paths
func NewEngine(runner helpers.CommandRunner, fs afero.Fs, log *zerolog.Logger) *Engine {
	return &Engine{
		runner:      runner,
		fs:          fs,
		log:         log,
		cacheDir:    "/var/cache/pacman/pkg",
		lockPath:    "/var/lib/pacman/db.lck",
		keyringPath: "/etc/pacman.d/gnupg/pubring.gpg",
		symlinkDirs: []string{"/usr/bin", "/usr/lib"},
		diskFree:    statfsFree,
	}
}

// RunChecks runs every check in a fixed order. Checks are independent;
// one failing never hides the others.
func (e *Engine) RunChecks(ctx context.Context) []Check {
	checks := []func(context.Context) Check{
		e.checkDiskSpace,
		e.checkKeyring,
		e.checkOrphans,
		e.checkCacheSize,
		e.checkFailedServices,
		e.checkBrokenSymlinks,
		e.checkPacmanLock,
	}

	out := make([]Check, 0, len(checks))
	for _, check := range checks {
		c := check(ctx)
		e.log.Debug().Str("check", c.Name).Str("status", string(c.Status)).Str("detail", c.Detail).Msg("diagnostic check done")
		out = append(out, c)
	}
	return out
}

func fixDescriptor(name string, argv ...string) *core.Descriptor {
	return &core.Descriptor{
		Kind:       core.KindDiagnosticFix,
		Backend:    core.BackendRepo,
		Target:     name,
		Privileged: true,
		FixArgv:    argv,
	}
}

func (e *Engine) checkDiskSpace(context.Context) Check {
	free, total, err := e.diskFree("/")
	if err != nil {
		return Check{Name: "disk space", Status: StatusWarning, Detail: fmt.Sprintf("cannot stat root filesystem: %v", err)}
	}

	freeGB := float64(free) / (1 << 30)
	pctUsed := 0.0
	if total > 0 {
		pctUsed = float64(total-free) / float64(total) * 100
	}
	detail := fmt.Sprintf("%.1f GiB free (%.0f%% used)", freeGB, pctUsed)

	switch {
	case freeGB < 1:
		return Check{
			Name: "disk space", Status: StatusCritical, Detail: "critically low: " + detail,
			FixLabel:    "clean entire package cache",
			Remediation: fixDescriptor("disk space", "pacman", "-Scc", "--noconfirm"),
		}
	case freeGB < 5:
		return Check{
			Name: "disk space", Status: StatusWarning, Detail: "low: " + detail,
			FixLabel:    "clean package cache",
			Remediation: fixDescriptor("disk space", "pacman", "-Sc", "--noconfirm"),
		}
	}
	return Check{Name: "disk space", Status: StatusOk, Detail: detail}
}

func (e *Engine) checkKeyring(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	_, _, err := e.runner.RunCommandWithOutput(ctx, "pacman-key", "--verify", e.keyringPath)
	if err != nil {
		return Check{
			Name: "pacman keyring", Status: StatusWarning,
			Detail:      "keyring may need a refresh",
			FixLabel:    "re-initialize keyring",
			Remediation: fixDescriptor("pacman keyring", "pacman-key", "--init"),
		}
	}
	return Check{Name: "pacman keyring", Status: StatusOk, Detail: "keyring is healthy"}
}

func (e *Engine) checkOrphans(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	// pacman -Qdtq exits 1 when there are no orphans, so the error
	// path and the happy path look the same here
	stdout, _, _ := e.runner.RunCommandWithOutput(ctx, "pacman", "-Qdtq")
	var orphans []string
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			orphans = append(orphans, line)
		}
	}
	if len(orphans) == 0 {
		return Check{Name: "orphaned packages", Status: StatusOk, Detail: "no orphaned packages"}
	}

	preview := orphans
	suffix := ""
	if len(preview) > 5 {
		preview = preview[:5]
		suffix = ", ..."
	}
	return Check{
		Name:     "orphaned packages",
		Status:   StatusWarning,
		Detail:   fmt.Sprintf("%d orphaned packages: %s%s", len(orphans), strings.Join(preview, ", "), suffix),
		FixLabel: "remove orphans",
		Remediation: fixDescriptor("orphaned packages",
			append([]string{"pacman", "-Rns", "--noconfirm"}, orphans...)...),
	}
}

func (e *Engine) checkCacheSize(context.Context) Check {
	var total int64
	err := afero.Walk(e.fs, e.cacheDir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return Check{Name: "package cache", Status: StatusWarning, Detail: fmt.Sprintf("cannot inspect %s: %v", e.cacheDir, err)}
	}

	gb := float64(total) / (1 << 30)
	detail := fmt.Sprintf("cache is %.1f GiB", gb)
	if gb > 5 {
		return Check{
			Name: "package cache", Status: StatusWarning, Detail: detail,
			FixLabel:    "remove old package versions",
			Remediation: fixDescriptor("package cache", "paccache", "-r"),
		}
	}
	return Check{Name: "package cache", Status: StatusOk, Detail: detail}
}

func (e *Engine) checkFailedServices(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	stdout, _, err := e.runner.RunCommandWithOutput(ctx, "systemctl", "--failed", "--no-pager", "--no-legend")
	if err != nil {
		return Check{Name: "system services", Status: StatusOk, Detail: "could not query systemd"}
	}

	var failed int
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if strings.TrimSpace(line) != "" {
			failed++
		}
	}
	if failed > 0 {
		return Check{Name: "system services", Status: StatusWarning, Detail: fmt.Sprintf("%d failed service(s)", failed)}
	}
	return Check{Name: "system services", Status: StatusOk, Detail: "all services running"}
}

func (e *Engine) checkBrokenSymlinks(context.Context) Check {
	const maxReported = 10

	var broken int
	for _, dir := range e.symlinkDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.Type()&os.ModeSymlink == 0 {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if _, err := os.Stat(path); err != nil {
				broken++
				if broken >= maxReported {
					break
				}
			}
		}
		if broken >= maxReported {
			break
		}
	}

	if broken > 0 {
		count := fmt.Sprintf("%d", broken)
		if broken >= maxReported {
			// Counting stops at the cap; there may be more
			count = fmt.Sprintf("%d+", maxReported)
		}
		return Check{Name: "broken symlinks", Status: StatusWarning, Detail: fmt.Sprintf("%s broken symlink(s) in system dirs", count)}
	}
	return Check{Name: "broken symlinks", Status: StatusOk, Detail: "no broken symlinks detected"}
}

func (e *Engine) checkPacmanLock(context.Context) Check {
	exists, err := afero.Exists(e.fs, e.lockPath)
	if err != nil {
		return Check{Name: "pacman lock", Status: StatusWarning, Detail: fmt.Sprintf("cannot check lock file: %v", err)}
	}
	if exists {
		return Check{
			Name: "pacman lock", Status: StatusCritical,
			Detail:      "lock file exists, another package operation may be running",
			FixLabel:    "remove stale lock file",
			Remediation: fixDescriptor("pacman lock", "rm", "-f", e.lockPath),
		}
	}
	return Check{Name: "pacman lock", Status: StatusOk, Detail: "no lock file, pacman is ready"}
}

func statfsFree(path string) (free, total uint64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Bavail * bsize, st.Blocks * bsize, nil
}
