package toolprobe

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tys-asm/asmctl/internal/helpers"
)

// Availability is a read-only snapshot of one external tool
type Availability struct {
	Tool      string
	Installed bool
	Version   string
	Hint      string // suggested install command when not installed
}

// versionArgs maps a tool to the arguments that make it print its
// version without touching any system state. Tools absent from this map
// are probed by PATH lookup only.
var versionArgs = map[string][]string{
	"pacman":     {"--version"},
	"pacman-key": {"--version"},
	"paru":       {"--version"},
	"yay":        {"--version"},
	"flatpak":    {"--version"},
	"snap":       {"version"},
	"debtap":     {"--version"},
	"bsdtar":     {"--version"},
	"reflector":  {"--version"},
	"paccache":   {"--version"},
	"pkexec":     {"--version"},
}

// hints maps a tool to the command that installs it on Arch
var hints = map[string]string{
	"pacman":     "pacman ships with Arch; reinstall base if missing",
	"pacman-key": "sudo pacman -S pacman",
	"paru":       "install from AUR: https://aur.archlinux.org/paru.git",
	"yay":        "install from AUR: https://aur.archlinux.org/yay.git",
	"flatpak":    "sudo pacman -S flatpak",
	"snap":       "install snapd from AUR: paru -S snapd",
	"debtap":     "paru -S debtap",
	"rpmextract": "sudo pacman -S rpmextract",
	"rpm2cpio":   "sudo pacman -S rpm-tools",
	"bsdtar":     "sudo pacman -S libarchive",
	"reflector":  "sudo pacman -S reflector",
	"paccache":   "sudo pacman -S pacman-contrib",
	"pkexec":     "sudo pacman -S polkit",
}

var versionRe = regexp.MustCompile(`v?(\d+(?:\.\d+)+)`)

// Probe detects presence and version of external tools. Results are
// cached until Refresh is called; probing never mutates system state.
type Probe struct {
	runner  helpers.CommandRunner
	timeout time.Duration
	log     *zerolog.Logger

	mu    sync.RWMutex
	cache map[string]Availability
}

// New creates a Probe with the given version-flag timeout
func New(runner helpers.CommandRunner, timeout time.Duration, log *zerolog.Logger) *Probe {
	return &Probe{
		runner:  runner,
		timeout: timeout,
		log:     log,
		cache:   make(map[string]Availability),
	}
}

// Probe checks a single tool, serving from cache when possible
func (p *Probe) Probe(ctx context.Context, name string) Availability {
	p.mu.RLock()
	if av, ok := p.cache[name]; ok {
		p.mu.RUnlock()
		return av
	}
	p.mu.RUnlock()

	av := p.probe(ctx, name)

	p.mu.Lock()
	p.cache[name] = av
	p.mu.Unlock()
	return av
}

// ProbeAll checks several tools and returns a map keyed by tool name
func (p *Probe) ProbeAll(ctx context.Context, names ...string) map[string]Availability {
	out := make(map[string]Availability, len(names))
	for _, name := range names {
		out[name] = p.Probe(ctx, name)
	}
	return out
}

// Refresh drops all cached results so the next probe re-checks the system
func (p *Probe) Refresh() {
	p.mu.Lock()
	p.cache = make(map[string]Availability)
	p.mu.Unlock()
}

func (p *Probe) probe(ctx context.Context, name string) Availability {
	av := Availability{Tool: name, Hint: hints[name]}

	if !p.runner.CommandExists(name) {
		p.log.Debug().Str("tool", name).Msg("tool not in PATH")
		return av
	}

	args, ok := versionArgs[name]
	if !ok {
		// No safe version flag known; PATH presence is the whole probe
		av.Installed = true
		return av
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	stdout, _, err := p.runner.RunCommandWithOutput(probeCtx, name, args...)
	if err != nil {
		// A tool that cannot answer its own version flag is treated as
		// unusable, matching the resolution hint it would get if absent.
		p.log.Warn().Err(err).Str("tool", name).Msg("version probe failed")
		return av
	}

	av.Installed = true
	av.Version = parseVersion(stdout)
	return av
}

func parseVersion(output string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	if m := versionRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}
