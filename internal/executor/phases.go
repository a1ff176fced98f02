package executor

import (
	"regexp"
	"strconv"

	"github.com/tys-asm/asmctl/internal/core"
)

// Phase recognition is best-effort: tool output formats are not a
// stable contract, so these patterns favor words shared across pacman,
// paru, yay, flatpak and snap over any one tool's exact log format.
// Lines matching nothing are forwarded with core.PhaseOutput.
var phasePatterns = []struct {
	re    *regexp.Regexp
	phase string
}{
	{regexp.MustCompile(`(?i)resolving dependencies|looking for conflicting|dependency`), core.PhaseResolving},
	{regexp.MustCompile(`(?i)downloading|retrieving|fetching`), core.PhaseDownloading},
	{regexp.MustCompile(`(?i)building|compiling|making package|makepkg`), core.PhaseBuilding},
	{regexp.MustCompile(`(?i)checking|verifying|validating`), core.PhaseChecking},
	{regexp.MustCompile(`(?i)uninstalling|removing`), core.PhaseRemoving},
	{regexp.MustCompile(`(?i)converting|translating|extracting`), core.PhaseConverting},
	{regexp.MustCompile(`(?i)installing|upgrading|reinstalling`), core.PhaseInstalling},
}

var (
	percentRe  = regexp.MustCompile(`(\d{1,3})%`)
	fractionRe = regexp.MustCompile(`\((\d+)/(\d+)\)`)
	ansiRe     = regexp.MustCompile(`\x1b(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)
)

// classifyLine maps a tool output line to a progress phase
func classifyLine(line string) string {
	for _, p := range phasePatterns {
		if p.re.MatchString(line) {
			return p.phase
		}
	}
	return core.PhaseOutput
}

// extractPercent pulls explicit progress out of a line: either "NN%" or
// a step counter like "(3/10)". Returns -1 when the line carries neither.
func extractPercent(line string) int {
	if m := percentRe.FindStringSubmatch(line); m != nil {
		pct, err := strconv.Atoi(m[1])
		if err == nil && pct <= 100 {
			return pct
		}
	}
	if m := fractionRe.FindStringSubmatch(line); m != nil {
		i, err1 := strconv.Atoi(m[1])
		n, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil && n > 0 && i <= n {
			return i * 100 / n
		}
	}
	return -1
}

// stripANSI removes terminal escape sequences from tool output
func stripANSI(line string) string {
	return ansiRe.ReplaceAllString(line, "")
}
