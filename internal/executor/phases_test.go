package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tys-asm/asmctl/internal/core"
)

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"resolving dependencies...", core.PhaseResolving},
		{"looking for conflicting packages...", core.PhaseResolving},
		{" firefox-128.0-1-x86_64 downloading...", core.PhaseDownloading},
		{"Retrieving packages...", core.PhaseDownloading},
		{"==> Making package: paru 2.0.4-1", core.PhaseBuilding},
		{"checking keys in keyring", core.PhaseChecking},
		{"removing firefox...", core.PhaseRemoving},
		{"extracting data.tar.xz", core.PhaseConverting},
		{"installing firefox...", core.PhaseInstalling},
		{"upgrading glibc...", core.PhaseInstalling},
		{":: some unrecognized chatter", core.PhaseOutput},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyLine(tt.line))
		})
	}
}

func TestExtractPercent(t *testing.T) {
	tests := []struct {
		line string
		want int
	}{
		{"downloading... 42%", 42},
		{"[##--------] 23% 1.2MiB/s", 23},
		{"100% done", 100},
		{"0% started", 0},
		{"255% bogus", -1},
		{"(3/10) installing firefox", 30},
		{"(10/10) arming ConditionNeedsUpdate", 100},
		{"(5/0) divide by zero guard", -1},
		{"no percent here", -1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, extractPercent(tt.line), tt.line)
	}
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "installing firefox", stripANSI("\x1b[1;32minstalling firefox\x1b[0m"))
	assert.Equal(t, "plain", stripANSI("plain"))
}
