package toolprobe

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tys-asm/asmctl/internal/helpers"
	"github.com/tys-asm/asmctl/internal/logging"
)

func newTestProbe(runner helpers.CommandRunner) *Probe {
	return New(runner, 2*time.Second, logging.NewTestLogger(io.Discard))
}

func TestProbe_InstalledWithVersion(t *testing.T) {
	mock := &helpers.MockCommandRunner{
		CommandExistsFunc: func(name string) bool { return name == "pacman" },
		RunCommandWithOutputFunc: func(_ context.Context, name string, args ...string) (string, string, error) {
			return "Pacman v6.1.0 - libalpm v14.0.0", "", nil
		},
	}

	av := newTestProbe(mock).Probe(context.Background(), "pacman")
	assert.True(t, av.Installed)
	assert.Equal(t, "6.1.0", av.Version)
	assert.Equal(t, "pacman", av.Tool)
}

func TestProbe_MissingToolCarriesHint(t *testing.T) {
	mock := &helpers.MockCommandRunner{
		CommandExistsFunc: func(string) bool { return false },
	}

	av := newTestProbe(mock).Probe(context.Background(), "debtap")
	assert.False(t, av.Installed)
	assert.Equal(t, "paru -S debtap", av.Hint)
	assert.Empty(t, av.Version)
}

func TestProbe_BrokenVersionFlagMeansUnusable(t *testing.T) {
	mock := &helpers.MockCommandRunner{
		CommandExistsFunc: func(string) bool { return true },
		RunCommandWithOutputFunc: func(_ context.Context, _ string, _ ...string) (string, string, error) {
			return "", "segfault", errors.New("exit status 139")
		},
	}

	av := newTestProbe(mock).Probe(context.Background(), "flatpak")
	assert.False(t, av.Installed)
	assert.NotEmpty(t, av.Hint)
}

func TestProbe_NoVersionFlagProbesPathOnly(t *testing.T) {
	mock := &helpers.MockCommandRunner{
		CommandExistsFunc: func(string) bool { return true },
	}

	// rpm2cpio has no entry in versionArgs
	av := newTestProbe(mock).Probe(context.Background(), "rpm2cpio")
	assert.True(t, av.Installed)
	assert.Empty(t, av.Version)
	// No subprocess must have been spawned
	assert.Empty(t, mock.Calls)
}

func TestProbe_CachesUntilRefresh(t *testing.T) {
	exists := false
	mock := &helpers.MockCommandRunner{
		CommandExistsFunc: func(string) bool { return exists },
	}
	probe := newTestProbe(mock)

	av := probe.Probe(context.Background(), "snap")
	assert.False(t, av.Installed)

	// The tool appears, but the cache still answers
	exists = true
	av = probe.Probe(context.Background(), "snap")
	assert.False(t, av.Installed)

	probe.Refresh()
	av = probe.Probe(context.Background(), "snap")
	assert.True(t, av.Installed)
}

func TestProbe_ProbeAll(t *testing.T) {
	mock := &helpers.MockCommandRunner{
		CommandExistsFunc: func(name string) bool { return name == "pacman" },
		RunCommandWithOutputFunc: func(_ context.Context, _ string, _ ...string) (string, string, error) {
			return "Pacman v6.1.0", "", nil
		},
	}

	results := newTestProbe(mock).ProbeAll(context.Background(), "pacman", "debtap")
	require.Len(t, results, 2)
	assert.True(t, results["pacman"].Installed)
	assert.False(t, results["debtap"].Installed)
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"Pacman v6.1.0 - libalpm v14.0.0", "6.1.0"},
		{"paru v2.0.4 - libalpm v14.0.0", "2.0.4"},
		{"Flatpak 1.15.10", "1.15.10"},
		{"snap    2.63\nsnapd   2.63", "2.63"},
		{"no digits here", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseVersion(tt.output), tt.output)
	}
}
