package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tys-asm/asmctl/internal/core"
)

func TestInstallDescriptor_ExplicitBackends(t *testing.T) {
	tests := []struct {
		backend    string
		want       core.Backend
		privileged bool
	}{
		{"repo", core.BackendRepo, true},
		{"aur", core.BackendAUR, false},
		{"flatpak", core.BackendFlatpak, false},
		{"snap", core.BackendSnap, true},
		{"file", core.BackendFile, true},
	}

	for _, tt := range tests {
		desc, err := installDescriptor("target", tt.backend)
		require.NoError(t, err, tt.backend)
		assert.Equal(t, core.KindInstall, desc.Kind)
		assert.Equal(t, tt.want, desc.Backend)
		assert.Equal(t, tt.privileged, desc.Privileged, tt.backend)
	}
}

func TestInstallDescriptor_AutoDetectsLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.pkg.tar.zst")
	require.NoError(t, os.WriteFile(path, []byte("pkg"), 0o644))

	desc, err := installDescriptor(path, "")
	require.NoError(t, err)
	assert.Equal(t, core.BackendFile, desc.Backend)
	assert.True(t, desc.Privileged)
}

func TestInstallDescriptor_DefaultsToRepo(t *testing.T) {
	desc, err := installDescriptor("firefox", "")
	require.NoError(t, err)
	assert.Equal(t, core.BackendRepo, desc.Backend)
	assert.True(t, desc.Privileged)
}

func TestInstallDescriptor_UnknownBackend(t *testing.T) {
	_, err := installDescriptor("firefox", "apt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestRemoveDescriptor(t *testing.T) {
	desc, err := removeDescriptor("firefox", "repo")
	require.NoError(t, err)
	assert.Equal(t, core.KindRemove, desc.Kind)
	assert.True(t, desc.Privileged)

	desc, err = removeDescriptor("paru-bin", "aur")
	require.NoError(t, err)
	assert.False(t, desc.Privileged)

	_, err = removeDescriptor("firefox", "file")
	require.Error(t, err)
}

func TestReportResult(t *testing.T) {
	desc := core.Descriptor{Kind: core.KindInstall, Backend: core.BackendFile, Target: "/tmp/app.deb"}

	t.Run("success is nil", func(t *testing.T) {
		err := reportResult(desc, core.Result{Status: core.StatusSuccess})
		assert.NoError(t, err)
	})

	t.Run("cancellation is an error", func(t *testing.T) {
		err := reportResult(desc, core.Result{Status: core.StatusCancelled, Reason: core.ReasonCancelled})
		assert.Error(t, err)
	})

	t.Run("missing tool is matchable", func(t *testing.T) {
		err := reportResult(desc, core.Result{
			Status: core.StatusFailed,
			Reason: core.ReasonToolMissing,
			Detail: "missing required tools: debtap",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrToolMissing))
	})

	t.Run("other failures name the reason", func(t *testing.T) {
		err := reportResult(desc, core.Result{Status: core.StatusFailed, Reason: core.ReasonExecutionFailed})
		require.Error(t, err)
		assert.Contains(t, err.Error(), string(core.ReasonExecutionFailed))
		assert.False(t, errors.Is(err, core.ErrToolMissing))
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly-10", truncate("exactly-10", 10))
	assert.Equal(t, "much lo...", truncate("much longer than ten", 10))
}
