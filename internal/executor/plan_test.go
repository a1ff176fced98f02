package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tys-asm/asmctl/internal/core"
)

func TestResolve_CommandTemplates(t *testing.T) {
	exec := &Executor{aurHelper: "paru", moveDir: "/home/u/Applications"}

	tests := []struct {
		name     string
		desc     core.Descriptor
		requires []string
		argv     []string
		wrap     bool
	}{
		{
			name:     "repo install",
			desc:     core.Descriptor{Kind: core.KindInstall, Backend: core.BackendRepo, Target: "firefox"},
			requires: []string{"pacman"},
			argv:     []string{"pacman", "-S", "--noconfirm", "firefox"},
			wrap:     true,
		},
		{
			name:     "aur install uses configured helper",
			desc:     core.Descriptor{Kind: core.KindInstall, Backend: core.BackendAUR, Target: "paru-bin"},
			requires: []string{"paru"},
			argv:     []string{"paru", "-S", "--noconfirm", "--skipreview", "paru-bin"},
			wrap:     true,
		},
		{
			name:     "flatpak install is user scoped",
			desc:     core.Descriptor{Kind: core.KindInstall, Backend: core.BackendFlatpak, Target: "org.gimp.GIMP"},
			requires: []string{"flatpak"},
			argv:     []string{"flatpak", "install", "--user", "-y", "flathub", "org.gimp.GIMP"},
			wrap:     true,
		},
		{
			name:     "snap install",
			desc:     core.Descriptor{Kind: core.KindInstall, Backend: core.BackendSnap, Target: "spotify"},
			requires: []string{"snap"},
			argv:     []string{"snap", "install", "spotify"},
			wrap:     true,
		},
		{
			name:     "local package file",
			desc:     core.Descriptor{Kind: core.KindInstall, Backend: core.BackendFile, Target: "/tmp/a.pkg.tar.zst"},
			requires: []string{"pacman"},
			argv:     []string{"pacman", "-U", "--noconfirm", "/tmp/a.pkg.tar.zst"},
			wrap:     true,
		},
		{
			name:     "repo remove cascades unneeded deps",
			desc:     core.Descriptor{Kind: core.KindRemove, Backend: core.BackendRepo, Target: "firefox"},
			requires: []string{"pacman"},
			argv:     []string{"pacman", "-Rns", "--noconfirm", "firefox"},
			wrap:     true,
		},
		{
			name:     "move goes to the applications dir",
			desc:     core.Descriptor{Kind: core.KindMove, Backend: core.BackendFile, Target: "/tmp/App.AppImage"},
			requires: []string{"mv"},
			argv:     []string{"mv", "/tmp/App.AppImage", "/home/u/Applications"},
			wrap:     true,
		},
		{
			name:     "diagnostic fix runs its remediation verbatim",
			desc:     core.Descriptor{Kind: core.KindDiagnosticFix, Target: "pacman lock", FixArgv: []string{"rm", "-f", "/var/lib/pacman/db.lck"}},
			requires: []string{"rm"},
			argv:     []string{"rm", "-f", "/var/lib/pacman/db.lck"},
			wrap:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requires, st, err := exec.resolve(tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.requires, requires)
			assert.Equal(t, tt.argv, st.argv)
			assert.Equal(t, tt.wrap, st.wrap)
		})
	}
}

func TestResolve_Unsupported(t *testing.T) {
	exec := &Executor{aurHelper: "paru"}

	t.Run("file remove has no template", func(t *testing.T) {
		_, _, err := exec.resolve(core.Descriptor{Kind: core.KindRemove, Backend: core.BackendFile, Target: "/tmp/x"})
		assert.Error(t, err)
	})

	t.Run("fix without remediation", func(t *testing.T) {
		_, _, err := exec.resolve(core.Descriptor{Kind: core.KindDiagnosticFix, Target: "broken"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no remediation")
	})
}
